// Package render assembles response bodies. Outcomes and resources are
// immutable inputs; everything here is a pure transformation.
package render

import (
	"fmt"
	"net/url"
	"strconv"

	"strato/internal/dispatch"
	"strato/internal/domain"
	"strato/internal/idcodec"
)

// IDValue renders a resource id in the representation the request used.
func IDValue(id int64, compressed bool) any {
	if compressed {
		return idcodec.Compress(id)
	}
	return id
}

// ResourceBody renders one resource. id and href are always present; attrs,
// when non-empty, restricts the remaining fields to that selection.
func ResourceBody(r domain.Resource, href string, compressed bool, attrs []string) map[string]any {
	body := map[string]any{
		"id":   IDValue(r.ID, compressed),
		"href": href,
	}
	if len(attrs) > 0 {
		for _, a := range attrs {
			if a == "id" || a == "href" {
				continue
			}
			if v, ok := r.Attr(a); ok {
				body[a] = v
			}
		}
		return body
	}
	if r.Name != "" {
		body["name"] = r.Name
	}
	if r.GUID != "" {
		body["guid"] = r.GUID
	}
	if r.Zone != "" {
		body["zone"] = r.Zone
	}
	body["created_at"] = r.CreatedAt
	body["updated_at"] = r.UpdatedAt
	for k, v := range r.Attributes {
		body[k] = v
	}
	return body
}

// CollectionOptions shape a collection read response.
type CollectionOptions struct {
	Name       string
	Expand     bool
	Attributes []string
	Limit      int
	Offset     int
	// RequestURL is the self link; pagination links derive from it.
	RequestURL *url.URL
	// HrefFor renders the item href (subcollections nest under the parent).
	HrefFor func(domain.Resource) string
}

// Collection renders the read envelope: name, count (total matches before
// pagination), subcount (returned items), pages, resources and links.
func Collection(items []domain.Resource, total int, opts CollectionOptions) map[string]any {
	resources := make([]map[string]any, 0, len(items))
	for _, r := range items {
		href := opts.HrefFor(r)
		if opts.Expand {
			resources = append(resources, ResourceBody(r, href, false, opts.Attributes))
		} else {
			resources = append(resources, map[string]any{"href": href})
		}
	}
	body := map[string]any{
		"name":      opts.Name,
		"count":     total,
		"subcount":  len(resources),
		"resources": resources,
	}
	if opts.Limit > 0 {
		pages := (total + opts.Limit - 1) / opts.Limit
		body["pages"] = pages
		body["links"] = links(opts.RequestURL, total, opts.Limit, opts.Offset)
	}
	return body
}

func links(self *url.URL, total, limit, offset int) map[string]string {
	out := map[string]string{"self": withOffset(self, offset)}
	out["first"] = withOffset(self, 0)
	if total > 0 {
		out["last"] = withOffset(self, ((total-1)/limit)*limit)
	}
	if offset+limit < total {
		out["next"] = withOffset(self, offset+limit)
	}
	if offset > 0 {
		previous := offset - limit
		if previous < 0 {
			previous = 0
		}
		out["previous"] = withOffset(self, previous)
	}
	return out
}

func withOffset(u *url.URL, offset int) string {
	if u == nil {
		return ""
	}
	clone := *u
	q := clone.Query()
	q.Set("offset", strconv.Itoa(offset))
	clone.RawQuery = q.Encode()
	return clone.String()
}

// OutcomeBody renders one outcome. For data-returning actions the resulting
// resource's fields are merged alongside success/message.
func OutcomeBody(o dispatch.Outcome) map[string]any {
	body := map[string]any{"success": o.Success}
	if o.Message != "" {
		body["message"] = o.Message
	}
	if o.Href != "" {
		body["href"] = o.Href
	}
	if o.TaskID != "" {
		body["task_id"] = o.TaskID
		body["task_href"] = o.TaskHref
	}
	if o.Entity != nil {
		for k, v := range ResourceBody(*o.Entity, o.Href, false, nil) {
			if _, taken := body[k]; !taken {
				body[k] = v
			}
		}
	}
	return body
}

// Results wraps outcomes in input order. Array-shaped request envelopes are
// always rendered this way, even with a single element.
func Results(outcomes []dispatch.Outcome) map[string]any {
	results := make([]map[string]any, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, OutcomeBody(o))
	}
	return map[string]any{"results": results}
}

// KindForStatus maps an HTTP status to the error taxonomy key.
func KindForStatus(status int) string {
	switch status {
	case 400:
		return "bad_request"
	case 401:
		return "unauthenticated"
	case 403:
		return "forbidden"
	case 404:
		return "not_found"
	case 406, 415:
		return "unsupported_media_type"
	default:
		return "internal_error"
	}
}

// KlassForKind identifies the failing handler class in error envelopes.
func KlassForKind(kind string) string {
	switch kind {
	case "bad_request":
		return "Api::BadRequestError"
	case "unauthenticated":
		return "Api::AuthenticationError"
	case "forbidden":
		return "Api::ForbiddenError"
	case "not_found":
		return "Api::NotFoundError"
	case "unsupported_media_type":
		return "Api::UnsupportedMediaTypeError"
	default:
		return "Api::Error"
	}
}

// TaskHref renders the well-known task lookup path.
func TaskHref(base string, id int64) string {
	return fmt.Sprintf("%s/tasks/%d", base, id)
}
