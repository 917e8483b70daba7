// Package query implements collection reads: filter expressions, attribute
// projection, expansion and pagination.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"strato/internal/apierr"
	"strato/internal/domain"
	"strato/internal/registry"
)

// Filter is one attribute=op=value expression.
type Filter struct {
	Attr  string
	Op    string
	Value string
}

// Options are the parsed read parameters for one request.
type Options struct {
	Filters    []Filter
	Expand     bool
	Attributes []string
	Limit      int
	Offset     int
}

// two-character operators first so ">=" is not read as ">" then "=".
var operators = []string{"<=", ">=", "!=", "=", "<", ">"}

func parseFilter(expr string) (Filter, error) {
	for _, op := range operators {
		if i := strings.Index(expr, op); i > 0 {
			attr := strings.TrimSpace(expr[:i])
			value := strings.TrimSpace(expr[i+len(op):])
			value = strings.Trim(value, `'"`)
			return Filter{Attr: attr, Op: op, Value: value}, nil
		}
	}
	return Filter{}, apierr.BadRequestf("invalid filter expression %q", expr)
}

// Parse validates the request's query values against the collection
// descriptor. Unknown attributes fail fast naming the attribute, and missing
// required filters are aggregated into one error naming all of them.
func Parse(values url.Values, col registry.Collection, fallbackLimit int) (Options, error) {
	var opts Options

	raw := values["filter[]"]
	raw = append(raw, values["filter"]...)
	for _, expr := range raw {
		f, err := parseFilter(expr)
		if err != nil {
			return Options{}, err
		}
		if !col.QueryableAttr(f.Attr) {
			return Options{}, apierr.BadRequestf("unknown attribute %q specified in a filter for %s", f.Attr, col.Name)
		}
		opts.Filters = append(opts.Filters, f)
	}

	if missing := missingRequired(col, opts.Filters); len(missing) > 0 {
		return Options{}, apierr.BadRequestf("%s query requires filters on: %s", col.Name, strings.Join(missing, ", "))
	}

	for _, part := range strings.Split(values.Get("expand"), ",") {
		if strings.TrimSpace(part) == "resources" {
			opts.Expand = true
		}
	}

	attrs, err := ParseAttributes(values, col)
	if err != nil {
		return Options{}, err
	}
	opts.Attributes = attrs

	limit := col.DefaultLimit
	if limit <= 0 {
		limit = fallbackLimit
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Options{}, apierr.BadRequestf("invalid limit %q", raw)
		}
		limit = n
	}
	opts.Limit = limit
	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Options{}, apierr.BadRequestf("invalid offset %q", raw)
		}
		opts.Offset = n
	}
	return opts, nil
}

// ParseAttributes validates the attributes projection parameter. Single
// resource reads use it without the rest of the query machinery.
func ParseAttributes(values url.Values, col registry.Collection) ([]string, error) {
	raw := values.Get("attributes")
	if raw == "" {
		return nil, nil
	}
	var out []string
	for _, a := range strings.Split(raw, ",") {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if !col.QueryableAttr(a) {
			return nil, apierr.BadRequestf("invalid attribute %q specified for %s", a, col.Name)
		}
		out = append(out, a)
	}
	return out, nil
}

func missingRequired(col registry.Collection, filters []Filter) []string {
	var missing []string
	for _, required := range col.RequiredFilters {
		found := false
		for _, f := range filters {
			if f.Attr == required {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, required)
		}
	}
	return missing
}

// Apply filters and pages items. The returned total counts every match
// before the slice, which the response envelope reports as count.
func Apply(items []domain.Resource, opts Options) ([]domain.Resource, int) {
	matched := items[:0:0]
	for _, r := range items {
		if matchesAll(r, opts.Filters) {
			matched = append(matched, r)
		}
	}
	total := len(matched)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := total
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return matched[start:end], total
}

func matchesAll(r domain.Resource, filters []Filter) bool {
	for _, f := range filters {
		if !matches(r, f) {
			return false
		}
	}
	return true
}

func matches(r domain.Resource, f Filter) bool {
	v, ok := r.Attr(f.Attr)
	if !ok {
		return false
	}
	if lhs, rhs, ok := numericPair(v, f.Value); ok {
		return compare(f.Op, lhs < rhs, lhs == rhs)
	}
	lhs := fmt.Sprint(v)
	return compare(f.Op, lhs < f.Value, lhs == f.Value)
}

func numericPair(v any, raw string) (float64, float64, bool) {
	rhs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, rhs, true
	case int64:
		return float64(t), rhs, true
	case int:
		return float64(t), rhs, true
	}
	return 0, 0, false
}

func compare(op string, less, equal bool) bool {
	switch op {
	case "=":
		return equal
	case "!=":
		return !equal
	case "<":
		return less
	case "<=":
		return less || equal
	case ">":
		return !less && !equal
	case ">=":
		return !less
	}
	return false
}
