// Package envelope normalizes request bodies into a canonical operation
// list. The accepted shapes form a closed set: a bare attribute map, a
// {"resource": {...}} wrapper, a {"resources": [...]} wrapper, and any of
// those tagged with an "action" field. Each shape has its own parse case;
// nothing is inferred from stray body keys downstream.
package envelope

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"strato/internal/apierr"
)

// Operation is one normalized (action, attributes, target) tuple.
type Operation struct {
	Action     string
	Attributes map[string]any
	// RawID targets an instance other than the one named by the URL; it is
	// the untouched id or href basename from a resources array element.
	RawID string
}

// Parsed is the normalizer output. Singular records whether the original
// envelope was array-shaped, which the response assembler needs: an array
// envelope always renders a results array, even with one element.
type Parsed struct {
	Ops      []Operation
	Singular bool
}

// Options describe what the URL already decided.
type Options struct {
	// DefaultAction is implied by the route: edit for PUT/PATCH on an
	// instance, create for POST on a collection, empty otherwise.
	DefaultAction string
	// HasTargetID is true when the URL names a specific instance.
	HasTargetID bool
}

// Normalize parses body into an ordered, non-empty operation list. An
// envelope that normalizes to zero items is a validation error, never a
// silent no-op.
func Normalize(body []byte, opts Options) (Parsed, error) {
	var top map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &top); err != nil {
			return Parsed{}, apierr.BadRequest{Message: "invalid json in request body"}
		}
	}
	if top == nil {
		top = map[string]any{}
	}

	action := opts.DefaultAction
	if raw, ok := top["action"]; ok {
		name, ok := raw.(string)
		if !ok || name == "" {
			return Parsed{}, apierr.BadRequest{Message: "action must be a non-empty string"}
		}
		action = name
	}
	if action == "" {
		return Parsed{}, apierr.BadRequest{Message: "no action specified in the request"}
	}
	if action == "create" && opts.HasTargetID {
		return Parsed{}, apierr.BadRequest{Message: "id specified in the url for a create request"}
	}

	if raw, ok := top["resources"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return Parsed{}, apierr.BadRequest{Message: "resources must be an array"}
		}
		if len(list) == 0 {
			return Parsed{}, apierr.BadRequest{Message: "resources array is empty"}
		}
		ops := make([]Operation, 0, len(list))
		for i, elem := range list {
			attrs, ok := elem.(map[string]any)
			if !ok || attrs == nil {
				return Parsed{}, apierr.BadRequestf("resources entry %d is not an object", i)
			}
			op, err := operationFrom(action, attrs)
			if err != nil {
				return Parsed{}, err
			}
			ops = append(ops, op)
		}
		return Parsed{Ops: ops, Singular: false}, nil
	}

	if raw, ok := top["resource"]; ok {
		attrs, _ := raw.(map[string]any)
		if len(attrs) == 0 {
			return Parsed{}, apierr.BadRequest{Message: "resource object is empty or null"}
		}
		op, err := operationFrom(action, attrs)
		if err != nil {
			return Parsed{}, err
		}
		return Parsed{Ops: []Operation{op}, Singular: true}, nil
	}

	// Bare attribute map.
	attrs := make(map[string]any, len(top))
	for k, v := range top {
		if k == "action" {
			continue
		}
		attrs[k] = v
	}
	if len(attrs) == 0 && (action == "create" || action == "edit") {
		return Parsed{}, apierr.BadRequest{Message: "resource object is empty or null"}
	}
	op, err := operationFrom(action, attrs)
	if err != nil {
		return Parsed{}, err
	}
	return Parsed{Ops: []Operation{op}, Singular: true}, nil
}

func operationFrom(action string, attrs map[string]any) (Operation, error) {
	rawID := ""
	rest := make(map[string]any, len(attrs))
	for k, v := range attrs {
		switch k {
		case "id":
			rawID = stringify(v)
		case "href":
			href := stringify(v)
			if i := strings.LastIndex(href, "/"); i >= 0 {
				href = href[i+1:]
			}
			rawID = href
		default:
			rest[k] = v
		}
	}
	if action == "create" && rawID != "" {
		return Operation{}, apierr.BadRequest{Message: "resource id or href may not be specified for create requests"}
	}
	return Operation{Action: action, Attributes: rest, RawID: rawID}, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return ""
	default:
		return ""
	}
}
