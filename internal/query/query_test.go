package query

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"strato/internal/apierr"
	"strato/internal/domain"
	"strato/internal/registry"
)

func vmsCol() registry.Collection {
	return registry.Collection{
		Name:       "vms",
		Attributes: []string{"power_state", "cpu_count"},
	}
}

func eventsCol() registry.Collection {
	return registry.Collection{
		Name:            "events",
		Attributes:      []string{"event_type", "timestamp"},
		RequiredFilters: []string{"event_type", "timestamp"},
		DefaultLimit:    100,
	}
}

func values(pairs ...string) url.Values {
	v := url.Values{}
	for _, p := range pairs {
		kv := strings.SplitN(p, "|", 2)
		v.Add(kv[0], kv[1])
	}
	return v
}

func TestParseFilters(t *testing.T) {
	opts, err := Parse(values("filter[]|power_state=on", "filter[]|cpu_count>=4"), vmsCol(), 25)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(opts.Filters) != 2 {
		t.Fatalf("filters = %d, want 2", len(opts.Filters))
	}
	if opts.Filters[1].Op != ">=" || opts.Filters[1].Value != "4" {
		t.Fatalf("second filter = %+v", opts.Filters[1])
	}
}

func TestParseUnknownFilterAttr(t *testing.T) {
	_, err := Parse(values("filter[]|flavor=large"), vmsCol(), 25)
	var br apierr.BadRequest
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
	if !strings.Contains(br.Message, `"flavor"`) {
		t.Fatalf("message must name the attribute: %q", br.Message)
	}
}

func TestRequiredFiltersAggregated(t *testing.T) {
	_, err := Parse(url.Values{}, eventsCol(), 25)
	var br apierr.BadRequest
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
	if !strings.Contains(br.Message, "event_type") || !strings.Contains(br.Message, "timestamp") {
		t.Fatalf("missing required filters must all be named: %q", br.Message)
	}

	// One missing filter still names just the missing one.
	_, err = Parse(values("filter[]|event_type=vm_start"), eventsCol(), 25)
	if errors.As(err, &br) && strings.Contains(br.Message, "event_type") {
		t.Fatalf("satisfied filter reported missing: %q", br.Message)
	}
}

func TestParseAttributesValidation(t *testing.T) {
	opts, err := Parse(values("attributes|name,power_state"), vmsCol(), 25)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(opts.Attributes) != 2 {
		t.Fatalf("attributes = %v", opts.Attributes)
	}
	if _, err := Parse(values("attributes|bogus"), vmsCol(), 25); err == nil {
		t.Fatal("unknown attribute must fail")
	}
}

func TestParseLimits(t *testing.T) {
	opts, err := Parse(url.Values{}, vmsCol(), 25)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Limit != 25 {
		t.Fatalf("fallback limit = %d", opts.Limit)
	}
	opts, err = Parse(values("limit|5", "offset|10"), vmsCol(), 25)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Limit != 5 || opts.Offset != 10 {
		t.Fatalf("opts = %+v", opts)
	}
	if _, err := Parse(values("limit|nope"), vmsCol(), 25); err == nil {
		t.Fatal("bad limit must fail")
	}
}

func items() []domain.Resource {
	return []domain.Resource{
		{ID: 1, Name: "a", Attributes: map[string]any{"power_state": "on", "cpu_count": int64(2)}},
		{ID: 2, Name: "b", Attributes: map[string]any{"power_state": "off", "cpu_count": int64(4)}},
		{ID: 3, Name: "c", Attributes: map[string]any{"power_state": "on", "cpu_count": int64(8)}},
	}
}

func TestApplyFilters(t *testing.T) {
	page, total := Apply(items(), Options{Filters: []Filter{{Attr: "power_state", Op: "=", Value: "on"}}})
	if total != 2 || len(page) != 2 {
		t.Fatalf("total = %d, page = %d", total, len(page))
	}
	page, total = Apply(items(), Options{Filters: []Filter{{Attr: "cpu_count", Op: ">", Value: "2"}}})
	if total != 2 {
		t.Fatalf("numeric filter total = %d", total)
	}
	if page[0].ID != 2 {
		t.Fatalf("first match = %d", page[0].ID)
	}
}

func TestApplyCountsBeforePagination(t *testing.T) {
	page, total := Apply(items(), Options{Limit: 1, Offset: 1})
	if total != 3 {
		t.Fatalf("total = %d, want all matches before the slice", total)
	}
	if len(page) != 1 || page[0].ID != 2 {
		t.Fatalf("page = %+v", page)
	}
	page, _ = Apply(items(), Options{Limit: 10, Offset: 5})
	if len(page) != 0 {
		t.Fatalf("offset past the end yields empty page, got %d", len(page))
	}
}
