package render

import (
	"net/url"
	"strings"
	"testing"

	"strato/internal/dispatch"
	"strato/internal/domain"
	"strato/internal/idcodec"
)

func vm(id int64) domain.Resource {
	return domain.Resource{
		ID: id, Collection: "vms", Name: "web-01", Zone: "east",
		Attributes: map[string]any{"power_state": "on"},
		CreatedAt:  "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-02T00:00:00Z",
	}
}

func TestResourceBodyAlwaysCarriesIDAndHref(t *testing.T) {
	body := ResourceBody(vm(42), "/api/vms/42", false, []string{"power_state"})
	if body["id"] != int64(42) || body["href"] != "/api/vms/42" {
		t.Fatalf("body = %v", body)
	}
	if body["power_state"] != "on" {
		t.Fatal("selected attribute missing")
	}
	if _, ok := body["name"]; ok {
		t.Fatal("projection must drop unselected fields")
	}
}

func TestResourceBodyCompressedID(t *testing.T) {
	body := ResourceBody(vm(42), "/api/vms/x123", true, nil)
	if body["id"] != idcodec.Compress(42) {
		t.Fatalf("id = %v, want compressed form", body["id"])
	}
	if body["name"] != "web-01" || body["zone"] != "east" {
		t.Fatalf("full body = %v", body)
	}
}

func collect(total, limit, offset int) map[string]any {
	items := []domain.Resource{vm(1), vm(2)}
	u, _ := url.Parse("/api/vms?offset=0")
	return Collection(items, total, CollectionOptions{
		Name: "vms", Limit: limit, Offset: offset, RequestURL: u,
		HrefFor: func(r domain.Resource) string { return "/api/vms/1" },
	})
}

func TestCollectionEnvelope(t *testing.T) {
	body := collect(10, 2, 2)
	if body["name"] != "vms" || body["count"] != 10 || body["subcount"] != 2 {
		t.Fatalf("envelope = %v", body)
	}
	if body["pages"] != 5 {
		t.Fatalf("pages = %v", body["pages"])
	}
	links := body["links"].(map[string]string)
	for _, key := range []string{"self", "first", "last", "next", "previous"} {
		if links[key] == "" {
			t.Fatalf("link %s missing: %v", key, links)
		}
	}
	if !strings.Contains(links["next"], "offset=4") {
		t.Fatalf("next = %q", links["next"])
	}
	if !strings.Contains(links["last"], "offset=8") {
		t.Fatalf("last = %q", links["last"])
	}
}

func TestCollectionLinksAtEdges(t *testing.T) {
	links := collect(4, 2, 0)["links"].(map[string]string)
	if _, ok := links["previous"]; ok {
		t.Fatal("no previous on the first page")
	}
	links = collect(4, 2, 2)["links"].(map[string]string)
	if _, ok := links["next"]; ok {
		t.Fatal("no next on the last page")
	}
}

func TestCollectionHrefOnlyWithoutExpand(t *testing.T) {
	body := collect(2, 0, 0)
	resources := body["resources"].([]map[string]any)
	if len(resources[0]) != 1 || resources[0]["href"] == "" {
		t.Fatalf("unexpanded item = %v", resources[0])
	}
}

func TestOutcomeBodyMergesEntity(t *testing.T) {
	entity := vm(7)
	body := OutcomeBody(dispatch.Outcome{Success: true, Href: "/api/vms/7", Entity: &entity})
	if body["success"] != true || body["href"] != "/api/vms/7" {
		t.Fatalf("body = %v", body)
	}
	if body["id"] != int64(7) || body["name"] != "web-01" {
		t.Fatalf("entity fields missing: %v", body)
	}
}

func TestOutcomeBodyTaskFields(t *testing.T) {
	body := OutcomeBody(dispatch.Outcome{Success: true, Message: "start queued", TaskID: "9", TaskHref: "/api/tasks/9"})
	if body["task_id"] != "9" || body["task_href"] != "/api/tasks/9" {
		t.Fatalf("body = %v", body)
	}
}

func TestResultsPreservesOrder(t *testing.T) {
	body := Results([]dispatch.Outcome{
		{Success: true, Message: "first"},
		{Success: false, Message: "second"},
	})
	results := body["results"].([]map[string]any)
	if results[0]["message"] != "first" || results[1]["message"] != "second" {
		t.Fatalf("results = %v", results)
	}
	if results[1]["success"] != false {
		t.Fatal("failures render with success=false")
	}
}
