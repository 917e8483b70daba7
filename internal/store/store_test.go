package store

import (
	"context"
	"errors"
	"testing"

	"strato/internal/db"
	"strato/internal/domain"
	"strato/internal/migrate"
)

func testStore(t *testing.T) Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Store{DB: conn}
}

func mustInsert(t *testing.T, s Store, r domain.Resource) int64 {
	t.Helper()
	id, err := s.InsertResource(context.Background(), r)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestInsertAndGetResource(t *testing.T) {
	s := testStore(t)
	id := mustInsert(t, s, domain.Resource{
		Collection: "vms", Name: "web-01", Zone: "east",
		Attributes: map[string]any{"power_state": "on", "cpu_count": 4},
	})
	got, err := s.GetResource(context.Background(), "vms", id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "web-01" || got.Zone != "east" {
		t.Fatalf("got = %+v", got)
	}
	if got.Attributes["power_state"] != "on" {
		t.Fatalf("attrs = %v", got.Attributes)
	}
	if got.CreatedAt == "" || got.UpdatedAt == "" {
		t.Fatal("timestamps must be set")
	}
}

func TestGetResourceScopedToCollection(t *testing.T) {
	s := testStore(t)
	id := mustInsert(t, s, domain.Resource{Collection: "vms", Name: "web-01"})
	if _, err := s.GetResource(context.Background(), "hosts", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-collection get = %v, want ErrNotFound", err)
	}
}

func TestFindResourceByAttr(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mustInsert(t, s, domain.Resource{Collection: "zones", Name: "east"})
	mustInsert(t, s, domain.Resource{
		Collection: "users", Name: "Administrator",
		Attributes: map[string]any{"userid": "admin"},
	})

	// Builtin column.
	zone, err := s.FindResourceByAttr(ctx, "zones", "name", "east")
	if err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if zone.Name != "east" {
		t.Fatalf("zone = %+v", zone)
	}

	// JSON attribute.
	user, err := s.FindResourceByAttr(ctx, "users", "userid", "admin")
	if err != nil {
		t.Fatalf("find by userid: %v", err)
	}
	if user.Name != "Administrator" {
		t.Fatalf("user = %+v", user)
	}

	if _, err := s.FindResourceByAttr(ctx, "users", "userid", "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing alt key = %v, want ErrNotFound", err)
	}
}

func TestListResourcesParentScope(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	vmID := mustInsert(t, s, domain.Resource{Collection: "vms", Name: "web-01"})
	otherID := mustInsert(t, s, domain.Resource{Collection: "vms", Name: "db-01"})
	mustInsert(t, s, domain.Resource{Collection: "snapshots", ParentID: &vmID, Name: "snap-a"})
	mustInsert(t, s, domain.Resource{Collection: "snapshots", ParentID: &otherID, Name: "snap-b"})

	scoped, err := s.ListResources(ctx, "snapshots", &vmID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Name != "snap-a" {
		t.Fatalf("scoped = %+v", scoped)
	}
	all, err := s.ListResources(ctx, "snapshots", nil)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all = %d", len(all))
	}
}

func TestUpdateResourceMergesAttrs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := mustInsert(t, s, domain.Resource{
		Collection: "vms", Name: "web-01",
		Attributes: map[string]any{"power_state": "on", "cpu_count": 4},
	})
	updated, err := s.UpdateResource(ctx, "vms", id, map[string]any{"power_state": "off", "name": "web-02"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "web-02" || updated.Attributes["power_state"] != "off" {
		t.Fatalf("updated = %+v", updated)
	}
	if _, ok := updated.Attributes["cpu_count"]; !ok {
		t.Fatal("untouched attributes must survive a merge")
	}
}

func TestDeleteResourceIdempotenceIsNotFound(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	id := mustInsert(t, s, domain.Resource{Collection: "vms", Name: "web-01"})
	if err := s.DeleteResource(ctx, "vms", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteResource(ctx, "vms", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteCascadesToChildren(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	vmID := mustInsert(t, s, domain.Resource{Collection: "vms", Name: "web-01"})
	mustInsert(t, s, domain.Resource{Collection: "snapshots", ParentID: &vmID, Name: "snap-a"})
	if err := s.DeleteResource(ctx, "vms", vmID); err != nil {
		t.Fatalf("delete parent: %v", err)
	}
	children, err := s.ListResources(ctx, "snapshots", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(children) != 0 {
		t.Fatalf("children = %d, want cascade delete", len(children))
	}
}

func TestAPIKeys(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	key := domain.APIKey{
		ID:          "k1",
		Name:        "ci",
		KeyHash:     HashAPIKey("secret-key"),
		Permissions: []string{"vms.read", "vms.show"},
	}
	if err := s.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	got, err := s.GetAPIKeyByHash(ctx, HashAPIKey(" secret-key \n"))
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if got.Name != "ci" || len(got.Permissions) != 2 {
		t.Fatalf("key = %+v", got)
	}
	if err := s.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if _, err := s.GetAPIKeyByHash(ctx, key.KeyHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted key = %v, want ErrNotFound", err)
	}
}
