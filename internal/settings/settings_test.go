package settings

import "testing"

func tree() *Tree {
	return New(map[string]any{
		"product": map[string]any{"name": "strato"},
		"server":  map[string]any{"timezone": "UTC", "session_ttl": 3600},
	})
}

func TestLookup(t *testing.T) {
	tr := tree()
	v, ok := tr.Lookup("server.timezone")
	if !ok || v != "UTC" {
		t.Fatalf("lookup = %v, %v", v, ok)
	}
	if _, ok := tr.Lookup("server.nope"); ok {
		t.Fatal("unknown path must not resolve")
	}
	if _, ok := tr.Lookup("server.timezone.extra"); ok {
		t.Fatal("descending through a scalar must not resolve")
	}
}

func TestSelect(t *testing.T) {
	out := tree().Select([]string{"server.timezone", "missing.path"})
	server, ok := out["server"].(map[string]any)
	if !ok || server["timezone"] != "UTC" {
		t.Fatalf("select = %v", out)
	}
	if _, ok := out["missing"]; ok {
		t.Fatal("unknown paths are skipped")
	}
	if _, ok := server["session_ttl"]; ok {
		t.Fatal("unselected siblings must not leak")
	}
}

func TestAllReturnsCopy(t *testing.T) {
	tr := tree()
	all := tr.All()
	all["server"].(map[string]any)["timezone"] = "CET"
	if v, _ := tr.Lookup("server.timezone"); v != "UTC" {
		t.Fatal("mutating a read copy must not change the tree")
	}
}

func TestApplyMergesDeeply(t *testing.T) {
	tr := tree()
	tr.Apply(map[string]any{"server": map[string]any{"timezone": "CET"}})
	if v, _ := tr.Lookup("server.timezone"); v != "CET" {
		t.Fatalf("timezone = %v", v)
	}
	if v, _ := tr.Lookup("server.session_ttl"); v != 3600 {
		t.Fatal("untouched sibling must survive a merge")
	}
	tr.Apply(map[string]any{"new": map[string]any{"flag": true}})
	if v, _ := tr.Lookup("new.flag"); v != true {
		t.Fatalf("new subtree = %v", v)
	}
}
