// Package settings serves the virtual settings collection. The tree is an
// in-memory document seeded from config; reads hand out copies so callers can
// never mutate shared state.
package settings

import (
	"strings"
	"sync"
)

type Tree struct {
	mu     sync.RWMutex
	values map[string]any
}

func New(values map[string]any) *Tree {
	if values == nil {
		values = map[string]any{}
	}
	return &Tree{values: values}
}

// All returns a deep copy of the whole tree.
func (t *Tree) All() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyMap(t.values)
}

// Lookup walks a dot-separated path into the tree.
func (t *Tree) Lookup(path string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var cur any = t.values
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if m, ok := cur.(map[string]any); ok {
		return copyMap(m), true
	}
	return cur, true
}

// Select returns a sub-tree holding only the requested dot paths; unknown
// paths are skipped rather than erroring, matching a sparse read.
func (t *Tree) Select(paths []string) map[string]any {
	out := map[string]any{}
	for _, path := range paths {
		v, ok := t.Lookup(path)
		if !ok {
			continue
		}
		parts := strings.Split(path, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = v
	}
	return out
}

// Apply deep-merges changes into the tree. Scalar values overwrite; maps
// merge recursively.
func (t *Tree) Apply(changes map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	merge(t.values, changes)
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				merge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if child, ok := v.(map[string]any); ok {
			out[k] = copyMap(child)
			continue
		}
		out[k] = v
	}
	return out
}
