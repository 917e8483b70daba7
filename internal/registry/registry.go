// Package registry holds the collection and action descriptor tables. They
// are populated once at startup and never mutated afterwards, so concurrent
// readers need no locking.
package registry

import (
	"fmt"
	"sort"
)

type ExecMode string

const (
	ModeInline ExecMode = "inline"
	ModeQueued ExecMode = "queued"
)

// Action describes one named operation declared on a collection.
type Action struct {
	Name string
	Mode ExecMode
	// OnCollection/OnResource declare where the action may be addressed.
	OnCollection bool
	OnResource   bool
	// ResolveFirst opts this action out of the default permission-first
	// ordering: the target id is resolved before the permission check, so an
	// authorized-for-nothing caller can learn whether the id exists. Most
	// actions keep the default and deny before resolving.
	ResolveFirst bool
}

// Collection describes one resource type.
type Collection struct {
	Name string
	// Parent is set for subcollections; they are addressable only under a
	// parent instance.
	Parent string
	// AltKey names an attribute that resolves an instance in addition to its
	// id, e.g. a zone's name.
	AltKey string
	// Virtual collections (settings) are served outside the resource store.
	Virtual bool
	// Attributes lists the queryable attribute names beyond the builtin
	// id/name/guid/zone/created_at/updated_at columns.
	Attributes []string
	// RequiredFilters must all be present before any read query executes.
	RequiredFilters []string
	DefaultLimit    int
	Actions         map[string]Action
}

func (c Collection) Action(name string) (Action, bool) {
	a, ok := c.Actions[name]
	return a, ok
}

// QueryableAttr reports whether name may appear in filters or projections.
func (c Collection) QueryableAttr(name string) bool {
	switch name {
	case "id", "name", "guid", "zone", "created_at", "updated_at":
		return true
	}
	for _, a := range c.Attributes {
		if a == name {
			return true
		}
	}
	return false
}

type Registry struct {
	collections map[string]Collection
}

func New() *Registry {
	return &Registry{collections: map[string]Collection{}}
}

// Register adds a collection descriptor. Duplicate names and dangling parent
// references are registration-time errors; nothing is validated per request.
func (r *Registry) Register(c Collection) error {
	if c.Name == "" {
		return fmt.Errorf("collection name required")
	}
	if _, ok := r.collections[c.Name]; ok {
		return fmt.Errorf("collection %s already registered", c.Name)
	}
	if c.Parent != "" {
		if _, ok := r.collections[c.Parent]; !ok {
			return fmt.Errorf("collection %s: parent %s not registered", c.Name, c.Parent)
		}
	}
	if c.Actions == nil {
		c.Actions = map[string]Action{}
	}
	r.collections[c.Name] = c
	return nil
}

// MustRegister panics on registration errors; descriptor tables are built at
// process start where a bad table is a programming error.
func (r *Registry) MustRegister(c Collection) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (Collection, bool) {
	c, ok := r.collections[name]
	return c, ok
}

// LookupSub returns the subcollection descriptor only if it is declared under
// the given parent.
func (r *Registry) LookupSub(parent, name string) (Collection, bool) {
	c, ok := r.collections[name]
	if !ok || c.Parent != parent {
		return Collection{}, false
	}
	return c, true
}

// Names returns top-level collection names, sorted.
func (r *Registry) Names() []string {
	var names []string
	for name, c := range r.collections {
		if c.Parent == "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// All returns every registered collection, sorted by name.
func (r *Registry) All() []Collection {
	var out []Collection
	for _, c := range r.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
