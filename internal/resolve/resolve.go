// Package resolve turns path fragments into concrete resource references.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"strato/internal/domain"
	"strato/internal/idcodec"
	"strato/internal/registry"
	"strato/internal/store"
)

// Ref is a resolved (collection, id) pair, nested under Parent for
// subcollection resources.
type Ref struct {
	Collection string
	ID         int64
	Parent     *Ref
}

// Href renders the canonical resource path under base.
func (r Ref) Href(base string) string {
	if r.Parent != nil {
		return fmt.Sprintf("%s/%s/%d", r.Parent.Href(base), r.Collection, r.ID)
	}
	return fmt.Sprintf("%s/%s/%d", base, r.Collection, r.ID)
}

// NotFoundError attributes a failed resolution to a specific collection and
// raw id, so a missing parent is reported distinctly from a missing child.
type NotFoundError struct {
	Collection string
	Raw        string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("couldn't find resource with id %q in collection %s", e.Raw, e.Collection)
}

func (e NotFoundError) Unwrap() error { return store.ErrNotFound }

type Resolver struct {
	Store store.Store
}

// Resolve decodes raw (plain id, compressed id, or the collection's declared
// alternate key) into a reference to a live resource. Resolution under a
// parent requires the child row to actually belong to that parent. The id
// form is tried first, the alternate key second; a pure lookup either way.
func (r Resolver) Resolve(ctx context.Context, col registry.Collection, raw string, parent *Ref) (Ref, domain.Resource, error) {
	if id, err := idcodec.Parse(raw); err == nil {
		res, err := r.Store.GetResource(ctx, col.Name, id)
		if err == nil {
			return r.check(col, raw, res, parent)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Ref{}, domain.Resource{}, err
		}
	}
	if col.AltKey != "" {
		res, err := r.Store.FindResourceByAttr(ctx, col.Name, col.AltKey, raw)
		if err == nil {
			return r.check(col, raw, res, parent)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Ref{}, domain.Resource{}, err
		}
	}
	return Ref{}, domain.Resource{}, NotFoundError{Collection: col.Name, Raw: raw}
}

func (r Resolver) check(col registry.Collection, raw string, res domain.Resource, parent *Ref) (Ref, domain.Resource, error) {
	if parent != nil {
		if res.ParentID == nil || *res.ParentID != parent.ID {
			return Ref{}, domain.Resource{}, NotFoundError{Collection: col.Name, Raw: raw}
		}
	}
	return Ref{Collection: col.Name, ID: res.ID, Parent: parent}, res, nil
}
