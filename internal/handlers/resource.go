// Package handlers binds concrete behavior to the collections the registry
// declares. A collection registered without a handler here answers every
// action with the unsupported business error.
package handlers

import (
	"context"
	"fmt"

	"strato/internal/apierr"
	"strato/internal/dispatch"
	"strato/internal/domain"
	"strato/internal/store"
)

// Func is a collection-specific action implementation.
type Func func(ctx context.Context, s store.Store, req dispatch.Request) (dispatch.Outcome, error)

// Resource is the stock handler: store-backed read/create/edit/delete plus
// whatever Custom actions the collection binds. Supported is the capability
// set; an action outside it is rejected before any store access.
type Resource struct {
	Store      store.Store
	Collection string
	Supported  map[string]bool
	// RequireOnCreate lists attributes a create must carry.
	RequireOnCreate []string
	Custom          map[string]Func
}

func (h Resource) Supports(action string) bool {
	return h.Supported[action]
}

func (h Resource) Invoke(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	if !h.Supported[req.Action] {
		return dispatch.Outcome{}, dispatch.ErrUnsupported
	}
	if fn, ok := h.Custom[req.Action]; ok {
		return fn(ctx, h.Store, req)
	}
	switch req.Action {
	case "read":
		return h.read(req)
	case "create":
		return h.create(ctx, req)
	case "edit":
		return h.edit(ctx, req)
	case "delete":
		return h.delete(ctx, req)
	}
	return dispatch.Outcome{}, dispatch.ErrUnsupported
}

func (h Resource) read(req dispatch.Request) (dispatch.Outcome, error) {
	if req.Resource == nil {
		return dispatch.Outcome{}, apierr.BadRequestf("no resource specified for the %s read", h.Collection)
	}
	return dispatch.Outcome{Entity: req.Resource}, nil
}

func (h Resource) create(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	for _, attr := range h.RequireOnCreate {
		if _, ok := req.Attributes[attr]; !ok {
			return dispatch.Outcome{}, apierr.BadRequestf("%s is required for creating a %s resource", attr, h.Collection)
		}
	}
	r := domain.Resource{Collection: h.Collection, Attributes: map[string]any{}}
	if req.ParentRef != nil {
		pid := req.ParentRef.ID
		r.ParentID = &pid
	}
	assign(&r, req.Attributes)
	id, err := h.Store.InsertResource(ctx, r)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	created, err := h.Store.GetResource(ctx, h.Collection, id)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	return dispatch.Outcome{Entity: &created}, nil
}

func (h Resource) edit(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	if req.Ref == nil {
		return dispatch.Outcome{}, apierr.BadRequestf("no resource specified for the %s edit", h.Collection)
	}
	updated, err := h.Store.UpdateResource(ctx, h.Collection, req.Ref.ID, req.Attributes)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	return dispatch.Outcome{Entity: &updated}, nil
}

func (h Resource) delete(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error) {
	if req.Ref == nil {
		return dispatch.Outcome{}, apierr.BadRequestf("no resource specified for the %s delete", h.Collection)
	}
	if err := h.Store.DeleteResource(ctx, h.Collection, req.Ref.ID); err != nil {
		return dispatch.Outcome{}, err
	}
	return dispatch.Outcome{Message: fmt.Sprintf("%s id: %d deleting", h.Collection, req.Ref.ID)}, nil
}

// assign splits incoming attributes between the fixed columns and the
// free-form attribute map.
func assign(r *domain.Resource, attrs map[string]any) {
	for k, v := range attrs {
		switch k {
		case "name":
			r.Name = fmt.Sprint(v)
		case "guid":
			r.GUID = fmt.Sprint(v)
		case "zone":
			r.Zone = fmt.Sprint(v)
		default:
			r.Attributes[k] = v
		}
	}
}
