package handlers

import (
	"context"
	"fmt"
	"strings"

	"strato/internal/apierr"
	"strato/internal/dispatch"
	"strato/internal/domain"
	"strato/internal/store"
)

// All wires the stock handler table. Queued actions appear in the capability
// sets even though the engine enqueues them without invoking the handler; the
// set is what the capability check consults.
func All(s store.Store) map[string]dispatch.Handler {
	return map[string]dispatch.Handler{
		"vms": Resource{
			Store:           s,
			Collection:      "vms",
			RequireOnCreate: []string{"name"},
			Supported: supported(
				"read", "create", "edit", "delete",
				"start", "stop", "suspend", "refresh",
			),
		},
		"providers": Resource{
			Store:           s,
			Collection:      "providers",
			RequireOnCreate: []string{"name", "type"},
			Supported:       supported("read", "create", "edit", "delete", "refresh"),
		},
		"hosts": Resource{
			Store:      s,
			Collection: "hosts",
			Supported:  supported("read", "edit"),
		},
		"datastores": Resource{
			Store:      s,
			Collection: "datastores",
			Supported:  supported("read", "delete", "safe_delete"),
			Custom: map[string]Func{
				"safe_delete": datastoreSafeDelete,
			},
		},
		"zones": Resource{
			Store:           s,
			Collection:      "zones",
			RequireOnCreate: []string{"name"},
			Supported:       supported("read", "create", "edit", "delete"),
		},
		"users": Resource{
			Store:           s,
			Collection:      "users",
			RequireOnCreate: []string{"userid", "name"},
			Supported:       supported("read", "create", "edit", "delete"),
		},
		"alerts": Resource{
			Store:      s,
			Collection: "alerts",
			Supported:  supported("read", "create", "edit", "delete", "acknowledge", "assign"),
			Custom: map[string]Func{
				"acknowledge": alertAcknowledge,
				"assign":      alertAssign,
			},
		},
		"tasks": Resource{
			Store:      s,
			Collection: "tasks",
			Supported:  supported("read", "delete"),
		},
		"snapshots": Resource{
			Store:           s,
			Collection:      "snapshots",
			RequireOnCreate: []string{"name"},
			Supported:       supported("read", "create", "delete"),
		},
		"tags": Resource{
			Store:      s,
			Collection: "tags",
			Supported:  supported("read", "assign", "unassign"),
			Custom: map[string]Func{
				"assign":   tagAssign,
				"unassign": tagUnassign,
			},
		},
	}
}

func supported(actions ...string) map[string]bool {
	set := make(map[string]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return set
}

// safe_delete is declared collection-wide but only nfs datastores implement
// it; anything else is a per-instance business error.
func datastoreSafeDelete(ctx context.Context, s store.Store, req dispatch.Request) (dispatch.Outcome, error) {
	if req.Resource == nil {
		return dispatch.Outcome{}, apierr.BadRequest{Message: "no resource specified for the datastores safe_delete"}
	}
	if st, _ := req.Resource.Attr("storage_type"); fmt.Sprint(st) != "nfs" {
		return dispatch.Outcome{}, dispatch.ErrUnsupported
	}
	if err := s.DeleteResource(ctx, "datastores", req.Resource.ID); err != nil {
		return dispatch.Outcome{}, err
	}
	return dispatch.Outcome{Message: fmt.Sprintf("datastores id: %d deleting", req.Resource.ID)}, nil
}

func alertAcknowledge(ctx context.Context, s store.Store, req dispatch.Request) (dispatch.Outcome, error) {
	if req.Ref == nil {
		return dispatch.Outcome{}, apierr.BadRequest{Message: "no resource specified for the alerts acknowledge"}
	}
	updated, err := s.UpdateResource(ctx, "alerts", req.Ref.ID, map[string]any{"acknowledged": true})
	if err != nil {
		return dispatch.Outcome{}, err
	}
	return dispatch.Outcome{
		Message: fmt.Sprintf("alerts id: %d acknowledged", req.Ref.ID),
		Entity:  &updated,
	}, nil
}

func alertAssign(ctx context.Context, s store.Store, req dispatch.Request) (dispatch.Outcome, error) {
	if req.Ref == nil {
		return dispatch.Outcome{}, apierr.BadRequest{Message: "no resource specified for the alerts assign"}
	}
	assignee, _ := req.Attributes["assignee"].(string)
	if strings.TrimSpace(assignee) == "" {
		return dispatch.Outcome{}, apierr.BadRequest{Message: "Assignee can't be blank"}
	}
	updated, err := s.UpdateResource(ctx, "alerts", req.Ref.ID, map[string]any{"assignee": assignee})
	if err != nil {
		return dispatch.Outcome{}, err
	}
	return dispatch.Outcome{
		Message: fmt.Sprintf("alerts id: %d assigned to %s", req.Ref.ID, assignee),
		Entity:  &updated,
	}, nil
}

// tagAssign attaches a tag row under the parent vm.
func tagAssign(ctx context.Context, s store.Store, req dispatch.Request) (dispatch.Outcome, error) {
	if req.ParentRef == nil {
		return dispatch.Outcome{}, apierr.BadRequest{Message: "tags may only be assigned under a parent resource"}
	}
	name, _ := req.Attributes["name"].(string)
	if strings.TrimSpace(name) == "" {
		return dispatch.Outcome{}, apierr.BadRequest{Message: "name is required for assigning a tag"}
	}
	pid := req.ParentRef.ID
	tag := domain.Resource{
		Collection: "tags",
		ParentID:   &pid,
		Name:       name,
		Attributes: map[string]any{},
	}
	if category, ok := req.Attributes["category"]; ok {
		tag.Attributes["category"] = category
	}
	id, err := s.InsertResource(ctx, tag)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	created, err := s.GetResource(ctx, "tags", id)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	return dispatch.Outcome{
		Message: fmt.Sprintf("assigning tag %s", name),
		Entity:  &created,
	}, nil
}

// tagUnassign removes a tag, addressed either by id or by its name.
func tagUnassign(ctx context.Context, s store.Store, req dispatch.Request) (dispatch.Outcome, error) {
	if req.Ref != nil {
		if err := s.DeleteResource(ctx, "tags", req.Ref.ID); err != nil {
			return dispatch.Outcome{}, err
		}
		return dispatch.Outcome{Message: fmt.Sprintf("tags id: %d unassigned", req.Ref.ID)}, nil
	}
	name, _ := req.Attributes["name"].(string)
	if strings.TrimSpace(name) == "" {
		return dispatch.Outcome{}, apierr.BadRequest{Message: "no tag specified for the unassign"}
	}
	if req.ParentRef == nil {
		return dispatch.Outcome{}, apierr.BadRequest{Message: "tags may only be unassigned under a parent resource"}
	}
	existing, err := s.ListResources(ctx, "tags", &req.ParentRef.ID)
	if err != nil {
		return dispatch.Outcome{}, err
	}
	for _, tag := range existing {
		if tag.Name == name {
			if err := s.DeleteResource(ctx, "tags", tag.ID); err != nil {
				return dispatch.Outcome{}, err
			}
			return dispatch.Outcome{Message: fmt.Sprintf("unassigned tag %s", name)}, nil
		}
	}
	return dispatch.Outcome{}, store.ErrNotFound
}
