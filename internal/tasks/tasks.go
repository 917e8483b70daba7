// Package tasks is the async task collaborator. It creates trackable task
// handles; executing and completing them is an external worker's job, so a
// handle created here stays pending until something else moves it.
package tasks

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"strato/internal/dispatch"
	"strato/internal/domain"
	"strato/internal/store"
)

type Service struct {
	Store store.Store
}

// Create records a pending task handle in the tasks collection. The zone is
// the routing hint the deferred worker picks work up by.
func (s Service) Create(ctx context.Context, spec dispatch.TaskSpec) (domain.Resource, error) {
	attrs := map[string]any{
		"action":            spec.Action,
		"state":             "pending",
		"target_collection": spec.Collection,
		"message":           "",
	}
	if spec.ResourceID != nil {
		attrs["target_id"] = *spec.ResourceID
	}
	task := domain.Resource{
		Collection: "tasks",
		Name:       fmt.Sprintf("%s %s", spec.Collection, spec.Action),
		GUID:       uuid.NewString(),
		Zone:       spec.Zone,
		Attributes: attrs,
	}
	id, err := s.Store.InsertResource(ctx, task)
	if err != nil {
		return domain.Resource{}, err
	}
	return s.Store.GetResource(ctx, "tasks", id)
}
