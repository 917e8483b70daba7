// Package dispatch executes normalized operations against resource type
// handlers, inline or by handing off to the task collaborator.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"strato/internal/apierr"
	"strato/internal/audit"
	"strato/internal/domain"
	"strato/internal/envelope"
	"strato/internal/registry"
	"strato/internal/resolve"
	"strato/internal/store"
)

// UnsupportedMessage is the business-error message for actions a concrete
// handler does not implement. It is a 400-class outcome, distinct from a
// permission failure.
const UnsupportedMessage = "Feature not available/supported"

// ErrUnsupported lets a handler report per-instance unsupported features
// (declared on the collection, not implemented by this subtype).
var ErrUnsupported = errors.New(UnsupportedMessage)

// Outcome is the immutable per-item result of dispatching one operation.
type Outcome struct {
	Success  bool
	Message  string
	Kind     string // failure taxonomy key, empty on success
	Href     string
	TaskID   string
	TaskHref string
	// Entity is the resulting resource for data-returning inline actions.
	Entity *domain.Resource
}

// Request is what a handler sees for one operation.
type Request struct {
	Action     string
	Collection registry.Collection
	// Ref and Resource identify the resolved target; nil for
	// collection-level actions such as create.
	Ref        *resolve.Ref
	Resource   *domain.Resource
	ParentRef  *resolve.Ref
	Attributes map[string]any
	Actor      string
}

// Handler is the per-resource-type capability surface. Supports gates every
// invoke; an action a handler does not support is a business error, never a
// panic or a permission failure.
type Handler interface {
	Supports(action string) bool
	Invoke(ctx context.Context, req Request) (Outcome, error)
}

// TaskSpec asks the task collaborator for a trackable unit of work.
type TaskSpec struct {
	Action     string
	Collection string
	ResourceID *int64
	// Zone is the routing hint for the deferred worker.
	Zone  string
	Actor string
}

// TaskService creates task handles. The engine never waits on them.
type TaskService interface {
	Create(ctx context.Context, spec TaskSpec) (domain.Resource, error)
}

// Engine holds the read-mostly tables and collaborators. It is stateless per
// request; one Engine serves all concurrent requests.
type Engine struct {
	Resolver resolve.Resolver
	Handlers map[string]Handler
	Tasks    TaskService
	Audit    *audit.Writer
	BasePath string
	Log      *log.Logger
	// Concurrent fans bulk items out to goroutines. Outcomes are collected
	// by input index either way.
	Concurrent bool
}

// Input carries the normalized operations plus the URL-resolved target, when
// the route named one.
type Input struct {
	Ops       []envelope.Operation
	Actor     string
	URLRef    *resolve.Ref
	Target    *domain.Resource
	ParentRef *resolve.Ref
}

// DispatchAll executes every operation and returns outcomes in input order.
// Items are independent: a failing item never aborts or rolls back siblings.
func (e *Engine) DispatchAll(ctx context.Context, col registry.Collection, act registry.Action, in Input) []Outcome {
	outcomes := make([]Outcome, len(in.Ops))
	if e.Concurrent && len(in.Ops) > 1 {
		var wg sync.WaitGroup
		for i, op := range in.Ops {
			wg.Add(1)
			go func(i int, op envelope.Operation) {
				defer wg.Done()
				outcomes[i] = e.dispatchOne(ctx, col, act, in, op)
			}(i, op)
		}
		wg.Wait()
		return outcomes
	}
	for i, op := range in.Ops {
		outcomes[i] = e.dispatchOne(ctx, col, act, in, op)
	}
	return outcomes
}

func (e *Engine) dispatchOne(ctx context.Context, col registry.Collection, act registry.Action, in Input, op envelope.Operation) Outcome {
	ref := in.URLRef
	resource := in.Target
	if op.RawID != "" {
		r, res, err := e.Resolver.Resolve(ctx, col, op.RawID, in.ParentRef)
		if err != nil {
			return e.failure(err)
		}
		ref = &r
		resource = &res
	}

	handler, ok := e.Handlers[col.Name]
	if !ok || !handler.Supports(act.Name) {
		return Outcome{Success: false, Kind: "bad_request", Message: UnsupportedMessage}
	}

	if act.Mode == registry.ModeQueued {
		return e.enqueue(ctx, col, act, in.Actor, ref, resource)
	}

	out, err := handler.Invoke(ctx, Request{
		Action:     act.Name,
		Collection: col,
		Ref:        ref,
		Resource:   resource,
		ParentRef:  in.ParentRef,
		Attributes: op.Attributes,
		Actor:      in.Actor,
	})
	if err != nil {
		return e.failure(err)
	}
	out.Success = true
	if out.Href == "" {
		if out.Entity != nil {
			out.Href = entityRef(out.Entity, in.ParentRef).Href(e.BasePath)
		} else if ref != nil {
			out.Href = ref.Href(e.BasePath)
		}
	}
	if act.Name != "read" {
		e.record(ctx, col, act, in.Actor, ref, out.Message)
	}
	return out
}

// enqueue creates the task handle and returns immediately; completion is the
// external worker's business.
func (e *Engine) enqueue(ctx context.Context, col registry.Collection, act registry.Action, actor string, ref *resolve.Ref, resource *domain.Resource) Outcome {
	zone := "default"
	if resource != nil && resource.Zone != "" {
		zone = resource.Zone
	}
	spec := TaskSpec{Action: act.Name, Collection: col.Name, Zone: zone, Actor: actor}
	if ref != nil {
		id := ref.ID
		spec.ResourceID = &id
	}
	task, err := e.Tasks.Create(ctx, spec)
	if err != nil {
		return Outcome{Success: false, Kind: "bad_request", Message: fmt.Sprintf("could not queue %s for %s: %s", act.Name, col.Name, err)}
	}
	out := Outcome{
		Success:  true,
		Message:  fmt.Sprintf("%s queued for %s", act.Name, describe(col, ref)),
		TaskID:   fmt.Sprintf("%d", task.ID),
		TaskHref: fmt.Sprintf("%s/tasks/%d", e.BasePath, task.ID),
	}
	if ref != nil {
		out.Href = ref.Href(e.BasePath)
	}
	e.record(ctx, col, act, actor, ref, out.Message)
	return out
}

func (e *Engine) failure(err error) Outcome {
	var br apierr.BadRequest
	switch {
	case errors.Is(err, ErrUnsupported):
		return Outcome{Success: false, Kind: "bad_request", Message: UnsupportedMessage}
	case errors.As(err, &br):
		return Outcome{Success: false, Kind: "bad_request", Message: br.Message}
	case errors.Is(err, store.ErrNotFound):
		return Outcome{Success: false, Kind: "not_found", Message: err.Error()}
	default:
		return Outcome{Success: false, Kind: "bad_request", Message: err.Error()}
	}
}

func (e *Engine) record(ctx context.Context, col registry.Collection, act registry.Action, actor string, ref *resolve.Ref, message string) {
	if e.Audit == nil {
		return
	}
	var rid *int64
	if ref != nil {
		id := ref.ID
		rid = &id
	}
	if err := e.Audit.Append(ctx, col.Name+"."+act.Name, col.Name, rid, actor, audit.Payload{"message": message}); err != nil && e.Log != nil {
		e.Log.Printf("audit append failed: %v", err)
	}
}

func describe(col registry.Collection, ref *resolve.Ref) string {
	if ref != nil {
		return fmt.Sprintf("%s id: %d", col.Name, ref.ID)
	}
	return col.Name
}

func entityRef(r *domain.Resource, parent *resolve.Ref) resolve.Ref {
	return resolve.Ref{Collection: r.Collection, ID: r.ID, Parent: parent}
}
