package dispatch

import (
	"context"
	"fmt"
	"testing"

	"strato/internal/apierr"
	"strato/internal/domain"
	"strato/internal/envelope"
	"strato/internal/registry"
	"strato/internal/store"
)

type fakeHandler struct {
	supports map[string]bool
	invoke   func(ctx context.Context, req Request) (Outcome, error)
}

func (h fakeHandler) Supports(action string) bool { return h.supports[action] }

func (h fakeHandler) Invoke(ctx context.Context, req Request) (Outcome, error) {
	return h.invoke(ctx, req)
}

type fakeTasks struct {
	specs []TaskSpec
}

func (f *fakeTasks) Create(ctx context.Context, spec TaskSpec) (domain.Resource, error) {
	f.specs = append(f.specs, spec)
	return domain.Resource{ID: 77, Collection: "tasks"}, nil
}

func vmsCol() registry.Collection {
	return registry.Collection{Name: "vms"}
}

func inlineAct(name string) registry.Action {
	return registry.Action{Name: name, Mode: registry.ModeInline, OnCollection: true, OnResource: true}
}

func TestCapabilityCheckIsBusinessError(t *testing.T) {
	e := &Engine{Handlers: map[string]Handler{
		"vms": fakeHandler{supports: map[string]bool{}},
	}}
	out := e.DispatchAll(context.Background(), vmsCol(), inlineAct("publish"), Input{
		Ops: []envelope.Operation{{Action: "publish"}},
	})
	if out[0].Success {
		t.Fatal("unsupported action must fail")
	}
	if out[0].Kind != "bad_request" || out[0].Message != UnsupportedMessage {
		t.Fatalf("outcome = %+v", out[0])
	}
}

func TestMissingHandlerIsBusinessError(t *testing.T) {
	e := &Engine{Handlers: map[string]Handler{}}
	out := e.DispatchAll(context.Background(), vmsCol(), inlineAct("read"), Input{
		Ops: []envelope.Operation{{Action: "read"}},
	})
	if out[0].Success || out[0].Message != UnsupportedMessage {
		t.Fatalf("outcome = %+v", out[0])
	}
}

func TestBulkOutcomesKeepInputOrder(t *testing.T) {
	e := &Engine{
		Concurrent: true,
		Handlers: map[string]Handler{
			"vms": fakeHandler{
				supports: map[string]bool{"touch": true},
				invoke: func(_ context.Context, req Request) (Outcome, error) {
					return Outcome{Message: fmt.Sprint(req.Attributes["n"])}, nil
				},
			},
		},
	}
	ops := make([]envelope.Operation, 8)
	for i := range ops {
		ops[i] = envelope.Operation{Action: "touch", Attributes: map[string]any{"n": i}}
	}
	out := e.DispatchAll(context.Background(), vmsCol(), inlineAct("touch"), Input{Ops: ops})
	for i, o := range out {
		if !o.Success || o.Message != fmt.Sprint(i) {
			t.Fatalf("outcomes[%d] = %+v", i, o)
		}
	}
}

func TestBulkItemsAreIndependent(t *testing.T) {
	e := &Engine{
		Handlers: map[string]Handler{
			"vms": fakeHandler{
				supports: map[string]bool{"touch": true},
				invoke: func(_ context.Context, req Request) (Outcome, error) {
					if req.Attributes["fail"] == true {
						return Outcome{}, apierr.BadRequest{Message: "boom"}
					}
					return Outcome{Message: "ok"}, nil
				},
			},
		},
	}
	out := e.DispatchAll(context.Background(), vmsCol(), inlineAct("touch"), Input{
		Ops: []envelope.Operation{
			{Action: "touch"},
			{Action: "touch", Attributes: map[string]any{"fail": true}},
			{Action: "touch"},
		},
	})
	if !out[0].Success || !out[2].Success {
		t.Fatalf("siblings of a failure must still run: %+v", out)
	}
	if out[1].Success || out[1].Kind != "bad_request" || out[1].Message != "boom" {
		t.Fatalf("failed item = %+v", out[1])
	}
}

func TestQueuedActionCreatesTaskHandle(t *testing.T) {
	tasks := &fakeTasks{}
	e := &Engine{
		Tasks:    tasks,
		BasePath: "/api",
		Handlers: map[string]Handler{
			"vms": fakeHandler{supports: map[string]bool{"start": true}},
		},
	}
	act := registry.Action{Name: "start", Mode: registry.ModeQueued, OnCollection: true, OnResource: true}
	resource := &domain.Resource{ID: 5, Collection: "vms", Zone: "east"}
	ref := entityRef(resource, nil)
	out := e.DispatchAll(context.Background(), vmsCol(), act, Input{
		Ops:    []envelope.Operation{{Action: "start"}},
		URLRef: &ref,
		Target: resource,
	})
	o := out[0]
	if !o.Success {
		t.Fatalf("outcome = %+v", o)
	}
	if o.TaskID != "77" || o.TaskHref != "/api/tasks/77" {
		t.Fatalf("task fields = %+v", o)
	}
	if len(tasks.specs) != 1 || tasks.specs[0].Zone != "east" {
		t.Fatalf("specs = %+v", tasks.specs)
	}
	if tasks.specs[0].ResourceID == nil || *tasks.specs[0].ResourceID != 5 {
		t.Fatalf("spec resource id = %+v", tasks.specs[0].ResourceID)
	}
}

func TestQueuedZoneDefaults(t *testing.T) {
	tasks := &fakeTasks{}
	e := &Engine{
		Tasks:    tasks,
		BasePath: "/api",
		Handlers: map[string]Handler{
			"vms": fakeHandler{supports: map[string]bool{"refresh": true}},
		},
	}
	act := registry.Action{Name: "refresh", Mode: registry.ModeQueued, OnCollection: true}
	e.DispatchAll(context.Background(), vmsCol(), act, Input{
		Ops: []envelope.Operation{{Action: "refresh"}},
	})
	if tasks.specs[0].Zone != "default" {
		t.Fatalf("zone = %q, want default", tasks.specs[0].Zone)
	}
}

func TestFailureClassification(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{ErrUnsupported, "bad_request"},
		{apierr.BadRequest{Message: "nope"}, "bad_request"},
		{store.ErrNotFound, "not_found"},
	}
	for _, tc := range cases {
		e := &Engine{
			Handlers: map[string]Handler{
				"vms": fakeHandler{
					supports: map[string]bool{"touch": true},
					invoke: func(context.Context, Request) (Outcome, error) {
						return Outcome{}, tc.err
					},
				},
			},
		}
		out := e.DispatchAll(context.Background(), vmsCol(), inlineAct("touch"), Input{
			Ops: []envelope.Operation{{Action: "touch"}},
		})
		if out[0].Success || out[0].Kind != tc.kind {
			t.Fatalf("err %v -> %+v, want kind %s", tc.err, out[0], tc.kind)
		}
	}
}

func TestInlineHrefFallsBackToRef(t *testing.T) {
	e := &Engine{
		BasePath: "/api",
		Handlers: map[string]Handler{
			"vms": fakeHandler{
				supports: map[string]bool{"touch": true},
				invoke: func(context.Context, Request) (Outcome, error) {
					return Outcome{Message: "ok"}, nil
				},
			},
		},
	}
	resource := &domain.Resource{ID: 9, Collection: "vms"}
	ref := entityRef(resource, nil)
	out := e.DispatchAll(context.Background(), vmsCol(), inlineAct("touch"), Input{
		Ops:    []envelope.Operation{{Action: "touch"}},
		URLRef: &ref,
		Target: resource,
	})
	if out[0].Href != "/api/vms/9" {
		t.Fatalf("href = %q", out[0].Href)
	}
}
