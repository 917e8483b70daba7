// Package server exposes the dispatch engine over HTTP. Routing is generic:
// one set of operations serves every registered collection, and the registry
// decides what each path may do.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"strato/internal/apierr"
	"strato/internal/audit"
	"strato/internal/dispatch"
	"strato/internal/domain"
	"strato/internal/envelope"
	"strato/internal/idcodec"
	"strato/internal/query"
	"strato/internal/rbac"
	"strato/internal/registry"
	"strato/internal/render"
	"strato/internal/resolve"
	"strato/internal/settings"
	"strato/internal/store"
)

const apiVersion = "1.0.0"

// Config for the HTTP API handler.
type Config struct {
	Registry     *registry.Registry
	Store        store.Store
	Engine       *dispatch.Engine
	Audit        audit.Writer
	Settings     *settings.Tree
	BasePath     string
	Auth         AuthConfig
	DefaultLimit int
}

type errorDetail struct {
	Kind    string `json:"kind" example:"bad_request"`
	Message string `json:"message" example:"unknown attribute \"flavor\" specified in a filter for vms"`
	Klass   string `json:"klass" example:"Api::BadRequestError"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Detail errorDetail `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Detail.Message }

type requestKey struct{}
type bodyBytesKey struct{}

type server struct {
	cfg      Config
	resolver resolve.Resolver
	basePath string
}

// New returns an HTTP handler exposing the API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 25
	}
	s := &server{
		cfg:      cfg,
		resolver: resolve.Resolver{Store: cfg.Store},
		basePath: basePath,
	}

	huma.DefaultArrayNullable = false
	// Override Huma errors to use the required envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return newAPIError(status, msg)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Store))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})

	hcfg := huma.DefaultConfig("Strato API", apiVersion)
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	register(group, s)
	return router, nil
}

func newAPIError(status int, message string) huma.StatusError {
	kind := render.KindForStatus(status)
	return &apiError{
		status: status,
		Detail: errorDetail{Kind: kind, Message: message, Klass: render.KlassForKind(kind)},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se *apiError
	if errors.As(err, &se) {
		return se
	}
	var fe rbac.ForbiddenError
	var br apierr.BadRequest
	switch {
	case errors.Is(err, rbac.ErrUnauthenticated):
		return newAPIError(http.StatusUnauthorized, err.Error())
	case errors.As(err, &fe):
		return newAPIError(http.StatusForbidden, err.Error())
	case errors.As(err, &br):
		return newAPIError(http.StatusBadRequest, br.Message)
	case errors.Is(err, store.ErrNotFound):
		return newAPIError(http.StatusNotFound, err.Error())
	default:
		return newAPIError(http.StatusInternalServerError, "internal error")
	}
}

func statusForKind(kind string) int {
	switch kind {
	case "not_found":
		return http.StatusNotFound
	case "forbidden":
		return http.StatusForbidden
	case "unauthenticated":
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// --- route registration ---

type collectionParams struct {
	Collection string `path:"collection"`
}

type resourceParams struct {
	Collection string `path:"collection"`
	ID         string `path:"id"`
}

type subParams struct {
	Collection    string `path:"collection"`
	ID            string `path:"id"`
	Subcollection string `path:"subcollection"`
}

type subResourceParams struct {
	Collection    string `path:"collection"`
	ID            string `path:"id"`
	Subcollection string `path:"subcollection"`
	SubID         string `path:"sub_id"`
}

type genericOutput struct {
	Status int
	Body   map[string]any
}

type noContentOutput struct {
	Status int
}

func register(group *huma.Group, s *server) {
	huma.Register(group, huma.Operation{
		OperationID: "entrypoint",
		Method:      http.MethodGet,
		Path:        "",
		Summary:     "API entrypoint",
	}, s.entrypoint)

	huma.Register(group, huma.Operation{
		OperationID: "read-collection",
		Method:      http.MethodGet,
		Path:        "/{collection}",
		Summary:     "Query a collection",
	}, s.getCollection)

	huma.Register(group, huma.Operation{
		OperationID: "post-collection",
		Method:      http.MethodPost,
		Path:        "/{collection}",
		Summary:     "Dispatch an action against a collection",
	}, s.postCollection)

	huma.Register(group, huma.Operation{
		OperationID: "read-resource",
		Method:      http.MethodGet,
		Path:        "/{collection}/{id}",
		Summary:     "Read one resource",
	}, s.getResource)

	huma.Register(group, huma.Operation{
		OperationID: "post-resource",
		Method:      http.MethodPost,
		Path:        "/{collection}/{id}",
		Summary:     "Dispatch an action against a resource",
	}, s.postResource)

	huma.Register(group, huma.Operation{
		OperationID: "put-resource",
		Method:      http.MethodPut,
		Path:        "/{collection}/{id}",
		Summary:     "Edit a resource",
	}, s.putResource)

	huma.Register(group, huma.Operation{
		OperationID: "patch-resource",
		Method:      http.MethodPatch,
		Path:        "/{collection}/{id}",
		Summary:     "Edit a resource",
	}, s.patchResource)

	huma.Register(group, huma.Operation{
		OperationID:   "delete-resource",
		Method:        http.MethodDelete,
		Path:          "/{collection}/{id}",
		DefaultStatus: http.StatusNoContent,
		Summary:       "Delete a resource",
	}, s.deleteResource)

	huma.Register(group, huma.Operation{
		OperationID: "read-subcollection",
		Method:      http.MethodGet,
		Path:        "/{collection}/{id}/{subcollection}",
		Summary:     "Query a subcollection",
	}, s.getSubcollection)

	huma.Register(group, huma.Operation{
		OperationID: "post-subcollection",
		Method:      http.MethodPost,
		Path:        "/{collection}/{id}/{subcollection}",
		Summary:     "Dispatch an action against a subcollection",
	}, s.postSubcollection)

	huma.Register(group, huma.Operation{
		OperationID: "read-subresource",
		Method:      http.MethodGet,
		Path:        "/{collection}/{id}/{subcollection}/{sub_id}",
		Summary:     "Read one subcollection resource",
	}, s.getSubresource)

	huma.Register(group, huma.Operation{
		OperationID: "post-subresource",
		Method:      http.MethodPost,
		Path:        "/{collection}/{id}/{subcollection}/{sub_id}",
		Summary:     "Dispatch an action against a subcollection resource",
	}, s.postSubresource)

	huma.Register(group, huma.Operation{
		OperationID:   "delete-subresource",
		Method:        http.MethodDelete,
		Path:          "/{collection}/{id}/{subcollection}/{sub_id}",
		DefaultStatus: http.StatusNoContent,
		Summary:       "Delete a subcollection resource",
	}, s.deleteSubresource)
}

// --- request helpers ---

func requestFrom(ctx context.Context) *http.Request {
	r, _ := ctx.Value(requestKey{}).(*http.Request)
	return r
}

func bodyFrom(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func queryValues(ctx context.Context) url.Values {
	if r := requestFrom(ctx); r != nil {
		return r.URL.Query()
	}
	return url.Values{}
}

func checkContentType(ctx context.Context) huma.StatusError {
	r := requestFrom(ctx)
	if r == nil || len(bodyFrom(ctx)) == 0 {
		return nil
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/json") {
		return nil
	}
	return newAPIError(http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported media type %s", ct))
}

func actorName(identity *rbac.Identity) string {
	if identity == nil {
		return ""
	}
	return identity.Name
}

func (s *server) lookup(name string) (registry.Collection, huma.StatusError) {
	col, ok := s.cfg.Registry.Lookup(name)
	if !ok || col.Parent != "" {
		return registry.Collection{}, newAPIError(http.StatusBadRequest, fmt.Sprintf("unknown collection %q", name))
	}
	return col, nil
}

func (s *server) lookupSub(parent registry.Collection, name string) (registry.Collection, huma.StatusError) {
	col, ok := s.cfg.Registry.LookupSub(parent.Name, name)
	if !ok {
		return registry.Collection{}, newAPIError(http.StatusBadRequest,
			fmt.Sprintf("unknown subcollection %s for the %s collection", name, parent.Name))
	}
	return col, nil
}

// --- read paths ---

func (s *server) entrypoint(ctx context.Context, _ *struct{}) (*genericOutput, error) {
	if identity := identityFrom(ctx); identity == nil {
		return nil, newAPIError(http.StatusUnauthorized, rbac.ErrUnauthenticated.Error())
	}
	var collections []map[string]any
	for _, name := range s.cfg.Registry.Names() {
		collections = append(collections, map[string]any{
			"name": name,
			"href": s.basePath + "/" + name,
		})
	}
	return &genericOutput{Status: http.StatusOK, Body: map[string]any{
		"name":        "strato",
		"description": "Strato REST API",
		"version":     apiVersion,
		"collections": collections,
	}}, nil
}

func (s *server) getCollection(ctx context.Context, in *collectionParams) (*genericOutput, error) {
	col, serr := s.lookup(in.Collection)
	if serr != nil {
		return nil, serr
	}
	if err := rbac.Authorize(identityFrom(ctx), rbac.Target{Collection: col.Name, Action: "read"}); err != nil {
		return nil, handleError(err)
	}
	if col.Virtual {
		return s.readSettings(ctx)
	}
	return s.readCollection(ctx, col, nil)
}

func (s *server) readCollection(ctx context.Context, col registry.Collection, parentRef *resolve.Ref) (*genericOutput, error) {
	values := queryValues(ctx)
	opts, err := query.Parse(values, col, s.cfg.DefaultLimit)
	if err != nil {
		return nil, handleError(err)
	}
	items, err := s.listFor(ctx, col, parentRef)
	if err != nil {
		return nil, handleError(err)
	}
	page, total := query.Apply(items, opts)
	var reqURL *url.URL
	if r := requestFrom(ctx); r != nil {
		reqURL = r.URL
	}
	body := render.Collection(page, total, render.CollectionOptions{
		Name:       col.Name,
		Expand:     opts.Expand,
		Attributes: opts.Attributes,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
		RequestURL: reqURL,
		HrefFor: func(r domain.Resource) string {
			return resolve.Ref{Collection: col.Name, ID: r.ID, Parent: parentRef}.Href(s.basePath)
		},
	})
	return &genericOutput{Status: http.StatusOK, Body: body}, nil
}

func (s *server) getResource(ctx context.Context, in *resourceParams) (*genericOutput, error) {
	col, serr := s.lookup(in.Collection)
	if serr != nil {
		return nil, serr
	}
	if col.Virtual {
		return nil, newAPIError(http.StatusBadRequest, fmt.Sprintf("%s resources are not individually addressable", col.Name))
	}
	return s.readOne(ctx, col, nil, in.ID)
}

// readOne orders resolution and authorization per the action descriptor:
// deny-before-resolve by default, resolve-first where the collection opts in.
func (s *server) readOne(ctx context.Context, col registry.Collection, parentRef *resolve.Ref, raw string) (*genericOutput, error) {
	target := rbac.Target{Collection: col.Name, Action: "read", Resource: true}
	if parentRef != nil {
		target.Collection = parentRef.Collection
		target.Subcollection = col.Name
	}
	act, ok := col.Action("read")
	if !ok {
		return nil, newAPIError(http.StatusBadRequest, fmt.Sprintf("unsupported action read for the %s collection", col.Name))
	}
	identity := identityFrom(ctx)

	var ref resolve.Ref
	var res domain.Resource
	var err error
	if act.ResolveFirst {
		if ref, res, err = s.resolveOne(ctx, col, raw, parentRef); err != nil {
			return nil, handleError(err)
		}
		if err = rbac.Authorize(identity, target); err != nil {
			return nil, handleError(err)
		}
	} else {
		if err = rbac.Authorize(identity, target); err != nil {
			return nil, handleError(err)
		}
		if ref, res, err = s.resolveOne(ctx, col, raw, parentRef); err != nil {
			return nil, handleError(err)
		}
	}

	attrs, err := query.ParseAttributes(queryValues(ctx), col)
	if err != nil {
		return nil, handleError(err)
	}
	compressed := strings.HasPrefix(raw, "x")
	body := render.ResourceBody(res, ref.Href(s.basePath), compressed, attrs)
	return &genericOutput{Status: http.StatusOK, Body: body}, nil
}

func (s *server) getSubcollection(ctx context.Context, in *subParams) (*genericOutput, error) {
	parentCol, serr := s.lookup(in.Collection)
	if serr != nil {
		return nil, serr
	}
	col, serr := s.lookupSub(parentCol, in.Subcollection)
	if serr != nil {
		return nil, serr
	}
	target := rbac.Target{Collection: parentCol.Name, Subcollection: col.Name, Action: "read"}
	if err := rbac.Authorize(identityFrom(ctx), target); err != nil {
		return nil, handleError(err)
	}
	parentRef, _, err := s.resolveOne(ctx, parentCol, in.ID, nil)
	if err != nil {
		return nil, handleError(err)
	}
	return s.readCollection(ctx, col, &parentRef)
}

func (s *server) getSubresource(ctx context.Context, in *subResourceParams) (*genericOutput, error) {
	parentCol, serr := s.lookup(in.Collection)
	if serr != nil {
		return nil, serr
	}
	col, serr := s.lookupSub(parentCol, in.Subcollection)
	if serr != nil {
		return nil, serr
	}
	target := rbac.Target{Collection: parentCol.Name, Subcollection: col.Name, Action: "read", Resource: true}
	if err := rbac.Authorize(identityFrom(ctx), target); err != nil {
		return nil, handleError(err)
	}
	parentRef, _, err := s.resolveOne(ctx, parentCol, in.ID, nil)
	if err != nil {
		return nil, handleError(err)
	}
	ref, res, err := s.resolveOne(ctx, col, in.SubID, &parentRef)
	if err != nil {
		return nil, handleError(err)
	}
	attrs, err := query.ParseAttributes(queryValues(ctx), col)
	if err != nil {
		return nil, handleError(err)
	}
	compressed := strings.HasPrefix(in.SubID, "x")
	body := render.ResourceBody(res, ref.Href(s.basePath), compressed, attrs)
	return &genericOutput{Status: http.StatusOK, Body: body}, nil
}

// listFor sources collection items. Events read from the audit log; every
// other collection reads from the resource store.
func (s *server) listFor(ctx context.Context, col registry.Collection, parentRef *resolve.Ref) ([]domain.Resource, error) {
	if col.Name == "events" {
		events, err := s.cfg.Audit.List(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Resource, 0, len(events))
		for _, e := range events {
			out = append(out, eventResource(e))
		}
		return out, nil
	}
	var parentID *int64
	if parentRef != nil {
		parentID = &parentRef.ID
	}
	return s.cfg.Store.ListResources(ctx, col.Name, parentID)
}

func (s *server) resolveOne(ctx context.Context, col registry.Collection, raw string, parentRef *resolve.Ref) (resolve.Ref, domain.Resource, error) {
	if col.Name == "events" {
		id, err := idcodec.Parse(raw)
		if err != nil {
			return resolve.Ref{}, domain.Resource{}, resolve.NotFoundError{Collection: col.Name, Raw: raw}
		}
		events, err := s.cfg.Audit.List(ctx)
		if err != nil {
			return resolve.Ref{}, domain.Resource{}, err
		}
		for _, e := range events {
			if e.ID == id {
				return resolve.Ref{Collection: "events", ID: id}, eventResource(e), nil
			}
		}
		return resolve.Ref{}, domain.Resource{}, resolve.NotFoundError{Collection: col.Name, Raw: raw}
	}
	return s.resolver.Resolve(ctx, col, raw, parentRef)
}

func eventResource(e domain.Event) domain.Resource {
	message := ""
	if m, ok := e.Payload["message"].(string); ok {
		message = m
	}
	return domain.Resource{
		ID:         e.ID,
		Collection: "events",
		CreatedAt:  e.TS,
		UpdatedAt:  e.TS,
		Attributes: map[string]any{
			"event_type": e.EventType,
			"timestamp":  e.TS,
			"source":     e.Collection,
			"message":    message,
			"actor":      e.Actor,
		},
	}
}

// --- dispatch paths ---

// routeTarget is the URL-decided half of a dispatch: which collection, under
// which parent, addressing which instance.
type routeTarget struct {
	col       registry.Collection
	parentCol *registry.Collection
	parentRaw string
	rawID     string
}

func (s *server) postCollection(ctx context.Context, in *collectionParams) (*genericOutput, error) {
	col, serr := s.lookup(in.Collection)
	if serr != nil {
		return nil, serr
	}
	if col.Virtual {
		return s.settingsAction(ctx, col)
	}
	return s.dispatch(ctx, routeTarget{col: col}, "create")
}

func (s *server) postResource(ctx context.Context, in *resourceParams) (*genericOutput, error) {
	col, serr := s.lookup(in.Collection)
	if serr != nil {
		return nil, serr
	}
	return s.dispatch(ctx, routeTarget{col: col, rawID: in.ID}, "")
}

func (s *server) putResource(ctx context.Context, in *resourceParams) (*genericOutput, error) {
	col, serr := s.lookup(in.Collection)
	if serr != nil {
		return nil, serr
	}
	return s.dispatch(ctx, routeTarget{col: col, rawID: in.ID}, "edit")
}

func (s *server) patchResource(ctx context.Context, in *resourceParams) (*genericOutput, error) {
	return s.putResource(ctx, in)
}

func (s *server) deleteResource(ctx context.Context, in *resourceParams) (*noContentOutput, error) {
	col, serr := s.lookup(in.Collection)
	if serr != nil {
		return nil, serr
	}
	return s.deleteByURL(ctx, routeTarget{col: col, rawID: in.ID})
}

func (s *server) postSubcollection(ctx context.Context, in *subParams) (*genericOutput, error) {
	t, serr := s.subTarget(in.Collection, in.ID, in.Subcollection, "")
	if serr != nil {
		return nil, serr
	}
	return s.dispatch(ctx, t, "create")
}

func (s *server) postSubresource(ctx context.Context, in *subResourceParams) (*genericOutput, error) {
	t, serr := s.subTarget(in.Collection, in.ID, in.Subcollection, in.SubID)
	if serr != nil {
		return nil, serr
	}
	return s.dispatch(ctx, t, "")
}

func (s *server) deleteSubresource(ctx context.Context, in *subResourceParams) (*noContentOutput, error) {
	t, serr := s.subTarget(in.Collection, in.ID, in.Subcollection, in.SubID)
	if serr != nil {
		return nil, serr
	}
	return s.deleteByURL(ctx, t)
}

func (s *server) subTarget(parent, parentRaw, sub, subRaw string) (routeTarget, huma.StatusError) {
	parentCol, serr := s.lookup(parent)
	if serr != nil {
		return routeTarget{}, serr
	}
	col, serr := s.lookupSub(parentCol, sub)
	if serr != nil {
		return routeTarget{}, serr
	}
	return routeTarget{col: col, parentCol: &parentCol, parentRaw: parentRaw, rawID: subRaw}, nil
}

// dispatch is the shared write path: normalize the envelope, gate, resolve,
// hand to the engine, assemble the response.
func (s *server) dispatch(ctx context.Context, t routeTarget, defaultAction string) (*genericOutput, error) {
	if serr := checkContentType(ctx); serr != nil {
		return nil, serr
	}
	parsed, err := envelope.Normalize(bodyFrom(ctx), envelope.Options{
		DefaultAction: defaultAction,
		HasTargetID:   t.rawID != "",
	})
	if err != nil {
		return nil, handleError(err)
	}

	actionName := parsed.Ops[0].Action
	act, ok := t.col.Action(actionName)
	if !ok {
		return nil, newAPIError(http.StatusBadRequest,
			fmt.Sprintf("unsupported action %s for the %s collection", actionName, t.col.Name))
	}
	if t.rawID != "" && !act.OnResource {
		return nil, newAPIError(http.StatusBadRequest,
			fmt.Sprintf("action %s is not addressable to individual %s resources", actionName, t.col.Name))
	}
	if t.rawID == "" && !act.OnCollection {
		for _, op := range parsed.Ops {
			if op.RawID == "" {
				return nil, newAPIError(http.StatusBadRequest,
					fmt.Sprintf("action %s for the %s collection requires resource ids", actionName, t.col.Name))
			}
		}
	}

	outcomes, serr := s.run(ctx, t, act, parsed.Ops)
	if serr != nil {
		return nil, serr
	}
	if parsed.Singular {
		o := outcomes[0]
		if !o.Success {
			return nil, newAPIError(statusForKind(o.Kind), o.Message)
		}
		return &genericOutput{Status: http.StatusOK, Body: render.OutcomeBody(o)}, nil
	}
	return &genericOutput{Status: http.StatusOK, Body: render.Results(outcomes)}, nil
}

func (s *server) deleteByURL(ctx context.Context, t routeTarget) (*noContentOutput, error) {
	act, ok := t.col.Action("delete")
	if !ok {
		return nil, newAPIError(http.StatusBadRequest,
			fmt.Sprintf("unsupported action delete for the %s collection", t.col.Name))
	}
	outcomes, serr := s.run(ctx, t, act, []envelope.Operation{{Action: "delete"}})
	if serr != nil {
		return nil, serr
	}
	if o := outcomes[0]; !o.Success {
		return nil, newAPIError(statusForKind(o.Kind), o.Message)
	}
	return &noContentOutput{Status: http.StatusNoContent}, nil
}

// run applies the gate/resolve ordering and invokes the engine.
func (s *server) run(ctx context.Context, t routeTarget, act registry.Action, ops []envelope.Operation) ([]dispatch.Outcome, huma.StatusError) {
	identity := identityFrom(ctx)
	target := rbac.Target{Collection: t.col.Name, Action: act.Name, Resource: t.rawID != ""}
	if t.parentCol != nil {
		target.Collection = t.parentCol.Name
		target.Subcollection = t.col.Name
	}

	var parentRef *resolve.Ref
	var urlRef *resolve.Ref
	var resource *domain.Resource
	resolveTargets := func() error {
		if t.parentCol != nil {
			ref, _, err := s.resolveOne(ctx, *t.parentCol, t.parentRaw, nil)
			if err != nil {
				return err
			}
			parentRef = &ref
		}
		if t.rawID != "" {
			ref, res, err := s.resolveOne(ctx, t.col, t.rawID, parentRef)
			if err != nil {
				return err
			}
			urlRef, resource = &ref, &res
		}
		return nil
	}

	if act.ResolveFirst {
		if err := resolveTargets(); err != nil {
			return nil, handleError(err)
		}
		if err := rbac.Authorize(identity, target); err != nil {
			return nil, handleError(err)
		}
	} else {
		if err := rbac.Authorize(identity, target); err != nil {
			return nil, handleError(err)
		}
		if err := resolveTargets(); err != nil {
			return nil, handleError(err)
		}
	}

	return s.cfg.Engine.DispatchAll(ctx, t.col, act, dispatch.Input{
		Ops:       ops,
		Actor:     actorName(identity),
		URLRef:    urlRef,
		Target:    resource,
		ParentRef: parentRef,
	}), nil
}

// --- settings (virtual collection) ---

func (s *server) readSettings(ctx context.Context) (*genericOutput, error) {
	body := s.cfg.Settings.All()
	if raw := queryValues(ctx).Get("attributes"); raw != "" {
		var paths []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		body = s.cfg.Settings.Select(paths)
	}
	return &genericOutput{Status: http.StatusOK, Body: body}, nil
}

func (s *server) settingsAction(ctx context.Context, col registry.Collection) (*genericOutput, error) {
	if serr := checkContentType(ctx); serr != nil {
		return nil, serr
	}
	parsed, err := envelope.Normalize(bodyFrom(ctx), envelope.Options{})
	if err != nil {
		return nil, handleError(err)
	}
	actionName := parsed.Ops[0].Action
	if _, ok := col.Action(actionName); !ok || actionName == "read" {
		return nil, newAPIError(http.StatusBadRequest,
			fmt.Sprintf("unsupported action %s for the %s collection", actionName, col.Name))
	}
	identity := identityFrom(ctx)
	if err := rbac.Authorize(identity, rbac.Target{Collection: col.Name, Action: actionName}); err != nil {
		return nil, handleError(err)
	}
	for _, op := range parsed.Ops {
		s.cfg.Settings.Apply(op.Attributes)
		if err := s.cfg.Audit.Append(ctx, "settings.apply", "settings", nil, actorName(identity), audit.Payload(op.Attributes)); err != nil {
			return nil, handleError(err)
		}
	}
	return &genericOutput{Status: http.StatusOK, Body: map[string]any{
		"success":  true,
		"message":  "settings applied",
		"settings": s.cfg.Settings.All(),
	}}, nil
}
