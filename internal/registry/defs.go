package registry

// Default builds the descriptor table for the stock API surface. Handlers for
// these collections live in internal/handlers; registering a collection here
// without binding a handler leaves every action unsupported.
func Default() *Registry {
	r := New()

	crud := func(extra ...Action) map[string]Action {
		actions := map[string]Action{
			"read":   {Name: "read", Mode: ModeInline, OnCollection: true, OnResource: true},
			"create": {Name: "create", Mode: ModeInline, OnCollection: true},
			"edit":   {Name: "edit", Mode: ModeInline, OnCollection: true, OnResource: true},
			"delete": {Name: "delete", Mode: ModeInline, OnCollection: true, OnResource: true},
		}
		for _, a := range extra {
			actions[a.Name] = a
		}
		return actions
	}

	r.MustRegister(Collection{
		Name:       "vms",
		Attributes: []string{"power_state", "vendor", "cpu_count", "memory_mb", "provider_id"},
		Actions: crud(
			Action{Name: "start", Mode: ModeQueued, OnCollection: true, OnResource: true},
			Action{Name: "stop", Mode: ModeQueued, OnCollection: true, OnResource: true},
			Action{Name: "suspend", Mode: ModeQueued, OnCollection: true, OnResource: true},
			Action{Name: "refresh", Mode: ModeQueued, OnCollection: true, OnResource: true},
			// Declared on the collection, implemented by no vm handler yet:
			// exercises the capability check.
			Action{Name: "publish", Mode: ModeInline, OnResource: true},
		),
	})
	r.MustRegister(Collection{
		Name:       "providers",
		AltKey:     "guid",
		Attributes: []string{"type", "hostname", "port"},
		Actions: crud(
			Action{Name: "refresh", Mode: ModeQueued, OnCollection: true, OnResource: true},
		),
	})
	r.MustRegister(Collection{
		Name:       "hosts",
		Attributes: []string{"hostname", "vmm_vendor", "power_state"},
		Actions: map[string]Action{
			"read": {Name: "read", Mode: ModeInline, OnCollection: true, OnResource: true},
			"edit": {Name: "edit", Mode: ModeInline, OnCollection: true, OnResource: true},
		},
	})
	r.MustRegister(Collection{
		Name:       "datastores",
		Attributes: []string{"storage_type", "total_space", "free_space"},
		Actions: map[string]Action{
			"read":   {Name: "read", Mode: ModeInline, OnCollection: true, OnResource: true},
			"delete": {Name: "delete", Mode: ModeQueued, OnCollection: true, OnResource: true},
			// Only some storage types implement safe_delete; the handler
			// decides per instance.
			"safe_delete": {Name: "safe_delete", Mode: ModeInline, OnResource: true},
		},
	})
	r.MustRegister(Collection{
		Name:       "zones",
		AltKey:     "name",
		Attributes: []string{"description"},
		Actions:    crud(),
	})
	r.MustRegister(Collection{
		Name:       "users",
		AltKey:     "userid",
		Attributes: []string{"userid", "email"},
		Actions: map[string]Action{
			// Deployments treat user ids as non-sensitive: existence may be
			// reported before the permission check.
			"read":   {Name: "read", Mode: ModeInline, OnCollection: true, OnResource: true, ResolveFirst: true},
			"create": {Name: "create", Mode: ModeInline, OnCollection: true},
			"edit":   {Name: "edit", Mode: ModeInline, OnCollection: true, OnResource: true, ResolveFirst: true},
			"delete": {Name: "delete", Mode: ModeInline, OnCollection: true, OnResource: true, ResolveFirst: true},
		},
	})
	r.MustRegister(Collection{
		Name:       "alerts",
		Attributes: []string{"severity", "acknowledged", "assignee"},
		Actions: crud(
			Action{Name: "acknowledge", Mode: ModeInline, OnCollection: true, OnResource: true},
			Action{Name: "assign", Mode: ModeInline, OnCollection: true, OnResource: true},
		),
	})
	r.MustRegister(Collection{
		Name:            "events",
		Attributes:      []string{"event_type", "timestamp", "source", "message"},
		RequiredFilters: []string{"event_type", "timestamp"},
		DefaultLimit:    100,
		Actions: map[string]Action{
			"read": {Name: "read", Mode: ModeInline, OnCollection: true, OnResource: true},
		},
	})
	r.MustRegister(Collection{
		Name:       "tasks",
		Attributes: []string{"action", "state", "target_collection", "target_id", "message"},
		Actions: map[string]Action{
			"read":   {Name: "read", Mode: ModeInline, OnCollection: true, OnResource: true},
			"delete": {Name: "delete", Mode: ModeInline, OnCollection: true, OnResource: true},
		},
	})
	r.MustRegister(Collection{
		Name:    "settings",
		Virtual: true,
		Actions: map[string]Action{
			"read":  {Name: "read", Mode: ModeInline, OnCollection: true},
			"apply": {Name: "apply", Mode: ModeInline, OnCollection: true},
		},
	})

	r.MustRegister(Collection{
		Name:       "snapshots",
		Parent:     "vms",
		Attributes: []string{"description", "snapshot_type"},
		Actions: map[string]Action{
			"read":   {Name: "read", Mode: ModeInline, OnCollection: true, OnResource: true},
			"create": {Name: "create", Mode: ModeQueued, OnCollection: true},
			"delete": {Name: "delete", Mode: ModeInline, OnCollection: true, OnResource: true},
		},
	})
	r.MustRegister(Collection{
		Name:       "tags",
		Parent:     "vms",
		Attributes: []string{"category"},
		Actions: map[string]Action{
			"read":     {Name: "read", Mode: ModeInline, OnCollection: true, OnResource: true},
			"assign":   {Name: "assign", Mode: ModeInline, OnCollection: true},
			"unassign": {Name: "unassign", Mode: ModeInline, OnCollection: true, OnResource: true},
		},
	})

	return r
}
