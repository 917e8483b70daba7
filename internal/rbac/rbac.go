package rbac

import (
	"errors"
	"fmt"
)

// Identity is a resolved caller: a name plus the granted permission
// identifier set. How the identity was authenticated is the server layer's
// concern; the gate only sees the result.
type Identity struct {
	Name        string
	Group       string
	Permissions []string
}

func (i Identity) Allows(perm string) bool {
	for _, p := range i.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// ErrUnauthenticated means no identity could be resolved at all. It is
// distinct from ForbiddenError and maps to the 401-class error kind.
var ErrUnauthenticated = errors.New("authentication required")

// ForbiddenError indicates a missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Target names what a request wants to do, in registry terms.
type Target struct {
	Collection    string
	Subcollection string
	Action        string
	// Resource is true when the request names a specific instance.
	Resource bool
}

// Compose builds the permission identifier for a target. The rule is fixed:
//
//	collection-level action     ->  <collection>.<action>
//	resource-level read         ->  <collection>.show
//	other resource-level action ->  <collection>.<action>
//	subcollection action        ->  <collection>.<subcollection>.<action>
//	                                (with the same read/show split)
//
// The transport verb never participates: a DELETE request and a body carrying
// action=delete compose the same identifier.
func Compose(t Target) string {
	name := t.Collection
	if t.Subcollection != "" {
		name += "." + t.Subcollection
	}
	action := t.Action
	if action == "read" && t.Resource {
		action = "show"
	}
	return name + "." + action
}

// Authorize gates a target. A nil identity is unauthenticated, checked before
// any permission lookup; denial is always explicit, never an empty result.
func Authorize(identity *Identity, t Target) error {
	if identity == nil {
		return ErrUnauthenticated
	}
	perm := Compose(t)
	if !identity.Allows(perm) {
		return ForbiddenError{Permission: perm}
	}
	return nil
}
