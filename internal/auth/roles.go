package auth

import (
	"fmt"
	"slices"
	"strings"
)

// Role is the access level carried in a bearer token.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleWriter Role = "writer"
	RoleAdmin  Role = "admin"
)

// Action is an operation on the ingest API.
type Action string

const (
	// ActionRead covers previews and read-only API calls.
	ActionRead Action = "read"
	// ActionIngest writes message rows to the store.
	ActionIngest Action = "ingest"
	// ActionInspectNode exposes the effective node configuration.
	ActionInspectNode Action = "inspect_node"
)

var grants = map[Role][]Action{
	RoleViewer: {ActionRead},
	RoleWriter: {ActionRead, ActionIngest},
	RoleAdmin:  {ActionRead, ActionIngest, ActionInspectNode},
}

// ParseRole reads a role from a claim or flag. Case and surrounding space
// are ignored.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := grants[role]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
	return role, nil
}

// Allows reports whether the role may perform action.
func (r Role) Allows(action Action) bool {
	return slices.Contains(grants[r], action)
}
