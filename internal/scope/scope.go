// Package scope answers whether a set of capability grants permits an action
// on a resource. It is shared by API key authorization and role checks.
package scope

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Wildcard matches any resource or any action.
const Wildcard = "*"

const (
	ResourceLists    = "lists"
	ResourceSources  = "sources"
	ResourceIndexers = "indexers"
	ResourceSettings = "settings"
	ResourceAPIKeys  = "api-keys"

	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
	ActionSync   = "sync"
)

var ErrInvalidScope = errors.New("invalid scope")

// Scope grants Actions on Resource.
type Scope struct {
	Resource string   `json:"resource"`
	Actions  []string `json:"actions"`
}

// Grants reports whether s permits action on resource.
func (s Scope) Grants(resource, action string) bool {
	if s.Resource != resource && s.Resource != Wildcard {
		return false
	}
	return slices.Contains(s.Actions, action) || slices.Contains(s.Actions, Wildcard)
}

// Allows reports whether any scope in set permits action on resource.
func Allows(set []Scope, resource, action string) bool {
	for _, s := range set {
		if s.Grants(resource, action) {
			return true
		}
	}
	return false
}

// Covers reports whether every grant of requested is permitted by set.
// A requested wildcard is only covered by a wildcard in set.
func Covers(set []Scope, requested []Scope) bool {
	for _, r := range requested {
		for _, a := range r.Actions {
			if !Allows(set, r.Resource, a) {
				return false
			}
		}
	}
	return true
}

// Normalize trims, lower-cases and de-duplicates a scope list and rejects
// empty resources or action lists.
func Normalize(in []Scope) ([]Scope, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: at least one scope is required", ErrInvalidScope)
	}
	out := make([]Scope, 0, len(in))
	for i, s := range in {
		resource := strings.ToLower(strings.TrimSpace(s.Resource))
		if resource == "" {
			return nil, fmt.Errorf("%w: scope %d has no resource", ErrInvalidScope, i)
		}
		actions := make([]string, 0, len(s.Actions))
		for _, a := range s.Actions {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || slices.Contains(actions, a) {
				continue
			}
			actions = append(actions, a)
		}
		if len(actions) == 0 {
			return nil, fmt.Errorf("%w: scope %q has no actions", ErrInvalidScope, resource)
		}
		out = append(out, Scope{Resource: resource, Actions: actions})
	}
	return out, nil
}

// ForRole returns the grants a session role carries.
func ForRole(role string) []Scope {
	switch role {
	case "admin":
		return []Scope{{Resource: Wildcard, Actions: []string{Wildcard}}}
	case "user":
		return []Scope{
			{Resource: ResourceLists, Actions: []string{Wildcard}},
			{Resource: ResourceSources, Actions: []string{ActionRead, ActionWrite}},
			{Resource: ResourceIndexers, Actions: []string{ActionRead}},
			{Resource: ResourceSettings, Actions: []string{ActionRead}},
			{Resource: ResourceAPIKeys, Actions: []string{Wildcard}},
		}
	default:
		return nil
	}
}
