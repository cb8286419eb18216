// api/schemas/roles.go
package schemas

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RoleID identifies a semantic test identity. The set is closed: every value
// the harness accepts is declared below, and each maps to at most one live
// browser session.
type RoleID string

const (
	RoleDefault  RoleID = "default"
	RoleAdminA   RoleID = "admin_a"
	RoleAdminB   RoleID = "admin_b"
	RoleUserA    RoleID = "user_a"
	RoleUserB    RoleID = "user_b"
	RoleNurse    RoleID = "nurse"
	RoleEnroller RoleID = "enroller"
	RoleProvider RoleID = "provider"
)

// ErrUnknownRole is returned when a string or tag set does not map to a RoleID.
var ErrUnknownRole = errors.New("unknown role")

var knownRoles = map[RoleID]struct{}{
	RoleDefault:  {},
	RoleAdminA:   {},
	RoleAdminB:   {},
	RoleUserA:    {},
	RoleUserB:    {},
	RoleNurse:    {},
	RoleEnroller: {},
	RoleProvider: {},
}

// roleTagPrefix marks an explicit role tag on a feature, e.g. "@role:nurse".
const roleTagPrefix = "role:"

// AllRoles returns every declared role in a stable order.
func AllRoles() []RoleID {
	roles := make([]RoleID, 0, len(knownRoles))
	for r := range knownRoles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Valid reports whether r is one of the declared roles.
func (r RoleID) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r RoleID) String() string { return string(r) }

// ParseRole normalizes s and maps it to a declared role. Hyphens and spaces are
// treated as underscores so "Admin-A" and "admin a" both resolve to RoleAdminA.
func ParseRole(s string) (RoleID, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	r := RoleID(norm)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// RoleFromTags maps a feature's declared tags to a role. An explicit
// "@role:<name>" tag wins over a bare "@<name>" tag. When no tag maps,
// ErrUnknownRole is returned; callers decide whether to fall back to
// RoleDefault.
func RoleFromTags(tags []string) (RoleID, error) {
	var bare RoleID
	for _, tag := range tags {
		t := strings.TrimPrefix(strings.TrimSpace(tag), "@")
		if strings.HasPrefix(t, roleTagPrefix) {
			return ParseRole(strings.TrimPrefix(t, roleTagPrefix))
		}
		if bare == "" {
			if r, err := ParseRole(t); err == nil {
				bare = r
			}
		}
	}
	if bare == "" {
		return "", fmt.Errorf("%w: no role tag in %v", ErrUnknownRole, tags)
	}
	return bare, nil
}
