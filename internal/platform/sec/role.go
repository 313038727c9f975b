// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"fmt"
	"sort"
	"strings"
)

// # User Roles

// Role represents the authorization level granted to an account.
//
// The set is closed: values outside the declared constants are rejected by
// [ParseRole] and never reach a [Principal].
type Role int

const (
	// Anonymous or unverified visitors
	RoleGuest Role = iota

	// Default role for standard registered users
	RoleUser

	// Paying subscribers
	RolePremium

	// Unrestricted system access, implies every permission
	RoleAdmin
)

var roleNames = [...]string{
	RoleGuest:   "guest",
	RoleUser:    "user",
	RolePremium: "premium",
	RoleAdmin:   "admin",
}

// String returns the wire name of the role.
func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("role(%d)", int(r))
	}
	return roleNames[r]
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r >= RoleGuest && r <= RoleAdmin
}

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r Role) AtLeast(target Role) bool {
	return r.Valid() && r >= target
}

// ParseRole maps a wire name to a [Role].
func ParseRole(name string) (Role, error) {
	for role, roleName := range roleNames {
		if strings.EqualFold(name, roleName) {
			return Role(role), nil
		}
	}
	return RoleGuest, fmt.Errorf("sec: unknown role %q", name)
}

// MarshalText implements [encoding.TextMarshaler].
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("sec: invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// # Permissions

// PermissionSet is an unordered set of permission names.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from names, ignoring blanks and duplicates.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// Has reports membership.
func (set PermissionSet) Has(name string) bool {
	_, ok := set[name]
	return ok
}

// List returns the names in sorted order, suitable for token claims.
func (set PermissionSet) List() []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// # Principal

// Principal is the authenticated identity reconstructed from a verified access token.
//
// It is a snapshot taken at token issuance. Role or permission changes made
// after issuance are not reflected until a new token is issued.
type Principal struct {
	UserID      string
	Role        Role
	Permissions PermissionSet
	TokenID     string
}

// HasRole reports whether the principal's role meets the minimum.
func (principal *Principal) HasRole(minimum Role) bool {
	return principal != nil && principal.Role.AtLeast(minimum)
}

// HasPermission reports whether the permission is held. Admins hold all permissions.
func (principal *Principal) HasPermission(name string) bool {
	if principal == nil {
		return false
	}
	if principal.Role == RoleAdmin {
		return true
	}
	return principal.Permissions.Has(name)
}
