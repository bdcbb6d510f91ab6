package supervisor

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is a capability granted to a supervisor.
type Permission string

const (
	PermReadOnly       Permission = "read_only"
	PermModifyContext  Permission = "modify_context"
	PermModifyMessages Permission = "modify_messages"
	PermFullControl    Permission = "full_control"
)

// ParsePermission parses a permission name. Both "modify_messages" and
// "MODIFY_MESSAGES" spellings are accepted.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PermReadOnly, PermModifyContext, PermModifyMessages, PermFullControl:
		return p, nil
	}
	return "", fmt.Errorf("unknown permission: %q", s)
}

// Permissions is a set of granted permissions.
type Permissions map[Permission]bool

// NewPermissions builds a permission set.
func NewPermissions(perms ...Permission) Permissions {
	set := make(Permissions, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return set
}

// ParsePermissions parses a list of permission names. An empty list yields
// a read-only set.
func ParsePermissions(names []string) (Permissions, error) {
	if len(names) == 0 {
		return NewPermissions(PermReadOnly), nil
	}
	set := make(Permissions, len(names))
	for _, name := range names {
		p, err := ParsePermission(name)
		if err != nil {
			return nil, err
		}
		set[p] = true
	}
	return set, nil
}

// Has reports whether p was granted.
func (ps Permissions) Has(p Permission) bool {
	return ps[p]
}

// CanModifyContext reports whether context items may be changed.
func (ps Permissions) CanModifyContext() bool {
	return ps.Has(PermModifyContext) || ps.Has(PermFullControl)
}

// CanModifyMessages reports whether message content may be rewritten.
func (ps Permissions) CanModifyMessages() bool {
	return ps.Has(PermModifyMessages) || ps.Has(PermFullControl)
}

// IsReadOnly holds only when the set is exactly {read_only}.
func (ps Permissions) IsReadOnly() bool {
	return len(ps.List()) == 1 && ps.Has(PermReadOnly)
}

// List returns the granted permissions sorted by name.
func (ps Permissions) List() []Permission {
	list := make([]Permission, 0, len(ps))
	for p, ok := range ps {
		if ok {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// Clone returns a copy of the set.
func (ps Permissions) Clone() Permissions {
	clone := make(Permissions, len(ps))
	for p, ok := range ps {
		clone[p] = ok
	}
	return clone
}
