// Package gate derives the console access state from the cookie session and
// the subject's profile record. It is the only place that decides whether
// protected content may render.
package gate

import (
	"strings"

	"github.com/google/uuid"
)

// Role is the role carried by a profile. The set is open; unknown values are
// never granted access.
type Role string

const (
	RoleUser        Role = "user"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
	RoleChurchAdmin Role = "church_admin"
)

// allowed lists the roles that may enter the console.
var allowed = map[Role]struct{}{
	RoleUser:       {},
	RoleAdmin:      {},
	RoleSuperAdmin: {},
}

// ParseRole normalises a stored role value.
func ParseRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// Allowed reports whether r is on the console allow-list.
func (r Role) Allowed() bool {
	_, ok := allowed[r]
	return ok
}

// In reports whether r is one of roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// Session is the credential session issued by the identity provider.
type Session struct {
	ID      string
	Subject string
}

// Profile is the role-bearing record of a session subject.
type Profile struct {
	ID        uuid.UUID
	Role      Role
	FullName  string
	AvatarURL string
}

// State is the derived access state.
type State int

const (
	Initializing State = iota
	Unauthenticated
	// AwaitingProfile is never produced by Resolve; a session waiting for its
	// profile reports Initializing.
	AwaitingProfile
	Unauthorized
	Authorized
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Unauthenticated:
		return "unauthenticated"
	case AwaitingProfile:
		return "awaiting_profile"
	case Unauthorized:
		return "unauthorized"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}
