// Package users lets super administrators manage console accounts.
package users

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/parishdesk/parishdesk/internal/gate"
)

// Account is a user joined with its profile.
type Account struct {
	ID        uuid.UUID
	Email     string
	FullName  string
	Role      gate.Role
	IsActive  bool
	CreatedAt time.Time
}

// Assignable lists the roles an administrator may hand out. church_admin is
// assignable but does not grant console access.
var Assignable = []gate.Role{gate.RoleUser, gate.RoleAdmin, gate.RoleSuperAdmin, gate.RoleChurchAdmin}

var (
	// ErrSelfChange prevents administrators from locking themselves out.
	ErrSelfChange = errors.New("users: cannot change your own account")
	// ErrUnknownRole is returned for roles outside Assignable.
	ErrUnknownRole = errors.New("users: unknown role")
)
