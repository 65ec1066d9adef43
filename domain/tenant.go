package domain

import (
	"strings"
	"time"
)

// TenantID is the internal primary key of a community.
type TenantID int64

// CallerID is the internal primary key of a user.
type CallerID int64

// Valid reports whether the id can scope a query.
func (id TenantID) Valid() bool { return id > 0 }

// Community is the isolation boundary every other row belongs to.
type Community struct {
	ID         TenantID  `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Role orders what a member of a community may do.
type Role int

const (
	RoleNone Role = iota
	RoleMember
	RoleManager
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleNone:    "",
	RoleMember:  "MEMBER",
	RoleManager: "MANAGER",
	RoleAdmin:   "ADMIN",
}

func (r Role) String() string {
	return roleNames[r]
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// ParseRole maps a claim value to a role. Unknown values map to RoleNone.
// GESTIONNAIRE is accepted as an alias of MANAGER.
func ParseRole(value string) Role {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ADMIN":
		return RoleAdmin
	case "MANAGER", "GESTIONNAIRE":
		return RoleManager
	case "MEMBER":
		return RoleMember
	default:
		return RoleNone
	}
}
