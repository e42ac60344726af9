package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's platform role. Roles are totally ordered:
// student < instructor < admin < superadmin.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

var roleRank = map[Role]int{
	RoleStudent:    0,
	RoleInstructor: 1,
	RoleAdmin:      2,
	RoleSuperadmin: 3,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r ranks at or above min. Unknown roles rank
// below every known role.
func (r Role) AtLeast(min Role) bool {
	rr, ok := roleRank[r]
	if !ok {
		return false
	}
	return rr >= roleRank[min]
}

// CanModerate reports whether r may create, close or moderate sessions.
func (r Role) CanModerate() bool { return r.AtLeast(RoleInstructor) }

// User is a platform user as seen by the Role Authority.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
