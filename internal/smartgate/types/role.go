package types

import (
	"fmt"
	"strings"
)

// Role is a position on the authorization ladder. Gates name a minimum role and
// any role ranked at or above it satisfies the gate.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleStudent  Role = "student"
	RoleStaff    Role = "staff"
	RoleSecurity Role = "security"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleGuest:    0,
	RoleStudent:  1,
	RoleStaff:    2,
	RoleSecurity: 3,
	RoleAdmin:    4,
}

// Roles returns the ladder in ascending order.
func Roles() []Role {
	return []Role{RoleGuest, RoleStudent, RoleStaff, RoleSecurity, RoleAdmin}
}

// Rank returns the role's position on the ladder, or -1 for an unknown role.
func (r Role) Rank() int {
	if n, ok := roleRanks[r]; ok {
		return n
	}
	return -1
}

func (r Role) Valid() bool { return r.Rank() >= 0 }

// AtLeast reports whether r satisfies a gate whose minimum role is min.
// Unknown roles never satisfy anything.
func (r Role) AtLeast(min Role) bool {
	if !r.Valid() || !min.Valid() {
		return false
	}
	return r.Rank() >= min.Rank()
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
