package domain

import (
	"strings"
	"time"
)

// UserRole enumerates account roles.
type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleAgent UserRole = "agent"
	RoleUser  UserRole = "user"
)

// DefaultAssigneeRoles are the roles eligible for load-balanced assignment when no role is given.
var DefaultAssigneeRoles = []UserRole{RoleAgent, RoleAdmin}

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleUser:
		return true
	}
	return false
}

// User is an account that creates, works on, or administers tickets.
type User struct {
	ID       string
	Email    string
	FullName string
	Role     UserRole
	IsActive bool
	// Categories restricts which ticket categories the user is balanced onto. Empty means any.
	Categories []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsStaff reports whether the user works tickets (agent or admin).
func (u *User) IsStaff() bool {
	return u != nil && (u.Role == RoleAgent || u.Role == RoleAdmin)
}

// HandlesCategory reports whether the user may receive tickets of category.
func (u *User) HandlesCategory(category string) bool {
	if len(u.Categories) == 0 || category == "" {
		return true
	}
	for _, c := range u.Categories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}
