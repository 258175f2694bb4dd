package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// UserResponse describes the authenticated account.
type UserResponse struct {
	ID         string          `json:"id"`
	Email      string          `json:"email"`
	FullName   string          `json:"full_name"`
	Role       domain.UserRole `json:"role"`
	IsActive   bool            `json:"is_active"`
	Categories []string        `json:"categories"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AgentLoadResponse is one row of the workload view.
type AgentLoadResponse struct {
	UserID   string          `json:"user_id"`
	FullName string          `json:"full_name"`
	Role     domain.UserRole `json:"role"`
	Load     int             `json:"open_tickets"`
}

// ReassignRequest moves every open ticket between two users.
type ReassignRequest struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
}
