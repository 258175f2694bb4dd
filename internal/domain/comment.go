package domain

import "time"

// TicketComment is a reply or internal note on a ticket thread.
type TicketComment struct {
	ID         string
	TicketID   string
	UserID     string
	Content    string
	IsInternal bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
