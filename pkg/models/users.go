package models

import "github.com/google/uuid"

// Role identifies what a user (or the system itself) is allowed to do in the
// approval workflow.
type Role string

const (
	RoleOperator Role = "operator"
	RoleManager  Role = "manager"
	RoleClient   Role = "client"
	RoleAdmin    Role = "admin"

	// RoleSystem is never carried by a human token. It is used internally by
	// the task dispatcher to flip approved content to published.
	RoleSystem Role = "system"
)

// Actor is the authenticated identity performing an operation.
type Actor struct {
	UserID   uuid.UUID  `json:"user_id"`
	Role     Role       `json:"role"`
	ClientID *uuid.UUID `json:"client_id,omitempty"` // set for client-role users only
}

// User is a platform operator, manager, client reviewer or admin.
type User struct {
	ID       uuid.UUID  `json:"id"`
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Role     Role       `json:"role"`
	ClientID *uuid.UUID `json:"client_id,omitempty"`
	Active   bool       `json:"active"`
}
