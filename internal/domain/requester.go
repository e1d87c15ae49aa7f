package domain

import "github.com/google/uuid"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Requester is the authenticated caller an operation runs on behalf of.
type Requester struct {
	UserID uuid.UUID
	Role   Role
}

func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}
