package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is the system-of-record view of an account, limited to the fields the
// authorization core reads or writes.
type User struct {
	ID             uuid.UUID
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	Phone          *string
	Roles          []Role
	OrganizationID string
	IsActive       bool
	LastLoginAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Identity is the authenticated principal attached to a single request.
type Identity struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Roles          []Role `json:"roles"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// IdentityOf projects the live user record into a request identity.
func IdentityOf(u *User) Identity {
	roles := make([]Role, len(u.Roles))
	copy(roles, u.Roles)
	return Identity{
		ID:             u.ID.String(),
		Email:          u.Email,
		Roles:          roles,
		OrganizationID: u.OrganizationID,
	}
}

// PublicUser is the user payload returned by the auth endpoints.
type PublicUser struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Phone          *string    `json:"phone"`
	Roles          []Role     `json:"roles"`
	OrganizationID string     `json:"organizationId,omitempty"`
	IsActive       bool       `json:"isActive"`
	LastLoginAt    *time.Time `json:"lastLoginAt,omitempty"`
}

// Public strips credentials from u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:             u.ID.String(),
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Phone:          u.Phone,
		Roles:          u.Roles,
		OrganizationID: u.OrganizationID,
		IsActive:       u.IsActive,
		LastLoginAt:    u.LastLoginAt,
	}
}

// UserUpdate carries optional administrative changes to a user.
type UserUpdate struct {
	IsActive    *bool
	Roles       []Role
	LastLoginAt *time.Time
}
