package auth

import (
	"context"

	"github.com/google/uuid"

	"estatecrm.org/internal/audit"
)

// UserStore is the slice of the system of record the auth subsystem needs.
// FindUserByID and FindUserByEmail return ErrNotFound for unknown users;
// CreateUser returns ErrUserExists on a duplicate email.
//
// RunInTx runs fn as one unit of work: every write made through the context
// handed to fn, including audit appends to the same store, commits or rolls
// back together.
type UserStore interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]*User, error)
}

// UserFilter narrows ListUsers; zero value lists everyone.
type UserFilter struct {
	OrganizationID string
}

// AuditRecorder appends audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
}
