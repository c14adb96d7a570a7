package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTokenMissing            = errors.New("access token required")
	ErrInvalidToken            = errors.New("invalid or expired token")
	ErrStaleIdentity           = errors.New("user not found or inactive")
	ErrUnauthenticated         = errors.New("authentication required")
	ErrForbidden               = errors.New("insufficient permissions")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrUserExists              = errors.New("user already exists")
	ErrInvalidInput            = errors.New("invalid input")
	ErrNotFound                = errors.New("not found")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrTargetNotFound          = errors.New("target user not found")
)

// DeniedError is an authorization denial. It reveals policy, never data, so
// the required and current values are safe to echo back to the caller.
type DeniedError struct {
	Reason   string
	Required []string
	Current  []string
}

func (e *DeniedError) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = ErrForbidden.Error()
	}
	if len(e.Required) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: required %s, current %s", msg,
		strings.Join(e.Required, ","), strings.Join(e.Current, ","))
}

// Is lets callers match any denial with errors.Is(err, ErrForbidden).
func (e *DeniedError) Is(target error) bool {
	return target == ErrForbidden
}
