package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"estatecrm.org/internal/audit"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Service implements login, registration, request authentication,
// impersonation and administrative user changes.
type Service struct {
	users  UserStore
	tokens *TokenService
	audit  AuditRecorder
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service over the injected system of record.
func NewService(users UserStore, tokens *TokenService, recorder AuditRecorder, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if recorder == nil {
		return nil, errors.New("auth: audit recorder is required")
	}
	s := &Service{users: users, tokens: tokens, audit: recorder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Session is a freshly issued token together with the user it identifies.
type Session struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}

// Authenticate verifies token and re-reads the user so deactivation and role
// changes apply before the token expires. The returned identity carries the
// live roles and organization, not the ones embedded in the token.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	payload, err := s.tokens.Verify(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	id, err := uuid.Parse(payload.UserID)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	user, err := s.users.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrStaleIdentity
		}
		return Identity{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive || len(user.Roles) == 0 {
		return Identity{}, ErrStaleIdentity
	}
	return IdentityOf(user), nil
}

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return Session{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	var updated *User
	err = s.users.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.users.UpdateUser(ctx, user.ID, UserUpdate{LastLoginAt: &now})
		if err != nil {
			return fmt.Errorf("record login: %w", err)
		}
		return s.audit.Record(ctx, &audit.Entry{
			UserID:   updated.ID.String(),
			Action:   audit.ActionLogin,
			Entity:   "user",
			EntityID: updated.ID.String(),
		})
	})
	if err != nil {
		return Session{}, err
	}
	token, exp, err := s.tokens.Issue(IdentityOf(updated))
	if err != nil {
		return Session{}, err
	}
	return Session{User: updated, Token: token, ExpiresAt: exp}, nil
}

// RegisterInput is the self-service registration payload.
type RegisterInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	Phone          *string
	Roles          []string
	OrganizationID string
}

// Register creates an account and issues its first session token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	email := normalizeEmail(in.Email)
	if !emailRegex.MatchString(email) {
		return Session{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if err := ValidatePassword(in.Password); err != nil {
		return Session{}, err
	}
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" {
		return Session{}, fmt.Errorf("%w: firstName and lastName are required", ErrInvalidInput)
	}
	roles, err := ParseRoles(in.Roles)
	if err != nil {
		return Session{}, err
	}
	if len(roles) == 0 {
		return Session{}, fmt.Errorf("%w: at least one role is required", ErrInvalidInput)
	}
	if IsPlatformAdmin(roles) {
		return Session{}, fmt.Errorf("%w: role %s cannot be self-assigned", ErrInvalidInput, RolePlatformAdmin)
	}
	orgID := strings.TrimSpace(in.OrganizationID)
	if HasAnyRole(roles, RoleCorporateOwner, RoleCorporateAgent) && orgID == "" {
		return Session{}, fmt.Errorf("%w: organizationId is required for corporate roles", ErrInvalidInput)
	}

	if _, err := s.users.FindUserByEmail(ctx, email); err == nil {
		return Session{}, ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return Session{}, fmt.Errorf("load user: %w", err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return Session{}, err
	}
	now := s.now().UTC()
	user := &User{
		ID:             uuid.New(),
		Email:          email,
		PasswordHash:   hash,
		FirstName:      firstName,
		LastName:       lastName,
		Phone:          in.Phone,
		Roles:          roles,
		OrganizationID: orgID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.createAudited(ctx, user, user.ID.String()); err != nil {
		return Session{}, err
	}
	token, exp, err := s.tokens.Issue(IdentityOf(user))
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Token: token, ExpiresAt: exp}, nil
}

// Impersonate issues a token scoped to the target user on behalf of a
// platform admin. The audit append must succeed before the token is returned.
func (s *Service) Impersonate(ctx context.Context, actor *Identity, targetUserID string) (Session, error) {
	if actor == nil || !IsPlatformAdmin(actor.Roles) {
		return Session{}, ErrInsufficientPermissions
	}
	targetID, err := uuid.Parse(strings.TrimSpace(targetUserID))
	if err != nil {
		return Session{}, ErrTargetNotFound
	}
	target, err := s.users.FindUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrTargetNotFound
		}
		return Session{}, fmt.Errorf("load target: %w", err)
	}
	if !target.IsActive {
		return Session{}, ErrTargetNotFound
	}
	token, exp, err := s.tokens.Issue(IdentityOf(target))
	if err != nil {
		return Session{}, err
	}
	if err := s.audit.Record(ctx, &audit.Entry{
		UserID:   actor.ID,
		Action:   audit.ActionImpersonate,
		Entity:   "user",
		EntityID: target.ID.String(),
		After:    audit.Snapshot(map[string]string{"impersonatedEmail": target.Email}),
	}); err != nil {
		return Session{}, err
	}
	return Session{User: target, Token: token, ExpiresAt: exp}, nil
}

// ListUsers returns users, optionally scoped to one organization.
func (s *Service) ListUsers(ctx context.Context, filter UserFilter) ([]*User, error) {
	filter.OrganizationID = strings.TrimSpace(filter.OrganizationID)
	return s.users.ListUsers(ctx, filter)
}

// AdminUpdateUser changes activation or roles and audits the before/after views.
func (s *Service) AdminUpdateUser(ctx context.Context, actor *Identity, userID string, upd UserUpdate) (*User, error) {
	if err := RequirePermission(actor, PermManageUsers); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: user id is malformed", ErrInvalidInput)
	}
	if upd.IsActive == nil && upd.Roles == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if upd.Roles != nil {
		upd.Roles = dedupeRoles(upd.Roles)
		if len(upd.Roles) == 0 {
			return nil, fmt.Errorf("%w: at least one role is required", ErrInvalidInput)
		}
	}
	upd.LastLoginAt = nil

	var after *User
	err = s.users.RunInTx(ctx, func(ctx context.Context) error {
		before, err := s.users.FindUserByID(ctx, id)
		if err != nil {
			return err
		}
		after, err = s.users.UpdateUser(ctx, id, upd)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, &audit.Entry{
			UserID:   actor.ID,
			Action:   audit.ActionUpdate,
			Entity:   "user",
			EntityID: id.String(),
			Before:   audit.Snapshot(before.Public()),
			After:    audit.Snapshot(after.Public()),
		})
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

// BootstrapInput holds the primary administrator credentials.
type BootstrapInput struct {
	Username string
	Email    string
	Password string
}

// BootstrapAdmin provisions the primary platform admin once. It reports
// created=false when an account with the email already exists.
func (s *Service) BootstrapAdmin(ctx context.Context, in BootstrapInput) (*User, bool, error) {
	email := normalizeEmail(in.Email)
	if !emailRegex.MatchString(email) {
		return nil, false, fmt.Errorf("%w: valid admin email is required", ErrInvalidInput)
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, false, err
	}
	existing, err := s.users.FindUserByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("load user: %w", err)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, false, err
	}
	name := strings.TrimSpace(in.Username)
	if name == "" {
		name = "admin"
	}
	now := s.now().UTC()
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    name,
		LastName:     "Administrator",
		Roles:        []Role{RolePlatformAdmin},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.createAudited(ctx, user, user.ID.String()); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// createAudited inserts u and its CREATE audit entry as one unit of work, so
// a failed append leaves no account behind.
func (s *Service) createAudited(ctx context.Context, u *User, actorID string) error {
	return s.users.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.users.CreateUser(ctx, u); err != nil {
			return err
		}
		return s.audit.Record(ctx, &audit.Entry{
			UserID:   actorID,
			Action:   audit.ActionCreate,
			Entity:   "user",
			EntityID: u.ID.String(),
			After:    audit.Snapshot(u.Public()),
		})
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
