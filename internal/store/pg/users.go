package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"estatecrm.org/internal/auth"
)

var _ auth.UserStore = (*Store)(nil)

const userColumns = `id, email, password_hash, first_name, last_name, phone, roles,
	organization_id, is_active, last_login_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u     auth.User
		phone sql.NullString
		org   sql.NullString
		last  sql.NullTime
		roles []string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &phone,
		pq.Array(&roles), &org, &u.IsActive, &last, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Phone = stringPtr(phone)
	u.OrganizationID = org.String
	u.LastLoginAt = timePtr(last)
	u.Roles = make([]auth.Role, 0, len(roles))
	for _, r := range roles {
		u.Roles = append(u.Roles, auth.Role(r))
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	u, err := scanUser(s.conn(ctx).QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, err := scanUser(s.conn(ctx).QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email) = lower($1)`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		insert into users (id, email, password_hash, first_name, last_name, phone, roles,
			organization_id, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, nullString(u.Phone),
		pq.Array(auth.RoleStrings(u.Roles)), nullIfEmpty(u.OrganizationID), u.IsActive,
		u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, upd auth.UserUpdate) (*auth.User, error) {
	sets := []string{"updated_at = $1"}
	args := []any{s.now().UTC()}
	if upd.IsActive != nil {
		args = append(args, *upd.IsActive)
		sets = append(sets, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if upd.Roles != nil {
		args = append(args, pq.Array(auth.RoleStrings(upd.Roles)))
		sets = append(sets, fmt.Sprintf("roles = $%d", len(args)))
	}
	if upd.LastLoginAt != nil {
		args = append(args, *upd.LastLoginAt)
		sets = append(sets, fmt.Sprintf("last_login_at = $%d", len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf(`update users set %s where id = $%d returning `+userColumns,
		strings.Join(sets, ", "), len(args))
	u, err := scanUser(s.conn(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, filter auth.UserFilter) ([]*auth.User, error) {
	query := `select ` + userColumns + ` from users`
	var args []any
	if filter.OrganizationID != "" {
		query += ` where organization_id = $1`
		args = append(args, filter.OrganizationID)
	}
	query += ` order by created_at, email`
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
