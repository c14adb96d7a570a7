package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"estatecrm.org/internal/leads"
)

var _ leads.Store = (*Store)(nil)

const requestColumns = `id, buyer_id, criteria, contact_name, contact_phone, contact_email,
	status, created_at, updated_at`

const claimColumns = `id, agent_id, buyer_request_id, status, created_at, expires_at, released_at, notes`

func scanRequest(row rowScanner) (*leads.BuyerRequest, error) {
	var (
		br                 leads.BuyerRequest
		criteria           []byte
		name, phone, email sql.NullString
		status             string
	)
	if err := row.Scan(&br.ID, &br.BuyerID, &criteria, &name, &phone, &email,
		&status, &br.CreatedAt, &br.UpdatedAt); err != nil {
		return nil, err
	}
	if len(criteria) > 0 {
		br.Criteria = criteria
	}
	br.Contact.Name = stringPtr(name)
	br.Contact.Phone = stringPtr(phone)
	br.Contact.Email = stringPtr(email)
	br.Status = leads.RequestStatus(status)
	return &br, nil
}

func scanClaim(row rowScanner) (*leads.Claim, error) {
	var (
		c        leads.Claim
		status   string
		released sql.NullTime
		notes    sql.NullString
	)
	if err := row.Scan(&c.ID, &c.AgentID, &c.BuyerRequestID, &status, &c.CreatedAt,
		&c.ExpiresAt, &released, &notes); err != nil {
		return nil, err
	}
	c.Status = leads.ClaimStatus(status)
	c.ReleasedAt = timePtr(released)
	c.Notes = stringPtr(notes)
	return &c, nil
}

func (s *Store) FindBuyerRequest(ctx context.Context, id string) (*leads.BuyerRequest, error) {
	br, err := scanRequest(s.conn(ctx).QueryRowContext(ctx,
		`select `+requestColumns+` from buyer_requests where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leads.ErrNotFound
	}
	return br, err
}

func (s *Store) ListBuyerRequests(ctx context.Context, filter leads.RequestFilter) ([]*leads.BuyerRequest, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = any($%d)", len(args)))
	}
	if filter.BuyerID != "" {
		args = append(args, filter.BuyerID)
		where = append(where, fmt.Sprintf("buyer_id = $%d", len(args)))
	}
	query := `select ` + requestColumns + ` from buyer_requests`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by id`

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*leads.BuyerRequest
	for rows.Next() {
		br, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, br)
	}
	return out, rows.Err()
}

func (s *Store) CreateBuyerRequest(ctx context.Context, br *leads.BuyerRequest) error {
	now := s.now().UTC()
	if br.Status == "" {
		br.Status = leads.RequestOpen
	}
	if br.CreatedAt.IsZero() {
		br.CreatedAt = now
	}
	br.UpdatedAt = now
	var criteria any
	if len(br.Criteria) > 0 {
		criteria = []byte(br.Criteria)
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		insert into buyer_requests (id, buyer_id, criteria, contact_name, contact_phone,
			contact_email, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, br.ID, br.BuyerID, criteria, nullString(br.Contact.Name), nullString(br.Contact.Phone),
		nullString(br.Contact.Email), string(br.Status), br.CreatedAt, br.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert buyer request: %w", err)
	}
	return nil
}

func (s *Store) FindClaim(ctx context.Context, id string) (*leads.Claim, error) {
	c, err := scanClaim(s.conn(ctx).QueryRowContext(ctx, `select `+claimColumns+` from claims where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leads.ErrNotFound
	}
	return c, err
}

func (s *Store) ListClaims(ctx context.Context, filter leads.ClaimFilter) ([]*leads.Claim, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.AgentID != "" {
		add("agent_id = $%d", filter.AgentID)
	}
	if filter.BuyerRequestID != "" {
		add("buyer_request_id = $%d", filter.BuyerRequestID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		add("created_at > $%d", filter.CreatedAfter)
	}
	query := `select ` + claimColumns + ` from claims`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by created_at`

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*leads.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateClaim locks the buyer request row so concurrent claims on the same
// request serialize, then inserts the claim and marks the request CLAIMED.
func (s *Store) CreateClaim(ctx context.Context, c *leads.Claim) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		q := s.conn(ctx)
		var status string
		err := q.QueryRowContext(ctx, `select status from buyer_requests where id = $1 for update`, c.BuyerRequestID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return leads.ErrNotFound
		}
		if err != nil {
			return err
		}
		if leads.RequestStatus(status) == leads.RequestClosed {
			return leads.ErrRequestClosed
		}
		var exists bool
		if err := q.QueryRowContext(ctx, `
			select exists(select 1 from claims where buyer_request_id = $1 and status = $2 and expires_at > $3)
		`, c.BuyerRequestID, string(leads.ClaimActive), c.CreatedAt).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return leads.ErrAlreadyClaimed
		}
		if _, err := q.ExecContext(ctx, `
			insert into claims (id, agent_id, buyer_request_id, status, created_at, expires_at, notes)
			values ($1, $2, $3, $4, $5, $6, $7)
		`, c.ID, c.AgentID, c.BuyerRequestID, string(c.Status), c.CreatedAt, c.ExpiresAt, nullString(c.Notes)); err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}
		_, err = q.ExecContext(ctx, `update buyer_requests set status = $1, updated_at = $2 where id = $3`,
			string(leads.RequestClaimed), c.CreatedAt, c.BuyerRequestID)
		return err
	})
}

// UpdateClaimStatus moves a claim that is still ACTIVE and unexpired at at.
// The guard lives in the update itself so two concurrent releases cannot both
// succeed; the loser gets leads.ErrClaimNotActive.
func (s *Store) UpdateClaimStatus(ctx context.Context, id string, status leads.ClaimStatus, at time.Time) (*leads.Claim, error) {
	var released *time.Time
	if status == leads.ClaimReleased {
		released = &at
	}
	var c *leads.Claim
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		q := s.conn(ctx)
		var err error
		c, err = scanClaim(q.QueryRowContext(ctx, `
			update claims set status = $1, released_at = coalesce($2, released_at)
			where id = $3 and status = $4 and expires_at > $5
			returning `+claimColumns, string(status), nullTime(released), id, string(leads.ClaimActive), at))
		if errors.Is(err, sql.ErrNoRows) {
			var found bool
			if err := q.QueryRowContext(ctx, `select exists(select 1 from claims where id = $1)`, id).Scan(&found); err != nil {
				return err
			}
			if found {
				return leads.ErrClaimNotActive
			}
			return leads.ErrNotFound
		}
		if err != nil {
			return err
		}
		if status == leads.ClaimReleased {
			_, err = q.ExecContext(ctx, `
				update buyer_requests set status = $1, updated_at = $2 where id = $3 and status = $4
			`, string(leads.RequestOpen), at, c.BuyerRequestID, string(leads.RequestClaimed))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
