// Package memstore is an in-process system of record used by tests and by
// the API when no database DSN is configured.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"estatecrm.org/internal/audit"
	"estatecrm.org/internal/auth"
	"estatecrm.org/internal/leads"
)

// Store keeps users, buyer requests, claims and audit entries in memory.
type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*auth.User
	byEmail  map[string]uuid.UUID
	requests map[string]*leads.BuyerRequest
	claims   map[string]*leads.Claim
	auditLog []*audit.Entry
	now      func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*auth.User),
		byEmail:  make(map[string]uuid.UUID),
		requests: make(map[string]*leads.BuyerRequest),
		claims:   make(map[string]*leads.Claim),
		now:      time.Now,
	}
}

// SetClock overrides the timestamp source for UpdatedAt columns.
func (s *Store) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.now = fn
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type txKey struct{}

// tx is an open unit of work. It owns the write lock and journals how to undo
// each write made through it.
type tx struct {
	store *Store
	undo  []func()
}

func (t *tx) onRollback(fn func()) {
	if t != nil {
		t.undo = append(t.undo, fn)
	}
}

// RunInTx holds the write lock while fn runs. Writes made through the context
// passed to fn are reverted when fn returns an error. Nested calls join the
// outer unit of work.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &tx{store: s}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		return err
	}
	return nil
}

func (s *Store) txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	if t == nil || t.store != s {
		return nil
	}
	return t
}

// lock takes the write lock unless ctx already holds it through RunInTx, in
// which case the open unit of work is returned for journaling.
func (s *Store) lock(ctx context.Context) (*tx, func()) {
	if t := s.txFrom(ctx); t != nil {
		return t, func() {}
	}
	s.mu.Lock()
	return nil, s.mu.Unlock
}

func (s *Store) rlock(ctx context.Context) func() {
	if s.txFrom(ctx) != nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) FindUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	defer s.rlock(ctx)()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	defer s.rlock(ctx)()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	t, unlock := s.lock(ctx)
	defer unlock()
	key := strings.ToLower(u.Email)
	if _, ok := s.byEmail[key]; ok {
		return auth.ErrUserExists
	}
	if _, ok := s.users[u.ID]; ok {
		return auth.ErrUserExists
	}
	s.users[u.ID] = cloneUser(u)
	s.byEmail[key] = u.ID
	t.onRollback(func() {
		delete(s.users, u.ID)
		delete(s.byEmail, key)
	})
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, upd auth.UserUpdate) (*auth.User, error) {
	t, unlock := s.lock(ctx)
	defer unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	prev := cloneUser(u)
	t.onRollback(func() { s.users[id] = prev })

	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	if upd.Roles != nil {
		u.Roles = append([]auth.Role(nil), upd.Roles...)
	}
	if upd.LastLoginAt != nil {
		lt := *upd.LastLoginAt
		u.LastLoginAt = &lt
	}
	u.UpdatedAt = s.now().UTC()
	return cloneUser(u), nil
}

func (s *Store) ListUsers(ctx context.Context, filter auth.UserFilter) ([]*auth.User, error) {
	defer s.rlock(ctx)()
	out := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		if filter.OrganizationID != "" && u.OrganizationID != filter.OrganizationID {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, e *audit.Entry) error {
	t, unlock := s.lock(ctx)
	defer unlock()
	n := len(s.auditLog)
	cp := *e
	s.auditLog = append(s.auditLog, &cp)
	t.onRollback(func() { s.auditLog = s.auditLog[:n] })
	return nil
}

// AuditLogs returns a copy of every appended entry in append order.
func (s *Store) AuditLogs() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, len(s.auditLog))
	for i, e := range s.auditLog {
		out[i] = *e
	}
	return out
}

func (s *Store) FindBuyerRequest(ctx context.Context, id string) (*leads.BuyerRequest, error) {
	defer s.rlock(ctx)()
	br, ok := s.requests[id]
	if !ok {
		return nil, leads.ErrNotFound
	}
	cp := *br
	return &cp, nil
}

func (s *Store) ListBuyerRequests(ctx context.Context, filter leads.RequestFilter) ([]*leads.BuyerRequest, error) {
	defer s.rlock(ctx)()
	out := make([]*leads.BuyerRequest, 0, len(s.requests))
	for _, br := range s.requests {
		if filter.BuyerID != "" && br.BuyerID != filter.BuyerID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, br.Status) {
			continue
		}
		cp := *br
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateBuyerRequest(ctx context.Context, br *leads.BuyerRequest) error {
	t, unlock := s.lock(ctx)
	defer unlock()
	if br.Status == "" {
		br.Status = leads.RequestOpen
	}
	now := s.now().UTC()
	if br.CreatedAt.IsZero() {
		br.CreatedAt = now
	}
	br.UpdatedAt = now
	cp := *br
	s.requests[br.ID] = &cp
	t.onRollback(func() { delete(s.requests, br.ID) })
	return nil
}

func (s *Store) FindClaim(ctx context.Context, id string) (*leads.Claim, error) {
	defer s.rlock(ctx)()
	c, ok := s.claims[id]
	if !ok {
		return nil, leads.ErrNotFound
	}
	return cloneClaim(c), nil
}

func (s *Store) ListClaims(ctx context.Context, filter leads.ClaimFilter) ([]*leads.Claim, error) {
	defer s.rlock(ctx)()
	var out []*leads.Claim
	for _, c := range s.claims {
		if filter.AgentID != "" && c.AgentID != filter.AgentID {
			continue
		}
		if filter.BuyerRequestID != "" && c.BuyerRequestID != filter.BuyerRequestID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if !filter.CreatedAfter.IsZero() && !c.CreatedAt.After(filter.CreatedAfter) {
			continue
		}
		out = append(out, cloneClaim(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateClaim(ctx context.Context, c *leads.Claim) error {
	t, unlock := s.lock(ctx)
	defer unlock()
	br, ok := s.requests[c.BuyerRequestID]
	if !ok {
		return leads.ErrNotFound
	}
	for _, existing := range s.claims {
		if existing.BuyerRequestID == c.BuyerRequestID && leads.IsActive(existing, c.CreatedAt) {
			return leads.ErrAlreadyClaimed
		}
	}
	prev := *br
	s.claims[c.ID] = cloneClaim(c)
	br.Status = leads.RequestClaimed
	br.UpdatedAt = c.CreatedAt
	t.onRollback(func() {
		delete(s.claims, c.ID)
		*br = prev
	})
	return nil
}

// UpdateClaimStatus only moves a claim that is still active at at; anything
// else reports leads.ErrClaimNotActive.
func (s *Store) UpdateClaimStatus(ctx context.Context, id string, status leads.ClaimStatus, at time.Time) (*leads.Claim, error) {
	t, unlock := s.lock(ctx)
	defer unlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, leads.ErrNotFound
	}
	if !leads.IsActive(c, at) {
		return nil, leads.ErrClaimNotActive
	}
	prev := cloneClaim(c)
	t.onRollback(func() { s.claims[id] = prev })
	c.Status = status
	if status == leads.ClaimReleased {
		rt := at
		c.ReleasedAt = &rt
		if br, ok := s.requests[c.BuyerRequestID]; ok && br.Status == leads.RequestClaimed {
			prevReq := *br
			t.onRollback(func() { *br = prevReq })
			br.Status = leads.RequestOpen
			br.UpdatedAt = at
		}
	}
	return cloneClaim(c), nil
}

func hasStatus(list []leads.RequestStatus, st leads.RequestStatus) bool {
	for _, v := range list {
		if v == st {
			return true
		}
	}
	return false
}

func cloneUser(u *auth.User) *auth.User {
	cp := *u
	cp.Roles = append([]auth.Role(nil), u.Roles...)
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}

func cloneClaim(c *leads.Claim) *leads.Claim {
	cp := *c
	if c.ReleasedAt != nil {
		t := *c.ReleasedAt
		cp.ReleasedAt = &t
	}
	return &cp
}
