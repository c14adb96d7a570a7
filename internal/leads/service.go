package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"estatecrm.org/internal/audit"
	"estatecrm.org/internal/auth"
	"estatecrm.org/internal/contact"
	"estatecrm.org/internal/ids"
	"estatecrm.org/internal/obs"
)

// AuditRecorder appends audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// Service runs the claim and release workflow and produces masked views of
// buyer requests.
type Service struct {
	store Store
	audit AuditRecorder
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service.
func NewService(store Store, recorder AuditRecorder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("leads: store is required")
	}
	if recorder == nil {
		return nil, errors.New("leads: audit recorder is required")
	}
	s := &Service{store: store, audit: recorder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckClaimRateLimit evaluates the per-agent and per-request limits at now.
func (s *Service) CheckClaimRateLimit(ctx context.Context, agentID, buyerRequestID string) (RateLimitResult, error) {
	now := s.now().UTC()
	var (
		h   claimHistory
		err error
	)
	if h.agentActive, err = s.store.ListClaims(ctx, ClaimFilter{AgentID: agentID, Status: ClaimActive}); err != nil {
		return RateLimitResult{}, fmt.Errorf("list agent claims: %w", err)
	}
	if h.requestRecent, err = s.store.ListClaims(ctx, ClaimFilter{BuyerRequestID: buyerRequestID, CreatedAfter: now.Add(-attemptWindow)}); err != nil {
		return RateLimitResult{}, fmt.Errorf("list request claims: %w", err)
	}
	if h.agentOnRequest, err = s.store.ListClaims(ctx, ClaimFilter{AgentID: agentID, BuyerRequestID: buyerRequestID}); err != nil {
		return RateLimitResult{}, fmt.Errorf("list agent request claims: %w", err)
	}
	return evaluateRateLimit(h, now), nil
}

// Eligibility reports whether actor could claim the buyer request right now
// without creating anything.
func (s *Service) Eligibility(ctx context.Context, actor *auth.Identity, buyerRequestID string) (RateLimitResult, error) {
	if actor == nil {
		return RateLimitResult{}, auth.ErrUnauthenticated
	}
	if !CanClaimBuyerRequest(actor.Roles) {
		return RateLimitResult{}, ErrClaimNotPermitted
	}
	if _, err := s.claimable(ctx, buyerRequestID); err != nil {
		return RateLimitResult{}, err
	}
	return s.CheckClaimRateLimit(ctx, actor.ID, buyerRequestID)
}

// Claim gives actor an exclusive 72 hour claim on the buyer request. A rate
// limit denial is returned as a result with CanClaim=false and a nil error.
func (s *Service) Claim(ctx context.Context, actor *auth.Identity, buyerRequestID string, notes *string) (*Claim, RateLimitResult, error) {
	if actor == nil {
		return nil, RateLimitResult{}, auth.ErrUnauthenticated
	}
	if !CanClaimBuyerRequest(actor.Roles) {
		obs.LeadClaim("claim", "forbidden")
		return nil, RateLimitResult{}, ErrClaimNotPermitted
	}
	br, err := s.claimable(ctx, buyerRequestID)
	if err != nil {
		obs.LeadClaim("claim", resultLabel(err))
		return nil, RateLimitResult{}, err
	}
	limit, err := s.CheckClaimRateLimit(ctx, actor.ID, br.ID)
	if err != nil {
		obs.LeadClaim("claim", "error")
		return nil, RateLimitResult{}, err
	}
	if !limit.CanClaim {
		obs.LeadClaim("claim", "rate_limited")
		return nil, limit, nil
	}

	now := s.now().UTC()
	c := &Claim{
		ID:             ids.NewAt(now),
		AgentID:        actor.ID,
		BuyerRequestID: br.ID,
		Status:         ClaimActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ClaimTTL),
		Notes:          trimNotes(notes),
	}
	if err := s.store.CreateClaim(ctx, c); err != nil {
		obs.LeadClaim("claim", resultLabel(err))
		return nil, RateLimitResult{}, err
	}
	obs.LeadClaim("claim", "ok")
	s.record(ctx, &audit.Entry{
		UserID:   actor.ID,
		Action:   audit.ActionClaim,
		Entity:   "claim",
		EntityID: c.ID,
		After:    audit.Snapshot(c),
	})
	return c, limit, nil
}

// claimable loads the buyer request and rejects closed or already claimed ones.
func (s *Service) claimable(ctx context.Context, buyerRequestID string) (*BuyerRequest, error) {
	br, err := s.store.FindBuyerRequest(ctx, strings.TrimSpace(buyerRequestID))
	if err != nil {
		return nil, err
	}
	if br.Status == RequestClosed {
		return nil, ErrRequestClosed
	}
	active, err := s.activeClaimFor(ctx, br.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrAlreadyClaimed
	}
	return br, nil
}

// Release ends an active claim early.
func (s *Service) Release(ctx context.Context, actor *auth.Identity, claimID string) (*Claim, error) {
	if actor == nil {
		return nil, auth.ErrUnauthenticated
	}
	c, err := s.store.FindClaim(ctx, strings.TrimSpace(claimID))
	if err != nil {
		obs.LeadClaim("release", resultLabel(err))
		return nil, err
	}
	if !CanReleaseClaim(actor.Roles, c.AgentID, actor.ID) {
		obs.LeadClaim("release", "forbidden")
		return nil, ErrReleaseNotPermitted
	}
	now := s.now().UTC()
	if !IsActive(c, now) {
		obs.LeadClaim("release", "conflict")
		return nil, ErrClaimNotActive
	}
	released, err := s.store.UpdateClaimStatus(ctx, c.ID, ClaimReleased, now)
	if err != nil {
		obs.LeadClaim("release", resultLabel(err))
		return nil, err
	}
	obs.LeadClaim("release", "ok")
	s.record(ctx, &audit.Entry{
		UserID:   actor.ID,
		Action:   audit.ActionRelease,
		Entity:   "claim",
		EntityID: c.ID,
		Before:   audit.Snapshot(c),
		After:    audit.Snapshot(released),
	})
	return released, nil
}

// View returns a single buyer request as actor may see it. Callers without
// pool access only see their own requests.
func (s *Service) View(ctx context.Context, actor *auth.Identity, buyerRequestID string) (*BuyerRequestView, error) {
	if actor == nil {
		return nil, auth.ErrUnauthenticated
	}
	br, err := s.store.FindBuyerRequest(ctx, strings.TrimSpace(buyerRequestID))
	if err != nil {
		return nil, err
	}
	if !auth.HasPermission(actor.Roles, auth.PermSearchBuyerPool) {
		if err := auth.RequireOwnership(actor, br.BuyerID); err != nil {
			return nil, err
		}
	}
	active, err := s.activeClaimFor(ctx, br.ID)
	if err != nil {
		return nil, err
	}
	return s.project(actor, br, active), nil
}

// Pool lists open and claimed buyer requests for agents and managers.
func (s *Service) Pool(ctx context.Context, actor *auth.Identity) ([]*BuyerRequestView, error) {
	if err := auth.RequirePermission(actor, auth.PermSearchBuyerPool); err != nil {
		return nil, err
	}
	requests, err := s.store.ListBuyerRequests(ctx, RequestFilter{Statuses: []RequestStatus{RequestOpen, RequestClaimed}})
	if err != nil {
		return nil, fmt.Errorf("list buyer requests: %w", err)
	}
	active, err := s.store.ListClaims(ctx, ClaimFilter{Status: ClaimActive})
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	now := s.now().UTC()
	byRequest := make(map[string]*Claim, len(active))
	for _, c := range active {
		if IsActive(c, now) {
			byRequest[c.BuyerRequestID] = c
		}
	}
	out := make([]*BuyerRequestView, 0, len(requests))
	for _, br := range requests {
		out = append(out, s.project(actor, br, byRequest[br.ID]))
	}
	return out, nil
}

// ActiveClaims lists the claims actor currently holds.
func (s *Service) ActiveClaims(ctx context.Context, actor *auth.Identity) ([]*Claim, error) {
	if actor == nil {
		return nil, auth.ErrUnauthenticated
	}
	claims, err := s.store.ListClaims(ctx, ClaimFilter{AgentID: actor.ID, Status: ClaimActive})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := claims[:0]
	for _, c := range claims {
		if IsActive(c, now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Service) activeClaimFor(ctx context.Context, buyerRequestID string) (*Claim, error) {
	claims, err := s.store.ListClaims(ctx, ClaimFilter{BuyerRequestID: buyerRequestID, Status: ClaimActive})
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	now := s.now().UTC()
	for _, c := range claims {
		if IsActive(c, now) {
			return c, nil
		}
	}
	return nil, nil
}

// project builds the caller's view. The contact block is unmasked only for
// admins and for the agent holding the active claim.
func (s *Service) project(actor *auth.Identity, br *BuyerRequest, active *Claim) *BuyerRequestView {
	holds := active != nil && active.AgentID == actor.ID
	masked := !contact.CanViewFullContact(actor.Roles, holds)
	status := br.Status
	if status == RequestClaimed && active == nil {
		status = RequestOpen
	}
	view := &BuyerRequestView{
		ID:            br.ID,
		BuyerID:       br.BuyerID,
		Criteria:      br.Criteria,
		Contact:       contact.Mask(br.Contact, actor.Roles, holds),
		ContactMasked: masked,
		Status:        status,
		CreatedAt:     br.CreatedAt,
	}
	if active != nil && (holds || auth.IsPlatformAdmin(actor.Roles) || auth.HasRole(actor.Roles, auth.RoleCorporateOwner)) {
		view.ActiveClaim = active
	}
	return view
}

func (s *Service) record(ctx context.Context, entry *audit.Entry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		obs.Logger().WithFields(logrus.Fields{
			"event":     entry.Action,
			"entity_id": entry.EntityID,
			"error":     err.Error(),
		}).Warn("audit append failed")
	}
}

func trimNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	v := strings.TrimSpace(*notes)
	if v == "" {
		return nil
	}
	return &v
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyClaimed), errors.Is(err, ErrRequestClosed), errors.Is(err, ErrClaimNotActive):
		return "conflict"
	default:
		return "error"
	}
}
