package leads

import (
	"context"
	"time"
)

// ClaimFilter narrows ListClaims. Zero-valued fields do not filter.
type ClaimFilter struct {
	AgentID        string
	BuyerRequestID string
	Status         ClaimStatus
	CreatedAfter   time.Time
}

// RequestFilter narrows ListBuyerRequests.
type RequestFilter struct {
	Statuses []RequestStatus
	BuyerID  string
}

// Store is the slice of the system of record the claim workflow needs.
//
// CreateClaim inserts the claim and marks its buyer request CLAIMED in the
// same unit of work. UpdateClaimStatus to RELEASED stamps ReleasedAt and
// reopens the buyer request the same way. Lookups return ErrNotFound.
type Store interface {
	FindBuyerRequest(ctx context.Context, id string) (*BuyerRequest, error)
	ListBuyerRequests(ctx context.Context, filter RequestFilter) ([]*BuyerRequest, error)
	CreateBuyerRequest(ctx context.Context, br *BuyerRequest) error
	FindClaim(ctx context.Context, id string) (*Claim, error)
	ListClaims(ctx context.Context, filter ClaimFilter) ([]*Claim, error)
	CreateClaim(ctx context.Context, c *Claim) error
	UpdateClaimStatus(ctx context.Context, id string, status ClaimStatus, at time.Time) (*Claim, error)
}
