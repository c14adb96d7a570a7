package leads

import (
	"encoding/json"
	"time"

	"estatecrm.org/internal/contact"
)

// ClaimStatus is the stored status of a claim. The effective status also
// depends on the clock; see IsActive.
type ClaimStatus string

const (
	ClaimActive   ClaimStatus = "ACTIVE"
	ClaimExpired  ClaimStatus = "EXPIRED"
	ClaimReleased ClaimStatus = "RELEASED"
)

// RequestStatus is the stored status of a buyer request.
type RequestStatus string

const (
	RequestOpen    RequestStatus = "OPEN"
	RequestClaimed RequestStatus = "CLAIMED"
	RequestClosed  RequestStatus = "CLOSED"
)

// Claim is an agent's temporary exclusive right to work a buyer request.
type Claim struct {
	ID             string      `json:"id"`
	AgentID        string      `json:"agentId"`
	BuyerRequestID string      `json:"buyerRequestId"`
	Status         ClaimStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
	ExpiresAt      time.Time   `json:"expiresAt"`
	ReleasedAt     *time.Time  `json:"releasedAt,omitempty"`
	Notes          *string     `json:"notes,omitempty"`
}

// BuyerRequest is a prospective buyer's search criteria and contact block.
type BuyerRequest struct {
	ID        string          `json:"id"`
	BuyerID   string          `json:"buyerId"`
	Criteria  json.RawMessage `json:"criteria,omitempty"`
	Contact   contact.Contact `json:"contact"`
	Status    RequestStatus   `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// BuyerRequestView is what a caller receives: the effective status and either
// the full or the masked contact block.
type BuyerRequestView struct {
	ID            string          `json:"id"`
	BuyerID       string          `json:"buyerId"`
	Criteria      json.RawMessage `json:"criteria,omitempty"`
	Contact       contact.Contact `json:"contact"`
	ContactMasked bool            `json:"contactMasked"`
	Status        RequestStatus   `json:"status"`
	ActiveClaim   *Claim          `json:"activeClaim,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}
