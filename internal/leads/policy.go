package leads

import (
	"time"

	"estatecrm.org/internal/auth"
)

const (
	// MaxActiveClaimsPerAgent caps concurrently active claims held by one agent.
	MaxActiveClaimsPerAgent = 5
	// MaxClaimAttemptsPerDay caps claims created on one buyer request per trailing day.
	MaxClaimAttemptsPerDay = 3
	// ClaimTTL is how long a claim stays active after creation.
	ClaimTTL = 72 * time.Hour
	// ReclaimCooldown is the wait after release or expiry before the same
	// agent may claim the same buyer request again.
	ReclaimCooldown = 24 * time.Hour

	attemptWindow = 24 * time.Hour
)

// IsActive is the only definition of an active claim: stored ACTIVE and not
// yet past its expiry. Nothing sweeps expired claims.
func IsActive(c *Claim, now time.Time) bool {
	return c != nil && c.Status == ClaimActive && now.Before(c.ExpiresAt)
}

// endedAt is when a non-active claim stopped being active.
func endedAt(c *Claim) time.Time {
	if c.Status == ClaimReleased && c.ReleasedAt != nil {
		return *c.ReleasedAt
	}
	return c.ExpiresAt
}

// CanClaimBuyerRequest is true for corporate and independent agents only.
func CanClaimBuyerRequest(roles []auth.Role) bool {
	return auth.IsAgent(roles)
}

// CanReleaseClaim allows platform admins, the claiming agent, and any
// corporate owner.
//
// TODO: restrict corporate owners to claims held by agents of their own
// organization once product confirms the rule.
func CanReleaseClaim(roles []auth.Role, claimAgentID, callerID string) bool {
	if auth.IsPlatformAdmin(roles) {
		return true
	}
	if auth.IsAgent(roles) && claimAgentID != "" && claimAgentID == callerID {
		return true
	}
	return auth.HasRole(roles, auth.RoleCorporateOwner)
}
