package leads

import (
	"fmt"
	"time"
)

// RateLimitResult is the answer to "may this agent claim this request now".
// A denial is an ordinary value, not an error.
type RateLimitResult struct {
	CanClaim bool
	Reason   string
	WaitTime time.Duration
	// RetryAt is the evaluation instant plus WaitTime. Zero when CanClaim.
	RetryAt time.Time
}

func deny(reason string, until, now time.Time) RateLimitResult {
	return RateLimitResult{Reason: reason, WaitTime: until.Sub(now), RetryAt: until}
}

// WaitSeconds rounds WaitTime up to whole seconds for API payloads.
func (r RateLimitResult) WaitSeconds() int64 {
	if r.WaitTime <= 0 {
		return 0
	}
	secs := int64(r.WaitTime / time.Second)
	if r.WaitTime%time.Second != 0 {
		secs++
	}
	return secs
}

// claimHistory is the persisted state the limits are evaluated against.
type claimHistory struct {
	agentActive    []*Claim // stored ACTIVE claims held by the agent
	requestRecent  []*Claim // claims on the request created within attemptWindow
	agentOnRequest []*Claim // all claims by the agent on the request
}

func evaluateRateLimit(h claimHistory, now time.Time) RateLimitResult {
	var (
		active      int
		firstExpiry time.Time
	)
	for _, c := range h.agentActive {
		if !IsActive(c, now) {
			continue
		}
		active++
		if firstExpiry.IsZero() || c.ExpiresAt.Before(firstExpiry) {
			firstExpiry = c.ExpiresAt
		}
	}
	if active >= MaxActiveClaimsPerAgent {
		return deny(fmt.Sprintf("Maximum of %d active claims reached", MaxActiveClaimsPerAgent), firstExpiry, now)
	}

	var (
		attempts int
		oldest   time.Time
	)
	for _, c := range h.requestRecent {
		if now.Sub(c.CreatedAt) >= attemptWindow {
			continue
		}
		attempts++
		if oldest.IsZero() || c.CreatedAt.Before(oldest) {
			oldest = c.CreatedAt
		}
	}
	if attempts >= MaxClaimAttemptsPerDay {
		return deny(fmt.Sprintf("Buyer request reached %d claim attempts in 24 hours", MaxClaimAttemptsPerDay),
			oldest.Add(attemptWindow), now)
	}

	var lastEnded time.Time
	for _, c := range h.agentOnRequest {
		if IsActive(c, now) {
			continue
		}
		if end := endedAt(c); end.After(lastEnded) {
			lastEnded = end
		}
	}
	if !lastEnded.IsZero() && now.Before(lastEnded.Add(ReclaimCooldown)) {
		return deny("Cooldown period active for this buyer request", lastEnded.Add(ReclaimCooldown), now)
	}

	return RateLimitResult{CanClaim: true}
}
