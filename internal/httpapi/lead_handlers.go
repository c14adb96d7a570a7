package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"estatecrm.org/internal/leads"
)

type claimRequest struct {
	Notes *string `json:"notes"`
}

type rateLimitResponse struct {
	Success  bool   `json:"success"`
	CanClaim bool   `json:"canClaim"`
	Reason   string `json:"reason,omitempty"`
	WaitTime int64  `json:"waitTime,omitempty"`
	RetryAt  string `json:"retryAt,omitempty"`
}

func rateLimitBody(res leads.RateLimitResult) rateLimitResponse {
	body := rateLimitResponse{
		Success:  res.CanClaim,
		CanClaim: res.CanClaim,
		Reason:   res.Reason,
		WaitTime: res.WaitSeconds(),
	}
	if !res.CanClaim && !res.RetryAt.IsZero() {
		body.RetryAt = res.RetryAt.UTC().Format(time.RFC3339)
	}
	return body
}

func (a *API) handlePool(w http.ResponseWriter, r *http.Request) {
	views, err := a.leads.Pool(r.Context(), identity(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "buyerRequests": views})
}

func (a *API) handleViewRequest(w http.ResponseWriter, r *http.Request) {
	view, err := a.leads.View(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "buyerRequest": view})
}

func (a *API) handleEligibility(w http.ResponseWriter, r *http.Request) {
	res, err := a.leads.Eligibility(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rateLimitBody(res))
}

func (a *API) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	claim, res, err := a.leads.Claim(r.Context(), identity(r), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !res.CanClaim {
		if secs := res.WaitSeconds(); secs > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		}
		writeJSON(w, http.StatusTooManyRequests, rateLimitBody(res))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "claim": claim})
}

func (a *API) handleRelease(w http.ResponseWriter, r *http.Request) {
	claim, err := a.leads.Release(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "claim": claim})
}

func (a *API) handleMyClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := a.leads.ActiveClaims(r.Context(), identity(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if claims == nil {
		claims = []*leads.Claim{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "claims": claims})
}
