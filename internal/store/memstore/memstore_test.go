package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatecrm.org/internal/audit"
	"estatecrm.org/internal/auth"
	"estatecrm.org/internal/leads"
)

var t0 = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRunInTxRevertsEveryWrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	existing := &auth.User{ID: uuid.New(), Email: "old@crm.test", Roles: []auth.Role{auth.RoleBuyer}, IsActive: true}
	require.NoError(t, s.CreateUser(ctx, existing))
	require.NoError(t, s.CreateAuditLog(ctx, &audit.Entry{ID: "a-1", Action: audit.ActionCreate}))

	fresh := &auth.User{ID: uuid.New(), Email: "New@crm.test"}
	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.CreateUser(ctx, fresh))
		_, err := s.UpdateUser(ctx, existing.ID, auth.UserUpdate{Roles: []auth.Role{auth.RoleSeller}})
		require.NoError(t, err)
		require.NoError(t, s.CreateAuditLog(ctx, &audit.Entry{ID: "a-2", Action: audit.ActionUpdate}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.FindUserByEmail(ctx, "new@crm.test")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	u, err := s.FindUserByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, []auth.Role{auth.RoleBuyer}, u.Roles)
	require.Len(t, s.AuditLogs(), 1)
	assert.Equal(t, "a-1", s.AuditLogs()[0].ID)

	require.NoError(t, s.CreateUser(ctx, fresh))
}

func TestRunInTxCommitsAndNests(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := uuid.New()
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.CreateUser(ctx, &auth.User{ID: id, Email: "a@crm.test"}); err != nil {
			return err
		}
		return s.RunInTx(ctx, func(ctx context.Context) error {
			return s.CreateAuditLog(ctx, &audit.Entry{ID: "a-1", Action: audit.ActionCreate})
		})
	})
	require.NoError(t, err)
	_, err = s.FindUserByID(ctx, id)
	assert.NoError(t, err)
	assert.Len(t, s.AuditLogs(), 1)
}

func TestUpdateClaimStatusOnlyMovesActiveClaims(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateBuyerRequest(ctx, &leads.BuyerRequest{ID: "br-1", BuyerID: "b-1"}))
	require.NoError(t, s.CreateClaim(ctx, &leads.Claim{
		ID: "c-1", AgentID: "ag-1", BuyerRequestID: "br-1",
		Status: leads.ClaimActive, CreatedAt: t0, ExpiresAt: t0.Add(leads.ClaimTTL),
	}))

	c, err := s.UpdateClaimStatus(ctx, "c-1", leads.ClaimReleased, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, leads.ClaimReleased, c.Status)
	br, err := s.FindBuyerRequest(ctx, "br-1")
	require.NoError(t, err)
	assert.Equal(t, leads.RequestOpen, br.Status)

	_, err = s.UpdateClaimStatus(ctx, "c-1", leads.ClaimReleased, t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, leads.ErrClaimNotActive)
	c, err = s.FindClaim(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, c.ReleasedAt.Equal(t0.Add(time.Hour)))

	_, err = s.UpdateClaimStatus(ctx, "missing", leads.ClaimReleased, t0)
	assert.ErrorIs(t, err, leads.ErrNotFound)
}

func TestUpdateClaimStatusRejectsLapsedClaim(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateBuyerRequest(ctx, &leads.BuyerRequest{ID: "br-1", BuyerID: "b-1"}))
	require.NoError(t, s.CreateClaim(ctx, &leads.Claim{
		ID: "c-1", AgentID: "ag-1", BuyerRequestID: "br-1",
		Status: leads.ClaimActive, CreatedAt: t0, ExpiresAt: t0.Add(leads.ClaimTTL),
	}))

	_, err := s.UpdateClaimStatus(ctx, "c-1", leads.ClaimReleased, t0.Add(leads.ClaimTTL))
	assert.ErrorIs(t, err, leads.ErrClaimNotActive)
}
