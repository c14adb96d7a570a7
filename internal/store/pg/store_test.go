package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatecrm.org/internal/audit"
	"estatecrm.org/internal/auth"
	"estatecrm.org/internal/leads"
)

var fixedNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := New(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

var userCols = []string{"id", "email", "password_hash", "first_name", "last_name", "phone", "roles",
	"organization_id", "is_active", "last_login_at", "created_at", "updated_at"}

func TestFindUserByID(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("select (.+) from users where id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			id.String(), "agent@example.com", "hash", "Ann", "Agent", nil, "{CORP_AGENT,BUYER}",
			"org-1", true, nil, fixedNow, fixedNow,
		))

	u, err := s.FindUserByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, []auth.Role{auth.RoleCorporateAgent, auth.RoleBuyer}, u.Roles)
	assert.Equal(t, "org-1", u.OrganizationID)
	assert.Nil(t, u.Phone)
	assert.Nil(t, u.LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserByEmailNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select (.+) from users where lower\\(email\\) = lower\\(\\$1\\)").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := s.FindUserByEmail(context.Background(), " nobody@example.com ")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := s.CreateUser(context.Background(), &auth.User{
		ID:    uuid.New(),
		Email: "dup@example.com",
		Roles: []auth.Role{auth.RoleBuyer},
	})
	assert.ErrorIs(t, err, auth.ErrUserExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserBuildsPartialSet(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	active := false
	mock.ExpectQuery(regexp.QuoteMeta("update users set updated_at = $1, is_active = $2 where id = $3 returning")).
		WithArgs(fixedNow, false, id).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			id.String(), "x@example.com", "hash", "X", "Y", "0501234567", "{SELLER}",
			nil, false, fixedNow, fixedNow, fixedNow,
		))

	u, err := s.UpdateUser(context.Background(), id, auth.UserUpdate{IsActive: &active})
	require.NoError(t, err)
	assert.False(t, u.IsActive)
	require.NotNil(t, u.Phone)
	assert.Equal(t, "0501234567", *u.Phone)
	require.NotNil(t, u.LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var claimCols = []string{"id", "agent_id", "buyer_request_id", "status", "created_at", "expires_at", "released_at", "notes"}

func TestCreateClaimMarksRequestClaimed(t *testing.T) {
	s, mock := newMockStore(t)
	c := &leads.Claim{
		ID:             "c-1",
		AgentID:        "agent-1",
		BuyerRequestID: "br-1",
		Status:         leads.ClaimActive,
		CreatedAt:      fixedNow,
		ExpiresAt:      fixedNow.Add(leads.ClaimTTL),
	}
	mock.ExpectBegin()
	mock.ExpectQuery("select status from buyer_requests where id = \\$1 for update").
		WithArgs("br-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("OPEN"))
	mock.ExpectQuery("select exists").
		WithArgs("br-1", "ACTIVE", fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("insert into claims").
		WithArgs("c-1", "agent-1", "br-1", "ACTIVE", fixedNow, c.ExpiresAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update buyer_requests set status = \\$1").
		WithArgs("CLAIMED", fixedNow, "br-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.CreateClaim(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateClaimRejectsActiveClaim(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select status from buyer_requests").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CLAIMED"))
	mock.ExpectQuery("select exists").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := s.CreateClaim(context.Background(), &leads.Claim{ID: "c-2", BuyerRequestID: "br-1", CreatedAt: fixedNow})
	assert.ErrorIs(t, err, leads.ErrAlreadyClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateClaimUnknownRequest(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select status from buyer_requests").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	err := s.CreateClaim(context.Background(), &leads.Claim{ID: "c-3", BuyerRequestID: "missing"})
	assert.ErrorIs(t, err, leads.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseClaimReopensRequest(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("update claims set status = \\$1").
		WithArgs("RELEASED", sqlmock.AnyArg(), "c-1", "ACTIVE", fixedNow).
		WillReturnRows(sqlmock.NewRows(claimCols).AddRow(
			"c-1", "agent-1", "br-1", "RELEASED", fixedNow.Add(-time.Hour), fixedNow.Add(71*time.Hour), fixedNow, nil,
		))
	mock.ExpectExec("update buyer_requests set status = \\$1").
		WithArgs("OPEN", fixedNow, "br-1", "CLAIMED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, err := s.UpdateClaimStatus(context.Background(), "c-1", leads.ClaimReleased, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, leads.ClaimReleased, c.Status)
	require.NotNil(t, c.ReleasedAt)
	assert.True(t, fixedNow.Equal(*c.ReleasedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseClaimTwiceReportsNotActive(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("where id = $3 and status = $4 and expires_at > $5")).
		WithArgs("RELEASED", sqlmock.AnyArg(), "c-1", "ACTIVE", fixedNow).
		WillReturnRows(sqlmock.NewRows(claimCols))
	mock.ExpectQuery(regexp.QuoteMeta("select exists(select 1 from claims where id = $1)")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := s.UpdateClaimStatus(context.Background(), "c-1", leads.ClaimReleased, fixedNow)
	assert.ErrorIs(t, err, leads.ErrClaimNotActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseUnknownClaim(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("update claims").WillReturnRows(sqlmock.NewRows(claimCols))
	mock.ExpectQuery("select exists").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := s.UpdateClaimStatus(context.Background(), "missing", leads.ClaimReleased, fixedNow)
	assert.ErrorIs(t, err, leads.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxCommitsUserAndAudit(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := s.CreateUser(ctx, &auth.User{ID: uuid.New(), Email: "new@example.com"}); err != nil {
			return err
		}
		return s.CreateAuditLog(ctx, &audit.Entry{ID: "01J", Action: audit.ActionCreate, Entity: "user", CreatedAt: fixedNow})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRollsBackWhenAuditFails(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into audit_logs").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := s.CreateUser(ctx, &auth.User{ID: uuid.New(), Email: "new@example.com"}); err != nil {
			return err
		}
		return s.CreateAuditLog(ctx, &audit.Entry{ID: "01J", Action: audit.ActionCreate, Entity: "user", CreatedAt: fixedNow})
	})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxNestedJoinsOuter(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		return s.RunInTx(ctx, func(ctx context.Context) error {
			return s.CreateAuditLog(ctx, &audit.Entry{ID: "01J", Action: audit.ActionLogin, Entity: "user", CreatedAt: fixedNow})
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClaimsFilters(t *testing.T) {
	s, mock := newMockStore(t)
	after := fixedNow.Add(-24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("from claims where agent_id = $1 and buyer_request_id = $2 and status = $3 and created_at > $4 order by created_at")).
		WithArgs("agent-1", "br-1", "ACTIVE", after).
		WillReturnRows(sqlmock.NewRows(claimCols).AddRow(
			"c-1", "agent-1", "br-1", "ACTIVE", fixedNow, fixedNow.Add(leads.ClaimTTL), nil, "hot lead",
		))

	claims, err := s.ListClaims(context.Background(), leads.ClaimFilter{
		AgentID:        "agent-1",
		BuyerRequestID: "br-1",
		Status:         leads.ClaimActive,
		CreatedAfter:   after,
	})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	require.NotNil(t, claims[0].Notes)
	assert.Equal(t, "hot lead", *claims[0].Notes)
	assert.Nil(t, claims[0].ReleasedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBuyerRequestContact(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("select (.+) from buyer_requests where id = \\$1").
		WithArgs("br-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "buyer_id", "criteria", "contact_name", "contact_phone",
			"contact_email", "status", "created_at", "updated_at"}).AddRow(
			"br-1", "buyer-1", []byte(`{"city":"Haifa"}`), "Dana", "0512345678", nil, "OPEN", fixedNow, fixedNow,
		))

	br, err := s.FindBuyerRequest(context.Background(), "br-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"city":"Haifa"}`, string(br.Criteria))
	assert.Equal(t, "0512345678", *br.Contact.Phone)
	assert.Nil(t, br.Contact.Email)
	assert.Equal(t, leads.RequestOpen, br.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuditLog(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("insert into audit_logs").
		WithArgs("01J", "admin-1", audit.ActionImpersonate, "user", "u-2", nil, []byte(`{"impersonatedEmail":"a@b.co"}`),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateAuditLog(context.Background(), &audit.Entry{
		ID:        "01J",
		UserID:    "admin-1",
		Action:    audit.ActionImpersonate,
		Entity:    "user",
		EntityID:  "u-2",
		After:     []byte(`{"impersonatedEmail":"a@b.co"}`),
		CreatedAt: fixedNow,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
