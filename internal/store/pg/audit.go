package pg

import (
	"context"
	"fmt"

	"estatecrm.org/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) CreateAuditLog(ctx context.Context, e *audit.Entry) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		insert into audit_logs (id, user_id, action, entity, entity_id, before_json, after_json,
			ip_address, user_agent, request_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, nullIfEmpty(e.UserID), e.Action, e.Entity, e.EntityID, jsonArg(e.Before), jsonArg(e.After),
		nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent), nullIfEmpty(e.RequestID), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
