package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"estatecrm.org/internal/ids"
	"estatecrm.org/internal/obs"
)

// Actions recorded by the authorization core.
const (
	ActionImpersonate = "IMPERSONATE"
	ActionLogin       = "LOGIN"
	ActionClaim       = "CLAIM"
	ActionRelease     = "RELEASE"
	ActionCreate      = "CREATE"
	ActionUpdate      = "UPDATE"
	ActionDelete      = "DELETE"
)

// Entry is an immutable record of a sensitive action.
type Entry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entityId"`
	Before    json.RawMessage `json:"beforeJson,omitempty"`
	After     json.RawMessage `json:"afterJson,omitempty"`
	IPAddress string          `json:"ipAddress,omitempty"`
	UserAgent string          `json:"userAgent,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store appends entries. Implementations never update or delete rows.
type Store interface {
	CreateAuditLog(ctx context.Context, entry *Entry) error
}

// RequestMeta is the caller metadata copied onto every entry.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

type ctxKey struct{}

// WithRequestMeta attaches request metadata to the context for audit logging.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, ctxKey{}, meta)
}

// RequestMetaFromContext returns the metadata attached by WithRequestMeta.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	meta, _ := ctx.Value(ctxKey{}).(RequestMeta)
	return meta
}

// Snapshot marshals v for Before/After columns; nil stays nil.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Recorder persists entries and mirrors them to the structured log.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder wires a recorder over store.
func NewRecorder(store Store) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	return &Recorder{store: store, now: time.Now}, nil
}

// Record fills identifiers and request metadata, then appends entry. The
// append error is returned so callers can refuse to complete the action.
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	entry.Action = strings.TrimSpace(entry.Action)
	if entry.Action == "" {
		return errors.New("audit action is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if entry.ID == "" {
		entry.ID = ids.NewAt(entry.CreatedAt)
	}
	meta := RequestMetaFromContext(ctx)
	if entry.RequestID == "" {
		entry.RequestID = meta.RequestID
	}
	if entry.IPAddress == "" {
		entry.IPAddress = meta.IPAddress
	}
	if entry.UserAgent == "" {
		entry.UserAgent = meta.UserAgent
	}
	if err := r.store.CreateAuditLog(ctx, entry); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	obs.Logger().WithFields(logrus.Fields{
		"type":       "audit",
		"event":      entry.Action,
		"entity":     entry.Entity,
		"entity_id":  entry.EntityID,
		"user_id":    entry.UserID,
		"request_id": entry.RequestID,
	}).Info("audit")
	return nil
}
