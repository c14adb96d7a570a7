package cmd

import (
	"context"
	"errors"
	"fmt"

	"estatecrm.org/internal/audit"
	"estatecrm.org/internal/auth"
	"estatecrm.org/internal/config"
	"estatecrm.org/internal/leads"
	"estatecrm.org/internal/obs"
	"estatecrm.org/internal/store/memstore"
	"estatecrm.org/internal/store/pg"
)

type dataStore interface {
	auth.UserStore
	audit.Store
	leads.Store
	Ping(ctx context.Context) error
}

type services struct {
	store dataStore
	auth  *auth.Service
	leads *leads.Service
	close func() error
}

// openServices wires the system of record and the domain services. Without a
// DSN an in-memory store is used, which is only allowed in development.
func openServices(c config.Config) (*services, error) {
	var (
		st      dataStore
		closeFn = func() error { return nil }
	)
	switch {
	case c.DatabaseDSN != "":
		pgStore, err := pg.Open(c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		st, closeFn = pgStore, pgStore.Close
	case c.IsDevelopment():
		obs.Logger().Warn("no database configured, using in-memory store")
		st = memstore.New()
	default:
		return nil, errors.New("database DSN is required outside development (env: CRM_PG_DSN)")
	}

	tokens, err := auth.NewTokenService(c.Auth.Secret, auth.WithIssuer(c.Auth.Issuer))
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	recorder, err := audit.NewRecorder(st)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	authSvc, err := auth.NewService(st, tokens, recorder)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	leadSvc, err := leads.NewService(st, recorder)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	return &services{store: st, auth: authSvc, leads: leadSvc, close: closeFn}, nil
}
