package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"estatecrm.org/internal/auth"
	"estatecrm.org/internal/config"
)

func TestOpenServicesIssuesSessionTTLTokens(t *testing.T) {
	t.Setenv("CRM_TOKEN_TTL", "1m")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Environment = "development"
	cfg.DatabaseDSN = ""
	cfg.Auth.Secret = strings.Repeat("s", config.MinSecretLength)

	svc, err := openServices(cfg)
	if err != nil {
		t.Fatalf("openServices: %v", err)
	}
	defer svc.close()

	before := time.Now()
	sess, err := svc.auth.Register(context.Background(), auth.RegisterInput{
		Email:     "seller@crm.test",
		Password:  "Passw0rd123",
		FirstName: "S",
		LastName:  "Eller",
		Roles:     []string{"SELLER"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	lifetime := sess.ExpiresAt.Sub(before)
	if lifetime < auth.SessionTTL-time.Minute || lifetime > auth.SessionTTL+time.Minute {
		t.Fatalf("token lifetime %v, want %v", lifetime, auth.SessionTTL)
	}
}
