package config

import (
	"errors"
	"fmt"
)

// MinSecretLength is the shortest signing secret accepted outside development.
const MinSecretLength = 32

var knownWeakSecrets = []string{
	"local-dev-secret-not-for-production",
	"changeme",
	"secret",
	"password",
	"test",
	"dev",
	"development",
}

// ErrSecretRequired is returned when no signing secret is configured.
var ErrSecretRequired = errors.New("CRM_AUTH_SECRET is required")

// ValidateSecret rejects empty secrets always, and weak or short ones outside
// development.
func ValidateSecret(secret string, isDev bool) error {
	if secret == "" {
		return ErrSecretRequired
	}
	if isDev {
		return nil
	}
	for _, weak := range knownWeakSecrets {
		if secret == weak {
			return errors.New("default/weak auth secret not allowed in production environment")
		}
	}
	if len(secret) < MinSecretLength {
		return fmt.Errorf("auth secret must be at least %d characters (got %d)", MinSecretLength, len(secret))
	}
	return nil
}
