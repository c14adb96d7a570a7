package auth

import (
	"fmt"
	"strings"
)

// Role is one of the fixed platform roles. Roles are reference data and are
// never created at runtime.
type Role string

const (
	RolePlatformAdmin    Role = "PLATFORM_ADMIN"
	RoleCorporateOwner   Role = "CORP_OWNER"
	RoleCorporateAgent   Role = "CORP_AGENT"
	RoleIndependentAgent Role = "INDIV_AGENT"
	RoleSeller           Role = "SELLER"
	RoleBuyer            Role = "BUYER"
)

// AllRoles lists the closed role set in a stable order.
var AllRoles = []Role{
	RolePlatformAdmin,
	RoleCorporateOwner,
	RoleCorporateAgent,
	RoleIndependentAgent,
	RoleSeller,
	RoleBuyer,
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole normalizes case and surrounding whitespace.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
	return r, nil
}

// ParseRoles parses and deduplicates a role list, preserving first occurrence order.
func ParseRoles(raw []string) ([]Role, error) {
	out := make([]Role, 0, len(raw))
	for _, s := range raw {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return dedupeRoles(out), nil
}

// HasRole reports whether roles contains want.
func HasRole(roles []Role, want Role) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether roles and allowed intersect.
func HasAnyRole(roles []Role, allowed ...Role) bool {
	for _, a := range allowed {
		if HasRole(roles, a) {
			return true
		}
	}
	return false
}

// IsPlatformAdmin reports whether roles include the platform administrator.
func IsPlatformAdmin(roles []Role) bool {
	return HasRole(roles, RolePlatformAdmin)
}

// IsAgent reports whether roles include a corporate or independent agent.
func IsAgent(roles []Role) bool {
	return HasAnyRole(roles, RoleCorporateAgent, RoleIndependentAgent)
}

// RoleStrings converts roles for JSON payloads and token claims.
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func dedupeRoles(roles []Role) []Role {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[Role]struct{}, len(roles))
	normalized := make([]Role, 0, len(roles))
	for _, r := range roles {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		normalized = append(normalized, r)
	}
	return normalized
}
