// Package contact redacts buyer contact details for callers that have not
// earned full visibility.
package contact

import (
	"regexp"

	"estatecrm.org/internal/auth"
)

var (
	phonePattern = regexp.MustCompile(`(\d{2})\d{3}(\d{4})`)
	emailPattern = regexp.MustCompile(`(.{2}).*(@.*)`)
)

// Contact is a buyer's contact block. Nil fields are absent, not empty.
type Contact struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
	Email *string `json:"email"`
}

// CanViewFullContact reports whether the caller may see unredacted details:
// platform admins always, agents only while holding an active claim.
func CanViewFullContact(roles []auth.Role, hasActiveClaim bool) bool {
	if auth.IsPlatformAdmin(roles) {
		return true
	}
	return auth.IsAgent(roles) && hasActiveClaim
}

// Mask returns c unchanged for callers passing CanViewFullContact and a
// redacted copy otherwise. hasActiveClaim must come from leads.IsActive.
func Mask(c Contact, roles []auth.Role, hasActiveClaim bool) Contact {
	if CanViewFullContact(roles, hasActiveClaim) {
		return c
	}
	return Contact{
		Name:  c.Name,
		Phone: maskField(c.Phone, MaskPhone),
		Email: maskField(c.Email, MaskEmail),
	}
}

// MaskPhone keeps the first two and last four digits of the first run of
// nine digits and replaces the middle three with asterisks.
func MaskPhone(phone string) string {
	loc := phonePattern.FindStringSubmatchIndex(phone)
	if loc == nil {
		return phone
	}
	return phone[:loc[0]] + phone[loc[2]:loc[3]] + "***" + phone[loc[4]:loc[5]] + phone[loc[1]:]
}

// MaskEmail keeps the first two characters and the domain.
func MaskEmail(email string) string {
	return emailPattern.ReplaceAllString(email, "$1***$2")
}

func maskField(v *string, fn func(string) string) *string {
	if v == nil {
		return nil
	}
	masked := fn(*v)
	return &masked
}
