package contact

import (
	"testing"

	"estatecrm.org/internal/auth"
)

func strPtr(s string) *string { return &s }

func TestMaskAdminSeesEverything(t *testing.T) {
	c := Contact{Name: strPtr("Dana"), Phone: strPtr("0512345678"), Email: strPtr("dana@example.com")}
	got := Mask(c, []auth.Role{auth.RolePlatformAdmin}, false)
	if *got.Phone != "0512345678" || *got.Email != "dana@example.com" {
		t.Fatalf("admin view was masked: %+v", got)
	}
}

func TestMaskBuyerShape(t *testing.T) {
	c := Contact{Phone: strPtr("0512345678"), Email: strPtr("ab@example.com")}
	got := Mask(c, []auth.Role{auth.RoleBuyer}, false)
	if *got.Phone != "05***45678" {
		t.Fatalf("phone = %q, want 05***45678", *got.Phone)
	}
	if *got.Email != "ab***@example.com" {
		t.Fatalf("email = %q, want ab***@example.com", *got.Email)
	}
}

func TestMaskAgentDependsOnClaim(t *testing.T) {
	c := Contact{Phone: strPtr("+972 0541234567"), Email: strPtr("buyer@example.com")}
	agent := []auth.Role{auth.RoleCorporateAgent}

	full := Mask(c, agent, true)
	if *full.Phone != *c.Phone || *full.Email != *c.Email {
		t.Fatalf("agent with active claim should see full contact: %+v", full)
	}

	masked := Mask(c, agent, false)
	if *masked.Phone != "+972 05***34567" {
		t.Fatalf("phone = %q", *masked.Phone)
	}
	if *masked.Email != "bu***@example.com" {
		t.Fatalf("email = %q", *masked.Email)
	}
}

func TestMaskKeepsAbsentFieldsNil(t *testing.T) {
	got := Mask(Contact{Name: strPtr("Noam")}, []auth.Role{auth.RoleSeller}, false)
	if got.Phone != nil || got.Email != nil {
		t.Fatalf("absent fields must stay nil: %+v", got)
	}
	if got.Name == nil || *got.Name != "Noam" {
		t.Fatalf("name should pass through: %+v", got)
	}
}

func TestMaskLeavesUnmatchedValues(t *testing.T) {
	if got := MaskPhone("12-34"); got != "12-34" {
		t.Fatalf("short phone changed: %q", got)
	}
	if got := MaskEmail("a@x.io"); got != "a@x.io" {
		t.Fatalf("short local part changed: %q", got)
	}
}

func TestCanViewFullContact(t *testing.T) {
	cases := []struct {
		name  string
		roles []auth.Role
		claim bool
		want  bool
	}{
		{"admin without claim", []auth.Role{auth.RolePlatformAdmin}, false, true},
		{"corp agent with claim", []auth.Role{auth.RoleCorporateAgent}, true, true},
		{"indie agent with claim", []auth.Role{auth.RoleIndependentAgent}, true, true},
		{"agent without claim", []auth.Role{auth.RoleIndependentAgent}, false, false},
		{"owner with claim flag", []auth.Role{auth.RoleCorporateOwner}, true, false},
		{"buyer", []auth.Role{auth.RoleBuyer}, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanViewFullContact(tc.roles, tc.claim); got != tc.want {
				t.Fatalf("CanViewFullContact = %v, want %v", got, tc.want)
			}
		})
	}
}
