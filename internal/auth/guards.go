package auth

// The guard family is pure: each check reads the attached identity and its
// arguments, and returns nil or the denial that terminates the request.

// RequireAuth fails with ErrUnauthenticated when no identity is attached.
func RequireAuth(id *Identity) error {
	if id == nil {
		return ErrUnauthenticated
	}
	return nil
}

// RequireRole passes when the identity holds at least one of allowed.
func RequireRole(id *Identity, allowed ...Role) error {
	if err := RequireAuth(id); err != nil {
		return err
	}
	if HasAnyRole(id.Roles, allowed...) {
		return nil
	}
	return &DeniedError{
		Reason:   "Insufficient permissions",
		Required: RoleStrings(allowed),
		Current:  RoleStrings(id.Roles),
	}
}

// RequirePermission passes when any identity role maps to perm.
func RequirePermission(id *Identity, perm string) error {
	if err := RequireAuth(id); err != nil {
		return err
	}
	if HasPermission(id.Roles, perm) {
		return nil
	}
	return &DeniedError{
		Reason:   "Insufficient permissions",
		Required: []string{perm},
		Current:  RoleStrings(id.Roles),
	}
}

// RequireOrganization passes when the identity belongs to an organization.
func RequireOrganization(id *Identity) error {
	if err := RequireAuth(id); err != nil {
		return err
	}
	if id.OrganizationID != "" {
		return nil
	}
	return &DeniedError{Reason: "Organization membership required"}
}

// CanAccessOrganization lets platform admins through and otherwise requires
// the identity's organization to equal targetOrgID.
func CanAccessOrganization(id *Identity, targetOrgID string) error {
	if err := RequireAuth(id); err != nil {
		return err
	}
	if IsPlatformAdmin(id.Roles) {
		return nil
	}
	if id.OrganizationID != "" && id.OrganizationID == targetOrgID {
		return nil
	}
	return &DeniedError{Reason: "Access denied to this organization"}
}

// RequireOwnership passes for platform admins and for the resource owner.
func RequireOwnership(id *Identity, ownerID string) error {
	if err := RequireAuth(id); err != nil {
		return err
	}
	if IsPlatformAdmin(id.Roles) || (ownerID != "" && id.ID == ownerID) {
		return nil
	}
	return &DeniedError{Reason: "Access denied to this resource"}
}
