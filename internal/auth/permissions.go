package auth

const (
	PermManageUsers          = "manage_users"
	PermManageOrganizations  = "manage_organizations"
	PermManageOrganization   = "manage_organization"
	PermManageAgents         = "manage_agents"
	PermImpersonateUsers     = "impersonate_users"
	PermManageCMS            = "manage_cms"
	PermViewAuditLogs        = "view_audit_logs"
	PermViewReports          = "view_reports"
	PermViewAllLeads         = "view_all_leads"
	PermViewOrgLeads         = "view_org_leads"
	PermManageOwnLeads       = "manage_own_leads"
	PermManageProperties     = "manage_properties"
	PermManageDeals          = "manage_deals"
	PermSearchBuyerPool      = "search_buyer_pool"
	PermClaimBuyerRequests   = "claim_buyer_requests"
	PermReleaseAnyClaim      = "release_any_claim"
	PermViewFullContact      = "view_full_contact"
	PermCreateListing        = "create_property_listing"
	PermViewOwnListings      = "view_own_listings"
	PermCreateBuyerRequest   = "create_buyer_request"
	PermViewOwnBuyerRequests = "view_own_buyer_requests"
	PermManageOwnProfile     = "manage_own_profile"
)

// rolePermissions is curated per role; a role never inherits another role's list.
var rolePermissions = map[Role][]string{
	RolePlatformAdmin: {
		PermManageUsers,
		PermManageOrganizations,
		PermImpersonateUsers,
		PermManageCMS,
		PermViewAuditLogs,
		PermViewReports,
		PermViewAllLeads,
		PermManageProperties,
		PermManageDeals,
		PermSearchBuyerPool,
		PermReleaseAnyClaim,
		PermViewFullContact,
	},
	RoleCorporateOwner: {
		PermManageOrganization,
		PermManageAgents,
		PermViewReports,
		PermViewOrgLeads,
		PermManageProperties,
		PermManageDeals,
		PermSearchBuyerPool,
		PermReleaseAnyClaim,
	},
	RoleCorporateAgent: {
		PermManageOwnLeads,
		PermManageProperties,
		PermManageDeals,
		PermSearchBuyerPool,
		PermClaimBuyerRequests,
	},
	RoleIndependentAgent: {
		PermManageOwnLeads,
		PermManageProperties,
		PermManageDeals,
		PermViewReports,
		PermSearchBuyerPool,
		PermClaimBuyerRequests,
	},
	RoleSeller: {
		PermCreateListing,
		PermViewOwnListings,
		PermManageOwnProfile,
	},
	RoleBuyer: {
		PermCreateBuyerRequest,
		PermViewOwnBuyerRequests,
		PermManageOwnProfile,
	},
}

// PermissionsFor returns a copy of the permission list granted to role.
func PermissionsFor(role Role) []string {
	perms := rolePermissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether any of roles is granted perm.
func HasPermission(roles []Role, perm string) bool {
	for _, r := range roles {
		for _, p := range rolePermissions[r] {
			if p == perm {
				return true
			}
		}
	}
	return false
}

// EffectivePermissions is the deduplicated union of permissions across roles.
func EffectivePermissions(roles []Role) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range roles {
		for _, p := range rolePermissions[r] {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
