package domain

import "strings"

const (
	ActionCreated   = "Created"
	ActionSubmitted = "Submitted"

	UnknownUserName = "Unknown"
	NoAssigneeLabel = "N/A"

	// Legacy role names. Only NormalizeRoles reads them.
	SuperAdminRoleName = "Super Admin"
	AdminRoleName      = "Admin"
	OfficerRoleName    = "Officer"
)

func AssignedAction(names []string) string {
	if len(names) == 0 {
		return "Assigned to " + NoAssigneeLabel
	}
	return "Assigned to " + strings.Join(names, ", ")
}

func StatusChangedAction(s Status) string {
	return "Status changed to " + string(s)
}

// NormalizeRoles fills Kind on roles imported without one, using the legacy
// names. Roles that already carry a kind are left alone.
func NormalizeRoles(roles []Role) ([]Role, bool) {
	changed := false
	out := make([]Role, len(roles))
	for i, r := range roles {
		if r.Kind == "" {
			if kind := kindForLegacyName(r.Name); kind != "" {
				r.Kind = kind
				changed = true
			}
		}
		out[i] = r
	}
	return out, changed
}

func kindForLegacyName(name string) RoleKind {
	switch name {
	case SuperAdminRoleName:
		return RoleKindSuperAdmin
	case AdminRoleName:
		return RoleKindAdmin
	case OfficerRoleName:
		return RoleKindOfficer
	default:
		return ""
	}
}

// ReservedRoleName reports whether name would collide with the protected role.
func ReservedRoleName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), SuperAdminRoleName)
}
