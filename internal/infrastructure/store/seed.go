package store

import (
	"time"

	"filetrack/internal/domain"
)

const (
	seedSuperAdminRoleID = "role-super-admin"
	seedAdminRoleID      = "role-admin"
	seedOfficerRoleID    = "role-officer"

	// seedPassword is stored in the legacy plaintext field and replaced by a
	// bcrypt hash on each seeded user's first login.
	seedPassword = "password"
	seedCreator  = "Super Admin User"
)

func DefaultRoles() []domain.Role {
	return []domain.Role{
		{
			ID:          seedSuperAdminRoleID,
			Name:        domain.SuperAdminRoleName,
			Permissions: append([]domain.Permission(nil), domain.AllPermissions...),
			Kind:        domain.RoleKindSuperAdmin,
		},
		{
			ID:   seedAdminRoleID,
			Name: domain.AdminRoleName,
			Permissions: []domain.Permission{
				domain.PermManageUsers,
				domain.PermUploadFile,
				domain.PermForwardFile,
				domain.PermViewAllFiles,
			},
			Kind: domain.RoleKindAdmin,
		},
		{
			ID:          seedOfficerRoleID,
			Name:        domain.OfficerRoleName,
			Permissions: []domain.Permission{},
			Kind:        domain.RoleKindOfficer,
		},
	}
}

func DefaultUsers() []domain.User {
	return []domain.User{
		{ID: "user-1", Name: seedCreator, Username: "superadmin", LegacyPassword: seedPassword, RoleID: seedSuperAdminRoleID},
		{ID: "user-2", Name: "Officer A", Username: "officerA", LegacyPassword: seedPassword, RoleID: seedOfficerRoleID},
		{ID: "user-3", Name: "Officer B", Username: "officerB", LegacyPassword: seedPassword, RoleID: seedOfficerRoleID},
		{ID: "user-4", Name: "Officer C", Username: "officerC", LegacyPassword: seedPassword, RoleID: seedOfficerRoleID},
		{ID: "user-5", Name: "Admin User", Username: "admin", LegacyPassword: seedPassword, RoleID: seedAdminRoleID},
	}
}

// DefaultFiles builds the sample files with deadlines relative to now.
func DefaultFiles(now time.Time) []domain.FileRecord {
	now = now.UTC()
	tomorrow := now.AddDate(0, 0, 1)
	yesterday := now.AddDate(0, 0, -1)
	nextWeek := now.AddDate(0, 0, 7)
	lastWeek := now.AddDate(0, 0, -7)

	created := func(at time.Time) domain.HistoryEntry {
		return domain.HistoryEntry{Action: domain.ActionCreated, User: seedCreator, Timestamp: at}
	}

	return []domain.FileRecord{
		{
			ID:          "file-1",
			Name:        "Urgent Land Dispute Case #1024",
			Description: "Review and report on the land dispute between Party X and Party Y in Sector 5.",
			UploadDate:  now,
			Deadline:    tomorrow,
			Status:      domain.StatusPending,
			AssignedTo:  []string{"user-2"},
			History:     []domain.HistoryEntry{created(now)},
		},
		{
			ID:          "file-2",
			Name:        "Development Project Proposal - Phase II",
			Description: "Assess the feasibility of the new infrastructure project proposed for the northern region.",
			UploadDate:  now,
			Deadline:    nextWeek,
			Status:      domain.StatusUnderProcess,
			AssignedTo:  []string{"user-3", "user-4"},
			History: []domain.HistoryEntry{
				created(now),
				{Action: domain.AssignedAction([]string{"Officer B", "Officer C"}), User: seedCreator, Timestamp: now},
				{Action: "Viewed", User: "Officer B", Timestamp: now},
			},
		},
		{
			ID:          "file-3",
			Name:        "Monthly Security Report - May 2024",
			Description: "Compile and submit the monthly security briefing for all zones.",
			UploadDate:  lastWeek,
			Deadline:    yesterday,
			Status:      domain.StatusOverdue,
			AssignedTo:  []string{"user-4"},
			History: []domain.HistoryEntry{
				created(lastWeek),
				{Action: domain.AssignedAction([]string{"Officer C"}), User: seedCreator, Timestamp: lastWeek},
			},
		},
		{
			ID:          "file-4",
			Name:        "Annual Budget Review",
			Description: "Final review of the annual budget allocation for all departments.",
			UploadDate:  lastWeek,
			Deadline:    now,
			Status:      domain.StatusSubmitted,
			AssignedTo:  []string{"user-2"},
			History: []domain.HistoryEntry{
				created(lastWeek),
				{Action: domain.ActionSubmitted, User: "Officer A", Timestamp: yesterday, Details: "Budget approved with minor revisions."},
			},
		},
		{
			ID:          "file-5",
			Name:        "Public Grievance Redressal #551",
			Description: "Address the public grievance regarding water supply issues in the west block.",
			UploadDate:  now,
			Deadline:    nextWeek,
			Status:      domain.StatusSeen,
			AssignedTo:  []string{"user-3"},
			History: []domain.HistoryEntry{
				created(now),
				{Action: domain.AssignedAction([]string{"Officer B"}), User: seedCreator, Timestamp: now},
			},
		},
	}
}
