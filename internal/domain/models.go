package domain

import "time"

type Permission string

const (
	PermManageUsers  Permission = "CAN_MANAGE_USERS"
	PermManageRoles  Permission = "CAN_MANAGE_ROLES"
	PermUploadFile   Permission = "CAN_UPLOAD_FILE"
	PermForwardFile  Permission = "CAN_FORWARD_FILE"
	PermViewAllFiles Permission = "CAN_VIEW_ALL_FILES"
)

// AllPermissions is the fixed permission domain in display order.
var AllPermissions = []Permission{
	PermManageUsers,
	PermManageRoles,
	PermUploadFile,
	PermForwardFile,
	PermViewAllFiles,
}

var permissionDescriptions = map[Permission]string{
	PermManageUsers:  "Create and manage user accounts.",
	PermManageRoles:  "Create, edit, and delete roles and their permissions.",
	PermUploadFile:   "Upload new files into the system.",
	PermForwardFile:  "Forward files to other users.",
	PermViewAllFiles: "View and manage all files in the system.",
}

func (p Permission) Valid() bool {
	_, ok := permissionDescriptions[p]
	return ok
}

func (p Permission) Description() string {
	return permissionDescriptions[p]
}

type Status string

const (
	StatusPending      Status = "Pending"
	StatusSeen         Status = "Seen"
	StatusUnderProcess Status = "Under Process"
	StatusSubmitted    Status = "Submitted"
	StatusOverdue      Status = "Overdue"
)

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusSeen,
	StatusUnderProcess,
	StatusSubmitted,
	StatusOverdue,
}

// RoleKind marks the roles that carry hard-wired policy. Custom roles have an
// empty kind.
type RoleKind string

const (
	RoleKindSuperAdmin RoleKind = "super_admin"
	RoleKindAdmin      RoleKind = "admin"
	RoleKindOfficer    RoleKind = "officer"
)

type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	Kind        RoleKind     `json:"kind,omitempty"`
}

func (r Role) Has(p Permission) bool {
	for _, have := range r.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

func (r Role) Protected() bool {
	return r.Kind == RoleKindSuperAdmin
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash,omitempty"`
	// LegacyPassword holds plaintext passwords found in imported data until the
	// owner's next successful login replaces it with PasswordHash.
	LegacyPassword string `json:"password,omitempty"`
	RoleID         string `json:"roleId"`
}

// Profile strips credentials.
func (u User) Profile() Session {
	return Session{ID: u.ID, Name: u.Name, Username: u.Username, RoleID: u.RoleID}
}

func (u User) Redacted() User {
	u.PasswordHash = ""
	u.LegacyPassword = ""
	return u
}

// Session is the acting user without credentials.
type Session struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	RoleID   string `json:"roleId"`

	// Set only for sessions carried by a bearer token.
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// Revocation marks a token as logged out until it would have expired anyway.
type Revocation struct {
	TokenID   string    `json:"tokenId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Attachment struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

type HistoryEntry struct {
	Action     string      `json:"action"`
	User       string      `json:"user"`
	Timestamp  time.Time   `json:"timestamp"`
	Details    string      `json:"details,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

type FileRecord struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	UploadDate  time.Time      `json:"uploadDate"`
	Deadline    time.Time      `json:"deadline"`
	Status      Status         `json:"status"`
	AssignedTo  []string       `json:"assignedTo,omitempty"`
	History     []HistoryEntry `json:"history"`
}

func (f FileRecord) AssignedToUser(userID string) bool {
	for _, id := range f.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// Creator returns the actor recorded on the "Created" entry.
func (f FileRecord) Creator() (string, bool) {
	for _, h := range f.History {
		if h.Action == ActionCreated {
			return h.User, true
		}
	}
	return "", false
}

type Notification struct {
	ID        string    `json:"id"`
	FileID    string    `json:"fileId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuditEvent struct {
	FileID     string    `json:"file_id"`
	FileName   string    `json:"file_name"`
	Action     string    `json:"action"`
	User       string    `json:"user"`
	Timestamp  time.Time `json:"timestamp"`
	Status     Status    `json:"status"`
	AssignedTo []string  `json:"assigned_to,omitempty"`
}
