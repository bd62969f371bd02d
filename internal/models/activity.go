package models

import "time"

// Activity action constants.
const (
	ActionLogin      = "LOGIN"
	ActionLogout     = "LOGOUT"
	ActionCreate     = "CREATE"
	ActionUpdate     = "UPDATE"
	ActionDelete     = "DELETE"
	ActionImport     = "IMPORT"
	ActionBulkImport = "BULK_IMPORT"
	ActionResequence = "RESEQUENCE"
	ActionUserUpdate = "USER_UPDATE"
)

// Entity type constants for activity entries.
const (
	EntityStudent = "student"
	EntityUser    = "user"
)

// ActivityLog is one append-only entry in the audit trail. Entries are never
// mutated or deleted.
type ActivityLog struct {
	ID          int64     `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Username    string    `db:"username" json:"username"`
	UserEmail   string    `db:"user_email" json:"user_email"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    *int64    `db:"entity_id" json:"entity_id,omitempty"`
	Description string    `db:"description" json:"description"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	UserAgent   string    `db:"user_agent" json:"user_agent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ActivityFilter captures query criteria for listing activity entries.
type ActivityFilter struct {
	Action     string
	EntityType string
	StartDate  string
	EndDate    string
	Limit      int
	Offset     int
}
