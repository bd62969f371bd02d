package models

import "time"

// UserRole represents the available roles for access control.
type UserRole string

const (
	RoleAdmin UserRole = "Admin"
	RoleUser  UserRole = "User"
)

// UserStatus represents the moderation state of an account.
type UserStatus string

const (
	StatusPending  UserStatus = "Pending"
	StatusApproved UserStatus = "Approved"
	StatusRejected UserStatus = "Rejected"
	StatusBanned   UserStatus = "Banned"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	Status       UserStatus `db:"status" json:"status"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Phone        string     `db:"phone" json:"phone,omitempty"`
	Position     string     `db:"position" json:"position,omitempty"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserStats aggregates account counts for the admin dashboard.
type UserStats struct {
	TotalUsers      int `json:"totalUsers"`
	PendingApproval int `json:"pendingApproval"`
	ActiveUsers     int `json:"activeUsers"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
