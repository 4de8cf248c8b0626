package models

import "time"

// UserRole represents the available roles. Role is fixed at sign-up.
type UserRole string

const (
	RoleStudent   UserRole = "student"
	RoleOrganizer UserRole = "organizer"
)

// Valid reports whether the role is one of the closed set.
func (r UserRole) Valid() bool {
	return r == RoleStudent || r == RoleOrganizer
}

// User represents an application user stored in the users table.
// StudentID is set for students, OrganizationName for organizers.
type User struct {
	ID               string     `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	FullName         string     `db:"full_name" json:"name"`
	Role             UserRole   `db:"role" json:"role"`
	StudentID        string     `db:"student_id" json:"studentId,omitempty"`
	OrganizationName string     `db:"organization_name" json:"organizationName,omitempty"`
	AvatarURL        string     `db:"avatar_url" json:"avatarUrl,omitempty"`
	Active           bool       `db:"active" json:"active"`
	LastLogin        *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// RoleIdentifier returns the role-specific identifier for display and exports.
func (u *User) RoleIdentifier() string {
	if u.Role == RoleOrganizer {
		return u.OrganizationName
	}
	return u.StudentID
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
