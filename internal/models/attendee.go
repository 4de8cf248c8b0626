package models

import "time"

// Attendee is a user's registration record for a single event.
// QRCode holds the exact token string encoded in the attendee's QR code;
// attendance scans must match it verbatim.
type Attendee struct {
	ID               string     `db:"id" json:"-"`
	EventID          string     `db:"event_id" json:"-"`
	UserID           string     `db:"user_id" json:"userId"`
	UserName         string     `db:"user_name" json:"userName"`
	UserEmail        string     `db:"user_email" json:"userEmail"`
	UserRole         UserRole   `db:"user_role" json:"userRole"`
	StudentID        string     `db:"student_id" json:"studentId,omitempty"`
	OrganizationName string     `db:"organization_name" json:"organizationName,omitempty"`
	RegisteredAt     time.Time  `db:"registered_at" json:"registeredAt"`
	Attended         bool       `db:"attended" json:"attended"`
	AttendedAt       *time.Time `db:"attended_at" json:"attendedAt,omitempty"`
	QRCode           string     `db:"qr_code" json:"qrCode"`
}

// VerifyAttendanceRequest carries a scanned QR code token.
type VerifyAttendanceRequest struct {
	QRCode string `json:"qrCode" validate:"required"`
}
