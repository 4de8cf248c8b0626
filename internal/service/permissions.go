package service

import "github.com/noah-isme/campus-events-api/internal/models"

// Role capabilities. The role set is closed: students register and attend,
// organizers manage events and read rosters. Any organizer may manage any
// event, matching how campus staff share responsibility for listings.

// CanManageEvents reports whether the role may create, update or delete events.
func CanManageEvents(role models.UserRole) bool {
	return role == models.RoleOrganizer
}

// CanRegister reports whether the role may register for events.
func CanRegister(role models.UserRole) bool {
	return role == models.RoleStudent
}

// CanVerifyAttendance reports whether the role may confirm QR attendance scans.
func CanVerifyAttendance(role models.UserRole) bool {
	return role == models.RoleOrganizer
}

// CanExportRosters reports whether the role may export attendee rosters.
func CanExportRosters(role models.UserRole) bool {
	return role == models.RoleOrganizer
}
