package models

import (
	"encoding/json"
	"time"
)

// ArchivedEvent is the immutable snapshot taken when an expired event is
// swept out of the active set. ConfirmedAttendees retains only attendees
// with verified attendance; AttendanceRate is a percentage rendered with
// two decimals ("100.00"), "0" when nobody registered.
type ArchivedEvent struct {
	ID              string    `db:"id" json:"id"`
	OriginalEventID string    `db:"original_event_id" json:"originalEventId"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	Date            string    `db:"event_date" json:"date"`
	StartTime       string    `db:"start_time" json:"startTime,omitempty"`
	EndTime         string    `db:"end_time" json:"endTime,omitempty"`
	Location        string    `db:"location" json:"location"`
	OrganizerName   string    `db:"organizer_name" json:"organizer"`
	OrganizerID     string    `db:"organizer_id" json:"organizerId"`
	Category        string    `db:"category" json:"category"`
	TotalRegistered int       `db:"total_registered" json:"totalRegistered"`
	AttendanceRate  string    `db:"attendance_rate" json:"attendanceRate"`
	RawAttendees    []byte    `db:"confirmed_attendees" json:"-"`
	ArchivedAt      time.Time `db:"archived_at" json:"archivedAt"`

	ConfirmedAttendees []Attendee `db:"-" json:"confirmedAttendees"`
}

// DecodeAttendees unmarshals the stored attendee snapshot.
func (a *ArchivedEvent) DecodeAttendees() error {
	if len(a.RawAttendees) == 0 {
		a.ConfirmedAttendees = []Attendee{}
		return nil
	}
	return json.Unmarshal(a.RawAttendees, &a.ConfirmedAttendees)
}

// EncodeAttendees marshals the attendee snapshot for storage.
func (a *ArchivedEvent) EncodeAttendees() error {
	if a.ConfirmedAttendees == nil {
		a.ConfirmedAttendees = []Attendee{}
	}
	raw, err := json.Marshal(a.ConfirmedAttendees)
	if err != nil {
		return err
	}
	a.RawAttendees = raw
	return nil
}

// SweepError records a single event that failed to archive during a sweep.
type SweepError struct {
	EventID string `json:"eventId"`
	Message string `json:"message"`
}

// SweepResult summarises one sweep pass.
type SweepResult struct {
	Processed     int          `json:"processed"`
	ArchivedCount int          `json:"archivedCount"`
	Errors        []SweepError `json:"errors"`
}
