package models

import (
	"time"

	"github.com/lib/pq"
)

const (
	// DateLayout is the stored calendar-date format for events.
	DateLayout = "2006-01-02"
	// TimeLayout is the stored clock-time format for start/end times.
	TimeLayout = "15:04"
	// DefaultEndTime applies when an event has no explicit end time.
	DefaultEndTime = "23:59"
)

// Event represents an active campus event.
type Event struct {
	ID            string         `db:"id" json:"id"`
	Title         string         `db:"title" json:"title"`
	Description   string         `db:"description" json:"description"`
	Date          string         `db:"event_date" json:"date"`
	StartTime     string         `db:"start_time" json:"startTime,omitempty"`
	EndTime       string         `db:"end_time" json:"endTime,omitempty"`
	Location      string         `db:"location" json:"location"`
	OrganizerName string         `db:"organizer_name" json:"organizer"`
	OrganizerID   string         `db:"organizer_id" json:"organizerId"`
	Category      string         `db:"category" json:"category"`
	Tags          pq.StringArray `db:"tags" json:"tags"`
	MaxAttendees  int            `db:"max_attendees" json:"maxAttendees"`
	IsPublic      bool           `db:"is_public" json:"isPublic"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`

	Attendees []Attendee `db:"-" json:"attendees"`
}

// Cutoff returns the instant after which the event counts as expired:
// the event date combined with its end time (23:59 when absent), with the
// seconds pinned to the end of that minute.
func (e *Event) Cutoff() (time.Time, error) {
	endTime := e.EndTime
	if endTime == "" {
		endTime = DefaultEndTime
	}
	cutoff, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.Date+" "+endTime, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return cutoff.Add(59 * time.Second), nil
}

// ConfirmedAttendees returns only attendees whose attendance was verified.
func (e *Event) ConfirmedAttendees() []Attendee {
	confirmed := make([]Attendee, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		if a.Attended {
			confirmed = append(confirmed, a)
		}
	}
	return confirmed
}

// SpotsRemaining reports how many registrations the event can still take.
func (e *Event) SpotsRemaining() int {
	remaining := e.MaxAttendees - len(e.Attendees)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CreateEventRequest is the payload for creating an event.
type CreateEventRequest struct {
	Title        string   `json:"title" validate:"required"`
	Description  string   `json:"description"`
	Date         string   `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    string   `json:"startTime" validate:"omitempty,datetime=15:04"`
	EndTime      string   `json:"endTime" validate:"omitempty,datetime=15:04"`
	Location     string   `json:"location" validate:"required"`
	Category     string   `json:"category" validate:"required"`
	Tags         []string `json:"tags"`
	MaxAttendees int      `json:"maxAttendees" validate:"required,gt=0"`
	IsPublic     *bool    `json:"isPublic"`
}

// UpdateEventRequest is the payload for updating an event. Nil pointers
// leave the current value untouched.
type UpdateEventRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Date         *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime    *string  `json:"startTime" validate:"omitempty,datetime=15:04"`
	EndTime      *string  `json:"endTime" validate:"omitempty,datetime=15:04"`
	Location     *string  `json:"location"`
	Category     *string  `json:"category"`
	Tags         []string `json:"tags"`
	MaxAttendees *int     `json:"maxAttendees" validate:"omitempty,gt=0"`
	IsPublic     *bool    `json:"isPublic"`
}

// EventFilter captures filtering criteria for listing events.
type EventFilter struct {
	Category    string
	OrganizerID string
	Search      string
	Public      *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
