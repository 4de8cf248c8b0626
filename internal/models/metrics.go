package models

import "time"

// SystemMetrics is a lightweight aggregate snapshot for the health endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	RegistrationsTotal       uint64    `json:"registrations_total"`
	AttendanceScansTotal     uint64    `json:"attendance_scans_total"`
	EventsArchivedTotal      uint64    `json:"events_archived_total"`
	PendingWrites            int64     `json:"pending_writes"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
