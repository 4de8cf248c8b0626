package models

import "time"

// ExportFormat enumerates supported roster export encodings.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
	ExportFormatPDF  ExportFormat = "pdf"
)

// ExportJobStatus tracks async export progress.
type ExportJobStatus string

const (
	ExportStatusQueued   ExportJobStatus = "QUEUED"
	ExportStatusRunning  ExportJobStatus = "RUNNING"
	ExportStatusFinished ExportJobStatus = "FINISHED"
	ExportStatusFailed   ExportJobStatus = "FAILED"
)

// ExportJob is a persisted asynchronous archive-roster export request.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	RequestedBy  string          `db:"requested_by" json:"requestedBy"`
	Format       ExportFormat    `db:"format" json:"format"`
	Status       ExportJobStatus `db:"status" json:"status"`
	ResultPath   *string         `db:"result_path" json:"-"`
	ErrorMessage *string         `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}
