package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-events-api/internal/models"
)

const exportJobColumns = `id, requested_by, format, status, result_path, error_message, created_at, updated_at`

// ExportJobRepository persists the lifecycle of asynchronous export jobs.
type ExportJobRepository struct {
	db *sqlx.DB
}

// NewExportJobRepository creates a new instance of ExportJobRepository.
func NewExportJobRepository(db *sqlx.DB) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

// Create inserts a new job in the QUEUED state.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}

	const query = `INSERT INTO export_jobs (id, requested_by, format, status, result_path, error_message, created_at, updated_at)
		VALUES (:id, :requested_by, :format, :status, :result_path, :error_message, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// GetByID fetches a single job.
func (r *ExportJobRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM export_jobs WHERE id = $1 LIMIT 1`, exportJobColumns)
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return &job, nil
}

// UpdateStatus transitions a job between states. resultPath and errMessage
// may be nil depending on the target state.
func (r *ExportJobRepository) UpdateStatus(ctx context.Context, id string, status models.ExportJobStatus, resultPath, errMessage *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE export_jobs SET status = $2, result_path = $3, error_message = $4, updated_at = $5 WHERE id = $1`,
		id, status, resultPath, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByRequester returns a user's jobs, newest first.
func (r *ExportJobRepository) ListByRequester(ctx context.Context, userID string) ([]models.ExportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM export_jobs WHERE requested_by = $1 ORDER BY created_at DESC`, exportJobColumns)
	var jobs []models.ExportJob
	if err := r.db.SelectContext(ctx, &jobs, query, userID); err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	return jobs, nil
}
