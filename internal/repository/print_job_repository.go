// internal/repository/print_job_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-service/internal/database"
	"printer-service/internal/model"
)

const jobColumns = `id, order_id, source, status, bytes, chunks, grand_total,
		device_address, error_kind, error_message, created_at, completed_at, duration_ms`

// printJobRepository implements PrintJobRepository on postgres
type printJobRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewPrintJobRepository creates a new postgres print-job repository
func NewPrintJobRepository(db *database.DB, logger *zap.Logger) PrintJobRepository {
	return &printJobRepository{
		db:     db,
		logger: logger.With(zap.String("component", "print_job_repository")),
	}
}

// Create inserts a new journal entry
func (r *printJobRepository) Create(ctx context.Context, job *model.PrintJob) error {
	query := `
		INSERT INTO print_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.OrderID, job.Source, job.Status, job.Bytes, job.Chunks,
		job.GrandTotal, job.DeviceAddr, job.ErrorKind, job.Error,
		job.CreatedAt, job.CompletedAt, job.DurationMs,
	)

	if err != nil {
		r.logger.Error("Failed to create print job", zap.Error(err))
		return fmt.Errorf("failed to create print job: %w", err)
	}

	return nil
}

// UpdateStatus applies update to the stored job
func (r *printJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update model.JobUpdate) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	update.Apply(job)

	query := `
		UPDATE print_jobs SET
			status = $2, bytes = $3, chunks = $4, device_address = $5,
			error_kind = $6, error_message = $7, completed_at = $8, duration_ms = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		job.ID, job.Status, job.Bytes, job.Chunks, job.DeviceAddr,
		job.ErrorKind, job.Error, job.CompletedAt, job.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to update print job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	return nil
}

// GetByID retrieves a job by ID
func (r *printJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PrintJob, error) {
	query := `SELECT ` + jobColumns + ` FROM print_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get print job: %w", err)
	}

	return job, nil
}

// List retrieves jobs with filtering and pagination
func (r *printJobRepository) List(ctx context.Context, filter model.JobFilter) ([]*model.PrintJob, int, error) {
	filter = normalizeFilter(filter)
	whereClause, args := buildJobWhere(filter)

	// Count total records
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM print_jobs %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count print jobs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM print_jobs %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, jobColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list print jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*model.PrintJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			r.logger.Error("Failed to scan print job row", zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate print jobs: %w", err)
	}

	return jobs, total, nil
}

// Stats counts jobs per terminal status
func (r *printJobRepository) Stats(ctx context.Context) (*model.JobStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COUNT(*) FILTER (WHERE status = 'REJECTED'),
			COUNT(*) FILTER (WHERE status = 'SKIPPED')
		FROM print_jobs
	`

	stats := &model.JobStats{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Total, &stats.Completed, &stats.Failed, &stats.Rejected, &stats.Skipped,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get print job stats: %w", err)
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.PrintJob, error) {
	job := &model.PrintJob{}
	err := row.Scan(
		&job.ID, &job.OrderID, &job.Source, &job.Status, &job.Bytes, &job.Chunks,
		&job.GrandTotal, &job.DeviceAddr, &job.ErrorKind, &job.Error,
		&job.CreatedAt, &job.CompletedAt, &job.DurationMs,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// buildJobWhere returns the WHERE clause and its positional arguments
func buildJobWhere(filter model.JobFilter) (string, []interface{}) {
	whereConditions := []string{}
	args := []interface{}{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", len(args)))
	}

	if filter.OrderID != "" {
		args = append(args, filter.OrderID)
		whereConditions = append(whereConditions, fmt.Sprintf("order_id = $%d", len(args)))
	}

	if len(whereConditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(whereConditions, " AND "), args
}
