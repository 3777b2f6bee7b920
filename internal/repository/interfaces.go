// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"printer-service/internal/model"
)

// ErrJobNotFound is returned when no journal entry has the requested id
var ErrJobNotFound = errors.New("print job not found")

// PrintJobRepository is the print-job journal
type PrintJobRepository interface {
	Create(ctx context.Context, job *model.PrintJob) error
	UpdateStatus(ctx context.Context, id uuid.UUID, update model.JobUpdate) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.PrintJob, error)

	// List returns one page of jobs, newest first, and the total matching count
	List(ctx context.Context, filter model.JobFilter) ([]*model.PrintJob, int, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func normalizeFilter(filter model.JobFilter) model.JobFilter {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter
}
