// internal/repository/memory_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-service/internal/model"
)

// DefaultMemoryCap bounds the in-memory journal
const DefaultMemoryCap = 500

// memoryRepository keeps the most recent jobs in process memory.
// When full, the oldest terminal job is evicted first.
type memoryRepository struct {
	mutex  sync.RWMutex
	jobs   map[uuid.UUID]*model.PrintJob
	order  []uuid.UUID
	cap    int
	logger *zap.Logger
}

// NewMemoryPrintJobRepository creates a journal that lives only as long as the process
func NewMemoryPrintJobRepository(capacity int, logger *zap.Logger) PrintJobRepository {
	if capacity <= 0 {
		capacity = DefaultMemoryCap
	}
	return &memoryRepository{
		jobs:   make(map[uuid.UUID]*model.PrintJob),
		cap:    capacity,
		logger: logger.With(zap.String("component", "memory_job_repository")),
	}
}

func (r *memoryRepository) Create(ctx context.Context, job *model.PrintJob) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("failed to create print job: duplicate id %s", job.ID)
	}
	if len(r.order) >= r.cap {
		r.evictLocked()
	}

	stored := *job
	r.jobs[job.ID] = &stored
	r.order = append(r.order, job.ID)
	return nil
}

// evictLocked drops the oldest terminal job, or the oldest job when none is terminal
func (r *memoryRepository) evictLocked() {
	victim := 0
	for i, id := range r.order {
		if r.jobs[id].Status.IsTerminal() {
			victim = i
			break
		}
	}
	id := r.order[victim]
	delete(r.jobs, id)
	r.order = append(r.order[:victim], r.order[victim+1:]...)
	r.logger.Debug("Evicted print job from memory journal", zap.String("job_id", id.String()))
}

func (r *memoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update model.JobUpdate) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	update.Apply(job)
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PrintJob, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	copied := *job
	return &copied, nil
}

func (r *memoryRepository) List(ctx context.Context, filter model.JobFilter) ([]*model.PrintJob, int, error) {
	filter = normalizeFilter(filter)

	r.mutex.RLock()
	matched := make([]*model.PrintJob, 0, len(r.order))
	for _, id := range r.order {
		job := r.jobs[id]
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.OrderID != "" && job.OrderID != filter.OrderID {
			continue
		}
		copied := *job
		matched = append(matched, &copied)
	}
	r.mutex.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []*model.PrintJob{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (r *memoryRepository) Stats(ctx context.Context) (*model.JobStats, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := &model.JobStats{Total: int64(len(r.jobs))}
	for _, job := range r.jobs {
		switch job.Status {
		case model.JobStatusCompleted:
			stats.Completed++
		case model.JobStatusFailed:
			stats.Failed++
		case model.JobStatusRejected:
			stats.Rejected++
		case model.JobStatusSkipped:
			stats.Skipped++
		}
	}
	return stats, nil
}
