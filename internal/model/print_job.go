// internal/model/print_job.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JobStatus represents the status of a print job
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusPrinting  JobStatus = "PRINTING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusRejected  JobStatus = "REJECTED"
	JobStatusSkipped   JobStatus = "SKIPPED"
)

// IsTerminal reports whether the job will not change status again
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusRejected, JobStatusSkipped:
		return true
	}
	return false
}

// JobSource tells whether a job was requested by an operator or by the auto-print policy
type JobSource string

const (
	JobSourceManual JobSource = "MANUAL"
	JobSourceAuto   JobSource = "AUTO"
	JobSourceTest   JobSource = "TEST"
)

// PrintJob is a journal entry for one receipt sent to the printer
type PrintJob struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderID     string          `json:"order_id" db:"order_id"`
	Source      JobSource       `json:"source" db:"source"`
	Status      JobStatus       `json:"status" db:"status"`
	Bytes       int             `json:"bytes" db:"bytes"`
	Chunks      int             `json:"chunks" db:"chunks"`
	GrandTotal  decimal.Decimal `json:"grand_total" db:"grand_total"`
	DeviceAddr  *string         `json:"device_address,omitempty" db:"device_address"`
	ErrorKind   *ErrorKind      `json:"error_kind,omitempty" db:"error_kind"`
	Error       *string         `json:"error,omitempty" db:"error_message"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs  *int64          `json:"duration_ms,omitempty" db:"duration_ms"`
}

// NewPrintJob creates a pending job for an order
func NewPrintJob(orderID string, source JobSource, grandTotal decimal.Decimal, at time.Time) *PrintJob {
	return &PrintJob{
		ID:         uuid.New(),
		OrderID:    orderID,
		Source:     source,
		Status:     JobStatusPending,
		GrandTotal: grandTotal,
		CreatedAt:  at,
	}
}

// JobUpdate carries the fields changed when a job leaves PENDING or PRINTING
type JobUpdate struct {
	Status      JobStatus
	Bytes       int
	Chunks      int
	DeviceAddr  string
	Err         error
	CompletedAt *time.Time
	DurationMs  *int64
}

// Apply copies the update onto job
func (u JobUpdate) Apply(job *PrintJob) {
	job.Status = u.Status
	if u.Bytes > 0 {
		job.Bytes = u.Bytes
	}
	if u.Chunks > 0 {
		job.Chunks = u.Chunks
	}
	if u.DeviceAddr != "" {
		addr := u.DeviceAddr
		job.DeviceAddr = &addr
	}
	if u.Err != nil {
		msg := u.Err.Error()
		job.Error = &msg
		if kind := KindOf(u.Err); kind != "" {
			job.ErrorKind = &kind
		}
	}
	if u.CompletedAt != nil {
		job.CompletedAt = u.CompletedAt
	}
	if u.DurationMs != nil {
		job.DurationMs = u.DurationMs
	}
}

// JobFilter narrows job listings
type JobFilter struct {
	Status  JobStatus
	OrderID string
	Limit   int
	Offset  int
}

// JobStats summarizes the journal
type JobStats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	Skipped   int64 `json:"skipped"`
}
