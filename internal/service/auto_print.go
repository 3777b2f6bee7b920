// internal/service/auto_print.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/internal/utils"
	"printer-service/pkg/receipt"
)

// Reasons recorded on SKIPPED auto-print jobs
var (
	errAutoPrintDisabled = errors.New("auto print is disabled")
	errAutoNotConnected  = errors.New("printer not connected")
	errAutoUnhealthy     = errors.New("last keep-alive probe failed")
	errAutoSuperseded    = errors.New("superseded by a newer completed order")
	errAutoShutdown      = errors.New("service stopped before the auto print ran")
)

type autoPrint struct {
	job     *model.PrintJob
	receipt *receipt.Model
}

// SubmitCompletedOrder applies the auto-print policy to a completed order. The
// returned job is PENDING when a print was scheduled and SKIPPED otherwise. The
// print itself runs after the configured delay and is never retried.
func (ps *PrinterService) SubmitCompletedOrder(ctx context.Context, r *receipt.Model) (*model.PrintJob, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: receipt is required", ErrInvalidReceipt)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}

	job := model.NewPrintJob(r.Header.OrderID, model.JobSourceAuto, r.Totals.GrandTotal, ps.now())
	if err := ps.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to journal print job: %w", err)
	}

	policy := ps.config.Printing.AutoPrint
	if !policy.Enabled {
		ps.skipAutoPrint(ctx, job, errAutoPrintDisabled)
		return job, nil
	}
	if ps.ctx.Err() != nil {
		ps.skipAutoPrint(ctx, job, errAutoShutdown)
		return job, nil
	}

	// the scheduled print owns job from here on
	snapshot := *job

	ps.wg.Add(1)
	go func() {
		defer ps.wg.Done()

		timer := time.NewTimer(policy.Delay)
		defer timer.Stop()

		select {
		case <-ps.ctx.Done():
			ps.skipAutoPrint(context.Background(), job, errAutoShutdown)
		case <-timer.C:
			ps.runAutoPrint(&autoPrint{job: job, receipt: r}, policy.QueueWhileDisconnected)
		}
	}()

	ps.logger.Info("Auto print scheduled",
		zap.String("job_id", job.ID.String()),
		zap.String("order_id", job.OrderID),
		zap.Duration("delay", policy.Delay),
	)
	return &snapshot, nil
}

// runAutoPrint decides and, when allowed, prints once. With allowQueue the
// receipt waits for the next Connected instead of being skipped.
func (ps *PrinterService) runAutoPrint(ap *autoPrint, allowQueue bool) {
	ctx := ps.ctx
	policy := ps.config.Printing.AutoPrint

	if ps.manager.State() != model.StateConnected {
		if allowQueue {
			ps.queueAutoPrint(ap)
			return
		}
		ps.skipAutoPrint(ctx, ap.job, errAutoNotConnected)
		return
	}

	if policy.RequireHealthy && ps.monitor != nil && ps.monitor.Health().LastProbeFailed {
		ps.skipAutoPrint(ctx, ap.job, errAutoUnhealthy)
		return
	}

	if _, err := ps.execute(ctx, ap.job, ap.receipt); err != nil {
		ps.logger.Warn("Auto print failed, not retrying",
			zap.String("job_id", ap.job.ID.String()),
			zap.Error(err),
		)
	}
}

// queueAutoPrint keeps only the most recent receipt
func (ps *PrinterService) queueAutoPrint(ap *autoPrint) {
	ps.autoMu.Lock()
	previous := ps.autoQueued
	ps.autoQueued = ap
	ps.autoMu.Unlock()

	if previous != nil {
		ps.skipAutoPrint(ps.ctx, previous.job, errAutoSuperseded)
	}
	ps.logger.Info("Auto print queued until the printer connects",
		zap.String("job_id", ap.job.ID.String()),
		zap.String("order_id", ap.job.OrderID),
	)
}

// releaseQueuedAutoPrint runs the queued receipt once
func (ps *PrinterService) releaseQueuedAutoPrint() {
	ps.autoMu.Lock()
	ap := ps.autoQueued
	ps.autoQueued = nil
	ps.autoMu.Unlock()

	if ap == nil {
		return
	}

	ps.wg.Add(1)
	go func() {
		defer ps.wg.Done()
		ps.runAutoPrint(ap, false)
	}()
}

// dropQueuedAutoPrint skips a receipt still waiting for a connection
func (ps *PrinterService) dropQueuedAutoPrint(reason error) {
	ps.autoMu.Lock()
	ap := ps.autoQueued
	ps.autoQueued = nil
	ps.autoMu.Unlock()

	if ap != nil {
		ps.skipAutoPrint(context.Background(), ap.job, reason)
	}
}

func (ps *PrinterService) skipAutoPrint(ctx context.Context, job *model.PrintJob, reason error) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	completedAt := ps.now()
	ps.updateJob(ctx, job, model.JobUpdate{
		Status:      model.JobStatusSkipped,
		Err:         reason,
		CompletedAt: &completedAt,
	})
	utils.NewOperationLogger(ps.logger.Logger, "auto_print", job.ID.String()).
		Skipped(reason.Error(), zap.String("order_id", job.OrderID))
}
