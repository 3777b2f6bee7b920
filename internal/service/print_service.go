// internal/service/print_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/internal/transport"
	"printer-service/internal/utils"
	"printer-service/pkg/receipt"
)

// Print compiles the receipt, sends it once and journals the outcome. A send
// that never reached the printer (NotConnected, PrinterBusy) is journaled as
// REJECTED, a send that failed part way as FAILED. Nothing is retried.
func (ps *PrinterService) Print(ctx context.Context, req *PrintRequest) (*model.PrintJob, error) {
	if req == nil || req.Receipt == nil {
		return nil, fmt.Errorf("%w: receipt is required", ErrInvalidReceipt)
	}
	if err := req.Receipt.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}

	source := req.Source
	if source == "" {
		source = model.JobSourceManual
	}

	job := model.NewPrintJob(req.Receipt.Header.OrderID, source, req.Receipt.Totals.GrandTotal, ps.now())
	if err := ps.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to journal print job: %w", err)
	}

	return ps.execute(ctx, job, req.Receipt)
}

// execute sends a journaled job. The job must already exist in the repository.
func (ps *PrinterService) execute(ctx context.Context, job *model.PrintJob, r *receipt.Model) (*model.PrintJob, error) {
	opLogger := utils.NewOperationLogger(ps.logger.Logger, "print", job.ID.String())
	opLogger.Start(zap.String("order_id", job.OrderID), zap.String("source", string(job.Source)))

	start := ps.now()
	stream := ps.compiler.Compile(r, start)

	ps.updateJob(ctx, job, model.JobUpdate{Status: model.JobStatusPrinting, Bytes: stream.Len()})

	sendCtx := ctx
	if timeout := ps.config.Printing.JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := ps.writer.Send(sendCtx, ps.manager.ActiveSession(), stream, transport.KindPrint)
	ps.totalJobs.Add(1)

	completedAt := ps.now()
	durationMs := completedAt.Sub(start).Milliseconds()
	update := model.JobUpdate{
		Status:      model.JobStatusCompleted,
		CompletedAt: &completedAt,
		DurationMs:  &durationMs,
	}
	if device := ps.manager.Device(); device != nil {
		update.DeviceAddr = device.Address
	}

	if err != nil {
		ps.failedJobs.Add(1)
		ps.recordError(err)

		update.Status = model.JobStatusFailed
		switch model.KindOf(err) {
		case model.KindNotConnected, model.KindPrinterBusy:
			update.Status = model.JobStatusRejected
		}
		update.Err = err
		ps.updateJob(ctx, job, update)

		opLogger.Error(err, zap.String("status", string(update.Status)))
		ps.publish(model.EventPrintFailed, "print", "ERROR", printEventData(job, nil, durationMs, err))
		return job, err
	}

	update.Chunks = result.Chunks
	ps.updateJob(ctx, job, update)

	opLogger.Success(
		zap.Int("bytes", result.Bytes),
		zap.Int("chunks", result.Chunks),
		zap.Duration("duration", result.Duration),
	)
	ps.publish(model.EventPrintCompleted, "print", "INFO", printEventData(job, result, durationMs, nil))
	return job, nil
}

// TestPrint prints a short self-test receipt
func (ps *PrinterService) TestPrint(ctx context.Context) (*model.PrintJob, error) {
	return ps.Print(ctx, &PrintRequest{
		Receipt: testReceipt(ps.config.App.Name, ps.manager.BackendName(), ps.now()),
		Source:  model.JobSourceTest,
	})
}

// Preview compiles the receipt without sending it
func (ps *PrinterService) Preview(ctx context.Context, r *receipt.Model) (*PreviewResult, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: receipt is required", ErrInvalidReceipt)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}

	stream := ps.compiler.Compile(r, ps.now())
	chunkSize := ps.writer.ChunkSizeFor(ps.manager.ActiveSession())
	return &PreviewResult{
		Bytes:     stream.Len(),
		Chunks:    len(stream.Chunks(chunkSize)),
		ChunkSize: chunkSize,
		Hex:       stream.Hex(),
	}, nil
}

// updateJob applies update to the journal and to the caller's copy
func (ps *PrinterService) updateJob(ctx context.Context, job *model.PrintJob, update model.JobUpdate) {
	update.Apply(job)
	if err := ps.jobs.UpdateStatus(ctx, job.ID, update); err != nil {
		ps.logger.Error("Failed to update print job",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(update.Status)),
			zap.Error(err),
		)
	}
}

func printEventData(job *model.PrintJob, result *transport.SendResult, durationMs int64, err error) model.JSONObject {
	data := model.PrintEventData{
		JobID:      job.ID,
		OrderID:    job.OrderID,
		DurationMs: durationMs,
	}
	if result != nil {
		data.Bytes = result.Bytes
		data.Chunks = result.Chunks
	}
	if err != nil {
		data.Error = err.Error()
	}
	return model.JSONObject{"job": data, "status": job.Status}
}

func testReceipt(storeName, backend string, at time.Time) *receipt.Model {
	one := decimal.NewFromInt(1)
	return &receipt.Model{
		Header: receipt.Header{
			StoreName: storeName,
			OrderID:   "TEST-" + at.Format("150405"),
		},
		Items: []receipt.LineItem{
			{Name: "Printer self-test", Quantity: 1, UnitPrice: one, LineTotal: one},
		},
		Totals: receipt.Totals{
			Subtotal:   one,
			GrandTotal: one,
			Tendered:   one,
		},
		PaymentMethod: "TEST",
		FooterLines:   []string{"Backend: " + backend, "If you can read this, printing works."},
	}
}
