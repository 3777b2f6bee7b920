// internal/service/printer_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/connection"
	"printer-service/internal/discovery"
	"printer-service/internal/drawer"
	"printer-service/internal/driver/escpos"
	"printer-service/internal/keepalive"
	"printer-service/internal/model"
	"printer-service/internal/repository"
	"printer-service/internal/transport"
	"printer-service/internal/utils"
)

// PrinterService is the single entry point for printing, drawer control and
// connection management. It owns no state machine of its own; the connection
// manager stays the source of truth.
type PrinterService struct {
	manager   *connection.Manager
	writer    *transport.Writer
	compiler  *escpos.Compiler
	drawer    *drawer.Controller
	monitor   *keepalive.Monitor
	jobs      repository.PrintJobRepository
	publisher EventPublisher
	config    *config.Config
	logger    *utils.ServiceLogger
	now       func() time.Time

	totalJobs  atomic.Int64
	failedJobs atomic.Int64

	errMu       sync.Mutex
	lastError   error
	lastErrorAt time.Time

	autoMu     sync.Mutex
	autoQueued *autoPrint

	runMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPrinterService creates a new printer service instance. monitor and
// publisher may be nil.
func NewPrinterService(
	manager *connection.Manager,
	writer *transport.Writer,
	compiler *escpos.Compiler,
	drawerCtl *drawer.Controller,
	monitor *keepalive.Monitor,
	jobs repository.PrintJobRepository,
	publisher EventPublisher,
	config *config.Config,
	logger *zap.Logger,
) *PrinterService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PrinterService{
		manager:   manager,
		writer:    writer,
		compiler:  compiler,
		drawer:    drawerCtl,
		monitor:   monitor,
		jobs:      jobs,
		publisher: publisher,
		config:    config,
		logger:    utils.NewServiceLogger(logger, "printer-service"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins forwarding state events and, when enabled, keep-alive probing
func (ps *PrinterService) Start() {
	ps.runMu.Lock()
	defer ps.runMu.Unlock()

	events, unsubscribe := ps.manager.Subscribe(0)
	ps.wg.Add(1)
	go ps.forwardEvents(events, unsubscribe)

	if ps.monitor != nil {
		ps.monitor.Start(ps.ctx)
	}

	ps.logger.Info("Printer service started",
		zap.String("backend", ps.manager.BackendName()),
		zap.Bool("keepalive", ps.monitor != nil),
		zap.Bool("auto_print", ps.config.Printing.AutoPrint.Enabled),
	)
}

// Stop cancels pending auto prints, stops the monitor and disconnects
func (ps *PrinterService) Stop() {
	ps.runMu.Lock()
	defer ps.runMu.Unlock()

	ps.cancel()
	if ps.monitor != nil {
		ps.monitor.Stop()
	}
	if err := ps.manager.Close(); err != nil {
		ps.logger.Warn("Connection manager close failed", zap.Error(err))
	}
	ps.wg.Wait()
	ps.dropQueuedAutoPrint(errAutoShutdown)
	ps.logger.Info("Printer service stopped")
}

// Scan discovers printer candidates without touching a live session
func (ps *PrinterService) Scan(ctx context.Context, req *ScanRequest) ([]model.PrinterDevice, error) {
	devices, err := ps.manager.Discover(ctx, ps.scanRequest(req))
	if err != nil {
		ps.recordError(err)
		return nil, err
	}
	ps.logger.Info("Printer scan completed", zap.Int("devices", len(devices)))
	return devices, nil
}

// Connect opens a session to the requested printer, or to the best scan
// candidate when no address is given
func (ps *PrinterService) Connect(ctx context.Context, req *ConnectRequest) (*model.SessionInfo, error) {
	var err error
	if req == nil || req.Address == "" {
		var scan *ScanRequest
		if req != nil {
			scan = &req.ScanRequest
		}
		_, err = ps.manager.ScanAndConnect(ctx, ps.scanRequest(scan))
	} else {
		_, err = ps.manager.Connect(ctx, model.PrinterDevice{
			ID:      req.Address,
			Name:    req.Name,
			Address: req.Address,
		})
	}

	if err != nil {
		ps.recordError(err)
		return nil, err
	}

	info := ps.manager.Info()
	return &info, nil
}

// Disconnect closes the session and cancels any reconnect in progress
func (ps *PrinterService) Disconnect(ctx context.Context) error {
	return ps.manager.Disconnect()
}

// OpenDrawer pulses the cash drawer
func (ps *PrinterService) OpenDrawer(ctx context.Context) error {
	err := ps.drawer.OpenDrawer(ctx, ps.manager.ActiveSession())
	if err != nil {
		ps.recordError(err)
		return err
	}
	ps.publish(model.EventDrawerOpened, "drawer", "INFO", model.JSONObject{
		"device": ps.manager.Device(),
	})
	return nil
}

// Status returns the full status snapshot
func (ps *PrinterService) Status(ctx context.Context) *PrinterStatus {
	status := &PrinterStatus{
		Backend:   ps.manager.BackendName(),
		Available: true,
		Session:   ps.manager.Info(),
		Stats:     ps.Stats(),
		Transport: ps.writer.GetStats(),
		Drawer:    ps.drawer.GetStats(),
	}

	if err := ps.manager.Available(ctx); err != nil {
		status.Available = false
		status.Availability = model.NewErrorInfo(err, ps.now())
	}
	if ps.monitor != nil {
		health := ps.monitor.Health()
		stats := ps.monitor.GetStats()
		status.Health = &health
		status.KeepAlive = &stats
	}
	if jobStats, err := ps.jobs.Stats(ctx); err == nil {
		status.Jobs = jobStats
	} else {
		ps.logger.Warn("Failed to read job stats", zap.Error(err))
	}

	return status
}

// Stats aggregates the operator-facing counters
func (ps *PrinterService) Stats() model.ConnectionStats {
	info := ps.manager.Info()
	stats := model.ConnectionStats{
		TotalPrintJobs:  ps.totalJobs.Load(),
		FailedPrintJobs: ps.failedJobs.Load(),
		ReconnectCount:  ps.manager.TotalReconnects(),
		ConnectedSince:  info.ConnectedSince,
		LastError:       info.LastError,
	}

	ps.errMu.Lock()
	if ps.lastError != nil && (stats.LastError == nil || ps.lastErrorAt.After(stats.LastError.ErrorTime)) {
		stats.LastError = model.NewErrorInfo(ps.lastError, ps.lastErrorAt)
	}
	ps.errMu.Unlock()

	if ps.monitor != nil {
		ka := ps.monitor.GetStats()
		stats.ProbeFailures = ka.ProbeFailures
		stats.SkippedProbes = ka.SkippedProbes
		stats.LastKeepAlive = ka.LastKeepAlive
		stats.HealthScore = ps.monitor.Health().HealthScore
	}
	return stats
}

// GetJob returns one journal entry
func (ps *PrinterService) GetJob(ctx context.Context, id uuid.UUID) (*model.PrintJob, error) {
	return ps.jobs.GetByID(ctx, id)
}

// ListJobs returns one page of the journal
func (ps *PrinterService) ListJobs(ctx context.Context, filter model.JobFilter) (*JobListResult, error) {
	jobs, total, err := ps.jobs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list print jobs: %w", err)
	}
	return &JobListResult{Jobs: jobs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (ps *PrinterService) scanRequest(req *ScanRequest) discovery.ScanRequest {
	out := discovery.ScanRequest{
		Timeout:      ps.config.Bluetooth.ScanTimeout,
		ServiceUUIDs: ps.config.Bluetooth.ServiceUUIDs,
		NamePrefixes: ps.config.Bluetooth.NamePrefixes,
		AcceptAll:    ps.config.Bluetooth.AcceptAll,
	}
	if req == nil {
		return out
	}
	if req.TimeoutSeconds > 0 {
		out.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if len(req.ServiceUUIDs) > 0 {
		out.ServiceUUIDs = req.ServiceUUIDs
	}
	if len(req.NamePrefixes) > 0 {
		out.NamePrefixes = req.NamePrefixes
	}
	out.AcceptAll = out.AcceptAll || req.AcceptAll
	return out
}

// forwardEvents relays state events to the publisher and releases a queued
// auto print on the next Connected
func (ps *PrinterService) forwardEvents(events <-chan model.StateEvent, unsubscribe func()) {
	defer ps.wg.Done()
	defer unsubscribe()

	for {
		select {
		case <-ps.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			ps.publishState(ev)
			if ev.Type == model.EventStateChanged && ev.To == model.StateConnected {
				ps.releaseQueuedAutoPrint()
			}
		}
	}
}

func (ps *PrinterService) publishState(ev model.StateEvent) {
	severity := "INFO"
	switch {
	case ev.To == model.StateError:
		severity = "ERROR"
	case ev.To == model.StateReconnecting || ev.Type == model.EventReconnectAttempt:
		severity = "WARNING"
	}

	data := model.JSONObject{
		"from": ev.From,
		"to":   ev.To,
	}
	if ev.Device != nil {
		data["device"] = ev.Device
	}
	if ev.Attempt > 0 {
		data["attempt"] = ev.Attempt
	}
	if ev.Error != nil {
		data["error"] = ev.Error
	}

	if ps.publisher != nil {
		ps.publisher.Publish(model.ServiceEvent{
			ID:        ev.ID,
			Type:      ev.Type,
			Data:      data,
			Timestamp: ev.Timestamp,
			Source:    "connection",
			Severity:  severity,
		})
	}
}

func (ps *PrinterService) publish(eventType model.EventType, source, severity string, data model.JSONObject) {
	if ps.publisher == nil {
		return
	}
	ps.publisher.Publish(model.ServiceEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Data:      data,
		Timestamp: ps.now(),
		Source:    source,
		Severity:  severity,
	})
}

func (ps *PrinterService) recordError(err error) {
	if err == nil || errors.Is(err, ErrInvalidReceipt) {
		return
	}
	ps.errMu.Lock()
	ps.lastError = err
	ps.lastErrorAt = ps.now()
	ps.errMu.Unlock()
}
