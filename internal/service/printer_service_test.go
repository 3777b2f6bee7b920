package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"printer-service/internal/config"
	"printer-service/internal/connection"
	"printer-service/internal/discovery"
	"printer-service/internal/drawer"
	"printer-service/internal/driver/escpos"
	"printer-service/internal/keepalive"
	"printer-service/internal/model"
	"printer-service/internal/repository"
	"printer-service/internal/transport"
	"printer-service/pkg/driver"
	"printer-service/pkg/driver/drivertest"
	"printer-service/pkg/receipt"
)

const printerAddr = "AA:BB:CC:00:00:01"

var fixedClock = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ServiceEvent
}

func (p *recordingPublisher) Publish(event model.ServiceEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofType(t model.EventType) []model.ServiceEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.ServiceEvent
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type rig struct {
	platform  *drivertest.Platform
	manager   *connection.Manager
	compiler  *escpos.Compiler
	jobs      repository.PrintJobRepository
	publisher *recordingPublisher
	service   *PrinterService
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "Kapihan sa Kanto"},
		Bluetooth: config.BluetoothConfig{
			ScanTimeout: 100 * time.Millisecond,
		},
		Printing: config.PrintingConfig{
			JobTimeout: 5 * time.Second,
		},
	}
}

func newRig(t *testing.T, cfg *config.Config, withMonitor bool) *rig {
	t.Helper()
	logger := zaptest.NewLogger(t)

	platform := drivertest.NewPlatform()
	platform.AddPeripheral(&drivertest.Peripheral{
		Advertisement: driver.Advertisement{
			Address:      printerAddr,
			LocalName:    "MTP-II",
			ServiceUUIDs: []string{"000018f0-0000-1000-8000-00805f9b34fb"},
			Connectable:  true,
		},
		Services: []drivertest.ServiceLayout{{
			UUID: "000018f0-0000-1000-8000-00805f9b34fb",
			Characteristics: []*driver.Characteristic{
				drivertest.WritableCharacteristic("00002af1-0000-1000-8000-00805f9b34fb", driver.PropWriteNR),
			},
		}},
	})

	connCfg := connection.DefaultConfig()
	connCfg.ConnectTimeout = time.Second
	connCfg.ReconnectDelay = 5 * time.Millisecond
	connCfg.MaxAttempts = 2
	scanner := discovery.NewDeviceScanner(platform, discovery.ScanRequest{}, logger)
	manager := connection.NewManager(connCfg, platform, scanner, logger)

	writer := transport.NewWriter(transport.Config{ChunkSize: 20}, logger)
	compiler, err := escpos.NewCompiler(escpos.DefaultCompilerOptions())
	require.NoError(t, err)

	var monitor *keepalive.Monitor
	if withMonitor {
		monitor = keepalive.NewMonitor(keepalive.Config{Interval: time.Hour, AutoReconnect: false}, manager, writer, logger)
	}

	jobs := repository.NewMemoryPrintJobRepository(100, logger)
	publisher := &recordingPublisher{}

	ps := NewPrinterService(manager, writer, compiler, drawer.NewController(writer, logger), monitor, jobs, publisher, cfg, logger)
	ps.now = func() time.Time { return fixedClock }
	ps.Start()
	t.Cleanup(ps.Stop)

	return &rig{
		platform:  platform,
		manager:   manager,
		compiler:  compiler,
		jobs:      jobs,
		publisher: publisher,
		service:   ps,
	}
}

func (r *rig) connect(t *testing.T) {
	t.Helper()
	_, err := r.service.Connect(context.Background(), &ConnectRequest{Address: printerAddr})
	require.NoError(t, err)
}

// written concatenates every chunk written to the current link
func (r *rig) written() []byte {
	link := r.platform.LastLink()
	if link == nil {
		return nil
	}
	var buf bytes.Buffer
	for _, w := range link.Writes() {
		buf.Write(w.Data)
	}
	return buf.Bytes()
}

func (r *rig) jobStatus(t *testing.T, job *model.PrintJob) model.JobStatus {
	t.Helper()
	stored, err := r.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	return stored.Status
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleReceipt(orderID string) *receipt.Model {
	return &receipt.Model{
		Header: receipt.Header{
			StoreName: "Kapihan sa Kanto",
			OrderID:   orderID,
			Cashier:   "Liza",
		},
		Items: []receipt.LineItem{
			{Name: "Burger", Quantity: 1, UnitPrice: money("100"), LineTotal: money("100")},
			{Name: "Fries", Quantity: 2, UnitPrice: money("40"), LineTotal: money("80")},
		},
		Totals: receipt.Totals{
			Subtotal:   money("180"),
			GrandTotal: money("180"),
			Tendered:   money("200"),
			Change:     money("20"),
		},
		PaymentMethod: "CASH",
	}
}

func TestPrintWhileConnectedSendsCompiledStream(t *testing.T) {
	r := newRig(t, testConfig(), false)
	r.connect(t)

	rec := sampleReceipt("A-1001")
	job, err := r.service.Print(context.Background(), &PrintRequest{Receipt: rec})
	require.NoError(t, err)

	expected := r.compiler.Compile(rec, fixedClock)
	assert.Equal(t, expected.Bytes(), r.written())

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.JobSourceManual, job.Source)
	assert.Equal(t, expected.Len(), job.Bytes)
	assert.Equal(t, len(expected.Chunks(20)), job.Chunks)
	require.NotNil(t, job.DeviceAddr)
	assert.Equal(t, printerAddr, *job.DeviceAddr)
	assert.True(t, job.GrandTotal.Equal(money("180")))
	assert.Equal(t, model.JobStatusCompleted, r.jobStatus(t, job))

	assert.Len(t, r.publisher.ofType(model.EventPrintCompleted), 1)
	assert.Equal(t, int64(1), r.service.Stats().TotalPrintJobs)
	assert.Equal(t, int64(0), r.service.Stats().FailedPrintJobs)
}

func TestPrintWhileDisconnectedIsRejectedWithoutWriting(t *testing.T) {
	r := newRig(t, testConfig(), false)

	job, err := r.service.Print(context.Background(), &PrintRequest{Receipt: sampleReceipt("A-1002")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotConnected))
	assert.Empty(t, r.platform.Links())

	require.NotNil(t, job)
	assert.Equal(t, model.JobStatusRejected, job.Status)
	require.NotNil(t, job.ErrorKind)
	assert.Equal(t, model.KindNotConnected, *job.ErrorKind)
	assert.Equal(t, model.JobStatusRejected, r.jobStatus(t, job))

	assert.Len(t, r.publisher.ofType(model.EventPrintFailed), 1)
	stats := r.service.Stats()
	assert.Equal(t, int64(1), stats.TotalPrintJobs)
	assert.Equal(t, int64(1), stats.FailedPrintJobs)
	require.NotNil(t, stats.LastError)
}

func TestPrintWriteFailureIsJournaledAsFailed(t *testing.T) {
	r := newRig(t, testConfig(), false)
	r.connect(t)
	r.platform.SetWriteError(errors.New("gatt: write rejected"))

	job, err := r.service.Print(context.Background(), &PrintRequest{Receipt: sampleReceipt("A-1003")})
	require.Error(t, err)
	assert.Equal(t, model.KindWriteFailure, model.KindOf(err))

	assert.Equal(t, model.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "gatt: write rejected")
	assert.Equal(t, model.JobStatusFailed, r.jobStatus(t, job))
}

func TestPrintRejectsInvalidReceiptBeforeJournaling(t *testing.T) {
	r := newRig(t, testConfig(), false)

	rec := sampleReceipt("")
	_, err := r.service.Print(context.Background(), &PrintRequest{Receipt: rec})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidReceipt))

	_, err = r.service.Print(context.Background(), &PrintRequest{})
	assert.True(t, errors.Is(err, ErrInvalidReceipt))

	result, err := r.service.ListJobs(context.Background(), model.JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Nil(t, r.service.Stats().LastError)
}

func TestPreviewCompilesWithoutSending(t *testing.T) {
	r := newRig(t, testConfig(), false)
	r.connect(t)

	rec := sampleReceipt("A-1004")
	preview, err := r.service.Preview(context.Background(), rec)
	require.NoError(t, err)

	expected := r.compiler.Compile(rec, fixedClock)
	assert.Equal(t, expected.Hex(), preview.Hex)
	assert.Equal(t, expected.Len(), preview.Bytes)
	assert.Equal(t, 20, preview.ChunkSize)
	assert.Equal(t, len(expected.Chunks(20)), preview.Chunks)
	assert.Empty(t, r.written())
}

func TestTestPrintUsesSelfTestReceipt(t *testing.T) {
	r := newRig(t, testConfig(), false)
	r.connect(t)

	job, err := r.service.TestPrint(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.JobSourceTest, job.Source)
	assert.Equal(t, "TEST-092653", job.OrderID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Contains(t, string(r.written()), "Printer self-test")
}

func TestOpenDrawer(t *testing.T) {
	r := newRig(t, testConfig(), false)

	err := r.service.OpenDrawer(context.Background())
	assert.True(t, errors.Is(err, model.ErrNotConnected))
	assert.Empty(t, r.publisher.ofType(model.EventDrawerOpened))

	r.connect(t)
	require.NoError(t, r.service.OpenDrawer(context.Background()))
	assert.Equal(t, []byte{0x1B, 0x70, 0x00, 0x19, 0xFA}, r.written())
	assert.Len(t, r.publisher.ofType(model.EventDrawerOpened), 1)
}

func TestAutoPrintDisabledJournalsSkipped(t *testing.T) {
	r := newRig(t, testConfig(), false)
	r.connect(t)

	job, err := r.service.SubmitCompletedOrder(context.Background(), sampleReceipt("A-2001"))
	require.NoError(t, err)

	assert.Equal(t, model.JobSourceAuto, job.Source)
	assert.Equal(t, model.JobStatusSkipped, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, errAutoPrintDisabled.Error(), *job.Error)
	assert.Empty(t, r.written())
}

func TestAutoPrintSendsWhenConnected(t *testing.T) {
	cfg := testConfig()
	cfg.Printing.AutoPrint = config.AutoPrintConfig{Enabled: true}
	r := newRig(t, cfg, false)
	r.connect(t)

	rec := sampleReceipt("A-2002")
	job, err := r.service.SubmitCompletedOrder(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)

	require.Eventually(t, func() bool {
		return r.jobStatus(t, job) == model.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, r.compiler.Compile(rec, fixedClock).Bytes(), r.written())
}

func TestAutoPrintSkipsWhenNotConnected(t *testing.T) {
	cfg := testConfig()
	cfg.Printing.AutoPrint = config.AutoPrintConfig{Enabled: true}
	r := newRig(t, cfg, false)

	job, err := r.service.SubmitCompletedOrder(context.Background(), sampleReceipt("A-2003"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return r.jobStatus(t, job) == model.JobStatusSkipped
	}, 2*time.Second, 5*time.Millisecond)

	stored, err := r.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Error)
	assert.Equal(t, errAutoNotConnected.Error(), *stored.Error)
	assert.Equal(t, int64(0), r.service.Stats().TotalPrintJobs)
}

func TestAutoPrintQueueKeepsNewestAndReleasesOnConnect(t *testing.T) {
	cfg := testConfig()
	cfg.Printing.AutoPrint = config.AutoPrintConfig{Enabled: true, QueueWhileDisconnected: true}
	r := newRig(t, cfg, false)

	first, err := r.service.SubmitCompletedOrder(context.Background(), sampleReceipt("A-3001"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r.service.autoMu.Lock()
		defer r.service.autoMu.Unlock()
		return r.service.autoQueued != nil
	}, 2*time.Second, 5*time.Millisecond)

	second, err := r.service.SubmitCompletedOrder(context.Background(), sampleReceipt("A-3002"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return r.jobStatus(t, first) == model.JobStatusSkipped
	}, 2*time.Second, 5*time.Millisecond)

	stored, err := r.jobs.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Error)
	assert.Equal(t, errAutoSuperseded.Error(), *stored.Error)
	assert.Equal(t, model.JobStatusPending, r.jobStatus(t, second))

	r.connect(t)
	require.Eventually(t, func() bool {
		return r.jobStatus(t, second) == model.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, string(r.written()), "A-3002")
}

func TestAutoPrintSkipsAfterFailedProbe(t *testing.T) {
	cfg := testConfig()
	cfg.Printing.AutoPrint = config.AutoPrintConfig{Enabled: true, RequireHealthy: true}
	r := newRig(t, cfg, true)
	r.connect(t)

	r.platform.SetWriteError(errors.New("gatt: write rejected"))
	require.Error(t, r.service.monitor.Probe(context.Background()))
	r.platform.SetWriteError(nil)
	require.True(t, r.service.monitor.Health().LastProbeFailed)

	job, err := r.service.SubmitCompletedOrder(context.Background(), sampleReceipt("A-4001"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return r.jobStatus(t, job) == model.JobStatusSkipped
	}, 2*time.Second, 5*time.Millisecond)

	stored, err := r.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Error)
	assert.Equal(t, errAutoUnhealthy.Error(), *stored.Error)
}

func TestStopSkipsPendingAutoPrint(t *testing.T) {
	cfg := testConfig()
	cfg.Printing.AutoPrint = config.AutoPrintConfig{Enabled: true, Delay: time.Hour}
	r := newRig(t, cfg, false)
	r.connect(t)

	job, err := r.service.SubmitCompletedOrder(context.Background(), sampleReceipt("A-5001"))
	require.NoError(t, err)

	r.service.Stop()

	stored, err := r.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSkipped, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Equal(t, errAutoShutdown.Error(), *stored.Error)
}

func TestStateChangesAreForwarded(t *testing.T) {
	r := newRig(t, testConfig(), false)
	r.connect(t)

	require.Eventually(t, func() bool {
		for _, ev := range r.publisher.ofType(model.EventStateChanged) {
			if ev.Data["to"] == model.StateConnected {
				return ev.Source == "connection" && ev.Severity == "INFO"
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStatusReportsSessionHealthAndJobs(t *testing.T) {
	r := newRig(t, testConfig(), true)
	r.connect(t)

	_, err := r.service.Print(context.Background(), &PrintRequest{Receipt: sampleReceipt("A-6001")})
	require.NoError(t, err)

	status := r.service.Status(context.Background())
	assert.Equal(t, "fake", status.Backend)
	assert.True(t, status.Available)
	assert.Nil(t, status.Availability)
	assert.Equal(t, model.StateConnected, status.Session.State)
	require.NotNil(t, status.Health)
	require.NotNil(t, status.KeepAlive)
	require.NotNil(t, status.Jobs)
	assert.Equal(t, int64(1), status.Jobs.Completed)
	assert.Equal(t, int64(1), status.Transport.Sends)

	r.platform.SetUnsupported(true)
	status = r.service.Status(context.Background())
	assert.False(t, status.Available)
	require.NotNil(t, status.Availability)
}

func TestScanReturnsCandidates(t *testing.T) {
	r := newRig(t, testConfig(), false)

	devices, err := r.service.Scan(context.Background(), &ScanRequest{AcceptAll: true})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, printerAddr, devices[0].Address)
	assert.Equal(t, model.StateDisconnected, r.manager.State())
}
