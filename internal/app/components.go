// internal/app/components.go
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/connection"
	"printer-service/internal/database"
	"printer-service/internal/discovery"
	"printer-service/internal/drawer"
	"printer-service/internal/driver/escpos"
	"printer-service/internal/keepalive"
	"printer-service/internal/protocol"
	"printer-service/internal/repository"
	"printer-service/internal/transport"
	"printer-service/pkg/driver"
)

// Printer is the wired printer stack shared by the server and the CLI
type Printer struct {
	Platform driver.Platform
	Scanner  *discovery.DeviceScanner
	Manager  *connection.Manager
	Writer   *transport.Writer
	Compiler *escpos.Compiler
	Drawer   *drawer.Controller
	Monitor  *keepalive.Monitor
}

// NewPrinter builds the printer stack from configuration. Monitor is nil when
// keep-alive is disabled.
func NewPrinter(cfg *config.Config, logger *zap.Logger) (*Printer, error) {
	compiler, err := escpos.NewCompiler(CompilerOptions(&cfg.Receipt))
	if err != nil {
		return nil, fmt.Errorf("invalid receipt configuration: %w", err)
	}

	platform := protocol.CreatePlatform(&cfg.Bluetooth, logger)
	scanner := discovery.NewDeviceScanner(platform, ScanDefaults(&cfg.Bluetooth), logger)
	manager := connection.NewManager(ConnectionConfig(cfg), platform, scanner, logger)
	writer := transport.NewWriter(transport.Config{
		ChunkSize:   cfg.Transport.ChunkSize,
		PacingDelay: cfg.Transport.PacingDelay,
	}, logger)

	p := &Printer{
		Platform: platform,
		Scanner:  scanner,
		Manager:  manager,
		Writer:   writer,
		Compiler: compiler,
		Drawer:   drawer.NewController(writer, logger),
	}

	if cfg.KeepAlive.Enabled {
		p.Monitor = keepalive.NewMonitor(keepalive.Config{
			Interval:        cfg.KeepAlive.Interval,
			ReconnectWindow: cfg.KeepAlive.ReconnectWindow,
			AutoReconnect:   cfg.Reconnect.Enabled,
		}, manager, writer, logger)
	}

	return p, nil
}

// Close releases the session and the platform
func (p *Printer) Close() error {
	if err := p.Manager.Close(); err != nil {
		return err
	}
	return p.Platform.Close()
}

// ConnectionConfig maps configuration onto the connection manager
func ConnectionConfig(cfg *config.Config) connection.Config {
	out := connection.DefaultConfig()
	out.CandidateServices = protocol.CandidateServices(&cfg.Bluetooth)
	out.PreferWriteWithoutResponse = cfg.Bluetooth.PreferWithoutResp
	out.AutoReconnect = cfg.Reconnect.Enabled
	if cfg.Bluetooth.ConnectTimeout > 0 {
		out.ConnectTimeout = cfg.Bluetooth.ConnectTimeout
	}
	// zero is meaningful here: no delay, or no reconnect attempts
	out.ReconnectDelay = cfg.Reconnect.Delay
	out.MaxAttempts = cfg.Reconnect.MaxAttempts
	return out
}

// ScanDefaults maps configuration onto discovery defaults
func ScanDefaults(cfg *config.BluetoothConfig) discovery.ScanRequest {
	return discovery.ScanRequest{
		Timeout:      cfg.ScanTimeout,
		ServiceUUIDs: protocol.CandidateServices(cfg),
		NamePrefixes: cfg.NamePrefixes,
		AcceptAll:    cfg.AcceptAll,
	}
}

// CompilerOptions maps configuration onto the receipt layout
func CompilerOptions(cfg *config.ReceiptConfig) escpos.CompilerOptions {
	opts := escpos.DefaultCompilerOptions()
	if cfg.PaperWidth > 0 {
		opts.Width = cfg.PaperWidth
	}
	opts.FeedLines = cfg.FeedLines
	if cfg.CutMode != "" {
		opts.CutMode = escpos.CutMode(cfg.CutMode)
	}
	opts.CurrencyPrefix = cfg.CurrencyPrefix
	return opts
}

// NewJobRepository opens the postgres journal when the database is enabled,
// running migrations when configured, and falls back to memory otherwise.
// The returned DB is nil for the memory journal.
func NewJobRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.PrintJobRepository, *database.DB, error) {
	if !cfg.Database.Enabled {
		logger.Info("Print-job journal kept in memory", zap.Int("capacity", cfg.Database.MemoryJobCap))
		return repository.NewMemoryPrintJobRepository(cfg.Database.MemoryJobCap, logger), nil, nil
	}

	db, err := database.NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Database.RunMigrations {
		if err := database.NewMigrator(db, logger).Up(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	return repository.NewPrintJobRepository(db, logger), db, nil
}
