// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "printer-service/docs"
	"printer-service/internal/app"
	"printer-service/internal/config"
	"printer-service/internal/database"
	"printer-service/internal/handler"
	"printer-service/internal/repository"
	"printer-service/internal/routes"
	"printer-service/internal/service"
	"printer-service/internal/utils"
)

const shutdownTimeout = 30 * time.Second

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	router   *routes.Router
	database *database.DB

	jobRepo        repository.PrintJobRepository
	printer        *app.Printer
	eventBus       *handler.EventBus
	printerService *service.PrinterService
}

// @title Printer Service API
// @version 1.0.0
// @description Bluetooth receipt printer service: discovery, connection management, ESC/POS printing and cash drawer control

// @contact.name Printer Service API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /
func main() {
	application, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := application.Start(); err != nil {
		application.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, cfg.App.Name)
	serviceLogger.LogServiceStart(cfg.App.Version, map[string]interface{}{
		"environment": cfg.App.Environment,
		"address":     cfg.GetServerAddr(),
		"backend":     cfg.Bluetooth.Backend,
		"database":    cfg.Database.Enabled,
		"keepalive":   cfg.KeepAlive.Enabled,
		"auto_print":  cfg.Printing.AutoPrint.Enabled,
	})

	application := &Application{
		config: cfg,
		logger: logger,
	}

	if err := application.initializeJournal(); err != nil {
		return nil, fmt.Errorf("failed to initialize print-job journal: %w", err)
	}

	if err := application.initializePrinter(); err != nil {
		return nil, fmt.Errorf("failed to initialize printer: %w", err)
	}

	application.initializeServices()
	application.initializeServer()

	return application, nil
}

// initializeJournal opens the database when enabled and creates the job repository
func (a *Application) initializeJournal() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobs, db, err := app.NewJobRepository(ctx, a.config, a.logger)
	if err != nil {
		return err
	}

	a.jobRepo = jobs
	a.database = db

	a.logger.Info("Print-job journal initialized", zap.Bool("database", db != nil))
	return nil
}

// initializePrinter wires the Bluetooth platform, connection manager and ESC/POS pipeline
func (a *Application) initializePrinter() error {
	printer, err := app.NewPrinter(a.config, a.logger)
	if err != nil {
		return err
	}
	a.printer = printer

	a.logger.Info("Printer stack initialized",
		zap.String("backend", printer.Platform.Name()),
		zap.Bool("keepalive", printer.Monitor != nil),
	)
	return nil
}

// initializeServices creates the event bus and the printer service
func (a *Application) initializeServices() {
	a.eventBus = handler.NewEventBus(a.logger)

	a.printerService = service.NewPrinterService(
		a.printer.Manager,
		a.printer.Writer,
		a.printer.Compiler,
		a.printer.Drawer,
		a.printer.Monitor,
		a.jobRepo,
		a.eventBus,
		a.config,
		a.logger,
	)

	a.logger.Info("Services initialized successfully")
}

// initializeServer sets up HTTP server and routes
func (a *Application) initializeServer() {
	a.router = routes.NewRouter(
		a.config,
		a.logger,
		a.database,
		a.printerService,
		a.eventBus,
	)

	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      a.router.SetupRouter(),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	a.logger.Info("HTTP server initialized",
		zap.String("address", a.config.GetServerAddr()),
		zap.Bool("tls_enabled", a.config.Server.TLS.Enabled),
	)
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (a *Application) waitForShutdown(serverErr <-chan error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	reason := "shutdown signal received"
	select {
	case sig := <-quit:
		a.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		a.logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
		reason = "http server failure"
	}

	a.shutdown(reason)
}

// shutdown stops the HTTP server first so no new prints arrive, then the
// printer service, then storage
func (a *Application) shutdown(reason string) {
	serviceLogger := utils.NewServiceLogger(a.logger, a.config.App.Name)
	serviceLogger.LogServiceStop(reason)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}

	a.router.Close()
	a.printerService.Stop()
	a.eventBus.Stop()

	if err := a.printer.Close(); err != nil {
		a.logger.Warn("Bluetooth platform close error", zap.Error(err))
	}

	if a.database != nil {
		if err := a.database.Close(); err != nil {
			a.logger.Error("Database close error", zap.Error(err))
		} else {
			a.logger.Info("Database connection closed")
		}
	}

	a.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(a.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start runs the event bus, the printer service and the HTTP server until shutdown
func (a *Application) Start() error {
	go a.eventBus.Start()
	a.printerService.Start()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server",
			zap.String("address", a.server.Addr),
		)

		var err error
		if a.config.Server.TLS.Enabled {
			err = a.server.ListenAndServeTLS(
				a.config.Server.TLS.CertFile,
				a.config.Server.TLS.KeyFile,
			)
		} else {
			err = a.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	a.waitForShutdown(serverErr)

	return nil
}
