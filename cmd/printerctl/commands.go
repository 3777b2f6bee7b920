// cmd/printerctl/commands.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"printer-service/internal/app"
	"printer-service/internal/config"
	"printer-service/internal/model"
	"printer-service/internal/repository"
	"printer-service/internal/service"
	"printer-service/internal/utils"
	"printer-service/pkg/receipt"
)

// cliJournalCap bounds the in-memory journal of a single CLI run
const cliJournalCap = 16

// session is a printer service built for one CLI command
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	printer *app.Printer
	svc     *service.PrinterService
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := config.LoadFrom(viper.New(), c.GlobalString("config"))
	if err != nil {
		return nil, fmt.Errorf("can't load config: %w", err)
	}

	// stdout carries command output
	cfg.Logging.Output = "stderr"
	cfg.Logging.Format = "console"
	if c.GlobalBool("verbose") {
		cfg.Logging.Level = "debug"
	}
	// the CLI never schedules unattended prints or probes
	cfg.Printing.AutoPrint.Enabled = false
	cfg.KeepAlive.Enabled = false

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("can't create logger: %w", err)
	}

	printer, err := app.NewPrinter(cfg, logger)
	if err != nil {
		return nil, err
	}

	jobs := repository.NewMemoryPrintJobRepository(cliJournalCap, logger)
	svc := service.NewPrinterService(
		printer.Manager,
		printer.Writer,
		printer.Compiler,
		printer.Drawer,
		nil,
		jobs,
		nil,
		cfg,
		logger,
	)

	return &session{cfg: cfg, logger: logger, printer: printer, svc: svc}, nil
}

func (s *session) close() {
	s.svc.Stop()
	if err := s.printer.Close(); err != nil {
		s.logger.Debug("Platform close failed", zap.Error(err))
	}
	_ = utils.CloseLogger(s.logger)
}

// connect opens a session to --addr, or to the best candidate when unset
func (s *session) connect(ctx context.Context, c *cli.Context) error {
	req := &service.ConnectRequest{Address: c.String("addr")}
	if prefix := c.String("name"); prefix != "" {
		req.NamePrefixes = []string{prefix}
	}

	info, err := s.svc.Connect(ctx, req)
	if err != nil {
		return describe(err)
	}
	if info.Device != nil {
		fmt.Printf("Connected to %s [ %s ]\n", info.Device.DisplayName(), info.Device.Address)
	}
	return nil
}

func scan(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	req := &service.ScanRequest{
		TimeoutSeconds: int(c.Duration("duration").Seconds()),
		AcceptAll:      c.Bool("all"),
	}
	if prefix := c.String("name"); prefix != "" {
		req.NamePrefixes = []string{prefix}
	}

	fmt.Printf("Scanning for %s...\n", c.Duration("duration"))
	devices, err := s.svc.Scan(context.Background(), req)
	if err != nil {
		return describe(err)
	}

	if len(devices) == 0 {
		fmt.Println("No printers found")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("%-20s %-24s RSSI: %4d  %s\n", d.Address, d.DisplayName(), d.RSSI, strings.Join(d.ServiceUUIDs, ","))
	}
	return nil
}

func printReceipt(c *cli.Context) error {
	r, err := readReceipt(c)
	if err != nil {
		return err
	}

	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("tmo"))
	defer cancel()

	if err := s.connect(ctx, c); err != nil {
		return err
	}

	job, err := s.svc.Print(ctx, &service.PrintRequest{Receipt: r, Source: model.JobSourceManual})
	if err != nil {
		return describe(err)
	}
	printJob(job)
	return nil
}

func testPrint(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("tmo"))
	defer cancel()

	if err := s.connect(ctx, c); err != nil {
		return err
	}

	job, err := s.svc.TestPrint(ctx)
	if err != nil {
		return describe(err)
	}
	printJob(job)
	return nil
}

func openDrawer(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("tmo"))
	defer cancel()

	if err := s.connect(ctx, c); err != nil {
		return err
	}

	if err := s.svc.OpenDrawer(ctx); err != nil {
		return describe(err)
	}
	fmt.Println("Drawer kick sent")
	return nil
}

func preview(c *cli.Context) error {
	r, err := readReceipt(c)
	if err != nil {
		return err
	}

	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.svc.Preview(context.Background(), r)
	if err != nil {
		return err
	}

	fmt.Printf("%d bytes, %d chunks of %d\n", result.Bytes, result.Chunks, result.ChunkSize)
	fmt.Println(result.Hex)
	return nil
}

func readReceipt(c *cli.Context) (*receipt.Model, error) {
	path := c.Args().First()
	if path == "" {
		return nil, fmt.Errorf("missing receipt file, usage: %s %s", c.Command.Name, c.Command.ArgsUsage)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read receipt: %w", err)
	}

	var r receipt.Model
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("can't parse receipt %s: %w", path, err)
	}
	return &r, nil
}

func printJob(job *model.PrintJob) {
	fmt.Printf("Job %s %s: %d bytes in %d chunks", job.ID, job.Status, job.Bytes, job.Chunks)
	if job.DurationMs != nil {
		fmt.Printf(" (%dms)", *job.DurationMs)
	}
	fmt.Println()
}

// describe appends the operator hint to printer errors
func describe(err error) error {
	if hint := model.HintOf(err); hint != "" {
		return fmt.Errorf("%w (%s)", err, hint)
	}
	return err
}
