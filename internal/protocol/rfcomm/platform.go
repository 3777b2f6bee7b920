// internal/protocol/rfcomm/platform.go
package rfcomm

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/pkg/devicetypes"
	"printer-service/pkg/driver"
)

const (
	DefaultBaudRate    = 115200
	DefaultPortPattern = "/dev/rfcomm*"
	DefaultReadTimeout = 500 * time.Millisecond
)

// WriteUUID names the single virtual write characteristic of an RFCOMM link
const WriteUUID = devicetypes.RFCOMMServiceUUID

// Config represents RFCOMM backend configuration
type Config struct {
	PortPatterns []string
	BaudRate     int
	ReadTimeout  time.Duration
}

// Platform reaches classic SPP printers already bound to a tty by rfcomm(1).
// Addresses are port paths; every link exposes one service with one write characteristic.
type Platform struct {
	cfg    Config
	logger *zap.Logger

	listPorts func() ([]string, error)
	openPort  func(name string, mode *serial.Mode) (serial.Port, error)
}

// NewPlatform creates a new RFCOMM platform
func NewPlatform(cfg Config, logger *zap.Logger) (*Platform, error) {
	if len(cfg.PortPatterns) == 0 {
		cfg.PortPatterns = []string{DefaultPortPattern}
	}
	for _, pattern := range cfg.PortPatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid port pattern %q: %w", pattern, err)
		}
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	return &Platform{
		cfg:       cfg,
		logger:    logger.With(zap.String("backend", string(model.BackendRFCOMM))),
		listPorts: serial.GetPortsList,
		openPort:  serial.Open,
	}, nil
}

func (p *Platform) Name() string { return string(model.BackendRFCOMM) }

// Available only requires that serial ports can be enumerated
func (p *Platform) Available(ctx context.Context) error {
	if _, err := p.listPorts(); err != nil {
		return model.NewError(model.KindBluetoothUnsupported, fmt.Errorf("serial ports error: %w", err))
	}
	return nil
}

// Scan lists bound RFCOMM ports once; there is nothing to wait for
func (p *Platform) Scan(ctx context.Context, filter driver.ScanFilter) ([]driver.Advertisement, error) {
	ports, err := p.listPorts()
	if err != nil {
		return nil, fmt.Errorf("serial ports error: %w", err)
	}

	var ads []driver.Advertisement
	for _, port := range ports {
		if !p.matches(port) {
			continue
		}
		ads = append(ads, driver.Advertisement{
			Address:      port,
			LocalName:    filepath.Base(port),
			ServiceUUIDs: []string{devicetypes.RFCOMMServiceUUID},
			Connectable:  true,
		})
	}

	p.logger.Debug("RFCOMM ports listed", zap.Int("ports", len(ports)), zap.Int("matched", len(ads)))
	return ads, nil
}

func (p *Platform) matches(port string) bool {
	for _, pattern := range p.cfg.PortPatterns {
		if ok, _ := filepath.Match(pattern, port); ok {
			return true
		}
	}
	return false
}

func (p *Platform) Connect(ctx context.Context, address string) (driver.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: p.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := p.openPort(address, mode)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "permission denied") {
			return nil, fmt.Errorf("%w: %v", driver.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("failed to open port %s: %w", address, err)
	}
	if err := port.SetReadTimeout(p.cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	p.logger.Info("RFCOMM port opened", zap.String("port", address), zap.Int("baud_rate", p.cfg.BaudRate))
	return newLink(address, port, p.logger), nil
}

func (p *Platform) Close() error { return nil }
