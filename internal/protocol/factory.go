// internal/protocol/factory.go
package protocol

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/model"
	"printer-service/internal/protocol/bluez"
	"printer-service/internal/protocol/goble"
	"printer-service/internal/protocol/rfcomm"
	"printer-service/pkg/devicetypes"
	"printer-service/pkg/driver"
)

// CreatePlatform creates the platform backend named by cfg.Backend. A backend
// that cannot be constructed still yields a platform, one that reports
// BluetoothUnsupported, so the service starts and surfaces the reason.
func CreatePlatform(cfg *config.BluetoothConfig, logger *zap.Logger) driver.Platform {
	platform, err := createBackend(cfg, logger)
	if err != nil {
		logger.Warn("Bluetooth backend unavailable",
			zap.String("backend", cfg.Backend),
			zap.Error(err),
		)
		return &unavailablePlatform{name: cfg.Backend, err: err}
	}
	return platform
}

func createBackend(cfg *config.BluetoothConfig, logger *zap.Logger) (driver.Platform, error) {
	switch cfg.Backend {
	case config.BackendBlueZ, "":
		logger.Info("Creating BlueZ platform", zap.String("adapter", cfg.Adapter))
		return bluez.NewPlatform(bluez.Config{
			Adapter:      cfg.Adapter,
			PollInterval: cfg.ScanPollInterval,
		}, logger)
	case config.BackendGoBLE:
		logger.Info("Creating HCI platform", zap.Int("device_id", cfg.HCIDeviceID), zap.Int("mtu", cfg.MTU))
		return goble.NewPlatform(goble.Config{
			DeviceID: cfg.HCIDeviceID,
			MTU:      cfg.MTU,
		}, logger)
	case config.BackendRFCOMM:
		logger.Info("Creating RFCOMM platform", zap.Strings("port_patterns", cfg.RFCOMM.PortPatterns))
		return rfcomm.NewPlatform(rfcomm.Config{
			PortPatterns: cfg.RFCOMM.PortPatterns,
			BaudRate:     cfg.RFCOMM.BaudRate,
			ReadTimeout:  cfg.RFCOMM.ReadTimeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported bluetooth backend: %s", cfg.Backend)
	}
}

// CandidateServices returns the service negotiation order for the backend.
// Configured UUIDs come first; the rfcomm backend also needs its virtual service.
func CandidateServices(cfg *config.BluetoothConfig) []string {
	var out []string
	if cfg.Backend == config.BackendRFCOMM {
		out = append(out, devicetypes.RFCOMMServiceUUID)
	}
	out = append(out, cfg.ServiceUUIDs...)
	out = append(out, devicetypes.CandidateServiceUUIDs()...)

	seen := make(map[string]bool, len(out))
	uniq := out[:0]
	for _, u := range out {
		n := driver.NormalizeUUID(u)
		if seen[n] {
			continue
		}
		seen[n] = true
		uniq = append(uniq, n)
	}
	return uniq
}

type unavailablePlatform struct {
	name string
	err  error
}

func (p *unavailablePlatform) Name() string { return p.name }

func (p *unavailablePlatform) Available(ctx context.Context) error {
	return model.NewError(model.KindBluetoothUnsupported, p.err)
}

func (p *unavailablePlatform) Scan(ctx context.Context, filter driver.ScanFilter) ([]driver.Advertisement, error) {
	return nil, model.NewError(model.KindBluetoothUnsupported, p.err)
}

func (p *unavailablePlatform) Connect(ctx context.Context, address string) (driver.Link, error) {
	return nil, model.NewError(model.KindBluetoothUnsupported, p.err)
}

func (p *unavailablePlatform) Close() error { return nil }
