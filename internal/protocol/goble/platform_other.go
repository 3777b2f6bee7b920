//go:build !linux

// internal/protocol/goble/platform_other.go
package goble

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/pkg/driver"
)

var errNoHCI = errors.New("raw HCI access is only available on linux")

// Platform reports BluetoothUnsupported for every call outside linux
type Platform struct{}

func NewPlatform(cfg Config, logger *zap.Logger) (*Platform, error) {
	return &Platform{}, nil
}

func (p *Platform) Name() string { return string(model.BackendGoBLE) }

func (p *Platform) Available(ctx context.Context) error {
	return model.NewError(model.KindBluetoothUnsupported, errNoHCI)
}

func (p *Platform) Scan(ctx context.Context, filter driver.ScanFilter) ([]driver.Advertisement, error) {
	return nil, model.NewError(model.KindBluetoothUnsupported, errNoHCI)
}

func (p *Platform) Connect(ctx context.Context, address string) (driver.Link, error) {
	return nil, model.NewError(model.KindBluetoothUnsupported, errNoHCI)
}

func (p *Platform) Close() error { return nil }
