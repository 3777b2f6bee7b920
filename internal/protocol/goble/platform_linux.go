//go:build linux

// internal/protocol/goble/platform_linux.go
package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/pkg/driver"
)

// Platform talks HCI directly through go-ble. It needs CAP_NET_ADMIN and an
// adapter that bluetoothd is not holding.
type Platform struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	device *linux.Device
	err    error
}

// NewPlatform creates a new go-ble platform. The HCI device is opened on first use.
func NewPlatform(cfg Config, logger *zap.Logger) (*Platform, error) {
	return &Platform{
		cfg:    cfg,
		logger: logger.With(zap.String("backend", string(model.BackendGoBLE)), zap.Int("hci", cfg.DeviceID)),
	}, nil
}

func (p *Platform) Name() string { return string(model.BackendGoBLE) }

func (p *Platform) open() (*linux.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		return p.device, nil
	}
	d, err := linux.NewDevice(ble.OptDeviceID(p.cfg.DeviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to open hci%d: %w", p.cfg.DeviceID, err)
	}
	p.device = d
	p.logger.Info("HCI device opened")
	return d, nil
}

// Available opens the HCI device; failure means no usable adapter
func (p *Platform) Available(ctx context.Context) error {
	if _, err := p.open(); err != nil {
		if isPermission(err) {
			return model.NewError(model.KindSecurityError, fmt.Errorf("%w: %v", driver.ErrPermissionDenied, err))
		}
		return model.NewError(model.KindBluetoothUnsupported, err)
	}
	return nil
}

func (p *Platform) Scan(ctx context.Context, filter driver.ScanFilter) ([]driver.Advertisement, error) {
	d, err := p.open()
	if err != nil {
		return nil, model.NewError(model.KindBluetoothUnsupported, err)
	}

	scanCtx := ctx
	if filter.Timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, filter.Timeout)
		defer cancel()
	}

	var mu sync.Mutex
	var ads []driver.Advertisement
	handler := func(a ble.Advertisement) {
		services := make([]string, 0, len(a.Services()))
		for _, u := range a.Services() {
			services = append(services, driver.NormalizeUUID(u.String()))
		}
		mu.Lock()
		ads = append(ads, driver.Advertisement{
			Address:      strings.ToUpper(a.Addr().String()),
			LocalName:    a.LocalName(),
			RSSI:         a.RSSI(),
			ServiceUUIDs: services,
			Connectable:  a.Connectable(),
		})
		mu.Unlock()
	}

	// allowDup keeps RSSI fresh; the scanner merges duplicates
	err = d.Scan(scanCtx, true, handler)

	mu.Lock()
	defer mu.Unlock()
	if err != nil && scanCtx.Err() == nil {
		return ads, fmt.Errorf("hci scan: %w", err)
	}
	return ads, scanCtx.Err()
}

func (p *Platform) Connect(ctx context.Context, address string) (driver.Link, error) {
	d, err := p.open()
	if err != nil {
		return nil, model.NewError(model.KindBluetoothUnsupported, err)
	}

	client, err := d.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}

	l := &link{client: client, address: address, logger: p.logger.With(zap.String("address", address))}
	if p.cfg.MTU > ble.DefaultMTU {
		mtu, err := client.ExchangeMTU(p.cfg.MTU)
		if err != nil {
			// peripheral keeps the default ATT MTU
			l.logger.Debug("MTU exchange refused", zap.Error(err))
		} else {
			l.mtu = mtu
		}
	}
	if l.mtu == 0 {
		l.mtu = ble.DefaultMTU
	}
	return l, nil
}

func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return nil
	}
	err := p.device.Stop()
	p.device = nil
	return err
}

type link struct {
	client  ble.Client
	address string
	mtu     int
	logger  *zap.Logger

	mu       sync.Mutex
	services []*ble.Service
}

func (l *link) Address() string { return l.address }

func (l *link) MTU() int { return l.mtu }

func (l *link) DiscoverService(ctx context.Context, uuid string) (*driver.Service, error) {
	want, err := ble.Parse(driver.NormalizeUUID(uuid))
	if err != nil {
		return nil, fmt.Errorf("invalid service uuid %q: %w", uuid, err)
	}

	services, err := l.allServices(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range services {
		if s.UUID.Equal(want) {
			return &driver.Service{UUID: driver.NormalizeUUID(uuid), Handle: s}, nil
		}
	}
	return nil, driver.ErrServiceNotFound
}

// allServices discovers the primary services once per link
func (l *link) allServices(ctx context.Context) ([]*ble.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.services != nil {
		return l.services, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	services, err := l.client.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}
	l.services = services
	return services, nil
}

func (l *link) Characteristics(ctx context.Context, svc *driver.Service) ([]*driver.Characteristic, error) {
	s, ok := svc.Handle.(*ble.Service)
	if !ok {
		return nil, fmt.Errorf("service %s has no go-ble handle", svc.UUID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chars, err := l.client.DiscoverCharacteristics(nil, s)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics of %s: %w", svc.UUID, err)
	}

	out := make([]*driver.Characteristic, 0, len(chars))
	for _, c := range chars {
		out = append(out, &driver.Characteristic{
			UUID:       driver.NormalizeUUID(c.UUID.String()),
			Properties: driver.Property(c.Property),
			Handle:     c,
		})
	}
	return out, nil
}

func (l *link) Write(ctx context.Context, c *driver.Characteristic, data []byte, withoutResponse bool) error {
	char, ok := c.Handle.(*ble.Characteristic)
	if !ok {
		return fmt.Errorf("characteristic %s has no go-ble handle", c.UUID)
	}

	select {
	case <-l.client.Disconnected():
		return driver.ErrLinkClosed
	default:
	}

	done := make(chan error, 1)
	go func() {
		done <- l.client.WriteCharacteristic(char, data, withoutResponse)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write %s: %w", c.UUID, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *link) Disconnected() <-chan struct{} { return l.client.Disconnected() }

func (l *link) Close() error {
	select {
	case <-l.client.Disconnected():
		return nil
	default:
	}
	return l.client.CancelConnection()
}

func isPermission(err error) bool {
	msg := strings.ToLower(err.Error())
	return errors.Is(err, driver.ErrPermissionDenied) ||
		strings.Contains(msg, "operation not permitted") ||
		strings.Contains(msg, "permission denied")
}
