// internal/protocol/bluez/platform.go
package bluez

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"printer-service/internal/model"
	"printer-service/pkg/driver"
)

const (
	DefaultAdapter      = "hci0"
	DefaultPollInterval = time.Second

	resolvePollInterval = 200 * time.Millisecond
)

// Config represents BlueZ backend configuration
type Config struct {
	Adapter      string
	PollInterval time.Duration
}

// Platform drives BlueZ over the system D-Bus
type Platform struct {
	cfg     Config
	conn    *dbus.Conn
	adapter dbus.ObjectPath
	logger  *zap.Logger
}

// NewPlatform connects to the system bus. The adapter itself is checked by Available.
func NewPlatform(cfg Config, logger *zap.Logger) (*Platform, error) {
	if cfg.Adapter == "" {
		cfg.Adapter = DefaultAdapter
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system D-Bus: %w", err)
	}

	return &Platform{
		cfg:     cfg,
		conn:    conn,
		adapter: dbus.ObjectPath("/org/bluez/" + cfg.Adapter),
		logger: logger.With(
			zap.String("backend", string(model.BackendBlueZ)),
			zap.String("adapter", cfg.Adapter),
		),
	}, nil
}

func (p *Platform) Name() string { return string(model.BackendBlueZ) }

// Available requires the adapter object to exist and be powered
func (p *Platform) Available(ctx context.Context) error {
	var powered dbus.Variant
	err := p.conn.Object(busName, p.adapter).
		CallWithContext(ctx, propsInterface+".Get", 0, adapterInterface, "Powered").
		Store(&powered)
	if err != nil {
		return model.NewError(model.KindBluetoothUnsupported, fmt.Errorf("adapter %s: %w", p.cfg.Adapter, err))
	}
	if on, _ := powered.Value().(bool); !on {
		return model.Errorf(model.KindBluetoothUnsupported, "adapter %s is powered off", p.cfg.Adapter)
	}
	return nil
}

// Scan runs LE discovery and polls the object tree until ctx or the filter timeout ends
func (p *Platform) Scan(ctx context.Context, filter driver.ScanFilter) ([]driver.Advertisement, error) {
	adapter := p.conn.Object(busName, p.adapter)

	discoveryFilter := map[string]interface{}{
		"Transport":     "le",
		"DuplicateData": false,
	}
	if err := adapter.CallWithContext(ctx, adapterInterface+".SetDiscoveryFilter", 0, discoveryFilter).Err; err != nil {
		// some adapters don't support filters
		p.logger.Debug("Discovery filter rejected", zap.Error(err))
	}

	if err := adapter.CallWithContext(ctx, adapterInterface+".StartDiscovery", 0).Err; err != nil {
		return nil, mapError(fmt.Errorf("failed to start discovery: %w", err))
	}
	defer func() {
		if err := adapter.Call(adapterInterface+".StopDiscovery", 0).Err; err != nil {
			p.logger.Debug("Failed to stop discovery", zap.Error(err))
		}
	}()

	scanCtx := ctx
	if filter.Timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, filter.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	var ads []driver.Advertisement
	for {
		select {
		case <-scanCtx.Done():
			return ads, scanCtx.Err()
		case <-ticker.C:
			objs, err := p.managedObjects(scanCtx)
			if err != nil {
				if scanCtx.Err() != nil {
					return ads, scanCtx.Err()
				}
				p.logger.Warn("Failed to list managed objects during scan", zap.Error(err))
				continue
			}
			ads = objs.advertisements(p.adapter)
		}
	}
}

// Connect asks BlueZ to connect and waits until GATT services are resolved
func (p *Platform) Connect(ctx context.Context, address string) (driver.Link, error) {
	path := devicePath(p.adapter, address)

	l, err := newLink(p.conn, address, path, p.logger)
	if err != nil {
		return nil, err
	}

	err = p.conn.Object(busName, path).CallWithContext(ctx, deviceInterface+".Connect", 0).Err
	switch errorName(err) {
	case "", "org.bluez.Error.InProgress", "org.bluez.Error.AlreadyConnected":
	default:
		_ = l.Close()
		return nil, mapError(fmt.Errorf("failed to connect to %s: %w", address, err))
	}

	if err := p.waitServicesResolved(ctx, path); err != nil {
		_ = l.Close()
		return nil, err
	}

	p.logger.Info("GATT services resolved", zap.String("address", address))
	return l, nil
}

func (p *Platform) Close() error {
	return p.conn.Close()
}

func (p *Platform) waitServicesResolved(ctx context.Context, path dbus.ObjectPath) error {
	ticker := time.NewTicker(resolvePollInterval)
	defer ticker.Stop()

	dev := p.conn.Object(busName, path)
	for {
		var resolved dbus.Variant
		err := dev.CallWithContext(ctx, propsInterface+".Get", 0, deviceInterface, "ServicesResolved").Store(&resolved)
		if err == nil {
			if ok, _ := resolved.Value().(bool); ok {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for services of %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *Platform) managedObjects(ctx context.Context) (managedObjects, error) {
	return fetchManagedObjects(ctx, p.conn)
}

func fetchManagedObjects(ctx context.Context, conn *dbus.Conn) (managedObjects, error) {
	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	if err := conn.Object(busName, "/").CallWithContext(ctx, getManagedObjects, 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("failed to get managed objects: %w", err)
	}
	return managedObjects(objects), nil
}

// errorName returns the D-Bus error name carried by err, "" for nil or foreign errors
func errorName(err error) string {
	if err == nil {
		return ""
	}
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name
	}
	return "unknown"
}

// mapError tags BlueZ authorization failures with driver.ErrPermissionDenied
func mapError(err error) error {
	switch errorName(err) {
	case "org.bluez.Error.NotPermitted",
		"org.bluez.Error.NotAuthorized",
		"org.bluez.Error.AuthenticationFailed",
		"org.bluez.Error.AuthenticationRejected",
		"org.freedesktop.DBus.Error.AccessDenied":
		return fmt.Errorf("%w: %v", driver.ErrPermissionDenied, err)
	case "org.bluez.Error.NotReady":
		return model.NewError(model.KindBluetoothUnsupported, err)
	}
	return err
}
