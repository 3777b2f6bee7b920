// internal/protocol/bluez/link.go
package bluez

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"printer-service/pkg/driver"
)

// link is one BlueZ device connection. Drops are reported by Device1
// PropertiesChanged signals with Connected=false.
type link struct {
	conn    *dbus.Conn
	address string
	path    dbus.ObjectPath
	logger  *zap.Logger
	mtu     atomic.Int32

	match   []dbus.MatchOption
	signals chan *dbus.Signal
	stop    chan struct{}

	disconnected chan struct{}
	dropOnce     sync.Once
	closeOnce    sync.Once
}

func newLink(conn *dbus.Conn, address string, path dbus.ObjectPath, logger *zap.Logger) (*link, error) {
	l := &link{
		conn:    conn,
		address: address,
		path:    path,
		logger:  logger.With(zap.String("address", address)),
		match: []dbus.MatchOption{
			dbus.WithMatchObjectPath(path),
			dbus.WithMatchInterface(propsInterface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		signals:      make(chan *dbus.Signal, 16),
		stop:         make(chan struct{}),
		disconnected: make(chan struct{}),
	}

	if err := conn.AddMatchSignal(l.match...); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	conn.Signal(l.signals)
	go l.watch()
	return l, nil
}

func (l *link) watch() {
	for {
		select {
		case <-l.stop:
			return
		case sig, ok := <-l.signals:
			if !ok {
				// bus connection closed
				l.drop()
				return
			}
			if sig == nil || sig.Path != l.path || sig.Name != propsInterface+".PropertiesChanged" || len(sig.Body) < 2 {
				continue
			}
			if iface, _ := sig.Body[0].(string); iface != deviceInterface {
				continue
			}
			changed, _ := sig.Body[1].(map[string]dbus.Variant)
			if v, ok := changed["Connected"]; ok {
				if connected, _ := v.Value().(bool); !connected {
					l.logger.Warn("Device reported disconnect")
					l.drop()
				}
			}
		}
	}
}

func (l *link) drop() {
	l.dropOnce.Do(func() { close(l.disconnected) })
}

func (l *link) Address() string { return l.address }

func (l *link) MTU() int { return int(l.mtu.Load()) }

func (l *link) DiscoverService(ctx context.Context, uuid string) (*driver.Service, error) {
	objs, err := fetchManagedObjects(ctx, l.conn)
	if err != nil {
		return nil, err
	}
	path, ok := objs.service(l.path, uuid)
	if !ok {
		return nil, driver.ErrServiceNotFound
	}
	return &driver.Service{UUID: driver.NormalizeUUID(uuid), Handle: path}, nil
}

func (l *link) Characteristics(ctx context.Context, svc *driver.Service) ([]*driver.Characteristic, error) {
	path, ok := svc.Handle.(dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("service %s has no BlueZ object path", svc.UUID)
	}
	objs, err := fetchManagedObjects(ctx, l.conn)
	if err != nil {
		return nil, err
	}

	chars := objs.characteristics(path)
	for _, c := range chars {
		// BlueZ 5.62+ exposes the negotiated MTU on each characteristic
		if v, ok := objs[c.Handle.(dbus.ObjectPath)][charInterface]["MTU"]; ok {
			if mtu, ok := v.Value().(uint16); ok && mtu > 0 {
				l.mtu.Store(int32(mtu))
			}
		}
	}
	return chars, nil
}

// Write uses type=command for write-without-response and type=request otherwise
func (l *link) Write(ctx context.Context, c *driver.Characteristic, data []byte, withoutResponse bool) error {
	select {
	case <-l.disconnected:
		return driver.ErrLinkClosed
	default:
	}

	path, ok := c.Handle.(dbus.ObjectPath)
	if !ok {
		return fmt.Errorf("characteristic %s has no BlueZ object path", c.UUID)
	}

	writeType := "request"
	if withoutResponse {
		writeType = "command"
	}
	options := map[string]interface{}{"type": writeType}

	if err := l.conn.Object(busName, path).CallWithContext(ctx, charInterface+".WriteValue", 0, data, options).Err; err != nil {
		return mapError(fmt.Errorf("WriteValue %s: %w", c.UUID, err))
	}
	return nil
}

func (l *link) Disconnected() <-chan struct{} { return l.disconnected }

func (l *link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stop)
		l.conn.RemoveSignal(l.signals)
		if rmErr := l.conn.RemoveMatchSignal(l.match...); rmErr != nil {
			l.logger.Debug("Failed to remove signal match", zap.Error(rmErr))
		}
		if callErr := l.conn.Object(busName, l.path).Call(deviceInterface+".Disconnect", 0).Err; callErr != nil {
			err = fmt.Errorf("failed to disconnect %s: %w", l.address, callErr)
		}
		l.drop()
	})
	return err
}
