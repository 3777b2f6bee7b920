// internal/protocol/rfcomm/link.go
package rfcomm

import (
	"context"
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"printer-service/pkg/devicetypes"
	"printer-service/pkg/driver"
)

type link struct {
	address string
	port    serial.Port
	logger  *zap.Logger

	mutex        sync.Mutex
	closed       bool
	disconnected chan struct{}
	dropOnce     sync.Once
}

func newLink(address string, port serial.Port, logger *zap.Logger) *link {
	l := &link{
		address:      address,
		port:         port,
		logger:       logger.With(zap.String("port", address)),
		disconnected: make(chan struct{}),
	}
	go l.drain()
	return l
}

// drain discards printer status bytes. A read error means the tty went away.
func (l *link) drain() {
	buf := make([]byte, 64)
	for {
		if _, err := l.port.Read(buf); err != nil {
			l.mutex.Lock()
			closed := l.closed
			l.mutex.Unlock()
			if !closed {
				l.logger.Warn("RFCOMM port lost", zap.Error(err))
			}
			l.drop()
			return
		}
		select {
		case <-l.disconnected:
			return
		default:
		}
	}
}

func (l *link) drop() {
	l.dropOnce.Do(func() { close(l.disconnected) })
}

func (l *link) Address() string { return l.address }

// MTU is unknown on a serial link
func (l *link) MTU() int { return 0 }

func (l *link) DiscoverService(ctx context.Context, uuid string) (*driver.Service, error) {
	if !driver.SameUUID(uuid, devicetypes.RFCOMMServiceUUID) {
		return nil, driver.ErrServiceNotFound
	}
	return &driver.Service{UUID: devicetypes.RFCOMMServiceUUID}, nil
}

func (l *link) Characteristics(ctx context.Context, svc *driver.Service) ([]*driver.Characteristic, error) {
	return []*driver.Characteristic{{
		UUID:       WriteUUID,
		Properties: driver.PropWrite | driver.PropWriteNR,
	}}, nil
}

// Write ignores withoutResponse; the tty has no acknowledged mode
func (l *link) Write(ctx context.Context, c *driver.Characteristic, data []byte, withoutResponse bool) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		return driver.ErrLinkClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.disconnected:
		return driver.ErrLinkClosed
	default:
	}

	n, err := l.port.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write to serial port: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	return nil
}

func (l *link) Disconnected() <-chan struct{} { return l.disconnected }

func (l *link) Close() error {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return nil
	}
	l.closed = true
	l.mutex.Unlock()

	err := l.port.Close()
	l.drop()
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}
