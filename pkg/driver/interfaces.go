// pkg/driver/interfaces.go
package driver

import (
	"context"
)

// Platform is the native BLE binding the printer service runs on.
// Implementations live in internal/protocol; tests use drivertest.
type Platform interface {
	// Name identifies the backend in logs and status output
	Name() string

	// Available fails with model.ErrBluetoothUnsupported when the host has no usable adapter
	Available(ctx context.Context) error

	// Scan reports advertisements until ctx is done or filter.Timeout elapses.
	// A cancelled ctx returns what was seen so far together with ctx.Err().
	Scan(ctx context.Context, filter ScanFilter) ([]Advertisement, error)

	// Connect opens a GATT link to address
	Connect(ctx context.Context, address string) (Link, error)

	// Close releases adapter resources
	Close() error
}

// Link is one open GATT session with a peripheral
type Link interface {
	Address() string

	// MTU returns the negotiated ATT MTU, 0 when the backend cannot tell
	MTU() int

	// DiscoverService returns ErrServiceNotFound when the peripheral lacks uuid
	DiscoverService(ctx context.Context, uuid string) (*Service, error)

	// Characteristics lists the characteristics of svc in peripheral order
	Characteristics(ctx context.Context, svc *Service) ([]*Characteristic, error)

	// Write sends data to c, using write-without-response when withoutResponse is set
	Write(ctx context.Context, c *Characteristic, data []byte, withoutResponse bool) error

	// Disconnected is closed once the link drops for any reason
	Disconnected() <-chan struct{}

	// Close tears the link down; safe to call more than once
	Close() error
}
