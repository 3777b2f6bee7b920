// pkg/driver/drivertest/fake.go
package drivertest

import (
	"context"
	"errors"
	"sync"

	"printer-service/internal/model"
	"printer-service/pkg/driver"
)

// ServiceLayout describes one service of a fake peripheral
type ServiceLayout struct {
	UUID            string
	Characteristics []*driver.Characteristic
}

// Peripheral is a scriptable fake printer
type Peripheral struct {
	Advertisement driver.Advertisement
	Services      []ServiceLayout
	MTU           int
}

// Platform is an in-memory driver.Platform for tests
type Platform struct {
	mu           sync.Mutex
	unsupported  bool
	peripherals  map[string]*Peripheral
	order        []string
	blockScan    bool
	blockConnect bool
	connectErr   error
	connectCalls int
	links        []*Link
	writeErr     error
}

// NewPlatform creates an empty fake platform
func NewPlatform() *Platform {
	return &Platform{peripherals: make(map[string]*Peripheral)}
}

// WritableCharacteristic is a shortcut for a characteristic with the given properties
func WritableCharacteristic(uuid string, props driver.Property) *driver.Characteristic {
	return &driver.Characteristic{UUID: uuid, Properties: props}
}

// AddPeripheral registers p under its advertised address
func (p *Platform) AddPeripheral(per *Peripheral) {
	p.mu.Lock()
	defer p.mu.Unlock()
	addr := per.Advertisement.Address
	if _, ok := p.peripherals[addr]; !ok {
		p.order = append(p.order, addr)
	}
	p.peripherals[addr] = per
}

// SetUnsupported makes Available fail
func (p *Platform) SetUnsupported(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsupported = v
}

// SetBlockingScan makes Scan wait for ctx instead of returning at once
func (p *Platform) SetBlockingScan(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockScan = v
}

// SetBlockingConnect makes Connect wait for ctx instead of opening a link,
// like a peer that never answers
func (p *Platform) SetBlockingConnect(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockConnect = v
}

// SetConnectError makes every following Connect fail with err; nil restores success
func (p *Platform) SetConnectError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectErr = err
}

// SetWriteError makes writes on current and future links fail with err
func (p *Platform) SetWriteError(err error) {
	p.mu.Lock()
	p.writeErr = err
	links := append([]*Link(nil), p.links...)
	p.mu.Unlock()
	for _, l := range links {
		l.SetWriteError(err)
	}
}

// ConnectCalls returns how many times Connect was called
func (p *Platform) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectCalls
}

// Links returns every link opened so far
func (p *Platform) Links() []*Link {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Link(nil), p.links...)
}

// LastLink returns the most recently opened link or nil
func (p *Platform) LastLink() *Link {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.links) == 0 {
		return nil
	}
	return p.links[len(p.links)-1]
}

func (p *Platform) Name() string { return "fake" }

func (p *Platform) Available(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsupported {
		return model.NewError(model.KindBluetoothUnsupported, errors.New("fake adapter disabled"))
	}
	return nil
}

func (p *Platform) Scan(ctx context.Context, filter driver.ScanFilter) ([]driver.Advertisement, error) {
	p.mu.Lock()
	ads := make([]driver.Advertisement, 0, len(p.order))
	for _, addr := range p.order {
		ads = append(ads, p.peripherals[addr].Advertisement)
	}
	block := p.blockScan
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ads, ctx.Err()
	}
	return ads, nil
}

func (p *Platform) Connect(ctx context.Context, address string) (driver.Link, error) {
	p.mu.Lock()
	p.connectCalls++
	if p.blockConnect {
		p.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer p.mu.Unlock()

	if p.connectErr != nil {
		return nil, p.connectErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	per, ok := p.peripherals[address]
	if !ok {
		return nil, context.DeadlineExceeded
	}

	l := &Link{
		address:      address,
		peripheral:   per,
		disconnected: make(chan struct{}),
		writeErr:     p.writeErr,
	}
	p.links = append(p.links, l)
	return l, nil
}

func (p *Platform) Close() error { return nil }

// Write is one recorded characteristic write
type Write struct {
	CharUUID        string
	Data            []byte
	WithoutResponse bool
}

// Link is a fake GATT link
type Link struct {
	mu           sync.Mutex
	address      string
	peripheral   *Peripheral
	writes       []Write
	writeErr     error
	closed       bool
	dropped      bool
	disconnected chan struct{}
}

// Drop simulates an unsolicited disconnect
func (l *Link) Drop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dropped {
		l.dropped = true
		close(l.disconnected)
	}
}

// SetWriteError makes writes fail with err; nil restores success
func (l *Link) SetWriteError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = err
}

// Writes returns the recorded writes
func (l *Link) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// Closed reports whether Close was called
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Link) Address() string { return l.address }

func (l *Link) MTU() int { return l.peripheral.MTU }

func (l *Link) DiscoverService(ctx context.Context, uuid string) (*driver.Service, error) {
	for i := range l.peripheral.Services {
		svc := &l.peripheral.Services[i]
		if driver.SameUUID(svc.UUID, uuid) {
			return &driver.Service{UUID: svc.UUID, Handle: svc}, nil
		}
	}
	return nil, driver.ErrServiceNotFound
}

func (l *Link) Characteristics(ctx context.Context, svc *driver.Service) ([]*driver.Characteristic, error) {
	layout, ok := svc.Handle.(*ServiceLayout)
	if !ok {
		return nil, errors.New("foreign service handle")
	}
	return layout.Characteristics, nil
}

func (l *Link) Write(ctx context.Context, c *driver.Characteristic, data []byte, withoutResponse bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.dropped {
		return driver.ErrLinkClosed
	}
	if l.writeErr != nil {
		return l.writeErr
	}
	l.writes = append(l.writes, Write{
		CharUUID:        c.UUID,
		Data:            append([]byte(nil), data...),
		WithoutResponse: withoutResponse,
	})
	return nil
}

func (l *Link) Disconnected() <-chan struct{} { return l.disconnected }

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
