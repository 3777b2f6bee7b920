package rfcomm

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/zap/zaptest"

	"printer-service/internal/model"
	"printer-service/pkg/devicetypes"
	"printer-service/pkg/driver"
)

type fakePort struct {
	serial.Port

	mu      sync.Mutex
	written []byte
	timeout time.Duration
	closed  bool
	lost    chan struct{}
	once    sync.Once
}

func newFakePort() *fakePort {
	return &fakePort{lost: make(chan struct{})}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	<-p.lost
	return 0, io.EOF
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, data...)
	return len(data), nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.hangup()
	return nil
}

func (p *fakePort) hangup() {
	p.once.Do(func() { close(p.lost) })
}

func (p *fakePort) bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written...)
}

func newTestPlatform(t *testing.T, ports []string, port *fakePort) (*Platform, *serial.Mode) {
	p, err := NewPlatform(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	var opened serial.Mode
	p.listPorts = func() ([]string, error) { return ports, nil }
	p.openPort = func(name string, mode *serial.Mode) (serial.Port, error) {
		opened = *mode
		return port, nil
	}
	return p, &opened
}

func TestPlatform_ScanListsBoundPorts(t *testing.T) {
	p, _ := newTestPlatform(t, []string{"/dev/ttyS0", "/dev/rfcomm0", "/dev/ttyUSB0", "/dev/rfcomm1"}, nil)

	ads, err := p.Scan(context.Background(), driver.ScanFilter{})
	require.NoError(t, err)
	require.Len(t, ads, 2)

	assert.Equal(t, "/dev/rfcomm0", ads[0].Address)
	assert.Equal(t, "rfcomm0", ads[0].LocalName)
	assert.Equal(t, []string{devicetypes.RFCOMMServiceUUID}, ads[0].ServiceUUIDs)
	assert.True(t, ads[0].Connectable)
	assert.Equal(t, "/dev/rfcomm1", ads[1].Address)
}

func TestPlatform_InvalidPattern(t *testing.T) {
	_, err := NewPlatform(Config{PortPatterns: []string{"/dev/[rfcomm"}}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestPlatform_AvailableReportsUnsupported(t *testing.T) {
	p, _ := newTestPlatform(t, nil, nil)
	p.listPorts = func() ([]string, error) { return nil, errors.New("no sysfs") }

	err := p.Available(context.Background())
	assert.Equal(t, model.KindBluetoothUnsupported, model.KindOf(err))
}

func TestPlatform_ConnectOpensPort(t *testing.T) {
	port := newFakePort()
	p, mode := newTestPlatform(t, nil, port)

	l, err := p.Connect(context.Background(), "/dev/rfcomm0")
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, DefaultBaudRate, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, DefaultReadTimeout, port.timeout)
	assert.Equal(t, "/dev/rfcomm0", l.Address())
	assert.Zero(t, l.MTU())
}

func TestPlatform_ConnectPermissionDenied(t *testing.T) {
	p, _ := newTestPlatform(t, nil, nil)
	p.openPort = func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("open /dev/rfcomm0: permission denied")
	}

	_, err := p.Connect(context.Background(), "/dev/rfcomm0")
	assert.ErrorIs(t, err, driver.ErrPermissionDenied)
}

func TestLink_ExposesSingleWriteCharacteristic(t *testing.T) {
	port := newFakePort()
	p, _ := newTestPlatform(t, nil, port)
	l, err := p.Connect(context.Background(), "/dev/rfcomm0")
	require.NoError(t, err)
	defer l.Close()

	_, err = l.DiscoverService(context.Background(), "18f0")
	assert.ErrorIs(t, err, driver.ErrServiceNotFound)

	svc, err := l.DiscoverService(context.Background(), "1101")
	require.NoError(t, err)
	chars, err := l.Characteristics(context.Background(), svc)
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.True(t, chars[0].Properties.Has(driver.PropWrite|driver.PropWriteNR))

	require.NoError(t, l.Write(context.Background(), chars[0], []byte{0x1b, 0x40}, true))
	require.NoError(t, l.Write(context.Background(), chars[0], []byte{0x0a}, false))
	assert.Equal(t, []byte{0x1b, 0x40, 0x0a}, port.bytes())
}

func TestLink_DropsWhenPortIsLost(t *testing.T) {
	port := newFakePort()
	p, _ := newTestPlatform(t, nil, port)
	l, err := p.Connect(context.Background(), "/dev/rfcomm0")
	require.NoError(t, err)

	port.hangup()

	select {
	case <-l.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("link did not report the drop")
	}
	err = l.Write(context.Background(), &driver.Characteristic{UUID: WriteUUID}, []byte{0x0a}, true)
	assert.ErrorIs(t, err, driver.ErrLinkClosed)
	assert.NoError(t, l.Close())
}

func TestLink_CloseIsIdempotent(t *testing.T) {
	port := newFakePort()
	p, _ := newTestPlatform(t, nil, port)
	l, err := p.Connect(context.Background(), "/dev/rfcomm0")
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	<-l.Disconnected()
	assert.True(t, port.closed)
}
