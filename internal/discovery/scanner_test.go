package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"printer-service/internal/model"
	"printer-service/pkg/driver"
	"printer-service/pkg/driver/drivertest"
)

const (
	svc18f0 = "000018f0-0000-1000-8000-00805f9b34fb"
	svcE781 = "e7810a71-73ae-499d-8c15-faa9aef0c3f2"
)

func newPlatform() *drivertest.Platform {
	p := drivertest.NewPlatform()
	p.AddPeripheral(&drivertest.Peripheral{Advertisement: driver.Advertisement{
		Address: "AA:00:00:00:00:01", LocalName: "MTP-II", RSSI: -80, ServiceUUIDs: []string{svcE781},
	}})
	p.AddPeripheral(&drivertest.Peripheral{Advertisement: driver.Advertisement{
		Address: "AA:00:00:00:00:02", LocalName: "Headphones", RSSI: -40,
	}})
	p.AddPeripheral(&drivertest.Peripheral{Advertisement: driver.Advertisement{
		Address: "AA:00:00:00:00:03", LocalName: "", RSSI: -60, ServiceUUIDs: []string{"18F0"},
	}})
	p.AddPeripheral(&drivertest.Peripheral{Advertisement: driver.Advertisement{
		Address: "AA:00:00:00:00:04", LocalName: "Printer-04", RSSI: -50,
	}})
	return p
}

func TestScanFiltersAndRanks(t *testing.T) {
	s := NewDeviceScanner(newPlatform(), ScanRequest{}, zaptest.NewLogger(t))

	devices, err := s.Scan(context.Background(), ScanRequest{
		ServiceUUIDs: []string{svc18f0, svcE781},
		NamePrefixes: []string{"printer"},
	})
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, "AA:00:00:00:00:03", devices[0].Address, "first candidate service wins")
	assert.Equal(t, "AA:00:00:00:00:01", devices[1].Address)
	assert.Equal(t, "AA:00:00:00:00:04", devices[2].Address, "name match without service ranks last")
	assert.Equal(t, []string{svc18f0}, devices[0].ServiceUUIDs)
}

func TestScanAcceptAll(t *testing.T) {
	s := NewDeviceScanner(newPlatform(), ScanRequest{}, zaptest.NewLogger(t))

	devices, err := s.Scan(context.Background(), ScanRequest{
		ServiceUUIDs: []string{svc18f0},
		AcceptAll:    true,
	})
	require.NoError(t, err)
	assert.Len(t, devices, 4)
}

func TestScanUsesDefaults(t *testing.T) {
	s := NewDeviceScanner(newPlatform(), ScanRequest{NamePrefixes: []string{"MTP"}}, zaptest.NewLogger(t))

	devices, err := s.Scan(context.Background(), ScanRequest{})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "MTP-II", devices[0].Name)
	assert.Equal(t, DefaultScanTimeout, s.Defaults().Timeout)
}

func TestScanUnsupported(t *testing.T) {
	p := newPlatform()
	p.SetUnsupported(true)
	s := NewDeviceScanner(p, ScanRequest{}, zaptest.NewLogger(t))

	_, err := s.Scan(context.Background(), ScanRequest{})
	assert.ErrorIs(t, err, model.ErrBluetoothUnsupported)
}

func TestScanCancelledReturnsEmptyList(t *testing.T) {
	p := newPlatform()
	p.SetBlockingScan(true)
	s := NewDeviceScanner(p, ScanRequest{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	devices, err := s.Scan(ctx, ScanRequest{Timeout: time.Minute, AcceptAll: true})
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestScanTimeoutReturnsFound(t *testing.T) {
	p := newPlatform()
	p.SetBlockingScan(true)
	s := NewDeviceScanner(p, ScanRequest{}, zaptest.NewLogger(t))

	devices, err := s.Scan(context.Background(), ScanRequest{Timeout: 10 * time.Millisecond, AcceptAll: true})
	require.NoError(t, err)
	assert.Len(t, devices, 4)
}

func TestMergeDuplicates(t *testing.T) {
	devices := merge([]driver.Advertisement{
		{Address: "aa:bb", RSSI: -90},
		{Address: "AA:BB", LocalName: "MTP", RSSI: -70, ServiceUUIDs: []string{"18f0"}},
	})
	require.Len(t, devices, 1)
	assert.Equal(t, "MTP", devices[0].Name)
	assert.Equal(t, -70, devices[0].RSSI)
	assert.Equal(t, []string{svc18f0}, devices[0].ServiceUUIDs)
}
