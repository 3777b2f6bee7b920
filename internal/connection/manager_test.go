package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"printer-service/internal/discovery"
	"printer-service/internal/model"
	"printer-service/pkg/driver"
	"printer-service/pkg/driver/drivertest"
)

const (
	printerAddr = "AA:BB:CC:00:00:01"
	svc18f0     = "000018f0-0000-1000-8000-00805f9b34fb"
	char2af1    = "00002af1-0000-1000-8000-00805f9b34fb"
	svcNordic   = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
)

func printerPeripheral(addr string, services ...drivertest.ServiceLayout) *drivertest.Peripheral {
	return &drivertest.Peripheral{
		Advertisement: driver.Advertisement{Address: addr, LocalName: "MTP-II", RSSI: -60, Connectable: true},
		Services:      services,
		MTU:           23,
	}
}

func writableService() drivertest.ServiceLayout {
	return drivertest.ServiceLayout{
		UUID: svc18f0,
		Characteristics: []*driver.Characteristic{
			drivertest.WritableCharacteristic("00002af0-0000-1000-8000-00805f9b34fb", driver.PropRead|driver.PropNotify),
			drivertest.WritableCharacteristic(char2af1, driver.PropWrite|driver.PropWriteNR),
		},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.ReconnectDelay = 5 * time.Millisecond
	cfg.MaxAttempts = 2
	return cfg
}

func newTestManager(t *testing.T, cfg Config, platform *drivertest.Platform) *Manager {
	t.Helper()
	logger := zaptest.NewLogger(t)
	scanner := discovery.NewDeviceScanner(platform, discovery.ScanRequest{Timeout: time.Second}, logger)
	m := NewManager(cfg, platform, scanner, logger)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func device(addr string) model.PrinterDevice {
	return model.PrinterDevice{ID: addr, Name: "MTP-II", Address: addr}
}

// collect drains events until the channel has been quiet for a moment
func collect(ch <-chan model.StateEvent) []model.StateEvent {
	var out []model.StateEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func states(events []model.StateEvent) []model.ConnectionState {
	var out []model.ConnectionState
	for _, ev := range events {
		if ev.Type == model.EventStateChanged {
			out = append(out, ev.To)
		}
	}
	return out
}

func TestConnectNegotiatesWriteWithoutResponse(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	m := newTestManager(t, testConfig(), platform)

	events, unsubscribe := m.Subscribe(16)
	defer unsubscribe()

	sess, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, model.StateConnected, m.State())
	assert.Equal(t, []model.ConnectionState{
		model.StateScanning, model.StateConnecting, model.StateConnected,
	}, states(collect(events)))

	info := m.Info()
	assert.Equal(t, char2af1, info.Characteristic)
	assert.True(t, info.WithoutResp)
	assert.NotNil(t, info.ConnectedSince)
	assert.Nil(t, info.LastError)

	require.NoError(t, sess.WriteChunk(context.Background(), []byte{0x1B, 0x40}))
	writes := platform.LastLink().Writes()
	require.Len(t, writes, 1)
	assert.True(t, writes[0].WithoutResponse)
	assert.Equal(t, 20, sess.MaxPayload())
}

func TestConnectPrefersWithResponseWhenConfigured(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	cfg := testConfig()
	cfg.PreferWriteWithoutResponse = false
	m := newTestManager(t, cfg, platform)

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	assert.False(t, m.Info().WithoutResp)
}

func TestConnectSkipsMissingCandidateServices(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, drivertest.ServiceLayout{
		UUID: svcNordic,
		Characteristics: []*driver.Characteristic{
			drivertest.WritableCharacteristic("6e400002-b5a3-f393-e0a9-e50e24dcca9e", driver.PropWrite),
		},
	}))
	m := newTestManager(t, testConfig(), platform)

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	info := m.Info()
	assert.Equal(t, svcNordic, info.ServiceUUID)
	assert.False(t, info.WithoutResp)
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name     string
		services []drivertest.ServiceLayout
		kind     model.ErrorKind
	}{
		{
			name:     "no candidate service",
			services: []drivertest.ServiceLayout{{UUID: "0000180f-0000-1000-8000-00805f9b34fb"}},
			kind:     model.KindServiceNotFound,
		},
		{
			name: "service without writable characteristic",
			services: []drivertest.ServiceLayout{{
				UUID: svc18f0,
				Characteristics: []*driver.Characteristic{
					drivertest.WritableCharacteristic(char2af1, driver.PropRead|driver.PropNotify),
				},
			}},
			kind: model.KindNoWritableCharacteristic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := drivertest.NewPlatform()
			platform.AddPeripheral(printerPeripheral(printerAddr, tt.services...))
			m := newTestManager(t, testConfig(), platform)

			sess, err := m.Connect(context.Background(), device(printerAddr))
			require.Error(t, err)
			assert.Nil(t, sess)
			assert.Equal(t, tt.kind, model.KindOf(err))
			assert.Equal(t, model.StateDisconnected, m.State())
			assert.True(t, platform.LastLink().Closed(), "link closed after failed negotiation")
			require.NotNil(t, m.Info().LastError)
			assert.Equal(t, tt.kind, m.Info().LastError.Kind)
		})
	}
}

func TestConnectUnreachableDeviceTimesOut(t *testing.T) {
	platform := drivertest.NewPlatform()
	m := newTestManager(t, testConfig(), platform)

	_, err := m.Connect(context.Background(), device("AA:BB:CC:00:00:99"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConnectionTimeout))
	assert.Equal(t, model.StateDisconnected, m.State())
}

func TestConnectRejectsEmptyAddress(t *testing.T) {
	m := newTestManager(t, testConfig(), drivertest.NewPlatform())

	_, err := m.Connect(context.Background(), model.PrinterDevice{})
	assert.True(t, errors.Is(err, model.ErrNoDeviceSelected))
	assert.Equal(t, model.StateDisconnected, m.State())
}

func TestConnectReplacesExistingSession(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	platform.AddPeripheral(printerPeripheral("AA:BB:CC:00:00:02", writableService()))
	m := newTestManager(t, testConfig(), platform)

	first, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	firstLink := platform.LastLink()

	second, err := m.Connect(context.Background(), device("AA:BB:CC:00:00:02"))
	require.NoError(t, err)

	assert.True(t, firstLink.Closed())
	assert.Equal(t, model.StateDisconnected, first.State())
	assert.Equal(t, model.StateConnected, second.State())
	assert.Equal(t, "AA:BB:CC:00:00:02", m.Device().Address)

	err = first.WriteChunk(context.Background(), []byte{0x0A})
	assert.True(t, errors.Is(err, model.ErrNotConnected))
}

func TestScanAndConnectPicksBestCandidate(t *testing.T) {
	platform := drivertest.NewPlatform()
	per := printerPeripheral(printerAddr, writableService())
	per.Advertisement.ServiceUUIDs = []string{svc18f0}
	platform.AddPeripheral(per)
	m := newTestManager(t, testConfig(), platform)

	_, err := m.ScanAndConnect(context.Background(), discovery.ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, printerAddr, m.Device().Address)
}

func TestScanAndConnectEmptyResult(t *testing.T) {
	platform := drivertest.NewPlatform()
	m := newTestManager(t, testConfig(), platform)

	_, err := m.ScanAndConnect(context.Background(), discovery.ScanRequest{})
	assert.True(t, errors.Is(err, model.ErrNoDeviceSelected))
	assert.Equal(t, model.StateDisconnected, m.State())
	assert.Equal(t, 0, platform.ConnectCalls())
}

func TestScanAndConnectUnsupported(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.SetUnsupported(true)
	m := newTestManager(t, testConfig(), platform)

	_, err := m.ScanAndConnect(context.Background(), discovery.ScanRequest{})
	assert.True(t, errors.Is(err, model.ErrBluetoothUnsupported))
	assert.Equal(t, model.StateDisconnected, m.State())
}

func TestDiscoverLeavesConnectedSessionAlone(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	m := newTestManager(t, testConfig(), platform)

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)

	devices, err := m.Discover(context.Background(), discovery.ScanRequest{AcceptAll: true})
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.Equal(t, model.StateConnected, m.State())
}

func TestDiscoverFromDisconnectedReturnsToDisconnected(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	m := newTestManager(t, testConfig(), platform)
	events, unsubscribe := m.Subscribe(8)
	defer unsubscribe()

	_, err := m.Discover(context.Background(), discovery.ScanRequest{AcceptAll: true})
	require.NoError(t, err)
	assert.Equal(t, []model.ConnectionState{model.StateScanning, model.StateDisconnected}, states(collect(events)))
}

func TestLinkDropReconnects(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	m := newTestManager(t, testConfig(), platform)

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	events, unsubscribe := m.Subscribe(16)
	defer unsubscribe()

	first := platform.LastLink()
	first.Drop()

	require.Eventually(t, func() bool {
		return m.State() == model.StateConnected && platform.ConnectCalls() == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []model.ConnectionState{model.StateReconnecting, model.StateConnected}, states(collect(events)))
	assert.True(t, first.Closed())
	assert.Equal(t, 1, m.ReconnectCount())
	assert.Equal(t, int64(1), m.TotalReconnects())
}

func TestReconnectExhaustionEndsInError(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	m := newTestManager(t, testConfig(), platform)

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	events, unsubscribe := m.Subscribe(16)
	defer unsubscribe()

	platform.SetConnectError(errors.New("peer out of range"))
	require.True(t, m.RequestReconnect(model.NewError(model.KindWriteFailure, errors.New("probe failed"))))

	require.Eventually(t, func() bool {
		return m.State() == model.StateError
	}, time.Second, 5*time.Millisecond)

	// no third attempt is ever scheduled
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, platform.ConnectCalls())
	assert.Equal(t, 2, m.ReconnectCount())

	got := collect(events)
	assert.Equal(t, []model.ConnectionState{model.StateReconnecting, model.StateError}, states(got))

	var attempts []int
	for _, ev := range got {
		if ev.Type == model.EventReconnectAttempt {
			attempts = append(attempts, ev.Attempt)
			require.NotNil(t, ev.Error)
			assert.Equal(t, model.KindConnectionTimeout, ev.Error.Kind)
		}
	}
	assert.Equal(t, []int{1, 2}, attempts)
	assert.True(t, errors.Is(m.LastError(), model.ErrReconnectExhausted))
}

func TestErrorStateExitsOnlyThroughConnect(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	cfg := testConfig()
	cfg.MaxAttempts = 1
	m := newTestManager(t, cfg, platform)

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	platform.SetConnectError(errors.New("gone"))
	platform.LastLink().Drop()

	require.Eventually(t, func() bool { return m.State() == model.StateError }, time.Second, 5*time.Millisecond)
	assert.False(t, m.RequestReconnect(errors.New("again")))
	assert.Equal(t, model.StateError, m.State())

	platform.SetConnectError(nil)
	_, err = m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	assert.Equal(t, model.StateConnected, m.State())
	assert.Equal(t, 0, m.ReconnectCount(), "manual connect resets the attempt counter")
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	cfg := testConfig()
	cfg.ReconnectDelay = 200 * time.Millisecond
	m := newTestManager(t, cfg, platform)

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	platform.LastLink().Drop()
	require.Eventually(t, func() bool { return m.State() == model.StateReconnecting }, time.Second, time.Millisecond)

	require.NoError(t, m.Disconnect())
	assert.Equal(t, model.StateDisconnected, m.State())

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, model.StateDisconnected, m.State())
	assert.Equal(t, 1, platform.ConnectCalls(), "no reconnect after an explicit disconnect")
}

func TestDisconnectCancelsInFlightConnect(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	platform.SetBlockingConnect(true)
	cfg := testConfig()
	cfg.ConnectTimeout = 5 * time.Second
	m := newTestManager(t, cfg, platform)

	type result struct {
		err     error
		elapsed time.Duration
	}
	done := make(chan result, 1)
	go func() {
		start := time.Now()
		_, err := m.Connect(context.Background(), device(printerAddr))
		done <- result{err: err, elapsed: time.Since(start)}
	}()

	require.Eventually(t, func() bool {
		return m.State() == model.StateConnecting && platform.ConnectCalls() == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, m.Disconnect())

	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, model.ErrNotConnected)
		assert.Less(t, res.elapsed, cfg.ConnectTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("connect still running after disconnect")
	}
	assert.Equal(t, model.StateDisconnected, m.State())
	assert.Nil(t, m.Session())
}

func TestReconnectAttemptBoundedByConnectTimeout(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	cfg := testConfig()
	cfg.ConnectTimeout = 50 * time.Millisecond
	m := newTestManager(t, cfg, platform)

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	events, unsubscribe := m.Subscribe(16)
	defer unsubscribe()

	platform.SetBlockingConnect(true)
	start := time.Now()
	platform.LastLink().Drop()

	require.Eventually(t, func() bool {
		return m.State() == model.StateError
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(cfg.MaxAttempts)*cfg.ConnectTimeout)
	assert.Equal(t, 1+cfg.MaxAttempts, platform.ConnectCalls())

	var attempts []int
	for _, ev := range collect(events) {
		if ev.Type == model.EventReconnectAttempt {
			attempts = append(attempts, ev.Attempt)
			require.NotNil(t, ev.Error)
			assert.Equal(t, model.KindConnectionTimeout, ev.Error.Kind)
		}
	}
	assert.Equal(t, []int{1, 2}, attempts)
	assert.True(t, errors.Is(m.LastError(), model.ErrReconnectExhausted))
}

func TestLinkDropWithoutAutoReconnect(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	cfg := testConfig()
	cfg.AutoReconnect = false
	m := newTestManager(t, cfg, platform)

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	platform.LastLink().Drop()

	require.Eventually(t, func() bool { return m.State() == model.StateDisconnected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, platform.ConnectCalls())
	assert.Nil(t, m.Session())
	assert.Nil(t, m.ActiveSession())
}

func TestConnectedOnlyFollowsConnectingOrReconnecting(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	m := newTestManager(t, testConfig(), platform)
	events, unsubscribe := m.Subscribe(64)
	defer unsubscribe()

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	platform.LastLink().Drop()
	require.Eventually(t, func() bool {
		return m.State() == model.StateConnected && platform.ConnectCalls() == 2
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Disconnect())

	for _, ev := range collect(events) {
		if ev.Type == model.EventStateChanged && ev.To == model.StateConnected {
			assert.Contains(t, []model.ConnectionState{model.StateConnecting, model.StateReconnecting}, ev.From)
		}
		if ev.Type == model.EventStateChanged {
			assert.True(t, CanTransition(ev.From, ev.To), "%s -> %s", ev.From, ev.To)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := newTestManager(t, testConfig(), drivertest.NewPlatform())
	events, unsubscribe := m.Subscribe(1)
	unsubscribe()
	unsubscribe()

	_, ok := <-events
	assert.False(t, ok)
}

func TestCloseClosesSubscribers(t *testing.T) {
	platform := drivertest.NewPlatform()
	platform.AddPeripheral(printerPeripheral(printerAddr, writableService()))
	m := newTestManager(t, testConfig(), platform)
	events, _ := m.Subscribe(16)

	_, err := m.Connect(context.Background(), device(printerAddr))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	collect(events)
	_, ok := <-events
	assert.False(t, ok)
	assert.True(t, platform.LastLink().Closed())

	_, err = m.Connect(context.Background(), device(printerAddr))
	assert.Error(t, err)
}
