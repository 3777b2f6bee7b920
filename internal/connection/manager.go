// internal/connection/manager.go
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/discovery"
	"printer-service/internal/model"
	"printer-service/internal/transport"
	"printer-service/internal/utils"
	"printer-service/pkg/devicetypes"
	"printer-service/pkg/driver"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReconnectDelay = 2 * time.Second
	DefaultMaxAttempts    = 10
)

// Scanner is the discovery dependency used by ScanAndConnect and Discover
type Scanner interface {
	Scan(ctx context.Context, req discovery.ScanRequest) ([]model.PrinterDevice, error)
}

// Config represents connection manager configuration
type Config struct {
	CandidateServices          []string
	ConnectTimeout             time.Duration
	PreferWriteWithoutResponse bool
	AutoReconnect              bool
	ReconnectDelay             time.Duration
	MaxAttempts                int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		CandidateServices:          devicetypes.CandidateServiceUUIDs(),
		ConnectTimeout:             DefaultConnectTimeout,
		PreferWriteWithoutResponse: true,
		AutoReconnect:              true,
		ReconnectDelay:             DefaultReconnectDelay,
		MaxAttempts:                DefaultMaxAttempts,
	}
}

// Manager owns the one printer session and is the only publisher of state events.
// Create it once at startup and pass it to every consumer.
type Manager struct {
	cfg      Config
	platform driver.Platform
	scanner  Scanner
	plog     *utils.PrinterLogger
	feed     *stateFeed
	now      func() time.Time

	mu              sync.Mutex
	state           model.ConnectionState
	session         *Session
	device          *model.PrinterDevice
	reconnectCount  int
	totalReconnects int64
	lastError       error
	lastErrorAt     time.Time
	generation      uint64
	cancelOp        context.CancelFunc
	closed          bool

	wg sync.WaitGroup
}

// NewManager creates a new Manager in the Disconnected state
func NewManager(cfg Config, platform driver.Platform, scanner Scanner, logger *zap.Logger) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectDelay < 0 {
		cfg.ReconnectDelay = 0
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if len(cfg.CandidateServices) == 0 {
		cfg.CandidateServices = devicetypes.CandidateServiceUUIDs()
	}

	plog := utils.NewPrinterLogger(logger, "connection", platform.Name())
	return &Manager{
		cfg:      cfg,
		platform: platform,
		scanner:  scanner,
		plog:     plog,
		feed:     newStateFeed(plog.Logger),
		now:      time.Now,
		state:    model.StateDisconnected,
	}
}

// Connect opens a session to device, replacing any existing one. The previous
// session is fully torn down first; there are never two live sessions.
func (m *Manager) Connect(ctx context.Context, device model.PrinterDevice) (*Session, error) {
	if device.Address == "" {
		return nil, model.NewError(model.KindNoDeviceSelected, errors.New("device address is empty"))
	}
	gen, err := m.beginScan()
	if err != nil {
		return nil, err
	}
	return m.connect(ctx, gen, device)
}

// ScanAndConnect scans with req and connects to the best candidate.
// An empty scan fails with NoDeviceSelected.
func (m *Manager) ScanAndConnect(ctx context.Context, req discovery.ScanRequest) (*Session, error) {
	if m.scanner == nil {
		return nil, errors.New("no scanner configured")
	}
	gen, err := m.beginScan()
	if err != nil {
		return nil, err
	}

	devices, err := m.scanner.Scan(ctx, req)
	if err == nil && len(devices) == 0 {
		err = model.NewError(model.KindNoDeviceSelected, errors.New("scan found no printer"))
	}
	if err != nil {
		m.abortScan(gen, err)
		return nil, err
	}
	return m.connect(ctx, gen, devices[0])
}

// Discover scans without connecting. From Disconnected it passes through Scanning;
// in any other state the session is left untouched.
func (m *Manager) Discover(ctx context.Context, req discovery.ScanRequest) ([]model.PrinterDevice, error) {
	if m.scanner == nil {
		return nil, errors.New("no scanner configured")
	}

	m.mu.Lock()
	var gen uint64
	tracked := !m.closed && m.state == model.StateDisconnected
	if tracked {
		m.generation++
		gen = m.generation
		m.transitionLocked(model.StateScanning, 0, nil)
	}
	m.mu.Unlock()

	devices, err := m.scanner.Scan(ctx, req)

	if tracked {
		m.mu.Lock()
		if m.generation == gen && m.state == model.StateScanning {
			m.transitionLocked(model.StateDisconnected, 0, err)
		}
		m.mu.Unlock()
	}
	return devices, err
}

// Disconnect cancels any reconnect timer or in-flight connect, closes the link
// and publishes Disconnected. No automatic reconnect follows.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked(nil)
	return nil
}

// RequestReconnect drops the live session and starts the reconnect policy.
// It reports whether a reconnect episode was started; when auto-reconnect is off
// the manager moves to Disconnected instead.
func (m *Manager) RequestReconnect(reason error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linkLostLocked(m.session, reason)
}

// Subscribe returns a channel of state events and a func to stop receiving them
func (m *Manager) Subscribe(buffer int) (<-chan model.StateEvent, func()) {
	return m.feed.subscribe(buffer)
}

// State returns the current connection state
func (m *Manager) State() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the live session or nil
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// ActiveSession returns the live session as a transport.Session, or a nil interface
func (m *Manager) ActiveSession() transport.Session {
	if s := m.Session(); s != nil {
		return s
	}
	return nil
}

// Device returns the last device a connect was attempted with
func (m *Manager) Device() *model.PrinterDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	d := *m.device
	return &d
}

// ReconnectCount returns attempts made since the last manual connect
func (m *Manager) ReconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectCount
}

// TotalReconnects returns every reconnect attempt made by this manager
func (m *Manager) TotalReconnects() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalReconnects
}

// LastError returns the most recent connection error
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// Info returns a snapshot of the session for status output
func (m *Manager) Info() model.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := model.SessionInfo{
		State:          m.state,
		ReconnectCount: m.reconnectCount,
	}
	if m.device != nil {
		d := *m.device
		info.Device = &d
	}
	if m.lastError != nil {
		info.LastError = model.NewErrorInfo(m.lastError, m.lastErrorAt)
	}
	if s := m.session; s != nil {
		since := s.connectedSince
		info.ConnectedSince = &since
		info.ServiceUUID = s.ep.service.UUID
		info.Characteristic = s.ep.char.UUID
		info.WithoutResp = s.ep.withoutResponse
	}
	return info
}

// Config returns the manager configuration
func (m *Manager) Config() Config {
	return m.cfg
}

// BackendName returns the platform backend name
func (m *Manager) BackendName() string {
	return m.platform.Name()
}

// Available reports whether the platform has a usable adapter
func (m *Manager) Available(ctx context.Context) error {
	return m.platform.Available(ctx)
}

// Close disconnects, waits for background work and closes every subscriber channel
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.resetLocked(nil)
	m.closed = true
	m.mu.Unlock()

	m.wg.Wait()
	m.feed.close()
	return nil
}

// beginScan tears down whatever is live and enters Scanning
func (m *Manager) beginScan() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errors.New("connection manager closed")
	}
	if m.state == model.StateError {
		m.generation++
	} else {
		m.resetLocked(nil)
	}
	m.transitionLocked(model.StateScanning, 0, nil)
	return m.generation, nil
}

func (m *Manager) abortScan(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen || m.state != model.StateScanning {
		return
	}
	m.recordErrorLocked(err)
	m.transitionLocked(model.StateDisconnected, 0, err)
}

func (m *Manager) connect(ctx context.Context, gen uint64, device model.PrinterDevice) (*Session, error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return nil, model.NewError(model.KindNotConnected, errConnectSuperseded)
	}
	d := device
	m.device = &d
	m.transitionLocked(model.StateConnecting, 0, nil)
	opCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	m.cancelOp = cancel
	m.mu.Unlock()

	start := time.Now()
	link, ep, err := m.dial(opCtx, device)
	cancel()
	m.plog.LogConnection("connect", device.Address, 0, time.Since(start), err)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		if link != nil {
			_ = link.Close()
		}
		return nil, model.NewError(model.KindNotConnected, errConnectSuperseded)
	}
	m.cancelOp = nil

	if err != nil {
		err = classify(err)
		m.recordErrorLocked(err)
		m.transitionLocked(model.StateDisconnected, 0, err)
		return nil, err
	}

	m.lastError = nil
	m.installLocked(device, link, ep, false)
	return m.session, nil
}

// dial opens a link and negotiates the write endpoint; the link is closed on failure
func (m *Manager) dial(ctx context.Context, device model.PrinterDevice) (driver.Link, *endpoint, error) {
	link, err := m.platform.Connect(ctx, device.Address)
	if err != nil {
		return nil, nil, err
	}
	ep, err := negotiate(ctx, link, m.cfg.CandidateServices, m.cfg.PreferWriteWithoutResponse)
	if err != nil {
		_ = link.Close()
		return nil, nil, err
	}
	return link, ep, nil
}

func (m *Manager) installLocked(device model.PrinterDevice, link driver.Link, ep *endpoint, reconnect bool) {
	sess := newSession(device, link, ep, m.now())
	watchCtx, stop := context.WithCancel(context.Background())
	sess.stop = stop

	m.session = sess
	d := device
	m.device = &d
	if !reconnect {
		m.reconnectCount = 0
	}

	m.plog.LogNegotiation(ep.service.UUID, ep.char.UUID, ep.withoutResponse, link.MTU())
	m.transitionLocked(model.StateConnected, 0, nil)

	m.wg.Add(1)
	go m.watch(watchCtx, sess)
}

// watch turns the link's disconnect notification into a state transition
func (m *Manager) watch(ctx context.Context, sess *Session) {
	defer m.wg.Done()
	select {
	case <-ctx.Done():
	case <-sess.link.Disconnected():
		m.mu.Lock()
		m.linkLostLocked(sess, model.Errorf(model.KindConnectionTimeout, "link to %s dropped", sess.device.Address))
		m.mu.Unlock()
	}
}

func (m *Manager) linkLostLocked(sess *Session, reason error) bool {
	if m.closed || sess == nil || m.session != sess || m.state != model.StateConnected {
		return false
	}
	m.recordErrorLocked(reason)
	m.generation++

	if m.cfg.AutoReconnect && m.cfg.MaxAttempts > 0 {
		sess.close(model.StateReconnecting)
		m.session = nil
		m.transitionLocked(model.StateReconnecting, 0, reason)

		ctx, cancel := context.WithCancel(context.Background())
		m.cancelOp = cancel
		m.wg.Add(1)
		go m.reconnectLoop(ctx, m.generation, sess.device)
		return true
	}

	sess.close(model.StateDisconnected)
	m.session = nil
	m.transitionLocked(model.StateDisconnected, 0, reason)
	return false
}

// resetLocked cancels in-flight work, drops the session and settles in Disconnected
func (m *Manager) resetLocked(reason error) {
	m.generation++
	if m.cancelOp != nil {
		m.cancelOp()
		m.cancelOp = nil
	}
	if m.session != nil {
		m.session.close(model.StateDisconnected)
		m.session = nil
	}
	if m.state != model.StateDisconnected {
		m.transitionLocked(model.StateDisconnected, 0, reason)
	}
}

func (m *Manager) recordErrorLocked(err error) {
	if err == nil {
		return
	}
	m.lastError = err
	m.lastErrorAt = m.now()
}

func (m *Manager) transitionLocked(to model.ConnectionState, attempt int, err error) bool {
	from := m.state
	if !CanTransition(from, to) {
		m.plog.Error("Illegal state transition refused",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return false
	}
	m.state = to

	now := m.now()
	event := model.NewStateEvent(model.EventStateChanged, from, to, now)
	event.Attempt = attempt
	event.Error = model.NewErrorInfo(err, now)
	if m.device != nil {
		d := *m.device
		event.Device = &d
	}

	address := ""
	if m.device != nil {
		address = m.device.Address
	}
	m.plog.LogTransition(string(from), string(to), address, err)
	m.feed.publish(event)
	return true
}

func (m *Manager) publishAttemptLocked(attempt int, err error) {
	now := m.now()
	event := model.NewStateEvent(model.EventReconnectAttempt, m.state, m.state, now)
	event.Attempt = attempt
	event.Error = model.NewErrorInfo(err, now)
	if m.device != nil {
		d := *m.device
		event.Device = &d
	}
	m.feed.publish(event)
}

func exhaustedError(attempts int, last error) error {
	return model.NewError(model.KindReconnectExhausted, fmt.Errorf("gave up after %d attempts: %w", attempts, last))
}
