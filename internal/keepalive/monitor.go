// internal/keepalive/monitor.go
package keepalive

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/driver/escpos"
	"printer-service/internal/model"
	"printer-service/internal/transport"
	"printer-service/internal/utils"
)

const (
	DefaultInterval        = 15 * time.Second
	DefaultReconnectWindow = 10 * time.Minute
)

// Sender is the transport side of a probe
type Sender interface {
	Send(ctx context.Context, sess transport.Session, stream escpos.CommandStream, kind transport.Kind) (*transport.SendResult, error)
}

// Connection is the part of the connection manager the monitor drives
type Connection interface {
	Subscribe(buffer int) (<-chan model.StateEvent, func())
	State() model.ConnectionState
	ActiveSession() transport.Session
	RequestReconnect(reason error) bool
}

// Config represents keep-alive configuration
type Config struct {
	Interval        time.Duration
	ReconnectWindow time.Duration
	AutoReconnect   bool
}

// Stats are keep-alive counters
type Stats struct {
	Probes        int64            `json:"probes"`
	ProbeFailures int64            `json:"probe_failures"`
	SkippedProbes int64            `json:"skipped_probes"`
	LastKeepAlive *time.Time       `json:"last_keep_alive,omitempty"`
	LastError     *model.ErrorInfo `json:"last_error,omitempty"`
}

// Monitor sends a probe every interval while the printer is Connected and asks
// the connection manager to reconnect when one fails. Its health score is for
// display only; nothing gates on it.
type Monitor struct {
	cfg    Config
	conn   Connection
	sender Sender
	plog   *utils.PrinterLogger
	now    func() time.Time

	mu              sync.RWMutex
	state           model.ConnectionState
	connectedAt     time.Time
	lastKeepAlive   time.Time
	lastProbeFailed bool
	lastError       error
	lastErrorAt     time.Time
	reconnects      []time.Time
	probes          int64
	probeFailures   int64
	skipped         int64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a new Monitor. Range checks on the interval belong to config validation.
func NewMonitor(cfg Config, conn Connection, sender Sender, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ReconnectWindow <= 0 {
		cfg.ReconnectWindow = DefaultReconnectWindow
	}
	return &Monitor{
		cfg:    cfg,
		conn:   conn,
		sender: sender,
		plog:   utils.NewPrinterLogger(logger, "keepalive", ""),
		now:    time.Now,
		state:  model.StateDisconnected,
	}
}

// Start begins following connection state. Calling it twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	events, unsubscribe := m.conn.Subscribe(0)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(runCtx, events, unsubscribe)
	m.plog.Info("Keep-alive monitor started", zap.Duration("interval", m.cfg.Interval))
}

// Stop halts the ticker and waits for an in-flight probe
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.plog.Info("Keep-alive monitor stopped")
}

func (m *Monitor) run(ctx context.Context, events <-chan model.StateEvent, unsubscribe func()) {
	defer close(m.done)
	defer unsubscribe()

	var ticker *time.Ticker
	var tick <-chan time.Time
	startTicker := func() {
		if ticker != nil {
			ticker.Stop()
		}
		ticker = time.NewTicker(m.cfg.Interval)
		tick = ticker.C
	}
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopTicker()

	if state := m.conn.State(); state == model.StateConnected {
		m.mu.Lock()
		m.state = state
		m.connectedAt = m.now()
		m.mu.Unlock()
		startTicker()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.observe(ev)
			if ev.Type != model.EventStateChanged {
				continue
			}
			if ev.To == model.StateConnected {
				startTicker()
			} else {
				stopTicker()
			}
		case <-tick:
			probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Interval)
			_ = m.Probe(probeCtx)
			cancel()
		}
	}
}

// observe folds a state event into the health inputs
func (m *Monitor) observe(ev model.StateEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case model.EventReconnectAttempt:
		m.reconnects = append(m.reconnects, ev.Timestamp)
	case model.EventStateChanged:
		m.state = ev.To
		if ev.To == model.StateConnected {
			m.connectedAt = ev.Timestamp
			m.lastProbeFailed = false
			if ev.From == model.StateReconnecting {
				m.reconnects = append(m.reconnects, ev.Timestamp)
			}
		}
	}
}

// Probe sends one keep-alive now. A skipped probe (print in flight, or no live
// session) is returned but not counted as a failure.
func (m *Monitor) Probe(ctx context.Context) error {
	sess := m.conn.ActiveSession()
	_, err := m.sender.Send(ctx, sess, escpos.KeepAliveProbe(), transport.KindProbe)
	now := m.now()

	switch {
	case err == nil:
		m.mu.Lock()
		m.probes++
		m.lastKeepAlive = now
		m.lastProbeFailed = false
		m.mu.Unlock()
		m.plog.Debug("Keep-alive probe sent")

	case errors.Is(err, model.ErrProbeSkipped), errors.Is(err, model.ErrNotConnected):
		m.mu.Lock()
		m.skipped++
		m.mu.Unlock()
		m.plog.Debug("Keep-alive probe skipped", zap.Error(err))

	default:
		m.mu.Lock()
		m.probeFailures++
		m.lastProbeFailed = true
		m.lastError = err
		m.lastErrorAt = now
		m.mu.Unlock()

		m.plog.Warn("Keep-alive probe failed",
			zap.Bool("auto_reconnect", m.cfg.AutoReconnect),
			zap.Error(err),
		)
		if m.cfg.AutoReconnect {
			m.conn.RequestReconnect(err)
		}
	}

	h := m.Health()
	var last time.Time
	if h.LastKeepAlive != nil {
		last = *h.LastKeepAlive
	}
	m.plog.LogHealth(h.HealthScore, last, h.RecentReconnects)
	return err
}

// Health computes the current health snapshot
func (m *Monitor) Health() model.DeviceHealth {
	now := m.now()

	m.mu.Lock()
	m.reconnects = pruneBefore(m.reconnects, now.Add(-m.cfg.ReconnectWindow))
	in := healthInput{
		now:              now,
		interval:         m.cfg.Interval,
		connected:        m.state == model.StateConnected,
		connectedAt:      m.connectedAt,
		lastKeepAlive:    m.lastKeepAlive,
		lastProbeFailed:  m.lastProbeFailed,
		recentReconnects: len(m.reconnects),
	}
	state := m.state
	m.mu.Unlock()

	return health(in, state)
}

// GetStats returns probe counters
func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Probes:        m.probes,
		ProbeFailures: m.probeFailures,
		SkippedProbes: m.skipped,
		LastError:     model.NewErrorInfo(m.lastError, m.lastErrorAt),
	}
	if !m.lastKeepAlive.IsZero() {
		t := m.lastKeepAlive
		stats.LastKeepAlive = &t
	}
	return stats
}

// Interval returns the probe interval
func (m *Monitor) Interval() time.Duration {
	return m.cfg.Interval
}
