package keepalive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"printer-service/internal/driver/escpos"
	"printer-service/internal/model"
	"printer-service/internal/transport"
)

func TestScore(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	interval := 15 * time.Second

	tests := []struct {
		name string
		in   healthInput
		want int
	}{
		{
			name: "fresh connection",
			in:   healthInput{now: now, interval: interval, connected: true, connectedAt: now},
			want: 100,
		},
		{
			name: "recent keep-alive",
			in:   healthInput{now: now, interval: interval, connected: true, connectedAt: now.Add(-time.Hour), lastKeepAlive: now.Add(-10 * time.Second)},
			want: 100,
		},
		{
			name: "stale beyond two intervals",
			in:   healthInput{now: now, interval: interval, connected: true, connectedAt: now.Add(-time.Hour), lastKeepAlive: now.Add(-31 * time.Second)},
			want: 80,
		},
		{
			name: "stale beyond four intervals",
			in:   healthInput{now: now, interval: interval, connected: true, connectedAt: now.Add(-time.Hour), lastKeepAlive: now.Add(-61 * time.Second)},
			want: 60,
		},
		{
			name: "reconnects",
			in:   healthInput{now: now, interval: interval, connected: true, connectedAt: now, recentReconnects: 3},
			want: 70,
		},
		{
			name: "reconnect penalty capped",
			in:   healthInput{now: now, interval: interval, connected: true, connectedAt: now, recentReconnects: 9},
			want: 50,
		},
		{
			name: "failed probe",
			in:   healthInput{now: now, interval: interval, connected: true, connectedAt: now, lastProbeFailed: true},
			want: 70,
		},
		{
			name: "clamped at zero",
			in: healthInput{
				now: now, interval: interval, lastKeepAlive: now.Add(-time.Hour),
				lastProbeFailed: true, recentReconnects: 10,
			},
			want: 0,
		},
		{
			name: "never connected",
			in:   healthInput{now: now, interval: interval},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, score(tt.in))
		})
	}
}

func TestHealthSnapshot(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h := health(healthInput{
		now:           now,
		interval:      15 * time.Second,
		connected:     true,
		connectedAt:   now.Add(-2 * time.Minute),
		lastKeepAlive: now.Add(-5 * time.Second),
	}, model.StateConnected)

	assert.Equal(t, 100, h.HealthScore)
	assert.Equal(t, 120.0, h.UptimeSeconds)
	assert.Equal(t, model.StateConnected, h.State)
	if assert.NotNil(t, h.LastKeepAlive) {
		assert.Equal(t, now.Add(-5*time.Second), *h.LastKeepAlive)
	}
}

// blockingSession parks the first write until release is closed
type blockingSession struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSession) State() model.ConnectionState { return model.StateConnected }

func (s *blockingSession) MaxPayload() int { return 0 }

func (s *blockingSession) WriteChunk(ctx context.Context, chunk []byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return nil
}

type staticConn struct {
	sess       transport.Session
	reconnects int
}

func (c *staticConn) Subscribe(buffer int) (<-chan model.StateEvent, func()) {
	ch := make(chan model.StateEvent)
	return ch, func() {}
}

func (c *staticConn) State() model.ConnectionState {
	if c.sess == nil {
		return model.StateDisconnected
	}
	return c.sess.State()
}

func (c *staticConn) ActiveSession() transport.Session { return c.sess }

func (c *staticConn) RequestReconnect(reason error) bool {
	c.reconnects++
	return true
}

func receiptBytes() escpos.CommandStream {
	return escpos.NewCommandStream(escpos.Opcodes.Initialize, []byte("hello\n"))
}
