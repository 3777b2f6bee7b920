package drawer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"printer-service/internal/model"
	"printer-service/internal/transport"
)

type recordingSession struct {
	mu     sync.Mutex
	state  model.ConnectionState
	writes [][]byte
	err    error
}

func (s *recordingSession) State() model.ConnectionState { return s.state }

func (s *recordingSession) MaxPayload() int { return 0 }

func (s *recordingSession) WriteChunk(ctx context.Context, chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, append([]byte(nil), chunk...))
	return nil
}

func newController(t *testing.T) *Controller {
	return NewController(transport.NewWriter(transport.Config{}, zaptest.NewLogger(t)), zaptest.NewLogger(t))
}

func TestOpenDrawerSendsKickPulse(t *testing.T) {
	c := newController(t)
	sess := &recordingSession{state: model.StateConnected}

	require.NoError(t, c.OpenDrawer(context.Background(), sess))
	require.NoError(t, c.OpenDrawer(context.Background(), sess))

	require.Len(t, sess.writes, 2)
	assert.Equal(t, []byte{0x1B, 0x70, 0x00, 0x19, 0xFA}, sess.writes[0])
	assert.Equal(t, model.StateConnected, sess.State())

	stats := c.GetStats()
	assert.Equal(t, int64(2), stats.Opens)
	assert.NotNil(t, stats.LastOpen)
	assert.Nil(t, stats.LastError)
}

func TestOpenDrawerRequiresConnected(t *testing.T) {
	for _, state := range []model.ConnectionState{
		model.StateDisconnected, model.StateScanning, model.StateConnecting,
		model.StateReconnecting, model.StateError,
	} {
		t.Run(string(state), func(t *testing.T) {
			c := newController(t)
			sess := &recordingSession{state: state}

			err := c.OpenDrawer(context.Background(), sess)
			assert.True(t, errors.Is(err, model.ErrNotConnected))
			assert.Empty(t, sess.writes)
			assert.Equal(t, state, sess.State())
		})
	}
}

func TestOpenDrawerNilSession(t *testing.T) {
	c := newController(t)

	err := c.OpenDrawer(context.Background(), nil)
	assert.True(t, errors.Is(err, model.ErrNotConnected))

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.Failures)
	require.NotNil(t, stats.LastError)
	assert.Equal(t, model.KindNotConnected, stats.LastError.Kind)
}

func TestOpenDrawerWriteFailure(t *testing.T) {
	c := newController(t)
	sess := &recordingSession{state: model.StateConnected, err: errors.New("att error 0x0e")}

	err := c.OpenDrawer(context.Background(), sess)
	assert.True(t, errors.Is(err, model.ErrWriteFailure))
	assert.Equal(t, model.StateConnected, sess.State())
}
