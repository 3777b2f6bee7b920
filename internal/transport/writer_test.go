package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"printer-service/internal/driver/escpos"
	"printer-service/internal/model"
)

type fakeSession struct {
	mu         sync.Mutex
	state      model.ConnectionState
	writes     [][]byte
	failAt     int // 1-based write index that fails, 0 never
	maxPayload int
	entered    chan struct{}
	release    chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{state: model.StateConnected}
}

func (s *fakeSession) State() model.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSession) MaxPayload() int { return s.maxPayload }

func (s *fakeSession) WriteChunk(ctx context.Context, chunk []byte) error {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.writes)+1 == s.failAt {
		return errors.New("att write rejected")
	}
	s.writes = append(s.writes, append([]byte(nil), chunk...))
	return nil
}

func (s *fakeSession) recorded() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes...)
}

func newTestWriter(t *testing.T, chunk int) *Writer {
	return NewWriter(Config{ChunkSize: chunk}, zaptest.NewLogger(t))
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestSendChunkCountAndOrder(t *testing.T) {
	for _, c := range []int{1, 3, 7, 20, 64} {
		for _, l := range []int{0, 1, 19, 20, 21, 45, 100, 257} {
			sess := newFakeSession()
			w := newTestWriter(t, c)
			data := payload(l)

			res, err := w.Send(context.Background(), sess, escpos.NewCommandStream(data), KindControl)
			require.NoError(t, err)

			writes := sess.recorded()
			assert.Len(t, writes, (l+c-1)/c, "L=%d C=%d", l, c)
			assert.Equal(t, len(writes), res.Chunks)
			assert.Equal(t, l, res.Bytes)
			assert.Equal(t, data, bytes.Join(writes, nil), "L=%d C=%d", l, c)
		}
	}
}

func TestSend45BytesAtChunk20(t *testing.T) {
	sess := newFakeSession()
	w := newTestWriter(t, 20)

	_, err := w.Send(context.Background(), sess, escpos.NewCommandStream(payload(45)), KindPrint)
	require.NoError(t, err)

	writes := sess.recorded()
	require.Len(t, writes, 3)
	assert.Len(t, writes[0], 20)
	assert.Len(t, writes[1], 20)
	assert.Len(t, writes[2], 5)
}

func TestSendRespectsMaxPayload(t *testing.T) {
	sess := newFakeSession()
	sess.maxPayload = 8
	w := newTestWriter(t, 20)

	_, err := w.Send(context.Background(), sess, escpos.NewCommandStream(payload(20)), KindPrint)
	require.NoError(t, err)
	assert.Len(t, sess.recorded(), 3)
}

func TestSendNotConnected(t *testing.T) {
	w := newTestWriter(t, 20)

	_, err := w.Send(context.Background(), nil, escpos.KeepAliveProbe(), KindProbe)
	assert.ErrorIs(t, err, model.ErrNotConnected)

	sess := newFakeSession()
	sess.state = model.StateReconnecting
	_, err = w.Send(context.Background(), sess, escpos.DrawerKickCommand(), KindControl)
	assert.ErrorIs(t, err, model.ErrNotConnected)
	assert.Empty(t, sess.recorded())
	assert.Equal(t, int64(2), w.GetStats().Rejected)
}

func TestSendAbortsOnChunkFailure(t *testing.T) {
	sess := newFakeSession()
	sess.failAt = 2
	w := newTestWriter(t, 10)

	_, err := w.Send(context.Background(), sess, escpos.NewCommandStream(payload(45)), KindPrint)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrWriteFailure)
	assert.Len(t, sess.recorded(), 1, "chunks after the failure must not be written")
	assert.Equal(t, model.StateConnected, sess.State(), "a failed write leaves the session alone")
}

func TestPrintRejectedWhileProbeInFlight(t *testing.T) {
	sess := newFakeSession()
	sess.entered = make(chan struct{}, 1)
	sess.release = make(chan struct{})
	w := newTestWriter(t, 20)

	done := make(chan error, 1)
	go func() {
		_, err := w.Send(context.Background(), sess, escpos.KeepAliveProbe(), KindProbe)
		done <- err
	}()
	<-sess.entered

	_, err := w.Send(context.Background(), sess, escpos.NewCommandStream(payload(5)), KindPrint)
	assert.ErrorIs(t, err, model.ErrPrinterBusy)

	close(sess.release)
	require.NoError(t, <-done)
}

func TestProbeSkippedWhilePrintInFlight(t *testing.T) {
	sess := newFakeSession()
	sess.entered = make(chan struct{}, 1)
	sess.release = make(chan struct{})
	w := newTestWriter(t, 20)

	done := make(chan error, 1)
	go func() {
		_, err := w.Send(context.Background(), sess, escpos.NewCommandStream(payload(5)), KindPrint)
		done <- err
	}()
	<-sess.entered

	printing, _ := w.Busy()
	assert.True(t, printing)

	_, err := w.Send(context.Background(), sess, escpos.KeepAliveProbe(), KindProbe)
	assert.ErrorIs(t, err, model.ErrProbeSkipped)

	close(sess.release)
	require.NoError(t, <-done)
}

func TestQueuedKeepAliveDoesNotRejectPrint(t *testing.T) {
	sess := newFakeSession()
	sess.entered = make(chan struct{}, 8)
	sess.release = make(chan struct{})
	w := newTestWriter(t, 20)

	kick := make(chan error, 1)
	go func() {
		_, err := w.Send(context.Background(), sess, escpos.DrawerKickCommand(), KindControl)
		kick <- err
	}()
	<-sess.entered

	keepAlive := make(chan error, 1)
	go func() {
		_, err := w.Send(context.Background(), sess, escpos.KeepAliveProbe(), KindProbe)
		keepAlive <- err
	}()
	require.Eventually(t, func() bool {
		w.gateMu.Lock()
		defer w.gateMu.Unlock()
		return w.probeQueued
	}, time.Second, time.Millisecond)

	_, inFlight := w.Busy()
	assert.False(t, inFlight, "a queued keep-alive is not in flight")

	printed := make(chan error, 1)
	go func() {
		_, err := w.Send(context.Background(), sess, escpos.NewCommandStream(payload(5)), KindPrint)
		printed <- err
	}()
	require.Eventually(t, func() bool {
		printing, _ := w.Busy()
		return printing
	}, time.Second, time.Millisecond)

	close(sess.release)
	require.NoError(t, <-kick)
	require.NoError(t, <-printed)

	// the keep-alive either yields to the waiting print or runs after it
	if err := <-keepAlive; err != nil {
		assert.ErrorIs(t, err, model.ErrProbeSkipped)
	}
	assert.Contains(t, sess.recorded(), payload(5))
}

func TestConcurrentSendsDoNotInterleave(t *testing.T) {
	sess := newFakeSession()
	w := NewWriter(Config{ChunkSize: 2, PacingDelay: time.Millisecond}, zaptest.NewLogger(t))

	a := bytes.Repeat([]byte{'A'}, 10)
	b := bytes.Repeat([]byte{'B'}, 10)

	var wg sync.WaitGroup
	for _, data := range [][]byte{a, b} {
		wg.Add(1)
		go func(data []byte) {
			defer wg.Done()
			_, err := w.Send(context.Background(), sess, escpos.NewCommandStream(data), KindControl)
			assert.NoError(t, err)
		}(data)
	}
	wg.Wait()

	got := bytes.Join(sess.recorded(), nil)
	assert.True(t, bytes.Equal(got, append(a, b...)) || bytes.Equal(got, append(b, a...)), "interleaved: %q", got)
}

func TestSendCancelledDuringPacing(t *testing.T) {
	sess := newFakeSession()
	w := NewWriter(Config{ChunkSize: 1, PacingDelay: time.Hour}, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := w.Send(ctx, sess, escpos.NewCommandStream(payload(3)), KindPrint)
	assert.ErrorIs(t, err, model.ErrWriteFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, sess.recorded(), 1)
}
