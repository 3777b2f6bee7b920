// internal/transport/writer.go
package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/driver/escpos"
	"printer-service/internal/model"
)

const (
	DefaultChunkSize   = 20
	DefaultPacingDelay = 10 * time.Millisecond
)

// Session is the write side of a live printer session. Only the connection
// package implements it; the characteristic handle stays behind WriteChunk.
type Session interface {
	State() model.ConnectionState
	WriteChunk(ctx context.Context, chunk []byte) error
	// MaxPayload is the largest safe write for the negotiated link, 0 when unknown
	MaxPayload() int
}

// Kind tells the writer who is sending so it can apply busy rules
type Kind int

const (
	KindPrint Kind = iota
	KindProbe
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindPrint:
		return "print"
	case KindProbe:
		return "probe"
	case KindControl:
		return "control"
	}
	return "unknown"
}

// Config represents writer configuration
type Config struct {
	ChunkSize   int
	PacingDelay time.Duration
}

// SendResult describes a completed send
type SendResult struct {
	Bytes    int
	Chunks   int
	Duration time.Duration
}

// Stats are cumulative writer counters
type Stats struct {
	Sends        int64 `json:"sends"`
	Failures     int64 `json:"failures"`
	Rejected     int64 `json:"rejected"`
	BytesWritten int64 `json:"bytes_written"`
	ChunksSent   int64 `json:"chunks_sent"`
}

// Writer splits command streams into chunks and writes them one at a time.
// All sends are serialized; a print and a probe never interleave.
type Writer struct {
	cfg    Config
	logger *zap.Logger

	sendMu sync.Mutex

	gateMu      sync.Mutex
	printing    int
	probing     bool
	probeQueued bool

	sends        atomic.Int64
	failures     atomic.Int64
	rejected     atomic.Int64
	bytesWritten atomic.Int64
	chunksSent   atomic.Int64
}

// NewWriter creates a new Writer
func NewWriter(cfg Config, logger *zap.Logger) *Writer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.PacingDelay < 0 {
		cfg.PacingDelay = 0
	}
	return &Writer{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "transport")),
	}
}

// ChunkSizeFor returns the chunk size used for sess
func (w *Writer) ChunkSizeFor(sess Session) int {
	size := w.cfg.ChunkSize
	if sess != nil {
		if max := sess.MaxPayload(); max > 0 && max < size {
			size = max
		}
	}
	return size
}

// Send writes stream to sess. It fails with NotConnected before touching the link
// when sess is not Connected, with PrinterBusy when a print meets an in-flight probe,
// with ProbeSkipped when a probe meets an in-flight print, and with WriteFailure when
// any chunk fails. Remaining chunks are dropped after a failure; retrying is up to the caller.
func (w *Writer) Send(ctx context.Context, sess Session, stream escpos.CommandStream, kind Kind) (*SendResult, error) {
	if sess == nil || sess.State() != model.StateConnected {
		w.rejected.Add(1)
		return nil, model.NewError(model.KindNotConnected, nil)
	}

	release, err := w.acquire(kind)
	if err != nil {
		w.rejected.Add(1)
		return nil, err
	}
	defer release()

	// State may have changed while queued behind another send
	if sess.State() != model.StateConnected {
		w.rejected.Add(1)
		return nil, model.NewError(model.KindNotConnected, nil)
	}

	start := time.Now()
	chunkSize := w.ChunkSizeFor(sess)
	chunks := stream.Chunks(chunkSize)

	for i, chunk := range chunks {
		if i > 0 && w.cfg.PacingDelay > 0 {
			if err := pace(ctx, w.cfg.PacingDelay); err != nil {
				return nil, w.fail(kind, i, len(chunks), err)
			}
		}
		if err := sess.WriteChunk(ctx, chunk); err != nil {
			return nil, w.fail(kind, i, len(chunks), err)
		}
		w.chunksSent.Add(1)
		w.bytesWritten.Add(int64(len(chunk)))
	}

	w.sends.Add(1)
	result := &SendResult{
		Bytes:    stream.Len(),
		Chunks:   len(chunks),
		Duration: time.Since(start),
	}

	w.logger.Debug("Stream sent",
		zap.String("kind", kind.String()),
		zap.Int("bytes", result.Bytes),
		zap.Int("chunks", result.Chunks),
		zap.Int("chunk_size", chunkSize),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// Busy reports whether a print or probe is in flight
func (w *Writer) Busy() (printing, probing bool) {
	w.gateMu.Lock()
	defer w.gateMu.Unlock()
	return w.printing > 0, w.probing
}

// GetStats returns cumulative counters
func (w *Writer) GetStats() Stats {
	return Stats{
		Sends:        w.sends.Load(),
		Failures:     w.failures.Load(),
		Rejected:     w.rejected.Load(),
		BytesWritten: w.bytesWritten.Load(),
		ChunksSent:   w.chunksSent.Load(),
	}
}

// acquire takes the send lock for kind. A print is rejected only while a probe
// holds the lock; a probe that is still waiting does not count as in flight.
func (w *Writer) acquire(kind Kind) (func(), error) {
	if kind == KindProbe {
		return w.acquireProbe()
	}

	w.gateMu.Lock()
	if kind == KindPrint {
		if w.probing {
			w.gateMu.Unlock()
			return nil, model.NewError(model.KindPrinterBusy, fmt.Errorf("keep-alive probe in flight"))
		}
		w.printing++
	}
	w.gateMu.Unlock()

	w.sendMu.Lock()
	return func() {
		w.sendMu.Unlock()
		if kind == KindPrint {
			w.gateMu.Lock()
			w.printing--
			w.gateMu.Unlock()
		}
	}, nil
}

// acquireProbe skips when a print is in flight or queued, before and after
// waiting for the send lock
func (w *Writer) acquireProbe() (func(), error) {
	w.gateMu.Lock()
	if w.printing > 0 || w.probing || w.probeQueued {
		w.gateMu.Unlock()
		return nil, model.NewError(model.KindProbeSkipped, nil)
	}
	w.probeQueued = true
	w.gateMu.Unlock()

	w.sendMu.Lock()

	w.gateMu.Lock()
	w.probeQueued = false
	if w.printing > 0 {
		w.gateMu.Unlock()
		w.sendMu.Unlock()
		return nil, model.NewError(model.KindProbeSkipped, nil)
	}
	w.probing = true
	w.gateMu.Unlock()

	return func() {
		w.gateMu.Lock()
		w.probing = false
		w.gateMu.Unlock()
		w.sendMu.Unlock()
	}, nil
}

func (w *Writer) fail(kind Kind, index, total int, err error) error {
	w.failures.Add(1)
	w.logger.Warn("Stream write aborted",
		zap.String("kind", kind.String()),
		zap.Int("chunk", index+1),
		zap.Int("chunks", total),
		zap.Error(err),
	)
	return model.NewError(model.KindWriteFailure, fmt.Errorf("chunk %d/%d: %w", index+1, total, err))
}

func pace(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
