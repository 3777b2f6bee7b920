// internal/connection/reconnect.go
package connection

import (
	"context"
	"time"

	"printer-service/internal/model"
)

// reconnectLoop runs one disconnect episode: at most MaxAttempts dials to the
// known device, each after ReconnectDelay and bounded by ConnectTimeout.
// It exits quietly when its generation is superseded by Disconnect or Connect.
func (m *Manager) reconnectLoop(ctx context.Context, gen uint64, device model.PrinterDevice) {
	defer m.wg.Done()

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if err := sleepCtx(ctx, m.cfg.ReconnectDelay); err != nil {
			return
		}

		m.mu.Lock()
		if m.generation != gen {
			m.mu.Unlock()
			return
		}
		m.reconnectCount++
		m.totalReconnects++
		m.mu.Unlock()

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		link, ep, err := m.dial(attemptCtx, device)
		cancel()
		m.plog.LogConnection("reconnect", device.Address, attempt, time.Since(start), err)

		m.mu.Lock()
		if m.generation != gen {
			m.mu.Unlock()
			if link != nil {
				_ = link.Close()
			}
			return
		}
		if err == nil {
			m.cancelOp = nil
			m.installLocked(device, link, ep, true)
			m.mu.Unlock()
			return
		}

		lastErr = classify(err)
		m.recordErrorLocked(lastErr)
		m.publishAttemptLocked(attempt, lastErr)
		m.mu.Unlock()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return
	}
	m.cancelOp = nil
	exhausted := exhaustedError(m.cfg.MaxAttempts, lastErr)
	m.recordErrorLocked(exhausted)
	m.transitionLocked(model.StateError, m.cfg.MaxAttempts, exhausted)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
