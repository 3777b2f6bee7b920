// internal/connection/session.go
package connection

import (
	"context"
	"sync"
	"time"

	"printer-service/internal/model"
	"printer-service/pkg/driver"
)

// attHeader is the ATT opcode and handle overhead subtracted from the MTU
const attHeader = 3

// Session is the single live link to the printer. It owns the writable
// characteristic; nothing outside this package and the transport writer can reach it.
// A nil *Session behaves as a disconnected one.
type Session struct {
	device         model.PrinterDevice
	link           driver.Link
	ep             *endpoint
	connectedSince time.Time

	mu    sync.RWMutex
	state model.ConnectionState

	// stop ends the disconnect watcher
	stop context.CancelFunc
}

func newSession(device model.PrinterDevice, link driver.Link, ep *endpoint, at time.Time) *Session {
	return &Session{
		device:         device,
		link:           link,
		ep:             ep,
		connectedSince: at,
		state:          model.StateConnected,
	}
}

// State returns the session state
func (s *Session) State() model.ConnectionState {
	if s == nil {
		return model.StateDisconnected
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Device returns the connected printer
func (s *Session) Device() model.PrinterDevice {
	if s == nil {
		return model.PrinterDevice{}
	}
	return s.device
}

// ConnectedSince returns when negotiation finished
func (s *Session) ConnectedSince() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.connectedSince
}

// WriteChunk writes one chunk to the negotiated characteristic
func (s *Session) WriteChunk(ctx context.Context, chunk []byte) error {
	if s.State() != model.StateConnected {
		return model.NewError(model.KindNotConnected, nil)
	}
	return s.link.Write(ctx, s.ep.char, chunk, s.ep.withoutResponse)
}

// MaxPayload returns MTU minus the ATT header, 0 when the MTU is unknown
func (s *Session) MaxPayload() int {
	if s == nil {
		return 0
	}
	if mtu := s.link.MTU(); mtu > attHeader {
		return mtu - attHeader
	}
	return 0
}

func (s *Session) setState(state model.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// close drops the characteristic, stops the watcher and closes the link
func (s *Session) close(final model.ConnectionState) {
	s.setState(final)
	if s.stop != nil {
		s.stop()
	}
	_ = s.link.Close()
}
