// internal/drawer/controller.go
package drawer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"printer-service/internal/driver/escpos"
	"printer-service/internal/model"
	"printer-service/internal/transport"
)

// Sender writes a command stream to the printer session
type Sender interface {
	Send(ctx context.Context, sess transport.Session, stream escpos.CommandStream, kind transport.Kind) (*transport.SendResult, error)
}

// Stats are drawer counters
type Stats struct {
	Opens     int64            `json:"opens"`
	Failures  int64            `json:"failures"`
	LastOpen  *time.Time       `json:"last_open,omitempty"`
	LastError *model.ErrorInfo `json:"last_error,omitempty"`
}

// Controller pulses the cash drawer wired to the printer's kick port
type Controller struct {
	sender Sender
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	opens       int64
	failures    int64
	lastOpen    time.Time
	lastError   error
	lastErrorAt time.Time
}

// NewController creates a new Controller
func NewController(sender Sender, logger *zap.Logger) *Controller {
	return &Controller{
		sender: sender,
		logger: logger.With(zap.String("component", "drawer")),
		now:    time.Now,
	}
}

// OpenDrawer sends the drawer-kick pulse. It fails with NotConnected without
// writing when sess is not Connected and never changes connection state.
// Opening an already open drawer is harmless.
func (c *Controller) OpenDrawer(ctx context.Context, sess transport.Session) error {
	_, err := c.sender.Send(ctx, sess, escpos.DrawerKickCommand(), transport.KindControl)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.failures++
		c.lastError = err
		c.lastErrorAt = now
		c.logger.Warn("Drawer kick failed", zap.Error(err))
		return err
	}

	c.opens++
	c.lastOpen = now
	c.logger.Info("Drawer opened", zap.Int64("opens", c.opens))
	return nil
}

// GetStats returns drawer counters
func (c *Controller) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Opens:     c.opens,
		Failures:  c.failures,
		LastError: model.NewErrorInfo(c.lastError, c.lastErrorAt),
	}
	if !c.lastOpen.IsZero() {
		t := c.lastOpen
		stats.LastOpen = &t
	}
	return stats
}
