// internal/connection/events.go
package connection

import (
	"sync"

	"go.uber.org/zap"

	"printer-service/internal/model"
)

// DefaultSubscriberBuffer is used when Subscribe is called with a buffer below 1
const DefaultSubscriberBuffer = 64

// stateFeed fans state events out to subscribers. The manager is its only publisher.
type stateFeed struct {
	mutex       sync.RWMutex
	subscribers map[int]chan model.StateEvent
	nextID      int
	closed      bool
	logger      *zap.Logger
}

func newStateFeed(logger *zap.Logger) *stateFeed {
	return &stateFeed{
		subscribers: make(map[int]chan model.StateEvent),
		logger:      logger,
	}
}

// subscribe registers a buffered channel; the returned func unregisters and closes it
func (f *stateFeed) subscribe(buffer int) (<-chan model.StateEvent, func()) {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()

	ch := make(chan model.StateEvent, buffer)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mutex.Lock()
			defer f.mutex.Unlock()
			if sub, ok := f.subscribers[id]; ok {
				delete(f.subscribers, id)
				close(sub)
			}
		})
	}
}

// publish never blocks; a full subscriber misses the event
func (f *stateFeed) publish(event model.StateEvent) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	for id, sub := range f.subscribers {
		select {
		case sub <- event:
		default:
			f.logger.Warn("State subscriber full, dropping event",
				zap.Int("subscriber", id),
				zap.String("event_type", string(event.Type)),
				zap.String("to", string(event.To)),
			)
		}
	}
}

func (f *stateFeed) close() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.subscribers {
		delete(f.subscribers, id)
		close(sub)
	}
}
