// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"printer-service/internal/model"
)

const (
	eventBusBuffer   = 1000
	subscriberBuffer = 100
)

// EventBus fans service events out to websocket subscribers. It implements
// service.EventPublisher.
type EventBus struct {
	subscribers map[int]*subscription
	nextID      int
	events      chan model.ServiceEvent
	done        chan struct{}
	stopOnce    sync.Once
	mutex       sync.RWMutex
	logger      *zap.Logger
}

type subscription struct {
	types map[model.EventType]bool
	ch    chan model.ServiceEvent
}

func (s *subscription) wants(t model.EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[int]*subscription),
		events:      make(chan model.ServiceEvent, eventBusBuffer),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start distributes events until Stop is called
func (eb *EventBus) Start() {
	for {
		select {
		case <-eb.done:
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Stop ends distribution and closes every subscriber channel
func (eb *EventBus) Stop() {
	eb.stopOnce.Do(func() {
		close(eb.done)

		eb.mutex.Lock()
		defer eb.mutex.Unlock()
		for id, sub := range eb.subscribers {
			close(sub.ch)
			delete(eb.subscribers, id)
		}
	})
}

// Publish queues an event without blocking the caller
func (eb *EventBus) Publish(event model.ServiceEvent) {
	select {
	case <-eb.done:
		return
	default:
	}

	select {
	case eb.events <- event:
	default:
		if eb.logger != nil {
			eb.logger.Warn("Event bus full, dropping event",
				zap.String("event_type", string(event.Type)),
			)
		}
	}
}

// Subscribe returns a channel receiving events of the given types, or every
// event when no type is given. The returned func cancels the subscription.
func (eb *EventBus) Subscribe(eventTypes ...model.EventType) (<-chan model.ServiceEvent, func()) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	sub := &subscription{
		types: make(map[model.EventType]bool, len(eventTypes)),
		ch:    make(chan model.ServiceEvent, subscriberBuffer),
	}
	for _, t := range eventTypes {
		sub.types[t] = true
	}

	select {
	case <-eb.done:
		close(sub.ch)
		return sub.ch, func() {}
	default:
	}

	id := eb.nextID
	eb.nextID++
	eb.subscribers[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			eb.mutex.Lock()
			defer eb.mutex.Unlock()
			if s, ok := eb.subscribers[id]; ok {
				close(s.ch)
				delete(eb.subscribers, id)
			}
		})
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.ServiceEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, sub := range eb.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
