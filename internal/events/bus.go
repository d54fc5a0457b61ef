// internal/events/bus.go
package events

import (
	"sync"

	"go.uber.org/zap"

	"pikoder-service/internal/model"
)

// AllEvents subscribes to every event type
const AllEvents model.EventType = "*"

// Bus distributes session events to subscribers. Publishing never blocks;
// events are dropped when the bus or a subscriber is full.
type Bus struct {
	subscribers map[model.EventType][]chan model.SessionEvent
	events      chan model.SessionEvent
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	logger      *zap.Logger
}

// NewBus creates a new event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[model.EventType][]chan model.SessionEvent),
		events:      make(chan model.SessionEvent, 1000),
		done:        make(chan struct{}),
		logger:      logger.With(zap.String("component", "event_bus")),
	}
}

// Start distributes events until Close is called
func (eb *Bus) Start() {
	for {
		select {
		case event := <-eb.events:
			eb.distributeEvent(event)
		case <-eb.done:
			return
		}
	}
}

// Close stops distribution and closes every subscriber channel
func (eb *Bus) Close() {
	eb.closeOnce.Do(func() {
		close(eb.done)

		eb.mutex.Lock()
		defer eb.mutex.Unlock()
		for eventType, subs := range eb.subscribers {
			for _, sub := range subs {
				close(sub)
			}
			delete(eb.subscribers, eventType)
		}
	})
}

// Publish publishes an event
func (eb *Bus) Publish(event model.SessionEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Subscribe subscribes to events of a specific type, or AllEvents
func (eb *Bus) Subscribe(eventType model.EventType) <-chan model.SessionEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.SessionEvent, 100)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	return subscriber
}

// Unsubscribe removes and closes a channel returned by Subscribe
func (eb *Bus) Unsubscribe(ch <-chan model.SessionEvent) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for eventType, subs := range eb.subscribers {
		for i, sub := range subs {
			if sub == ch {
				eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(sub)
				return
			}
		}
	}
}

// distributeEvent distributes an event to subscribers
func (eb *Bus) distributeEvent(event model.SessionEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, key := range []model.EventType{event.EventType, AllEvents} {
		for _, subscriber := range eb.subscribers[key] {
			select {
			case subscriber <- event:
			default:
				// Subscriber is slow, skip
			}
		}
	}
}
