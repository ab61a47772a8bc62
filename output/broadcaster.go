package output

import (
	"log/slog"
	"sync"

	"github.com/mrsingh-rishi/voice-doctor/model"
)

// subscriberBuffer bounds the events queued for one subscriber. A subscriber
// that falls this far behind is dropped.
const subscriberBuffer = 64

// Subscriber receives stage events as JSON. *websocket.Conn satisfies it.
type Subscriber interface {
	WriteJSON(v interface{}) error
}

type subscription struct {
	sub    Subscriber
	events chan model.StageEvent
	quit   chan struct{}
	done   chan struct{}
}

// Broadcaster fans pipeline stage events out to connected subscribers. It
// keeps the events of the most recent run so late subscribers can catch up.
// Each subscriber is written by its own goroutine; Observe never waits on one.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[Subscriber]*subscription
	history     []model.StageEvent
	logger      *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[Subscriber]*subscription),
		logger:      logger,
	}
}

// Observe records event and queues it for every subscriber. Subscribers whose
// queue is full are dropped.
func (b *Broadcaster) Observe(event model.StageEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.history) > 0 && b.history[len(b.history)-1].RequestID != event.RequestID {
		b.history = nil
	}
	if len(b.history) < subscriberBuffer {
		b.history = append(b.history, event)
	}

	for sub, s := range b.subscribers {
		select {
		case s.events <- event:
		default:
			b.logger.Warn("Dropping slow event subscriber")
			b.removeLocked(sub, s)
		}
	}
}

// Subscribe replays the latest run's events to sub and registers it for the
// following ones. The returned channel is closed once the subscription ends,
// either through Unsubscribe or because a write failed, and no write to sub is
// in flight any more.
func (b *Broadcaster) Subscribe(sub Subscriber) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subscribers[sub]; ok {
		return old.done
	}
	s := &subscription{
		sub:    sub,
		events: make(chan model.StageEvent, subscriberBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, event := range b.history {
		s.events <- event
	}
	b.subscribers[sub] = s
	go b.write(s)

	b.logger.Debug("Event subscriber added", slog.Int("subscribers", len(b.subscribers)))
	return s.done
}

// Unsubscribe removes sub. Unknown subscribers are ignored.
func (b *Broadcaster) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subscribers[sub]; ok {
		b.removeLocked(sub, s)
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// History returns a copy of the latest run's events.
func (b *Broadcaster) History() []model.StageEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.StageEvent(nil), b.history...)
}

func (b *Broadcaster) write(s *subscription) {
	defer close(s.done)
	for {
		var event model.StageEvent
		select {
		case <-s.quit:
			return
		case event = <-s.events:
		}
		select {
		case <-s.quit:
			return
		default:
		}
		if err := s.sub.WriteJSON(event); err != nil {
			b.logger.Warn("Dropping event subscriber", slog.String("error", err.Error()))
			b.mu.Lock()
			b.removeLocked(s.sub, s)
			b.mu.Unlock()
			return
		}
	}
}

// removeLocked must be called with b.mu held.
func (b *Broadcaster) removeLocked(sub Subscriber, s *subscription) {
	if b.subscribers[sub] != s {
		return
	}
	delete(b.subscribers, sub)
	close(s.quit)
}
