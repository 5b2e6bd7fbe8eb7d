// Package notify implements the per-user notification fan-out used to push
// simulation completion and failure events to long-lived client connections.
// The hub is an explicit, injected instance with its own lifecycle rather
// than a module-level registry, so it can be tested in isolation.
package notify

import (
	"sync"
	"time"

	"github.com/hupe1980/teamsim/logging"
)

// Event types delivered to subscribers.
const (
	EventSimulationCompleted = "simulation_completed"
	EventSimulationFailed    = "simulation_failed"
)

// Event is the small JSON-serializable payload pushed to a user's open
// client connections.
type Event struct {
	Type           string    `json:"type"`
	SimulationID   string    `json:"simulation_id"`
	SimulationName string    `json:"simulation_name"`
	Message        string    `json:"message"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Subscription is one consumer's private event queue. Multiple subscriptions
// may exist concurrently for one user (multiple tabs/devices); each receives
// its own copy of every event for that user.
type Subscription struct {
	UserID string

	ch   chan Event
	hub  *Hub
	once sync.Once
}

// Events returns the receive side of the subscription queue. The channel is
// closed when the subscription is closed; consumers treat close as the stop
// sentinel.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unsubscribes and closes the event channel. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Options configures a Hub.
type Options struct {
	// QueueSize is the per-subscription buffer. A subscriber that falls this
	// far behind loses events rather than blocking the publisher.
	QueueSize int

	Logger logging.Logger
}

// Hub fans events out to every active subscription of a user. Publishing to a
// user with zero subscriptions drops the event silently; there is no durable
// backlog.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
	opts Options
}

// NewHub creates an empty fan-out hub.
func NewHub(optFns ...func(o *Options)) *Hub {
	opts := Options{
		QueueSize: 16,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), opts: opts}
}

// Subscribe registers a fresh, independent queue for the user.
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		UserID: userID,
		ch:     make(chan Event, h.opts.QueueSize),
		hub:    h,
	}

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	count := len(set)
	h.mu.Unlock()

	h.opts.Logger.Debug("subscriber added", "user_id", userID, "subscriptions", count)
	return sub
}

// Publish enqueues the event into every currently registered queue for the
// user and returns the number of queues it reached. It never blocks: a full
// queue loses the event with a warning.
func (h *Hub) Publish(userID string, ev Event) int {
	h.mu.Lock()
	set := h.subs[userID]
	targets := make([]*Subscription, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	delivered := 0
	for _, sub := range targets {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			h.opts.Logger.Warn("subscriber queue full, event dropped",
				"user_id", userID, "event_type", ev.Type)
		}
	}
	return delivered
}

// SubscriberCount returns the number of active subscriptions for a user.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// remove detaches the subscription; when a user's set becomes empty the user
// entry itself is removed to bound memory growth.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if set, ok := h.subs[sub.UserID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.UserID)
		}
	}
	h.mu.Unlock()
	close(sub.ch)
}
