package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types pushed over a requester's stream.
const (
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventFinding        = "finding"
	EventError          = "error"
	EventDone           = "done"
)

// Event is an ephemeral progress message. Events live only for the duration
// of a subscriber's stream and are never stored or replayed.
type Event struct {
	ExecutionID int64       `json:"execution_id"`
	Type        string      `json:"type"`
	Payload     interface{} `json:"payload,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Subscription is one listener's stream. Closing it detaches the listener;
// the producer is unaffected.
type Subscription struct {
	ID     string
	C      <-chan Event
	ch     chan Event
	hub    *Hub
	key    string
	closed sync.Once
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.closed.Do(func() {
		s.hub.unsubscribe(s.key, s.ID)
		close(s.ch)
	})
}

// Hub fans events out to zero or more subscribers per requester. One
// producer, best-effort delivery: a full or vanished subscriber buffer drops
// the event rather than blocking the orchestrator.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan Event
	// buffer size per subscriber channel
	buffer int
}

// NewHub creates a hub with a per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{
		subs:   make(map[string]map[string]chan Event),
		buffer: buffer,
	}
}

// Subscribe opens a stream for a requester. Multiple subscriptions per
// requester each receive every event.
func (h *Hub) Subscribe(requester string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	id := uuid.NewString()
	if h.subs[requester] == nil {
		h.subs[requester] = make(map[string]chan Event)
	}
	h.subs[requester][id] = ch

	return &Subscription{ID: id, C: ch, ch: ch, hub: h, key: requester}
}

func (h *Hub) unsubscribe(requester, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.subs[requester]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(h.subs, requester)
		}
	}
}

// Publish sends an event to every subscriber of a requester. Never blocks;
// absent or slow subscribers have no effect on the producer.
func (h *Hub) Publish(requester string, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[requester] {
		select {
		case ch <- event:
		default:
			// subscriber is not draining; drop
		}
	}
}

// SubscriberCount reports the number of live subscriptions for a requester.
func (h *Hub) SubscriberCount(requester string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[requester])
}
