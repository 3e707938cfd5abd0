package idp

import "sync"

// Identity is the provider's view of a signed-in account, carried on
// auth-state change notifications.
type Identity struct {
	ID            string
	Email         string
	DisplayName   string
	EmailVerified bool
}

// StateChange is one auth-state notification. A nil Identity means signed
// out. Each event carries the full state, not a delta, so the latest event
// alone is sufficient to reconstruct the current state.
type StateChange struct {
	Identity *Identity
}

// Hub fans auth-state changes out to subscribers, preserving the order in
// which state changes occurred. Delivery per subscriber goes through a
// buffered channel; when a subscriber falls behind, the oldest undelivered
// event is dropped in favor of the newest, which is safe because events are
// absolute states.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan StateChange
	nextID int
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan StateChange)}
}

const subscriberBuffer = 16

// Subscribe registers a new subscriber. The returned cancel function is
// idempotent and closes the channel.
func (h *Hub) Subscribe() (<-chan StateChange, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++

	ch := make(chan StateChange, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if existing, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(existing)
			}
		})
	}
	return ch, cancel
}

// Emit delivers a state change to every subscriber in subscription order.
func (h *Hub) Emit(change StateChange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		for {
			select {
			case ch <- change:
			default:
				// Subscriber is full: shed the oldest event and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close closes all subscriber channels. Further Emit calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
