package push

import (
	"sync"
	"time"
)

const (
	EventState     = "state"
	EventHeartbeat = "heartbeat"

	// subscriberBuffer is the per-device queue. A device that cannot
	// drain it is treated as dead and dropped; polling remains the
	// correctness fallback.
	subscriberBuffer = 16
)

// Event is one message pushed to a connected device: either a committed
// state change tagged with the operation that caused it, or a periodic
// heartbeat whose ServerTime lets clients correct for clock drift.
type Event struct {
	Type       string      `json:"type"`
	Reason     string      `json:"reason,omitempty"`
	State      interface{} `json:"state,omitempty"`
	ServerTime time.Time   `json:"serverTime"`
}

// Subscriber is one device's long-lived push channel.
type Subscriber struct {
	userID string
	ch     chan Event
}

// Events is the receive side consumed by the transport handler. The
// channel is closed when the subscriber is dropped or the hub shuts down.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Hub is the explicit registry of connected devices, keyed by user.
// Created at process start and injected wherever fan-out is needed;
// nothing in the engine reaches for global state.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscriber]struct{}
	closed bool

	heartbeatEvery time.Duration
	now            func() time.Time
	stop           chan struct{}
	done           chan struct{}
}

func NewHub(heartbeatEvery time.Duration) *Hub {
	if heartbeatEvery <= 0 {
		heartbeatEvery = 25 * time.Second
	}
	return &Hub{
		subs:           make(map[string]map[*Subscriber]struct{}),
		heartbeatEvery: heartbeatEvery,
		now:            func() time.Time { return time.Now().UTC() },
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start launches the heartbeat loop. Heartbeats double as liveness
// probes: a subscriber whose buffer stays full gets pruned here even if
// no state change ever happens.
func (h *Hub) Start() {
	go h.run()
}

func (h *Hub) run() {
	defer close(h.done)
	ticker := time.NewTicker(h.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.broadcastHeartbeat()
		case <-h.stop:
			return
		}
	}
}

// Close stops the heartbeat loop and closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
	}
	h.subs = make(map[string]map[*Subscriber]struct{})
	h.mu.Unlock()

	close(h.stop)
	<-h.done
}

// Subscribe registers a device for the user's state changes.
func (h *Hub) Subscribe(userID string) *Subscriber {
	sub := &Subscriber{userID: userID, ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[userID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the device and closes its channel. Safe to call
// after the subscriber was already pruned.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// Notify fans a committed state change out to every device currently
// connected for the user. Non-blocking: a full buffer drops that device
// without affecting the others or the committed write.
func (h *Hub) Notify(userID, reason string, state interface{}) {
	ev := Event{
		Type:       EventState,
		Reason:     reason,
		State:      state,
		ServerTime: h.now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[userID] {
		h.sendLocked(sub, ev)
	}
}

// SubscriberCount reports connected devices for a user.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

func (h *Hub) broadcastHeartbeat() {
	ev := Event{
		Type:       EventHeartbeat,
		ServerTime: h.now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for sub := range set {
			h.sendLocked(sub, ev)
		}
	}
}

func (h *Hub) sendLocked(sub *Subscriber, ev Event) {
	select {
	case sub.ch <- ev:
	default:
		h.removeLocked(sub)
	}
}

func (h *Hub) removeLocked(sub *Subscriber) {
	set, ok := h.subs[sub.userID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.userID)
	}
	close(sub.ch)
}
