package broadcast

import (
	"log"
	"sync"

	"reelsmith/types"
)

// Subscriber receives progress events for one session. Send must not block
// indefinitely; returning an error marks the delivery failed for this
// subscriber only.
type Subscriber interface {
	Send(ev types.ProgressEvent) error
}

// Sink mirrors every published event to an external transport (e.g. Kafka).
// Sink failures are logged and never affect local delivery.
type Sink interface {
	Mirror(sessionID string, ev types.ProgressEvent) error
}

// Handle identifies one subscription for later removal
type Handle struct {
	sessionID string
	id        uint64
}

// Registry is the process-wide progress broadcaster. It is created once at
// startup, passed by reference to the API server and the orchestrator, and
// torn down with Close at shutdown.
type Registry struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]Subscriber
	nextID uint64
	sink   Sink
	closed bool
}

// NewRegistry creates an empty registry with an optional mirror sink
func NewRegistry(sink Sink) *Registry {
	return &Registry{
		subs: make(map[string]map[uint64]Subscriber),
		sink: sink,
	}
}

// Subscribe registers a subscriber for a session's events. No cap is
// enforced at this layer.
func (r *Registry) Subscribe(sessionID string, sub Subscriber) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	if r.subs[sessionID] == nil {
		r.subs[sessionID] = make(map[uint64]Subscriber)
	}
	r.subs[sessionID][r.nextID] = sub
	return Handle{sessionID: sessionID, id: r.nextID}
}

// Unsubscribe removes a subscription. Unknown or already-removed handles are
// a no-op, so callers may defer it unconditionally.
func (r *Registry) Unsubscribe(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.subs[h.sessionID]; ok {
		delete(m, h.id)
		if len(m) == 0 {
			delete(r.subs, h.sessionID)
		}
	}
}

// Publish delivers an event to every subscriber registered at the moment of
// the call, best effort. A failing subscriber is logged and skipped; it
// never aborts delivery to the rest or surfaces to the caller. There is no
// buffering: subscribers that attach later never see this event.
//
// The subscriber set is snapshotted under the lock and delivery runs outside
// it, so a slow Send or a stalled sink never blocks Subscribe, Unsubscribe,
// or publishes for other sessions. Per-session ordering holds because each
// session's events are published by its single driving goroutine.
func (r *Registry) Publish(sessionID string, ev types.ProgressEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	type target struct {
		id  uint64
		sub Subscriber
	}
	targets := make([]target, 0, len(r.subs[sessionID]))
	for id, sub := range r.subs[sessionID] {
		targets = append(targets, target{id: id, sub: sub})
	}
	sink := r.sink
	r.mu.Unlock()

	for _, t := range targets {
		r.deliver(sessionID, t.id, t.sub, ev)
	}

	if sink != nil {
		if err := sink.Mirror(sessionID, ev); err != nil {
			log.Printf("broadcast: mirror failed for session %s: %v", sessionID, err)
		}
	}
}

// deliver isolates one subscriber: an error or panic is contained here
func (r *Registry) deliver(sessionID string, id uint64, sub Subscriber, ev types.ProgressEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("broadcast: subscriber %d panicked for session %s: %v", id, sessionID, rec)
		}
	}()

	if err := sub.Send(ev); err != nil {
		log.Printf("broadcast: delivery to subscriber %d failed for session %s: %v", id, sessionID, err)
	}
}

// SubscriberCount returns the number of live subscribers for a session
func (r *Registry) SubscriberCount(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[sessionID])
}

// Close drops all subscriptions and stops further delivery
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.subs = make(map[string]map[uint64]Subscriber)
}
