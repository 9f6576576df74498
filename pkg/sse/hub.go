package sse

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTailSize is the default number of retained events per source tag
// (the "N" in TailBuffer), configurable via config.Defaults.SSETailSize.
const DefaultTailSize = 100

// DefaultSubscriberQueueSize is the bounded capacity of each subscriber's
// private channel.
const DefaultSubscriberQueueSize = 256

// DefaultHeartbeatInterval is how often an idle stream receives a heartbeat
// event, to keep intermediary proxies from timing out the connection.
const DefaultHeartbeatInterval = 15 * time.Second

// Filter decides whether a subscriber wants to see events from a given
// source tag. A nil Filter matches everything.
type Filter func(source string) bool

// Hub is the single reusable SSE broadcaster. One Hub instance is shared by
// every endpoint that streams progress (ingestion, scenario activation,
// agent runs) and by the /logs endpoint. It never blocks a publisher:
// a slow or stuck subscriber only loses its own tail, never affects
// other subscribers or the publisher.
type Hub struct {
	mu       sync.Mutex
	buffers  map[string]*ringBuffer
	subs     map[*Subscription]struct{}
	nextID   uint64
	tailSize int
	queueCap int

	// relay, when set, observes every locally-published event — the hook
	// the cross-replica Broadcaster uses to mirror events to its peers.
	// It must not block; the Broadcaster's implementation hands off to a
	// goroutine.
	relay func(source string, kind Kind, payload map[string]any)
}

// NewHub builds a Hub with the given per-source tail size and per-subscriber
// queue capacity. A zero value for either falls back to the package default.
func NewHub(tailSize, queueCap int) *Hub {
	if tailSize <= 0 {
		tailSize = DefaultTailSize
	}
	if queueCap <= 0 {
		queueCap = DefaultSubscriberQueueSize
	}
	return &Hub{
		buffers:  make(map[string]*ringBuffer),
		subs:     make(map[*Subscription]struct{}),
		tailSize: tailSize,
		queueCap: queueCap,
	}
}

// ringBuffer is a bounded FIFO deque of recent events for one source tag.
type ringBuffer struct {
	events []Event
	cap    int
}

func (r *ringBuffer) push(e Event) {
	r.events = append(r.events, e)
	if len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

// tail returns a copy of the retained events, so callers never hold a
// reference into the live buffer.
func (r *ringBuffer) tail() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Subscribe registers a new subscriber matching filter (nil matches all
// sources) and returns its channel plus a cancel closure. Subscribe returns
// immediately; it never blocks waiting for history.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		events: make(chan Event, h.queueCap),
		filter: filter,
		hub:    h,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// unsubscribe removes sub from the registry and closes its channel. Safe to
// call more than once.
func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.events)
	}
	h.mu.Unlock()
}

// SetRelay installs the cross-replica mirror hook. Call during startup,
// before any Publish.
func (h *Hub) SetRelay(relay func(source string, kind Kind, payload map[string]any)) {
	h.mu.Lock()
	h.relay = relay
	h.mu.Unlock()
}

// Publish fans an event out to every matching subscriber and mirrors it to
// the relay hook, if one is installed.
func (h *Hub) Publish(source string, kind Kind, payload map[string]any) Event {
	ev := h.publish(source, kind, payload)
	h.mu.Lock()
	relay := h.relay
	h.mu.Unlock()
	if relay != nil {
		relay(source, kind, payload)
	}
	return ev
}

// publish delivers locally only. It never blocks: a subscriber whose queue
// is full has its oldest queued events dropped and an overflow marker
// enqueued ahead of the new event.
func (h *Hub) publish(source string, kind Kind, payload map[string]any) Event {
	h.mu.Lock()
	id := h.nextID + 1
	h.nextID = id
	ev := Event{ID: id, Timestamp: time.Now(), Source: source, Kind: kind, Payload: payload}

	buf, ok := h.buffers[source]
	if !ok {
		buf = &ringBuffer{cap: h.tailSize}
		h.buffers[source] = buf
	}
	buf.push(ev)

	// Delivery stays under h.mu so unsubscribe cannot close a subscriber's
	// channel while an event is being sent on it; deliver never blocks, so
	// the lock is held only briefly.
	for s := range h.subs {
		if s.filter != nil && !s.filter(source) {
			continue
		}
		s.deliver(ev)
	}
	h.mu.Unlock()
	return ev
}

// TailBuffer returns up to the configured N most recent retained events for
// source, for replay to a newly-connected subscriber.
func (h *Hub) TailBuffer(source string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf, ok := h.buffers[source]
	if !ok {
		return nil
	}
	return buf.tail()
}

// SubscriberCount reports how many subscribers are currently registered —
// used by the /health endpoint to surface backend-cache/SSE occupancy.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscription is a single subscriber's view of the Hub: a receive-only
// event channel and a cancel closure. Created on Subscribe, destroyed on
// Close.
type Subscription struct {
	events  chan Event
	filter  Filter
	hub     *Hub
	closed  atomic.Bool
}

// Events returns the receive-only channel of delivered events.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close cancels the subscription; safe to call multiple times and safe to
// call concurrently with delivery.
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.hub.unsubscribe(s)
	}
}

// deliver enqueues ev without blocking. On a full queue it drops the two
// oldest queued events and enqueues an overflow marker followed by ev, so
// the marker precedes ev and the client can detect the gap and
// resynchronize via a REST reload.
func (s *Subscription) deliver(ev Event) {
	select {
	case s.events <- ev:
		return
	default:
	}
	// Queue full: drop the two oldest events to make room for the marker
	// and ev. With a queue capacity of 1 only the marker fits and ev is lost.
	for i := 0; i < 2; i++ {
		select {
		case <-s.events:
		default:
		}
	}
	overflow := Event{ID: ev.ID, Timestamp: time.Now(), Source: ev.Source, Kind: KindOverflow}
	select {
	case s.events <- overflow:
	default:
	}
	select {
	case s.events <- ev:
	default:
	}
}
