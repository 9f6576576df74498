// Package sse provides the shared server-sent-event broadcaster used by
// every progress-reporting endpoint: ingestion, scenario activation, and
// agent runs. Bounded per-subscriber queues and a per-source ring buffer
// keep slow clients from ever blocking a publisher; the wire format is
// gin-contrib/sse's text/event-stream framing.
package sse

import "time"

// Kind enumerates the event-record kinds the substrate emits.
type Kind string

const (
	KindProgress  Kind = "progress"
	KindComplete  Kind = "complete"
	KindError     Kind = "error"
	KindLog       Kind = "log"
	KindHeartbeat Kind = "heartbeat"
	// KindOverflow marks a gap in a subscriber's stream: the subscriber's
	// bounded queue filled and the oldest queued events were dropped to
	// make room.
	KindOverflow Kind = "overflow"

	// Agent-run event kinds emitted by the orchestration bridge.
	KindRunStart     Kind = "run_start"
	KindStepThinking Kind = "step_thinking"
	KindStepStart    Kind = "step_start"
	KindStepComplete Kind = "step_complete"
	KindMessage      Kind = "message"
	KindRunComplete  Kind = "run_complete"
)

// Terminal reports whether an event of this kind ends its stream.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindError || k == KindRunComplete
}

// Event is one record flowing through the broadcaster: an id, timestamp,
// source tag, kind, and free-form payload.
type Event struct {
	ID        uint64         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"-"`
	Kind      Kind           `json:"-"`
	Payload   map[string]any `json:"-"`
}
