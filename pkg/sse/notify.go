package sse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// notifyChannel is the single fixed PostgreSQL NOTIFY channel Conductor
// uses to fan Hub events out across replicas. The Hub already does
// in-process subscriber fan-out, so one shared cross-process channel
// suffices — every replica receives every event and re-filters locally.
const notifyChannel = "conductor_sse"

// wireEvent is the JSON shape published over pg_notify — it must stay well
// under PostgreSQL's 8000-byte NOTIFY payload limit. Origin is the sending
// replica's id, used to drop our own notifications on receipt.
type wireEvent struct {
	Origin  string         `json:"origin"`
	Source  string         `json:"source"`
	Kind    Kind           `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Broadcaster mirrors local Hub events to every other replica via
// pg_notify and republishes notifications received from peers into the
// local Hub. A process with no Broadcaster still works correctly as a
// single-replica deployment.
type Broadcaster struct {
	hub        *Hub
	db         *sql.DB
	connString string
	origin     string
	running    atomic.Bool
	cancel     context.CancelFunc
}

// NewBroadcaster wires hub to cross-replica delivery over db (for outbound
// NOTIFY) and a dedicated pgx connection to connString (for inbound LISTEN).
func NewBroadcaster(hub *Hub, db *sql.DB, connString string) *Broadcaster {
	return &Broadcaster{hub: hub, db: db, connString: connString, origin: uuid.NewString()}
}

// Start installs the outbound relay on the Hub and opens a dedicated
// LISTEN connection, republishing inbound notifications into the local Hub
// until ctx is cancelled or Stop is called.
func (b *Broadcaster) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return fmt.Errorf("broadcaster already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.hub.SetRelay(b.relayOut)
	go b.listenLoop(loopCtx)
	return nil
}

// Stop terminates the LISTEN loop and detaches the relay. Safe to call
// even if Start failed.
func (b *Broadcaster) Stop() {
	b.hub.SetRelay(nil)
	if b.cancel != nil {
		b.cancel()
	}
	b.running.Store(false)
}

// relayOut mirrors one locally-published event to the peers. It hands the
// network call off to a goroutine — the Hub's publisher must never block —
// and failures are logged, never surfaced to the publisher.
func (b *Broadcaster) relayOut(source string, kind Kind, payload map[string]any) {
	if b.db == nil {
		return
	}
	go func() {
		wire, err := json.Marshal(wireEvent{Origin: b.origin, Source: source, Kind: kind, Payload: payload})
		if err != nil {
			slog.Warn("sse: failed to marshal notify payload", "error", err)
			return
		}
		if len(wire) > 7900 {
			wire, _ = json.Marshal(wireEvent{Origin: b.origin, Source: source, Kind: kind, Payload: map[string]any{"truncated": true}})
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", notifyChannel, string(wire)); err != nil {
			slog.Warn("sse: pg_notify failed", "error", err)
		}
	}()
}

func (b *Broadcaster) listenLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := pgx.Connect(ctx, b.connString)
		if err != nil {
			slog.Error("sse: listen connection failed, retrying", "error", err)
			if !sleepOrDone(ctx, 2*time.Second) {
				return
			}
			continue
		}
		if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
			slog.Error("sse: LISTEN failed, retrying", "error", err)
			_ = conn.Close(ctx)
			if !sleepOrDone(ctx, 2*time.Second) {
				return
			}
			continue
		}
		b.receiveUntilError(ctx, conn)
		_ = conn.Close(ctx)
	}
}

func (b *Broadcaster) receiveUntilError(ctx context.Context, conn *pgx.Conn) {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("sse: notification wait failed, reconnecting", "error", err)
			}
			return
		}
		var we wireEvent
		if err := json.Unmarshal([]byte(n.Payload), &we); err != nil {
			slog.Warn("sse: malformed notify payload", "error", err)
			continue
		}
		if we.Origin == b.origin {
			continue
		}
		// Local-only publish: re-relaying a peer's event would bounce it
		// between replicas forever.
		b.hub.publish(we.Source, we.Kind, we.Payload)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
