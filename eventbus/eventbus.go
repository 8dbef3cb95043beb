/*
eventbus.go - In-process pub/sub (C8)

PURPOSE:
  Pushes mutation events to connected subscribers (desktop clients via
  websocket, or an in-process logging observer). Delivery is best-effort
  fan-out; no persistence, no replay.

SEE ALSO:
  - hub.go: websocket registration + heartbeat/prune loop
*/
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Kind string

const (
	EventOvertimeUpdated   Kind = "overtime:updated"
	EventTimeEntryCreated  Kind = "time-entry:created"
	EventTimeEntryUpdated  Kind = "time-entry:updated"
	EventTimeEntryDeleted  Kind = "time-entry:deleted"
	EventAbsenceCreated    Kind = "absence:created"
	EventAbsenceApproved   Kind = "absence:approved"
	EventAbsenceRejected   Kind = "absence:rejected"
	EventCorrectionCreated Kind = "correction:created"
	EventCorrectionDeleted Kind = "correction:deleted"
)

// Event is the payload published to subscribers.
type Event struct {
	Kind          Kind      `json:"type"`
	UserID        string    `json:"userId"`
	Data          any       `json:"data"`
	TimestampUTC  time.Time `json:"timestamp"`
}

// BalanceChangedPayload is the Data field for EventOvertimeUpdated,
// published by the orchestrator after a recompute settles.
type BalanceChangedPayload struct {
	Dates      []string `json:"dates"`
	NewBalance float64  `json:"newBalance"`
}

// Subscriber receives events for one interest: a specific userId, or the
// sentinel AllAdmins interest.
type Subscriber interface {
	Deliver(evt Event)
}

const AllAdmins = "*admins*"

// Bus is the in-process publisher/subscriber registry.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Subscriber
	log  zerolog.Logger
}

func New(log zerolog.Logger) *Bus {
	return &Bus{subs: make(map[string][]Subscriber), log: log}
}

// Subscribe registers sub for the given interest key (a userId or AllAdmins).
// Returns an unsubscribe func.
func (b *Bus) Subscribe(interest string, sub Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[interest] = append(b.subs[interest], sub)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[interest]
		for i, s := range list {
			if s == sub {
				b.subs[interest] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish fans out evt to subscribers of evt.UserID and of AllAdmins.
// Best-effort and never surfaced: a subscriber that panics is recovered and
// logged. Deliver returns no error, so other delivery failures (such as a
// failed websocket write) are not logged.
func (b *Bus) Publish(_ context.Context, evt Event) {
	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.subs[evt.UserID])+len(b.subs[AllAdmins]))
	targets = append(targets, b.subs[evt.UserID]...)
	targets = append(targets, b.subs[AllAdmins]...)
	b.mu.RUnlock()

	for _, sub := range targets {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error().Interface("panic", r).Str("kind", string(evt.Kind)).Msg("subscriber delivery panicked")
				}
			}()
			sub.Deliver(evt)
		}()
	}
}
