package domain

import "time"

// OutboxKind is the dispatch channel for a pending side-effect event.
type OutboxKind string

const (
	OutboxKindNotification OutboxKind = "notification"
	OutboxKindAudit        OutboxKind = "audit"
	OutboxKindRealtime     OutboxKind = "realtime"
)

// OutboxEvent is a side-effect event appended in the same transaction
// as the state change that produced it, and dispatched asynchronously
// by the outbox drainer. Dispatch failures never reach the writer.
type OutboxEvent struct {
	ID           string
	Kind         OutboxKind
	TripID       string
	EventType    string // e.g. "guide_selected", "payment_required"
	TargetUserID string // recipient for notifications; empty otherwise
	Payload      map[string]any
	CreatedAt    time.Time
	DispatchedAt time.Time
}
