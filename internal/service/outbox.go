package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"guidetrip/internal/domain"
	"guidetrip/internal/redis"
	"guidetrip/internal/repository"
)

const (
	drainInterval  = time.Second
	drainBatchSize = 50
)

// OutboxDrainer delivers pending side-effect events appended by trip
// state transitions. Delivery failures leave the event pending for the
// next pass; they never reach the operation that produced the event.
type OutboxDrainer struct {
	outboxRepo   repository.OutboxRepository
	notification *NotificationService
	audit        *AuditService
	emitter      redis.EmitterInterface
}

// NewOutboxDrainer creates a new OutboxDrainer.
func NewOutboxDrainer(outboxRepo repository.OutboxRepository, notification *NotificationService, audit *AuditService, emitter redis.EmitterInterface) *OutboxDrainer {
	return &OutboxDrainer{
		outboxRepo:   outboxRepo,
		notification: notification,
		audit:        audit,
		emitter:      emitter,
	}
}

// Run drains the outbox on an interval until ctx is cancelled.
func (d *OutboxDrainer) Run(ctx context.Context) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DrainOnce(ctx); err != nil {
				log.Printf("[OUTBOX] drain pass failed: %v", err)
			}
		}
	}
}

// DrainOnce delivers one batch of pending events.
func (d *OutboxDrainer) DrainOnce(ctx context.Context) error {
	events, err := d.outboxRepo.FetchUndispatched(ctx, drainBatchSize)
	if err != nil {
		return err
	}

	for _, ev := range events {
		if err := d.Dispatch(ctx, ev); err != nil {
			// Leave the event pending; it will be retried next pass.
			log.Printf("[OUTBOX] dispatch failed id=%s kind=%s: %v", ev.ID, ev.Kind, err)
			continue
		}
		if err := d.outboxRepo.MarkDispatched(ctx, ev.ID); err != nil {
			log.Printf("[OUTBOX] mark dispatched failed id=%s: %v", ev.ID, err)
		}
	}
	return nil
}

// Dispatch routes one event to its sink.
func (d *OutboxDrainer) Dispatch(ctx context.Context, ev *domain.OutboxEvent) error {
	switch ev.Kind {
	case domain.OutboxKindNotification:
		return d.notification.Notify(ctx, ev.EventType, ev.TargetUserID, ev.Payload)
	case domain.OutboxKindAudit:
		actor, _ := ev.Payload["actor_id"].(string)
		action, _ := ev.Payload["action"].(string)
		return d.audit.RecordAudit(ctx, actor, action, "trip", ev.TripID, ev.Payload)
	case domain.OutboxKindRealtime:
		status, _ := ev.Payload["status"].(string)
		d.emitter.EmitStatusChange(ctx, ev.TripID, status, ev.Payload)
		return nil
	default:
		log.Printf("[OUTBOX] unknown event kind %q, dropping id=%s", ev.Kind, ev.ID)
		return nil
	}
}

// Event constructors used by the orchestrator when appending side
// effects inside a state-change transaction.

func newNotificationEvent(tripID, eventType, targetUserID string, payload map[string]any) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:           uuid.New().String(),
		Kind:         domain.OutboxKindNotification,
		TripID:       tripID,
		EventType:    eventType,
		TargetUserID: targetUserID,
		Payload:      payload,
		CreatedAt:    time.Now(),
	}
}

func newAuditEvent(tripID, actorID, action string, details map[string]any) *domain.OutboxEvent {
	if details == nil {
		details = map[string]any{}
	}
	details["actor_id"] = actorID
	details["action"] = action
	return &domain.OutboxEvent{
		ID:        uuid.New().String(),
		Kind:      domain.OutboxKindAudit,
		TripID:    tripID,
		EventType: action,
		Payload:   details,
		CreatedAt: time.Now(),
	}
}

func newRealtimeEvent(tripID string, status domain.TripStatus, extra map[string]any) *domain.OutboxEvent {
	if extra == nil {
		extra = map[string]any{}
	}
	extra["status"] = string(status)
	return &domain.OutboxEvent{
		ID:        uuid.New().String(),
		Kind:      domain.OutboxKindRealtime,
		TripID:    tripID,
		EventType: "status_changed",
		Payload:   extra,
		CreatedAt: time.Now(),
	}
}
