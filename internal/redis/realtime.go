package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Emitter broadcasts trip status changes over Redis pub/sub. Subscribed
// gateway processes fan the events out to connected clients.
//
// Emission is strictly best-effort: every failure (including a nil
// client) is swallowed after logging. Nothing here may ever propagate
// back into a state transition.
type Emitter struct {
	client *redis.Client
}

// NewEmitter creates a new Emitter. A nil client is allowed and turns
// every emit into a logged no-op.
func NewEmitter(client *redis.Client) *Emitter {
	return &Emitter{client: client}
}

// StatusChange is the wire shape of a trip status event.
type StatusChange struct {
	TripID  string         `json:"trip_id"`
	Status  string         `json:"status"`
	Extra   map[string]any `json:"extra,omitempty"`
	EmitsAt time.Time      `json:"emits_at"`
}

// tripChannel returns the pub/sub channel for one trip's subscribers.
func tripChannel(tripID string) string {
	return fmt.Sprintf("trip:%s:events", tripID)
}

// EmitStatusChange publishes a status event to the trip's channel.
// Never returns an error to the caller.
func (e *Emitter) EmitStatusChange(ctx context.Context, tripID, status string, extra map[string]any) {
	if e.client == nil {
		log.Printf("[REALTIME] emitter not wired, dropped event trip=%s status=%s", tripID, status)
		return
	}

	event := StatusChange{
		TripID:  tripID,
		Status:  status,
		Extra:   extra,
		EmitsAt: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[REALTIME] marshal failed trip=%s: %v", tripID, err)
		return
	}

	if err := e.client.Publish(ctx, tripChannel(tripID), data).Err(); err != nil {
		log.Printf("[REALTIME] publish failed trip=%s: %v", tripID, err)
	}
}
