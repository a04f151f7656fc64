package redis

import "context"

// EmitterInterface defines the realtime status broadcast contract.
type EmitterInterface interface {
	EmitStatusChange(ctx context.Context, tripID, status string, extra map[string]any)
}

// Ensure concrete types implement interfaces.
var _ EmitterInterface = (*Emitter)(nil)
