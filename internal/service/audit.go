package service

import (
	"context"
	"log"
)

// AuditService records actor actions for operational follow-up.
// Like notifications, it is only invoked from the outbox drainer.
type AuditService struct{}

// NewAuditService creates a new AuditService.
func NewAuditService() *AuditService {
	return &AuditService{}
}

// RecordAudit writes one audit entry.
func (s *AuditService) RecordAudit(ctx context.Context, actorID, action, resourceType, resourceID string, details map[string]any) error {
	log.Printf("[AUDIT] actor=%s action=%s resource=%s/%s details=%v", actorID, action, resourceType, resourceID, details)
	return nil
}
