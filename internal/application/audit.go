package application

import (
	"context"
	"encoding/json"

	"github.com/clinicore/session-lease-service/internal/ports"
	"github.com/google/uuid"
)

// enqueueAudit writes an audit event to the transactional outbox.
// Delivery is best effort from the caller's perspective; the outbox worker
// owns retries, so an enqueue failure never fails the lease operation.
func (s *Service) enqueueAudit(ctx context.Context, eventType string, ownerID, leaseID uuid.UUID, extra map[string]any) {
	body := map[string]any{
		"lease_id":    leaseID,
		"owner_id":    ownerID,
		"occurred_at": s.nowFn(),
	}
	for k, v := range extra {
		body[k] = v
	}
	payload, _ := json.Marshal(body)

	_ = s.audit.Enqueue(ctx, ports.AuditEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: ownerID.String(),
		Payload:      payload,
		OccurredAt:   s.nowFn(),
	})
}
