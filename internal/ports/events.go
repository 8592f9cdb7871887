package ports

import "context"

// EventPublisher is the outbound audit-event publish port.
// The partition key keeps per-owner events ordered on partitioned brokers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error
}
