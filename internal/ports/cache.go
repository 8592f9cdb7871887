package ports

import (
	"context"
	"time"
)

// ThrottleState is the current failure envelope for a source address.
// It is cache-backed to avoid hot writes on every rejected token.
type ThrottleState struct {
	FailureCount  int
	CooldownUntil *time.Time
}

// FailureThrottleStore tracks consecutive invalid-token presentations per
// source and enforces a cooldown once the threshold is crossed.
type FailureThrottleStore interface {
	Get(ctx context.Context, source string) (ThrottleState, error)
	RecordFailure(ctx context.Context, source string, now time.Time, threshold int, window, cooldown time.Duration) (ThrottleState, error)
	Clear(ctx context.Context, source string) error
}
