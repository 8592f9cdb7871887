package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/clinicore/session-lease-service/internal/ports"
	"github.com/google/uuid"
)

// Sweeper is the background pass over lease state. It flips leases whose
// clocks ran out without anyone presenting them, and purges inactive rows
// past the retention horizon. Flips use the same conditional write as the
// lazy path, so a lease invalidated there is skipped here and audited once.
type Sweeper struct {
	logger      *slog.Logger
	leases      ports.LeaseRepository
	audit       ports.AuditOutboxRepository
	interval    time.Duration
	batchSize   int
	retention   time.Duration
	defaultIdle time.Duration
	nowFn       func() time.Time
}

// SweepStats summarizes a single pass for logging and tests.
type SweepStats struct {
	HardExpired int
	IdleExpired int
	Purged      int64
}

func NewSweeper(
	logger *slog.Logger,
	leases ports.LeaseRepository,
	audit ports.AuditOutboxRepository,
	interval time.Duration,
	batchSize int,
	retention time.Duration,
	defaultIdle time.Duration,
) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Sweeper{
		logger:      logger,
		leases:      leases,
		audit:       audit,
		interval:    interval,
		batchSize:   batchSize,
		retention:   retention,
		defaultIdle: defaultIdle,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the periodic sweep loop until context cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep iteration failed",
				"module", "application.sweeper",
				"layer", "application",
				"operation", "sweep_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce applies both expiry passes and the retention purge.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	now := s.nowFn()
	stats := SweepStats{}

	hard, err := s.leases.MarkHardExpired(ctx, now, s.batchSize)
	if err != nil {
		return stats, err
	}
	stats.HardExpired = len(hard)
	s.enqueueExpiryAudits(ctx, hard, now)

	idle, err := s.leases.MarkIdleExpired(ctx, now, s.defaultIdle, s.batchSize)
	if err != nil {
		return stats, err
	}
	stats.IdleExpired = len(idle)
	s.enqueueExpiryAudits(ctx, idle, now)

	purged, err := s.leases.DeleteInactiveBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return stats, err
	}
	stats.Purged = purged

	if stats.HardExpired > 0 || stats.IdleExpired > 0 || stats.Purged > 0 {
		s.logger.InfoContext(ctx, "sweep pass completed",
			"module", "application.sweeper",
			"layer", "application",
			"operation", "sweep_once",
			"outcome", "success",
			"hard_expired", stats.HardExpired,
			"idle_expired", stats.IdleExpired,
			"purged", stats.Purged,
		)
	}
	return stats, nil
}

func (s *Sweeper) enqueueExpiryAudits(ctx context.Context, expired []ports.ExpiredLease, now time.Time) {
	for _, e := range expired {
		payload, _ := json.Marshal(map[string]any{
			"lease_id":    e.LeaseID,
			"owner_id":    e.OwnerID,
			"reason":      e.Reason,
			"occurred_at": now,
			"swept":       true,
		})
		_ = s.audit.Enqueue(ctx, ports.AuditEvent{
			EventID:      uuid.New(),
			EventType:    "lease.expired",
			PartitionKey: e.OwnerID.String(),
			Payload:      payload,
			OccurredAt:   now,
		})
	}
}
