package ports

import (
	"context"
	"time"

	"github.com/clinicore/session-lease-service/internal/domain"
	"github.com/google/uuid"
)

// LeaseCreateParams captures the inputs persisted when a lease is issued.
// The raw token never crosses this boundary; only its hash is stored.
type LeaseCreateParams struct {
	OwnerID       uuid.UUID
	TokenHash     string
	DeviceLabel   string
	SourceAddress string
	CreatedAt     time.Time
	HardExpiryAt  time.Time
}

// ExpiredLease identifies a lease the sweeper transitioned to inactive,
// carried back so exactly one audit event is emitted per transition.
type ExpiredLease struct {
	LeaseID uuid.UUID
	OwnerID uuid.UUID
	Reason  string
}

// LeaseRepository is the persistent source of truth for lease lifecycle.
// Every state transition is a conditional single-row write so concurrent
// observers of the same lease cannot double-apply a flip.
type LeaseRepository interface {
	Create(ctx context.Context, params LeaseCreateParams) (domain.Lease, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (domain.Lease, error)
	GetByID(ctx context.Context, leaseID uuid.UUID) (domain.Lease, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, includeInactive bool, limit, offset int) ([]domain.Lease, error)
	// TouchActivity advances last_activity_at only when touchedAt is ahead of
	// the stored value. Returns whether the write landed.
	TouchActivity(ctx context.Context, leaseID uuid.UUID, touchedAt time.Time) (bool, error)
	// Invalidate flips an active lease to inactive with the given reason.
	// Returns false when another writer already won the flip.
	Invalidate(ctx context.Context, leaseID uuid.UUID, reason string, at time.Time) (bool, error)
	// RevokeByIDForOwner revokes a lease scoped to its owner. Returns
	// domain.ErrLeaseNotFound when no such lease exists for the owner, and
	// false without error when the lease was already inactive.
	RevokeByIDForOwner(ctx context.Context, leaseID, ownerID uuid.UUID, at time.Time) (bool, error)
	// RevokeAllForOwner revokes every active lease of the owner, optionally
	// sparing one, and returns the ids that actually transitioned.
	RevokeAllForOwner(ctx context.Context, ownerID uuid.UUID, except *uuid.UUID, at time.Time) ([]uuid.UUID, error)
	// MarkHardExpired flips active leases whose cap has passed, up to limit.
	MarkHardExpired(ctx context.Context, now time.Time, limit int) ([]ExpiredLease, error)
	// MarkIdleExpired flips active leases whose sliding window elapsed,
	// resolving each owner's window against defaultIdle when unset.
	MarkIdleExpired(ctx context.Context, now time.Time, defaultIdle time.Duration, limit int) ([]ExpiredLease, error)
	// DeleteInactiveBefore purges inactive rows invalidated before cutoff.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PreferenceRepository stores per-principal idle window overrides.
// Absence of a row means the configured default applies.
type PreferenceRepository interface {
	Get(ctx context.Context, ownerID uuid.UUID) (*domain.IdlePreference, error)
	Upsert(ctx context.Context, ownerID uuid.UUID, window time.Duration, at time.Time) error
}

// AuditEvent is the write-side audit payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type AuditEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// AuditRecord represents durable outbox state, including retry/error metadata.
type AuditRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// AuditOutboxRepository controls the publish-retry workflow for audit events.
// This explicit contract enables transactional outbox patterns without leaking DB details.
type AuditOutboxRepository interface {
	Enqueue(ctx context.Context, event AuditEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]AuditRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
