package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicore/session-lease-service/internal/domain"
	"github.com/clinicore/session-lease-service/internal/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	cfg        Config
	leases     ports.LeaseRepository
	prefs      ports.PreferenceRepository
	audit      ports.AuditOutboxRepository
	throttle   ports.FailureThrottleStore
	minter     ports.TokenMinter
	issueGroup singleflight.Group
	nowFn      func() time.Time
}

type Dependencies struct {
	Config      Config
	Leases      ports.LeaseRepository
	Preferences ports.PreferenceRepository
	Audit       ports.AuditOutboxRepository
	Throttle    ports.FailureThrottleStore
	Minter      ports.TokenMinter
}

func NewService(deps Dependencies) *Service {
	return &Service{
		cfg:      deps.Config,
		leases:   deps.Leases,
		prefs:    deps.Preferences,
		audit:    deps.Audit,
		throttle: deps.Throttle,
		minter:   deps.Minter,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// IssueLease mints a fresh bearer token and persists its lease row.
// Concurrent issuance for the same owner is collapsed through singleflight,
// so racing callers all receive the one lease that was actually created.
func (s *Service) IssueLease(ctx context.Context, req IssueLeaseRequest) (IssueLeaseResponse, error) {
	if req.OwnerID == uuid.Nil {
		return IssueLeaseResponse{}, fmt.Errorf("%w: owner_id is required", domain.ErrInvalidInput)
	}

	v, err, _ := s.issueGroup.Do(req.OwnerID.String(), func() (any, error) {
		token, err := s.minter.Mint()
		if err != nil {
			return nil, fmt.Errorf("mint lease token: %w", err)
		}

		now := s.nowFn()
		lease, err := s.leases.Create(ctx, ports.LeaseCreateParams{
			OwnerID:       req.OwnerID,
			TokenHash:     token.Hash,
			DeviceLabel:   domain.ScrubDeviceLabel(req.DeviceLabel),
			SourceAddress: req.SourceAddress,
			CreatedAt:     now,
			HardExpiryAt:  now.Add(s.cfg.HardCap),
		})
		if err != nil {
			return nil, err
		}

		s.enqueueAudit(ctx, "lease.created", lease.OwnerID, lease.LeaseID, map[string]any{
			"device_label":   lease.DeviceLabel,
			"source_address": lease.SourceAddress,
			"hard_expiry_at": lease.HardExpiryAt,
		})

		return IssueLeaseResponse{
			LeaseID:       lease.LeaseID,
			Token:         token.Raw,
			HardExpiryAt:  lease.HardExpiryAt,
			IdleExpiresAt: lease.IdleDeadline(s.idleWindowFor(ctx, lease.OwnerID)),
		}, nil
	})
	if err != nil {
		return IssueLeaseResponse{}, err
	}
	return v.(IssueLeaseResponse), nil
}

// ValidateLease resolves a presented token to its lease and applies both
// expiry clocks. It is a pure read: polling validation never slides the idle
// window, so an abandoned session idles out regardless of how often a client
// asks about it. Only RecordActivity moves the activity clock.
func (s *Service) ValidateLease(ctx context.Context, rawToken, source string) (LeaseStatus, error) {
	lease, idleWindow, err := s.authenticate(ctx, rawToken, source)
	if err != nil {
		return LeaseStatus{}, err
	}

	idleDeadline := lease.IdleDeadline(idleWindow)

	return LeaseStatus{
		LeaseID:            lease.LeaseID,
		OwnerID:            lease.OwnerID,
		HardExpiryAt:       lease.HardExpiryAt,
		IdleExpiresAt:      idleDeadline,
		RemainingSeconds:   s.remainingSeconds(lease.HardExpiryAt, idleDeadline),
		IdleTimeoutMinutes: int(idleWindow / time.Minute),
	}, nil
}

// RecordActivity slides the idle window for a live lease. Writes are
// coalesced: a touch inside the coalesce interval is acknowledged but not
// persisted, since the stored timestamp already covers it.
func (s *Service) RecordActivity(ctx context.Context, rawToken, source string) (ActivityResponse, error) {
	lease, idleWindow, err := s.authenticate(ctx, rawToken, source)
	if err != nil {
		return ActivityResponse{}, err
	}

	before := lease.LastActivityAt
	lease = s.touchCoalesced(ctx, lease)
	idleDeadline := lease.IdleDeadline(idleWindow)

	return ActivityResponse{
		LeaseID:          lease.LeaseID,
		IdleExpiresAt:    idleDeadline,
		RemainingSeconds: s.remainingSeconds(lease.HardExpiryAt, idleDeadline),
		Recorded:         lease.LastActivityAt.After(before),
	}, nil
}

// ListLeases returns the caller's leases, newest first.
func (s *Service) ListLeases(ctx context.Context, rawToken, source string, q ListLeasesQuery) ([]LeaseItem, error) {
	lease, _, err := s.authenticate(ctx, rawToken, source)
	if err != nil {
		return nil, err
	}

	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	leases, err := s.leases.ListByOwner(ctx, lease.OwnerID, q.IncludeInactive, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}

	result := make([]LeaseItem, 0, len(leases))
	for _, it := range leases {
		result = append(result, toLeaseItem(it, lease.LeaseID))
	}
	return result, nil
}

// authenticate maps a presented token to a live lease, flipping it lazily
// when either expiry clock has run out. The flip is a conditional write, so
// only the first observer records the reason and emits the audit event.
func (s *Service) authenticate(ctx context.Context, rawToken, source string) (domain.Lease, time.Duration, error) {
	if state, err := s.throttle.Get(ctx, source); err == nil &&
		state.CooldownUntil != nil && state.CooldownUntil.After(s.nowFn()) {
		return domain.Lease{}, 0, domain.ErrRateLimited
	}

	if rawToken == "" {
		return domain.Lease{}, 0, domain.ErrAuthenticationRequired
	}
	if !s.minter.WellFormed(rawToken) {
		s.recordThrottleFailure(ctx, source)
		return domain.Lease{}, 0, domain.ErrAuthenticationRequired
	}

	lease, err := s.leases.GetByTokenHash(ctx, s.minter.Hash(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrLeaseNotFound) {
			s.recordThrottleFailure(ctx, source)
		}
		return domain.Lease{}, 0, err
	}

	_ = s.throttle.Clear(ctx, source)

	if !lease.IsActive {
		return domain.Lease{}, 0, errorForReason(lease.InvalidatedReason)
	}

	now := s.nowFn()
	if lease.HardExpired(now) {
		s.invalidate(ctx, lease, domain.ReasonHard, now)
		return domain.Lease{}, 0, domain.ErrLeaseHardExpired
	}

	idleWindow := s.idleWindowFor(ctx, lease.OwnerID)
	if lease.IdleExpired(now, idleWindow) {
		s.invalidate(ctx, lease, domain.ReasonIdle, now)
		return domain.Lease{}, 0, domain.ErrLeaseIdleExpired
	}

	return lease, idleWindow, nil
}

// touchCoalesced persists an activity timestamp only when the stored one is
// at least a full coalesce interval behind.
func (s *Service) touchCoalesced(ctx context.Context, lease domain.Lease) domain.Lease {
	now := s.nowFn()
	if now.Sub(lease.LastActivityAt) < s.cfg.ActivityCoalesce {
		return lease
	}
	advanced, err := s.leases.TouchActivity(ctx, lease.LeaseID, now)
	if err == nil && advanced {
		lease.LastActivityAt = now
	}
	return lease
}

// invalidate performs the lazy flip and emits the audit event only when this
// observer won the transition.
func (s *Service) invalidate(ctx context.Context, lease domain.Lease, reason string, at time.Time) {
	flipped, err := s.leases.Invalidate(ctx, lease.LeaseID, reason, at)
	if err != nil || !flipped {
		return
	}
	s.enqueueAudit(ctx, "lease.expired", lease.OwnerID, lease.LeaseID, map[string]any{
		"reason": reason,
	})
}

// remainingSeconds reports how long the lease stays valid without further
// activity, bounded by whichever expiry clock runs out first.
func (s *Service) remainingSeconds(hardExpiryAt, idleDeadline time.Time) int64 {
	deadline := hardExpiryAt
	if idleDeadline.Before(deadline) {
		deadline = idleDeadline
	}
	remaining := deadline.Sub(s.nowFn())
	if remaining < 0 {
		return 0
	}
	return int64(remaining / time.Second)
}

func (s *Service) idleWindowFor(ctx context.Context, ownerID uuid.UUID) time.Duration {
	pref, err := s.prefs.Get(ctx, ownerID)
	if err != nil || pref == nil {
		return domain.ClampIdleWindow(s.cfg.DefaultIdleWindow)
	}
	return domain.ClampIdleWindow(pref.IdleWindow)
}

func (s *Service) recordThrottleFailure(ctx context.Context, source string) {
	if source == "" {
		return
	}
	_, _ = s.throttle.RecordFailure(ctx, source, s.nowFn(), s.cfg.FailureThreshold, s.cfg.FailureWindow, s.cfg.FailureCooldown)
}

func errorForReason(reason string) error {
	switch reason {
	case domain.ReasonIdle:
		return domain.ErrLeaseIdleExpired
	case domain.ReasonHard:
		return domain.ErrLeaseHardExpired
	default:
		return domain.ErrLeaseRevoked
	}
}
