package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clinicore/session-lease-service/internal/domain"
	"github.com/clinicore/session-lease-service/internal/ports"
	"github.com/google/uuid"
)

// fixture wires the service against in-memory fakes with a controllable clock.
type fixture struct {
	mu       sync.Mutex
	now      time.Time
	service  *Service
	sweeper  *Sweeper
	leases   *fakeLeases
	prefs    *fakePrefs
	outbox   *fakeOutbox
	throttle *fakeThrottle
	minter   *fakeMinter
}

func defaultTestConfig() Config {
	return Config{
		HardCap:           12 * time.Hour,
		DefaultIdleWindow: 30 * time.Minute,
		ActivityCoalesce:  60 * time.Second,
		FailureThreshold:  5,
		FailureWindow:     10 * time.Minute,
		FailureCooldown:   15 * time.Minute,
	}
}

func newFixture() *fixture {
	return newFixtureWithConfig(defaultTestConfig())
}

func newFixtureWithConfig(cfg Config) *fixture {
	prefs := &fakePrefs{byOwner: map[uuid.UUID]domain.IdlePreference{}}
	leases := &fakeLeases{
		byID:   map[uuid.UUID]domain.Lease{},
		byHash: map[string]uuid.UUID{},
		prefs:  prefs,
	}
	outbox := &fakeOutbox{}
	throttle := &fakeThrottle{state: map[string]throttleEntry{}}
	minter := &fakeMinter{}

	f := &fixture{
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		leases:   leases,
		prefs:    prefs,
		outbox:   outbox,
		throttle: throttle,
		minter:   minter,
	}

	svc := NewService(Dependencies{
		Config:      cfg,
		Leases:      leases,
		Preferences: prefs,
		Audit:       outbox,
		Throttle:    throttle,
		Minter:      minter,
	})
	svc.nowFn = f.clock
	f.service = svc

	sweeper := NewSweeper(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		leases,
		outbox,
		time.Minute,
		500,
		7*24*time.Hour,
		cfg.DefaultIdleWindow,
	)
	sweeper.nowFn = f.clock
	f.sweeper = sweeper

	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) issue(ownerID uuid.UUID, label string) IssueLeaseResponse {
	res, err := f.service.IssueLease(context.Background(), IssueLeaseRequest{
		OwnerID:       ownerID,
		DeviceLabel:   label,
		SourceAddress: "10.0.0.1",
	})
	if err != nil {
		panic(fmt.Sprintf("issue lease: %v", err))
	}
	return res
}

// fakeMinter mints deterministic tokens. Well-formed tokens carry the
// "tok-" prefix so tests can present garbled values on demand.
type fakeMinter struct {
	mu   sync.Mutex
	seq  int
	slow chan struct{}
}

func (m *fakeMinter) Mint() (ports.LeaseToken, error) {
	m.mu.Lock()
	m.seq++
	raw := fmt.Sprintf("tok-%d", m.seq)
	slow := m.slow
	m.mu.Unlock()
	if slow != nil {
		<-slow
	}
	return ports.LeaseToken{Raw: raw, Hash: m.Hash(raw)}, nil
}

func (m *fakeMinter) Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (m *fakeMinter) WellFormed(raw string) bool {
	return strings.HasPrefix(raw, "tok-")
}

type fakeLeases struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]domain.Lease
	byHash      map[string]uuid.UUID
	prefs       *fakePrefs
	createCalls int
}

func (r *fakeLeases) Create(_ context.Context, params ports.LeaseCreateParams) (domain.Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	lease := domain.Lease{
		LeaseID:        uuid.New(),
		OwnerID:        params.OwnerID,
		TokenHash:      params.TokenHash,
		DeviceLabel:    params.DeviceLabel,
		SourceAddress:  params.SourceAddress,
		CreatedAt:      params.CreatedAt,
		LastActivityAt: params.CreatedAt,
		HardExpiryAt:   params.HardExpiryAt,
		IsActive:       true,
	}
	r.byID[lease.LeaseID] = lease
	r.byHash[lease.TokenHash] = lease.LeaseID
	return lease, nil
}

func (r *fakeLeases) GetByTokenHash(_ context.Context, tokenHash string) (domain.Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[tokenHash]
	if !ok {
		return domain.Lease{}, domain.ErrLeaseNotFound
	}
	return r.byID[id], nil
}

func (r *fakeLeases) GetByID(_ context.Context, leaseID uuid.UUID) (domain.Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lease, ok := r.byID[leaseID]
	if !ok {
		return domain.Lease{}, domain.ErrLeaseNotFound
	}
	return lease, nil
}

func (r *fakeLeases) ListByOwner(_ context.Context, ownerID uuid.UUID, includeInactive bool, limit, offset int) ([]domain.Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Lease
	for _, lease := range r.byID {
		if lease.OwnerID != ownerID {
			continue
		}
		if !includeInactive && !lease.IsActive {
			continue
		}
		out = append(out, lease)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeLeases) TouchActivity(_ context.Context, leaseID uuid.UUID, touchedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lease, ok := r.byID[leaseID]
	if !ok || !lease.IsActive || !lease.LastActivityAt.Before(touchedAt) {
		return false, nil
	}
	lease.LastActivityAt = touchedAt
	r.byID[leaseID] = lease
	return true, nil
}

func (r *fakeLeases) Invalidate(_ context.Context, leaseID uuid.UUID, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invalidateLocked(leaseID, reason, at), nil
}

func (r *fakeLeases) invalidateLocked(leaseID uuid.UUID, reason string, at time.Time) bool {
	lease, ok := r.byID[leaseID]
	if !ok || !lease.IsActive {
		return false
	}
	lease.IsActive = false
	lease.InvalidatedAt = &at
	lease.InvalidatedReason = reason
	r.byID[leaseID] = lease
	return true
}

func (r *fakeLeases) RevokeByIDForOwner(_ context.Context, leaseID, ownerID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lease, ok := r.byID[leaseID]
	if !ok || lease.OwnerID != ownerID {
		return false, domain.ErrLeaseNotFound
	}
	return r.invalidateLocked(leaseID, domain.ReasonRevoked, at), nil
}

func (r *fakeLeases) RevokeAllForOwner(_ context.Context, ownerID uuid.UUID, except *uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var revoked []uuid.UUID
	for id, lease := range r.byID {
		if lease.OwnerID != ownerID || !lease.IsActive {
			continue
		}
		if except != nil && id == *except {
			continue
		}
		if r.invalidateLocked(id, domain.ReasonRevoked, at) {
			revoked = append(revoked, id)
		}
	}
	return revoked, nil
}

func (r *fakeLeases) MarkHardExpired(_ context.Context, now time.Time, limit int) ([]ports.ExpiredLease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ports.ExpiredLease
	for id, lease := range r.byID {
		if len(out) >= limit {
			break
		}
		if !lease.IsActive || !lease.HardExpired(now) {
			continue
		}
		if r.invalidateLocked(id, domain.ReasonHard, now) {
			out = append(out, ports.ExpiredLease{LeaseID: id, OwnerID: lease.OwnerID, Reason: domain.ReasonHard})
		}
	}
	return out, nil
}

func (r *fakeLeases) MarkIdleExpired(_ context.Context, now time.Time, defaultIdle time.Duration, limit int) ([]ports.ExpiredLease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ports.ExpiredLease
	for id, lease := range r.byID {
		if len(out) >= limit {
			break
		}
		if !lease.IsActive {
			continue
		}
		window := domain.ClampIdleWindow(defaultIdle)
		if pref, ok := r.prefs.lookup(lease.OwnerID); ok {
			window = domain.ClampIdleWindow(pref.IdleWindow)
		}
		if !lease.IdleExpired(now, window) {
			continue
		}
		if r.invalidateLocked(id, domain.ReasonIdle, now) {
			out = append(out, ports.ExpiredLease{LeaseID: id, OwnerID: lease.OwnerID, Reason: domain.ReasonIdle})
		}
	}
	return out, nil
}

func (r *fakeLeases) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for id, lease := range r.byID {
		if lease.IsActive || lease.InvalidatedAt == nil || !lease.InvalidatedAt.Before(cutoff) {
			continue
		}
		delete(r.byID, id)
		delete(r.byHash, lease.TokenHash)
		purged++
	}
	return purged, nil
}

type fakePrefs struct {
	mu      sync.Mutex
	byOwner map[uuid.UUID]domain.IdlePreference
}

func (p *fakePrefs) lookup(ownerID uuid.UUID) (domain.IdlePreference, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pref, ok := p.byOwner[ownerID]
	return pref, ok
}

func (p *fakePrefs) Get(_ context.Context, ownerID uuid.UUID) (*domain.IdlePreference, error) {
	pref, ok := p.lookup(ownerID)
	if !ok {
		return nil, nil
	}
	return &pref, nil
}

func (p *fakePrefs) Upsert(_ context.Context, ownerID uuid.UUID, window time.Duration, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byOwner[ownerID] = domain.IdlePreference{OwnerID: ownerID, IdleWindow: window, UpdatedAt: at}
	return nil
}

// set stores a preference directly, bypassing write-side validation, so
// tests can exercise read-side clamping of out-of-band values.
func (p *fakePrefs) set(ownerID uuid.UUID, window time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byOwner[ownerID] = domain.IdlePreference{OwnerID: ownerID, IdleWindow: window, UpdatedAt: time.Now().UTC()}
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.AuditEvent
}

func (o *fakeOutbox) Enqueue(_ context.Context, event ports.AuditEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.AuditRecord, error) {
	return nil, nil
}

func (o *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error {
	return nil
}

func (o *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (o *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (o *fakeOutbox) byType(eventType string) []ports.AuditEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []ports.AuditEvent
	for _, e := range o.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type throttleEntry struct {
	count         int
	windowStart   time.Time
	cooldownUntil *time.Time
}

type fakeThrottle struct {
	mu    sync.Mutex
	state map[string]throttleEntry
}

func (t *fakeThrottle) Get(_ context.Context, source string) (ports.ThrottleState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := t.state[source]
	return ports.ThrottleState{FailureCount: entry.count, CooldownUntil: entry.cooldownUntil}, nil
}

func (t *fakeThrottle) RecordFailure(_ context.Context, source string, now time.Time, threshold int, window, cooldown time.Duration) (ports.ThrottleState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := t.state[source]
	if entry.count == 0 || now.Sub(entry.windowStart) > window {
		entry = throttleEntry{windowStart: now}
	}
	entry.count++
	if entry.count >= threshold {
		until := now.Add(cooldown)
		entry.cooldownUntil = &until
	}
	t.state[source] = entry
	return ports.ThrottleState{FailureCount: entry.count, CooldownUntil: entry.cooldownUntil}, nil
}

func (t *fakeThrottle) Clear(_ context.Context, source string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, source)
	return nil
}
