package application

import (
	"time"

	"github.com/clinicore/session-lease-service/internal/domain"
	"github.com/google/uuid"
)

type Config struct {
	HardCap           time.Duration
	DefaultIdleWindow time.Duration
	ActivityCoalesce  time.Duration
	FailureThreshold  int
	FailureWindow     time.Duration
	FailureCooldown   time.Duration
}

type IssueLeaseRequest struct {
	OwnerID     uuid.UUID `json:"owner_id"`
	DeviceLabel string    `json:"device_label"`
	// SourceAddress defaults to the connection's remote address when the
	// credential layer does not forward the end-client one in the body.
	SourceAddress string `json:"source_address"`
}

type IssueLeaseResponse struct {
	LeaseID       uuid.UUID `json:"lease_id"`
	Token         string    `json:"token"`
	HardExpiryAt  time.Time `json:"hard_expiry_at"`
	IdleExpiresAt time.Time `json:"idle_expires_at"`
}

type LeaseStatus struct {
	LeaseID            uuid.UUID `json:"lease_id"`
	OwnerID            uuid.UUID `json:"owner_id"`
	HardExpiryAt       time.Time `json:"hard_expiry_at"`
	IdleExpiresAt      time.Time `json:"idle_expires_at"`
	RemainingSeconds   int64     `json:"remaining_seconds"`
	IdleTimeoutMinutes int       `json:"idle_timeout_minutes"`
}

type ActivityResponse struct {
	LeaseID          uuid.UUID `json:"lease_id"`
	IdleExpiresAt    time.Time `json:"idle_expires_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	Recorded         bool      `json:"recorded"`
}

type LeaseItem struct {
	LeaseID           uuid.UUID  `json:"lease_id"`
	DeviceLabel       string     `json:"device_label"`
	SourceAddress     string     `json:"source_address,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	LastActivityAt    time.Time  `json:"last_activity_at"`
	HardExpiryAt      time.Time  `json:"hard_expiry_at"`
	IsActive          bool       `json:"is_active"`
	InvalidatedAt     *time.Time `json:"invalidated_at,omitempty"`
	InvalidatedReason string     `json:"invalidated_reason,omitempty"`
	IsCurrent         bool       `json:"is_current"`
}

type ListLeasesQuery struct {
	IncludeInactive bool
	Limit           int
	Offset          int
}

type RevocationResult struct {
	RevokedCount int `json:"revoked_count"`
}

type IdleTimeoutResponse struct {
	IdleTimeoutMinutes int        `json:"idle_timeout_minutes"`
	MinMinutes         int        `json:"min_minutes"`
	MaxMinutes         int        `json:"max_minutes"`
	IsDefault          bool       `json:"is_default"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

func toLeaseItem(l domain.Lease, currentLeaseID uuid.UUID) LeaseItem {
	return LeaseItem{
		LeaseID:           l.LeaseID,
		DeviceLabel:       l.DeviceLabel,
		SourceAddress:     l.SourceAddress,
		CreatedAt:         l.CreatedAt,
		LastActivityAt:    l.LastActivityAt,
		HardExpiryAt:      l.HardExpiryAt,
		IsActive:          l.IsActive,
		InvalidatedAt:     l.InvalidatedAt,
		InvalidatedReason: l.InvalidatedReason,
		IsCurrent:         l.LeaseID == currentLeaseID,
	}
}
