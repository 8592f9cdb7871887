package postgres

import (
	"time"

	"github.com/google/uuid"
)

type leaseModel struct {
	LeaseID           uuid.UUID  `gorm:"column:lease_id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID           uuid.UUID  `gorm:"column:owner_id"`
	TokenHash         string     `gorm:"column:token_hash"`
	DeviceLabel       string     `gorm:"column:device_label"`
	SourceAddress     *string    `gorm:"column:source_address"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	LastActivityAt    time.Time  `gorm:"column:last_activity_at"`
	HardExpiryAt      time.Time  `gorm:"column:hard_expiry_at"`
	IsActive          bool       `gorm:"column:is_active"`
	InvalidatedAt     *time.Time `gorm:"column:invalidated_at"`
	InvalidatedReason *string    `gorm:"column:invalidated_reason"`
}

func (leaseModel) TableName() string { return "leases" }

type preferenceModel struct {
	OwnerID            uuid.UUID `gorm:"column:owner_id;type:uuid;primaryKey"`
	IdleTimeoutMinutes int       `gorm:"column:idle_timeout_minutes"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (preferenceModel) TableName() string { return "preferences" }

type leaseAuditOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (leaseAuditOutboxModel) TableName() string { return "lease_audit_outbox" }
