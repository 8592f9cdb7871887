package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/session-lease-service/internal/domain"
	"github.com/clinicore/session-lease-service/internal/ports"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type leaseRepository struct {
	db *gorm.DB
}

func (r *leaseRepository) Create(ctx context.Context, params ports.LeaseCreateParams) (domain.Lease, error) {
	rec := leaseModel{
		OwnerID:        params.OwnerID,
		TokenHash:      params.TokenHash,
		DeviceLabel:    params.DeviceLabel,
		SourceAddress:  nullableString(params.SourceAddress),
		CreatedAt:      params.CreatedAt,
		LastActivityAt: params.CreatedAt,
		HardExpiryAt:   params.HardExpiryAt,
		IsActive:       true,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.Lease{}, translateErr(err)
	}
	return toDomainLease(rec), nil
}

func (r *leaseRepository) GetByTokenHash(ctx context.Context, tokenHash string) (domain.Lease, error) {
	var rec leaseModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Lease{}, domain.ErrLeaseNotFound
		}
		return domain.Lease{}, translateErr(err)
	}
	return toDomainLease(rec), nil
}

func (r *leaseRepository) GetByID(ctx context.Context, leaseID uuid.UUID) (domain.Lease, error) {
	var rec leaseModel
	if err := r.db.WithContext(ctx).Where("lease_id = ?", leaseID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Lease{}, domain.ErrLeaseNotFound
		}
		return domain.Lease{}, translateErr(err)
	}
	return toDomainLease(rec), nil
}

func (r *leaseRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, includeInactive bool, limit, offset int) ([]domain.Lease, error) {
	query := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if !includeInactive {
		query = query.Where("is_active = TRUE")
	}

	var rows []leaseModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, translateErr(err)
	}
	result := make([]domain.Lease, 0, len(rows))
	for _, item := range rows {
		result = append(result, toDomainLease(item))
	}
	return result, nil
}

func (r *leaseRepository) TouchActivity(ctx context.Context, leaseID uuid.UUID, touchedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&leaseModel{}).
		Where("lease_id = ?", leaseID).
		Where("is_active = TRUE").
		Where("last_activity_at < ?", touchedAt).
		Update("last_activity_at", touchedAt)
	if res.Error != nil {
		return false, translateErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *leaseRepository) Invalidate(ctx context.Context, leaseID uuid.UUID, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&leaseModel{}).
		Where("lease_id = ?", leaseID).
		Where("is_active = TRUE").
		Updates(map[string]any{
			"is_active":          false,
			"invalidated_at":     at,
			"invalidated_reason": reason,
		})
	if res.Error != nil {
		return false, translateErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *leaseRepository) RevokeByIDForOwner(ctx context.Context, leaseID, ownerID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&leaseModel{}).
		Where("lease_id = ?", leaseID).
		Where("owner_id = ?", ownerID).
		Where("is_active = TRUE").
		Updates(map[string]any{
			"is_active":          false,
			"invalidated_at":     at,
			"invalidated_reason": domain.ReasonRevoked,
		})
	if res.Error != nil {
		return false, translateErr(res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var exists int64
	if err := r.db.WithContext(ctx).
		Model(&leaseModel{}).
		Where("lease_id = ?", leaseID).
		Where("owner_id = ?", ownerID).
		Count(&exists).Error; err != nil {
		return false, translateErr(err)
	}
	if exists == 0 {
		return false, domain.ErrLeaseNotFound
	}
	return false, nil
}

func (r *leaseRepository) RevokeAllForOwner(ctx context.Context, ownerID uuid.UUID, except *uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	var flipped []leaseModel
	query := r.db.WithContext(ctx).
		Model(&flipped).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "lease_id"}}}).
		Where("owner_id = ?", ownerID).
		Where("is_active = TRUE")
	if except != nil {
		query = query.Where("lease_id <> ?", *except)
	}

	res := query.Updates(map[string]any{
		"is_active":          false,
		"invalidated_at":     at,
		"invalidated_reason": domain.ReasonRevoked,
	})
	if res.Error != nil {
		return nil, translateErr(res.Error)
	}

	ids := make([]uuid.UUID, 0, len(flipped))
	for _, row := range flipped {
		ids = append(ids, row.LeaseID)
	}
	return ids, nil
}

// markHardExpiredSQL flips a bounded batch of active leases past their hard cap.
// SKIP LOCKED keeps concurrent sweepers from contending on the same rows.
const markHardExpiredSQL = `
UPDATE leases
SET is_active = FALSE, invalidated_at = ?, invalidated_reason = 'hard'
WHERE lease_id IN (
	SELECT lease_id FROM leases
	WHERE is_active = TRUE AND hard_expiry_at <= ?
	ORDER BY hard_expiry_at ASC
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING lease_id, owner_id`

// The 5/60 clamp mirrors the domain idle-window bounds.
const markIdleExpiredSQL = `
UPDATE leases
SET is_active = FALSE, invalidated_at = ?, invalidated_reason = 'idle'
WHERE lease_id IN (
	SELECT l.lease_id FROM leases l
	LEFT JOIN preferences p ON p.owner_id = l.owner_id
	WHERE l.is_active = TRUE
	  AND l.last_activity_at + make_interval(mins => LEAST(GREATEST(COALESCE(p.idle_timeout_minutes, ?), 5), 60)) <= ?
	ORDER BY l.last_activity_at ASC
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING lease_id, owner_id`

func (r *leaseRepository) MarkHardExpired(ctx context.Context, now time.Time, limit int) ([]ports.ExpiredLease, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []expiredRow
	if err := r.db.WithContext(ctx).Raw(markHardExpiredSQL, now, now, limit).Scan(&rows).Error; err != nil {
		return nil, translateErr(err)
	}
	return toExpiredLeases(rows, domain.ReasonHard), nil
}

func (r *leaseRepository) MarkIdleExpired(ctx context.Context, now time.Time, defaultIdle time.Duration, limit int) ([]ports.ExpiredLease, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []expiredRow
	if err := r.db.WithContext(ctx).
		Raw(markIdleExpiredSQL, now, int(defaultIdle.Minutes()), now, limit).
		Scan(&rows).Error; err != nil {
		return nil, translateErr(err)
	}
	return toExpiredLeases(rows, domain.ReasonIdle), nil
}

func (r *leaseRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_active = FALSE").
		Where("invalidated_at < ?", cutoff).
		Delete(&leaseModel{})
	if res.Error != nil {
		return 0, translateErr(res.Error)
	}
	return res.RowsAffected, nil
}

type expiredRow struct {
	LeaseID uuid.UUID `gorm:"column:lease_id"`
	OwnerID uuid.UUID `gorm:"column:owner_id"`
}

func toExpiredLeases(rows []expiredRow, reason string) []ports.ExpiredLease {
	result := make([]ports.ExpiredLease, 0, len(rows))
	for _, row := range rows {
		result = append(result, ports.ExpiredLease{
			LeaseID: row.LeaseID,
			OwnerID: row.OwnerID,
			Reason:  reason,
		})
	}
	return result
}
