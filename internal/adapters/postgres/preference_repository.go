package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/session-lease-service/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type preferenceRepository struct {
	db *gorm.DB
}

func (r *preferenceRepository) Get(ctx context.Context, ownerID uuid.UUID) (*domain.IdlePreference, error) {
	var rec preferenceModel
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, translateErr(err)
	}
	return &domain.IdlePreference{
		OwnerID:    rec.OwnerID,
		IdleWindow: time.Duration(rec.IdleTimeoutMinutes) * time.Minute,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, ownerID uuid.UUID, window time.Duration, at time.Time) error {
	rec := preferenceModel{
		OwnerID:            ownerID,
		IdleTimeoutMinutes: int(window.Minutes()),
		UpdatedAt:          at,
	}
	return translateErr(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"idle_timeout_minutes": rec.IdleTimeoutMinutes,
			"updated_at":           rec.UpdatedAt,
		}),
	}).Create(&rec).Error)
}
