package postgres

import (
	"github.com/clinicore/session-lease-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Leases      ports.LeaseRepository
	Preferences ports.PreferenceRepository
	Audit       ports.AuditOutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Leases:      &leaseRepository{db: db},
		Preferences: &preferenceRepository{db: db},
		Audit:       &auditOutboxRepository{db: db},
	}
}
