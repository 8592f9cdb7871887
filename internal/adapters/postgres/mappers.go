package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/clinicore/session-lease-service/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func toDomainLease(row leaseModel) domain.Lease {
	source := ""
	if row.SourceAddress != nil {
		source = *row.SourceAddress
	}
	reason := ""
	if row.InvalidatedReason != nil {
		reason = *row.InvalidatedReason
	}
	return domain.Lease{
		LeaseID:           row.LeaseID,
		OwnerID:           row.OwnerID,
		TokenHash:         row.TokenHash,
		DeviceLabel:       row.DeviceLabel,
		SourceAddress:     source,
		CreatedAt:         row.CreatedAt,
		LastActivityAt:    row.LastActivityAt,
		HardExpiryAt:      row.HardExpiryAt,
		IsActive:          row.IsActive,
		InvalidatedAt:     row.InvalidatedAt,
		InvalidatedReason: reason,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// translateErr surfaces connectivity failures as a storage-unavailable
// condition so callers can answer with a retryable status instead of a
// generic internal error.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	var connectErr *pgconn.ConnectError
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gorm.ErrInvalidDB) ||
		errors.As(err, &netErr) ||
		errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return err
}
