package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"testing"

	"github.com/clinicore/session-lease-service/internal/domain"
	"gorm.io/gorm"
)

func TestTranslateErrSurfacesConnectivityFailures(t *testing.T) {
	t.Parallel()

	unavailable := []error{
		driver.ErrBadConn,
		context.DeadlineExceeded,
		gorm.ErrInvalidDB,
		&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
	}
	for _, in := range unavailable {
		if got := translateErr(in); !errors.Is(got, domain.ErrStorageUnavailable) {
			t.Errorf("translateErr(%v) = %v, want storage unavailable", in, got)
		}
	}

	if got := translateErr(gorm.ErrRecordNotFound); errors.Is(got, domain.ErrStorageUnavailable) {
		t.Fatalf("record-not-found must stay a lookup error, got %v", got)
	}
	if translateErr(nil) != nil {
		t.Fatalf("nil error must pass through")
	}
}
