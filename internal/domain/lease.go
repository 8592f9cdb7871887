package domain

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Invalidation reasons recorded when a lease stops being active.
// The reason is persisted exactly once, by whichever writer wins the flip.
const (
	ReasonIdle    = "idle"
	ReasonHard    = "hard"
	ReasonRevoked = "revoked"
)

// Bounds for the per-principal sliding idle window.
// Anything outside this band is rejected on write and clamped on read.
const (
	MinIdleWindow = 5 * time.Minute
	MaxIdleWindow = 60 * time.Minute
)

// MaxDeviceLabelLen caps the free-form label supplied at issue time.
const MaxDeviceLabelLen = 120

// Lease is a single issued bearer grant. Only the SHA-256 hash of the
// opaque token is kept; the raw token exists solely in the issue response.
type Lease struct {
	LeaseID           uuid.UUID
	OwnerID           uuid.UUID
	TokenHash         string
	DeviceLabel       string
	SourceAddress     string
	CreatedAt         time.Time
	LastActivityAt    time.Time
	HardExpiryAt      time.Time
	IsActive          bool
	InvalidatedAt     *time.Time
	InvalidatedReason string
}

// HardExpired reports whether the fixed cap has passed.
// The boundary is strict: a lease is valid only while now is before the cap.
func (l Lease) HardExpired(now time.Time) bool {
	return !now.Before(l.HardExpiryAt)
}

// IdleExpired reports whether the sliding window has elapsed since the
// last recorded activity.
func (l Lease) IdleExpired(now time.Time, idleWindow time.Duration) bool {
	return !now.Before(l.LastActivityAt.Add(idleWindow))
}

// IdleDeadline is the moment the lease will idle out absent further activity.
func (l Lease) IdleDeadline(idleWindow time.Duration) time.Time {
	return l.LastActivityAt.Add(idleWindow)
}

// IdlePreference is the per-principal override of the sliding window.
type IdlePreference struct {
	OwnerID    uuid.UUID
	IdleWindow time.Duration
	UpdatedAt  time.Time
}

// ClampIdleWindow folds any stored or configured window into the allowed band.
// Out-of-band values can exist only from config drift; reads never fail on them.
func ClampIdleWindow(window time.Duration) time.Duration {
	if window < MinIdleWindow {
		return MinIdleWindow
	}
	if window > MaxIdleWindow {
		return MaxIdleWindow
	}
	return window
}

// ValidIdleWindow is the write-side check behind ClampIdleWindow.
func ValidIdleWindow(window time.Duration) bool {
	return window >= MinIdleWindow && window <= MaxIdleWindow
}

// Patterns redacted from device labels. Labels are free-form text from the
// caller and must not carry identifying data into storage or the audit trail.
var (
	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	digitRunPattern = regexp.MustCompile(`\d{7,}`)
)

// ScrubDeviceLabel normalizes a caller-supplied label before persistence:
// email-like substrings and long digit runs are redacted, control characters
// are dropped, runs of whitespace collapse to one space, and the result is
// truncated to MaxDeviceLabelLen.
func ScrubDeviceLabel(label string) string {
	label = emailPattern.ReplaceAllString(label, "[redacted]")
	label = digitRunPattern.ReplaceAllString(label, "[redacted]")

	var b strings.Builder
	b.Grow(len(label))
	lastSpace := true
	for _, r := range label {
		// Tab and newline are both control and space; they separate words.
		if unicode.IsSpace(r) {
			if lastSpace {
				continue
			}
			b.WriteRune(' ')
			lastSpace = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	out := strings.TrimSpace(b.String())
	if runes := []rune(out); len(runes) > MaxDeviceLabelLen {
		out = strings.TrimRight(string(runes[:MaxDeviceLabelLen]), " ")
	}
	return out
}
