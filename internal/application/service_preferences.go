package application

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/session-lease-service/internal/domain"
)

// GetIdleTimeout returns the caller's effective idle window. When no
// override is stored the configured default is reported as such.
func (s *Service) GetIdleTimeout(ctx context.Context, rawToken, source string) (IdleTimeoutResponse, error) {
	caller, _, err := s.authenticate(ctx, rawToken, source)
	if err != nil {
		return IdleTimeoutResponse{}, err
	}

	pref, err := s.prefs.Get(ctx, caller.OwnerID)
	if err != nil {
		return IdleTimeoutResponse{}, err
	}
	if pref == nil {
		return IdleTimeoutResponse{
			IdleTimeoutMinutes: int(domain.ClampIdleWindow(s.cfg.DefaultIdleWindow).Minutes()),
			MinMinutes:         int(domain.MinIdleWindow.Minutes()),
			MaxMinutes:         int(domain.MaxIdleWindow.Minutes()),
			IsDefault:          true,
		}, nil
	}
	return IdleTimeoutResponse{
		IdleTimeoutMinutes: int(domain.ClampIdleWindow(pref.IdleWindow).Minutes()),
		MinMinutes:         int(domain.MinIdleWindow.Minutes()),
		MaxMinutes:         int(domain.MaxIdleWindow.Minutes()),
		UpdatedAt:          &pref.UpdatedAt,
	}, nil
}

// SetIdleTimeout stores a per-owner idle window override. Values outside the
// allowed band are rejected rather than clamped, so the caller learns the
// bounds instead of silently getting a different window.
func (s *Service) SetIdleTimeout(ctx context.Context, rawToken, source string, minutes int) (IdleTimeoutResponse, error) {
	caller, _, err := s.authenticate(ctx, rawToken, source)
	if err != nil {
		return IdleTimeoutResponse{}, err
	}

	window := time.Duration(minutes) * time.Minute
	if !domain.ValidIdleWindow(window) {
		return IdleTimeoutResponse{}, fmt.Errorf("%w: idle timeout must be between %d and %d minutes",
			domain.ErrPreferenceOutOfRange,
			int(domain.MinIdleWindow.Minutes()),
			int(domain.MaxIdleWindow.Minutes()),
		)
	}

	now := s.nowFn()
	if err := s.prefs.Upsert(ctx, caller.OwnerID, window, now); err != nil {
		return IdleTimeoutResponse{}, err
	}

	s.enqueueAudit(ctx, "preference.updated", caller.OwnerID, caller.LeaseID, map[string]any{
		"idle_timeout_minutes": minutes,
	})

	return IdleTimeoutResponse{
		IdleTimeoutMinutes: minutes,
		MinMinutes:         int(domain.MinIdleWindow.Minutes()),
		MaxMinutes:         int(domain.MaxIdleWindow.Minutes()),
		UpdatedAt:          &now,
	}, nil
}
