package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/clinicore/session-lease-service/internal/domain"
	"github.com/google/uuid"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyTokenRaw  ctxKey = "token_raw"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httpLogger().ErrorContext(r.Context(), "panic recovered",
					"operation", "http_panic_recovery",
					"outcome", "failure",
					"request_id", requestIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// bearerTokenMiddleware extracts the raw bearer value into the context.
// Token validity is decided by the application so the precise expiry or
// revocation reason can surface in the response.
func bearerTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "missing bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyTokenRaw, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}

		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		switch {
		case statusCode >= 500:
			httpLogger().ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			httpLogger().WarnContext(r.Context(), "http request completed", fields...)
		default:
			httpLogger().InfoContext(r.Context(), "http request completed", fields...)
		}
	})
}

func requestIDFromContext(ctx context.Context) string {
	v := ctx.Value(ctxKeyRequestID)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func bearerTokenFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// mapDomainError translates domain sentinels into HTTP responses.
// retryAfter is included for states that clear with time.
func mapDomainError(err error) (status int, code, message string, retryAfter time.Duration) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), 0
	case errors.Is(err, domain.ErrPreferenceOutOfRange):
		return http.StatusBadRequest, "PREFERENCE_OUT_OF_RANGE", err.Error(), 0
	case errors.Is(err, domain.ErrLeaseIdleExpired):
		return http.StatusUnauthorized, "LEASE_EXPIRED_IDLE", "lease expired: idle window elapsed", 0
	case errors.Is(err, domain.ErrLeaseHardExpired):
		return http.StatusUnauthorized, "LEASE_EXPIRED_HARD", "lease expired: hard cap reached", 0
	case errors.Is(err, domain.ErrLeaseExpired):
		return http.StatusUnauthorized, "LEASE_EXPIRED", "lease expired", 0
	case errors.Is(err, domain.ErrLeaseRevoked):
		return http.StatusUnauthorized, "LEASE_REVOKED", "lease revoked", 0
	case errors.Is(err, domain.ErrLeaseNotFound):
		return http.StatusUnauthorized, "LEASE_NOT_FOUND", "unknown lease token", 0
	case errors.Is(err, domain.ErrAuthenticationRequired):
		return http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "valid bearer token required", 0
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many invalid tokens from this source", time.Minute
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "storage temporarily unavailable", 30 * time.Second
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", 0
	}
}

func tokenFromContext(r *http.Request) (string, bool) {
	v := r.Context().Value(ctxKeyTokenRaw)
	token, ok := v.(string)
	return token, ok
}
