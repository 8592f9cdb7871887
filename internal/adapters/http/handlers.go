package http

import (
	"errors"
	"net/http"

	"github.com/clinicore/session-lease-service/internal/application"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) issueLease(w http.ResponseWriter, r *http.Request) {
	var req application.IssueLeaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "issue_lease", err)
		return
	}
	if req.OwnerID == uuid.Nil {
		writeValidationError(r.Context(), w, "issue_lease", errors.New("owner_id is required"))
		return
	}
	if req.SourceAddress == "" {
		req.SourceAddress = readIP(r)
	}

	res, err := h.service.IssueLease(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "issue_lease", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) validateLease(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "validate_lease")
		return
	}
	status, err := h.service.ValidateLease(r.Context(), token, readIP(r))
	if err != nil {
		writeMappedError(r.Context(), w, "validate_lease", err)
		return
	}
	writeSuccess(w, http.StatusOK, status)
}

func (h *Handler) recordActivity(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "record_activity")
		return
	}
	res, err := h.service.RecordActivity(r.Context(), token, readIP(r))
	if err != nil {
		writeMappedError(r.Context(), w, "record_activity", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listLeases(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "list_leases")
		return
	}

	query := application.ListLeasesQuery{
		IncludeInactive: parseBool(r.URL.Query().Get("include_inactive")),
		Limit:           parseIntDefault(r.URL.Query().Get("limit"), 0),
		Offset:          parseIntDefault(r.URL.Query().Get("offset"), 0),
	}
	items, err := h.service.ListLeases(r.Context(), token, readIP(r), query)
	if err != nil {
		writeMappedError(r.Context(), w, "list_leases", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"leases": items})
}

func (h *Handler) revokeLease(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "revoke_lease")
		return
	}
	leaseID, err := uuid.Parse(chi.URLParam(r, "lease_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "revoke_lease", errors.New("invalid lease_id"))
		return
	}
	res, err := h.service.RevokeLease(r.Context(), token, readIP(r), leaseID)
	if err != nil {
		writeMappedError(r.Context(), w, "revoke_lease", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) revokeOtherLeases(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "revoke_other_leases")
		return
	}
	res, err := h.service.RevokeOtherLeases(r.Context(), token, readIP(r))
	if err != nil {
		writeMappedError(r.Context(), w, "revoke_other_leases", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) revokeAllLeases(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "revoke_all_leases")
		return
	}
	res, err := h.service.RevokeAllLeases(r.Context(), token, readIP(r))
	if err != nil {
		writeMappedError(r.Context(), w, "revoke_all_leases", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) getIdleTimeout(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "get_idle_timeout")
		return
	}
	res, err := h.service.GetIdleTimeout(r.Context(), token, readIP(r))
	if err != nil {
		writeMappedError(r.Context(), w, "get_idle_timeout", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) setIdleTimeout(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenFromContext(r)
	if !ok {
		writeMissingBearerError(r.Context(), w, "set_idle_timeout")
		return
	}
	var req struct {
		IdleTimeoutMinutes int `json:"idle_timeout_minutes"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "set_idle_timeout", err)
		return
	}
	res, err := h.service.SetIdleTimeout(r.Context(), token, readIP(r), req.IdleTimeoutMinutes)
	if err != nil {
		writeMappedError(r.Context(), w, "set_idle_timeout", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
