package application

import (
	"context"

	"github.com/google/uuid"
)

// RevokeLease revokes one of the caller's leases by id. Revoking an already
// inactive lease is a no-op success, so retries stay idempotent and the
// audit trail records at most one revocation per lease.
func (s *Service) RevokeLease(ctx context.Context, rawToken, source string, leaseID uuid.UUID) (RevocationResult, error) {
	caller, _, err := s.authenticate(ctx, rawToken, source)
	if err != nil {
		return RevocationResult{}, err
	}

	transitioned, err := s.leases.RevokeByIDForOwner(ctx, leaseID, caller.OwnerID, s.nowFn())
	if err != nil {
		return RevocationResult{}, err
	}
	if !transitioned {
		return RevocationResult{RevokedCount: 0}, nil
	}

	s.enqueueAudit(ctx, "lease.revoked", caller.OwnerID, leaseID, map[string]any{
		"revoked_by": caller.LeaseID,
	})
	return RevocationResult{RevokedCount: 1}, nil
}

// RevokeOtherLeases revokes every active lease of the caller except the one
// presented, the usual "sign out everywhere else" operation.
func (s *Service) RevokeOtherLeases(ctx context.Context, rawToken, source string) (RevocationResult, error) {
	caller, _, err := s.authenticate(ctx, rawToken, source)
	if err != nil {
		return RevocationResult{}, err
	}

	except := caller.LeaseID
	revoked, err := s.leases.RevokeAllForOwner(ctx, caller.OwnerID, &except, s.nowFn())
	if err != nil {
		return RevocationResult{}, err
	}

	for _, id := range revoked {
		s.enqueueAudit(ctx, "lease.revoked", caller.OwnerID, id, map[string]any{
			"revoked_by": caller.LeaseID,
		})
	}
	return RevocationResult{RevokedCount: len(revoked)}, nil
}

// RevokeAllLeases revokes every active lease of the caller, including the
// presented one. Subsequent use of any of the owner's tokens fails with
// a revoked error.
func (s *Service) RevokeAllLeases(ctx context.Context, rawToken, source string) (RevocationResult, error) {
	caller, _, err := s.authenticate(ctx, rawToken, source)
	if err != nil {
		return RevocationResult{}, err
	}

	revoked, err := s.leases.RevokeAllForOwner(ctx, caller.OwnerID, nil, s.nowFn())
	if err != nil {
		return RevocationResult{}, err
	}

	for _, id := range revoked {
		s.enqueueAudit(ctx, "lease.revoked", caller.OwnerID, id, map[string]any{
			"revoked_by": caller.LeaseID,
		})
	}
	return RevocationResult{RevokedCount: len(revoked)}, nil
}
