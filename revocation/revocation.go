package revocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/radlab-io/authgate/authgateerrors"
	"github.com/radlab-io/authgate/claims"
	"go.uber.org/zap"
)

// IdentityRecord is the authoritative state for a subject. SessionEpoch only
// increases; bumping it invalidates every credential issued before the bump.
type IdentityRecord struct {
	SubjectID    string      `json:"subjectId"`
	Role         claims.Role `json:"role"`
	Approved     bool        `json:"approved"`
	SessionEpoch int64       `json:"sessionEpoch"`
}

type IdentityStore interface {
	Lookup(ctx context.Context, subjectID string) (*IdentityRecord, error)
}

// Checker cross-checks credential claims against the authoritative identity
// store. It runs only where the store is reachable; the restricted edge
// context relies on the verification cache instead and accepts a revocation
// lag bounded by the cache TTL.
type Checker struct {
	store  IdentityStore
	logger *zap.Logger
}

func NewChecker(store IdentityStore, logger *zap.Logger) *Checker {
	return &Checker{
		store:  store,
		logger: logger,
	}
}

// Check reports ErrRevocationMismatch when any of role, approval, or session
// epoch in the claims no longer matches the authoritative record, regardless
// of the credential's signature validity.
func (c *Checker) Check(ctx context.Context, cl *claims.Claims) error {
	record, err := c.store.Lookup(ctx, cl.SubjectID)
	if err != nil {
		if errors.Is(err, authgateerrors.ErrNotFound) {
			c.logger.Warn("Identity record not found during revocation check", zap.String("subject", cl.SubjectID))

			return fmt.Errorf("%w: identity record not found", authgateerrors.ErrRevocationMismatch)
		}

		return fmt.Errorf("failed to look up identity record: %w", err)
	}

	if cl.SessionEpoch < record.SessionEpoch {
		return fmt.Errorf("%w: stale session epoch", authgateerrors.ErrRevocationMismatch)
	}

	if cl.Role != record.Role {
		return fmt.Errorf("%w: role changed", authgateerrors.ErrRevocationMismatch)
	}

	if cl.Approved != record.Approved {
		return fmt.Errorf("%w: approval changed", authgateerrors.ErrRevocationMismatch)
	}

	return nil
}
