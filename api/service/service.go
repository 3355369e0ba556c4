package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/radlab-io/authgate/authgateerrors"
	"github.com/radlab-io/authgate/authreasons"
	"github.com/radlab-io/authgate/claims"
	"github.com/radlab-io/authgate/credentialcodec"
	"github.com/radlab-io/authgate/pathauthz"
	"github.com/radlab-io/authgate/revocation"
	"github.com/radlab-io/authgate/verificationcache"
	"go.uber.org/zap"
)

type Service struct {
	policyManager   pathauthz.PolicyManager
	table           pathauthz.Matcher
	codec           *credentialcodec.Codec
	revocationCheck *revocation.Checker
	store           *revocation.MemoryStore
	cache           *verificationcache.Cache
	logger          *zap.Logger
}

func NewService(policyManager pathauthz.PolicyManager, table pathauthz.Matcher, codec *credentialcodec.Codec, revocationCheck *revocation.Checker, store *revocation.MemoryStore, cache *verificationcache.Cache, logger *zap.Logger) *Service {
	return &Service{
		policyManager:   policyManager,
		table:           table,
		codec:           codec,
		revocationCheck: revocationCheck,
		store:           store,
		cache:           cache,
		logger:          logger,
	}
}

func (s *Service) GetPolicyJSON() (json.RawMessage, error) {
	return s.policyManager.PolicyJSON()
}

type AccessResult struct {
	Allowed bool           `json:"allowed"`
	Reason  string         `json:"reason,omitempty"`
	Claims  *claims.Claims `json:"claims,omitempty"`
}

// CheckAccess re-derives the decision for a credential and path with full
// verification and the revocation cross-check. The cache entry is dropped
// first so the answer never reflects a stale verification.
func (s *Service) CheckAccess(ctx context.Context, credential, path string) (*AccessResult, error) {
	s.cache.Invalidate(credential)

	cl, err := s.codec.Verify(ctx, credential)
	if err != nil {
		switch {
		case errors.Is(err, authgateerrors.ErrExpired):
			return &AccessResult{Reason: authreasons.ExpiredCredential}, nil
		case errors.Is(err, authgateerrors.ErrMalformed):
			return &AccessResult{Reason: authreasons.MalformedCredential}, nil
		case errors.Is(err, authgateerrors.ErrVerificationTimeout):
			return &AccessResult{Reason: authreasons.VerificationTimedOut}, nil
		default:
			return &AccessResult{Reason: authreasons.InvalidSignature}, nil
		}
	}

	if err := s.revocationCheck.Check(ctx, cl); err != nil {
		if errors.Is(err, authgateerrors.ErrRevocationMismatch) {
			return &AccessResult{Reason: authreasons.RevokedCredential, Claims: cl}, nil
		}

		return nil, fmt.Errorf("revocation check failed: %w", err)
	}

	if !cl.Approved {
		return &AccessResult{Reason: authreasons.NotApproved, Claims: cl}, nil
	}

	if !s.table.IsAllowed(cl.Role, path) {
		return &AccessResult{Reason: fmt.Sprintf(authreasons.RoleNotAuthorized, path), Claims: cl}, nil
	}

	return &AccessResult{Allowed: true, Claims: cl}, nil
}

// Revoke bumps the subject's session epoch so all previously issued
// credentials fail the revocation check.
func (s *Service) Revoke(subjectID string) error {
	if s.store == nil {
		return errors.New("no writable identity store configured")
	}

	if err := s.store.BumpEpoch(subjectID); err != nil {
		return err
	}

	s.logger.Info("Bumped session epoch", zap.String("subject", subjectID))

	return nil
}
