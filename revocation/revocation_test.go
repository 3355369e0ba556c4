package revocation

import (
	"context"
	"testing"

	"github.com/radlab-io/authgate/authgateerrors"
	"github.com/radlab-io/authgate/claims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRecord() IdentityRecord {
	return IdentityRecord{
		SubjectID:    "user-1",
		Role:         claims.RoleDoctor,
		Approved:     true,
		SessionEpoch: 2,
	}
}

func claimsFromRecord(record IdentityRecord) claims.Claims {
	return claims.Claims{
		SubjectID:    record.SubjectID,
		Role:         record.Role,
		Approved:     record.Approved,
		SessionEpoch: record.SessionEpoch,
	}
}

func newTestChecker(t *testing.T) (*Checker, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	store.Put(testRecord())

	return NewChecker(store, zap.NewNop()), store
}

func TestChecker_MatchingClaimsAreValid(t *testing.T) {
	checker, _ := newTestChecker(t)

	cl := claimsFromRecord(testRecord())
	assert.NoError(t, checker.Check(context.Background(), &cl))
}

func TestChecker_EpochBumpInvalidatesOldClaims(t *testing.T) {
	checker, store := newTestChecker(t)

	cl := claimsFromRecord(testRecord())

	require.NoError(t, store.BumpEpoch("user-1"))

	err := checker.Check(context.Background(), &cl)
	assert.ErrorIs(t, err, authgateerrors.ErrRevocationMismatch)
}

func TestChecker_RoleChangeInvalidates(t *testing.T) {
	checker, store := newTestChecker(t)

	record := testRecord()
	record.Role = claims.RoleReceptionist
	store.Put(record)

	cl := claimsFromRecord(testRecord())

	err := checker.Check(context.Background(), &cl)
	assert.ErrorIs(t, err, authgateerrors.ErrRevocationMismatch)
}

func TestChecker_ApprovalFlipInvalidates(t *testing.T) {
	checker, store := newTestChecker(t)

	record := testRecord()
	record.Approved = false
	store.Put(record)

	cl := claimsFromRecord(testRecord())

	err := checker.Check(context.Background(), &cl)
	assert.ErrorIs(t, err, authgateerrors.ErrRevocationMismatch)
}

func TestChecker_UnknownSubjectInvalidates(t *testing.T) {
	checker, _ := newTestChecker(t)

	cl := claimsFromRecord(testRecord())
	cl.SubjectID = "ghost"

	err := checker.Check(context.Background(), &cl)
	assert.ErrorIs(t, err, authgateerrors.ErrRevocationMismatch)
}

func TestMemoryStore_BumpEpochUnknownSubject(t *testing.T) {
	store := NewMemoryStore()

	err := store.BumpEpoch("ghost")
	assert.ErrorIs(t, err, authgateerrors.ErrNotFound)
}

func TestMemoryStore_EpochOnlyIncreases(t *testing.T) {
	store := NewMemoryStore()
	store.Put(testRecord())

	require.NoError(t, store.BumpEpoch("user-1"))
	require.NoError(t, store.BumpEpoch("user-1"))

	record, err := store.Lookup(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), record.SessionEpoch)
}
