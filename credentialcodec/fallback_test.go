package credentialcodec

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/radlab-io/authgate/authgateerrors"
	"github.com/radlab-io/authgate/claims"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUnverified_ValidCredential(t *testing.T) {
	codec := NewCodec(testSecret, "authgate", time.Hour, time.Second, nil)

	credential, err := codec.Issue(testClaims())
	require.NoError(t, err)

	decoded, err := DecodeUnverified(credential)
	require.NoError(t, err)
	assert.Equal(t, testClaims(), *decoded)
}

func TestDecodeUnverified_IgnoresSignature(t *testing.T) {
	issuer := NewCodec([]byte("some-other-secret"), "authgate", time.Hour, time.Second, nil)

	credential, err := issuer.Issue(testClaims())
	require.NoError(t, err)

	decoded, err := DecodeUnverified(credential)
	require.NoError(t, err)
	assert.Equal(t, "user-1", decoded.SubjectID)
}

func TestDecodeUnverified_WrongSegmentCount(t *testing.T) {
	for _, credential := range []string{"", "a", "a.b", "a.b.c.d"} {
		_, err := DecodeUnverified(credential)
		assert.ErrorIs(t, err, authgateerrors.ErrMalformed, "credential %q", credential)
	}
}

func TestDecodeUnverified_BadPayloadEncoding(t *testing.T) {
	_, err := DecodeUnverified("aGVhZGVy.!!!notbase64!!!.c2lnbmF0dXJl")
	assert.ErrorIs(t, err, authgateerrors.ErrMalformed)
}

func TestDecodeUnverified_MissingMandatoryFields(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"email":"x@y.z"}`))

	_, err := DecodeUnverified("aGVhZGVy." + payload + ".c2ln")
	assert.ErrorIs(t, err, authgateerrors.ErrMalformed)
}

func TestDecodeUnverified_UnknownRole(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user-1","role":"SUPERUSER"}`))

	_, err := DecodeUnverified("aGVhZGVy." + payload + ".c2ln")
	assert.ErrorIs(t, err, authgateerrors.ErrMalformed)
}

func TestDecodeUnverified_ResultIsTaggedLowerTrust(t *testing.T) {
	// The decoder itself returns bare claims; trust tagging happens at the
	// gateway. This pins the tag values so a swap would fail loudly.
	assert.Equal(t, "verified", claims.TrustVerified.String())
	assert.Equal(t, "unverified", claims.TrustUnverified.String())
}
