package credentialcodec

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/radlab-io/authgate/authgateerrors"
	"github.com/radlab-io/authgate/claims"
	"github.com/tidwall/gjson"
)

// DecodeUnverified extracts claims from a credential without checking its
// signature. It is the stop-gap for verification timeouts only: callers must
// tag the result claims.TrustUnverified and never grant privileged access
// from it alone.
func DecodeUnverified(credential string) (*claims.Claims, error) {
	segments := strings.Split(credential, ".")
	if len(segments) != 3 {
		return nil, fmt.Errorf("%w: expected three segments, got %d", authgateerrors.ErrMalformed, len(segments))
	}

	payload, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return nil, fmt.Errorf("%w: claims segment is not valid base64url", authgateerrors.ErrMalformed)
	}

	subject := gjson.GetBytes(payload, "sub")
	roleField := gjson.GetBytes(payload, "role")

	if !subject.Exists() || !roleField.Exists() {
		return nil, fmt.Errorf("%w: missing mandatory claim fields", authgateerrors.ErrMalformed)
	}

	role, err := claims.ParseRole(roleField.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authgateerrors.ErrMalformed, err)
	}

	return &claims.Claims{
		SubjectID:    subject.String(),
		Email:        gjson.GetBytes(payload, "email").String(),
		Role:         role,
		Approved:     gjson.GetBytes(payload, "approved").Bool(),
		SessionEpoch: gjson.GetBytes(payload, "session_epoch").Int(),
	}, nil
}
