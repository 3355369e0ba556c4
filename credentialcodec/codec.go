package credentialcodec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/radlab-io/authgate/authgateerrors"
	"github.com/radlab-io/authgate/claims"
	"github.com/radlab-io/authgate/trustbundle"
)

const (
	DEFAULT_CREDENTIAL_VALIDITY = 24 * time.Hour
	DEFAULT_VERIFY_TIMEOUT      = 3 * time.Second
)

type credentialClaims struct {
	jwt.RegisteredClaims
	Email        string `json:"email"`
	Role         string `json:"role"`
	Approved     bool   `json:"approved"`
	SessionEpoch int64  `json:"session_epoch"`
}

// Codec signs and verifies credentials. Credentials issued locally use the
// shared HS256 secret; credentials minted by an external identity provider
// are RS256-signed and verified through the trust bundle.
type Codec struct {
	secret        []byte
	issuer        string
	validity      time.Duration
	verifyTimeout time.Duration
	trustBundle   *trustbundle.Manager
}

func NewCodec(secret []byte, issuer string, validity, verifyTimeout time.Duration, trustBundle *trustbundle.Manager) *Codec {
	if validity == 0 {
		validity = DEFAULT_CREDENTIAL_VALIDITY
	}

	if verifyTimeout == 0 {
		verifyTimeout = DEFAULT_VERIFY_TIMEOUT
	}

	return &Codec{
		secret:        secret,
		issuer:        issuer,
		validity:      validity,
		verifyTimeout: verifyTimeout,
		trustBundle:   trustBundle,
	}
}

func (c *Codec) Issue(cl claims.Claims) (string, error) {
	now := time.Now()
	credential := credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   cl.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.validity)),
		},
		Email:        cl.Email,
		Role:         string(cl.Role),
		Approved:     cl.Approved,
		SessionEpoch: cl.SessionEpoch,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, credential)

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}

	return signed, nil
}

// Verify checks the credential signature and expiration. It never blocks
// longer than the configured verify timeout; exceeding it reports
// ErrVerificationTimeout, which callers treat as inconclusive rather than
// as a rejection.
func (c *Codec) Verify(ctx context.Context, credential string) (*claims.Claims, error) {
	type parseResult struct {
		claims *claims.Claims
		err    error
	}

	resultCh := make(chan parseResult, 1)

	go func() {
		cl, err := c.parse(ctx, credential)
		resultCh <- parseResult{claims: cl, err: err}
	}()

	timer := time.NewTimer(c.verifyTimeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		return result.claims, result.err
	case <-timer.C:
		return nil, authgateerrors.ErrVerificationTimeout
	case <-ctx.Done():
		return nil, fmt.Errorf("verification canceled: %w", authgateerrors.ErrVerificationTimeout)
	}
}

func (c *Codec) parse(ctx context.Context, credential string) (*claims.Claims, error) {
	parsed := &credentialClaims{}

	token, err := jwt.ParseWithClaims(credential, parsed, c.keyFunc(ctx), jwt.WithValidMethods([]string{"HS256", "RS256"}))
	if err != nil {
		return nil, mapParseError(err)
	}

	if !token.Valid {
		return nil, authgateerrors.ErrInvalidSignature
	}

	role, err := claims.ParseRole(parsed.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", authgateerrors.ErrMalformed, err)
	}

	return &claims.Claims{
		SubjectID:    parsed.Subject,
		Email:        parsed.Email,
		Role:         role,
		Approved:     parsed.Approved,
		SessionEpoch: parsed.SessionEpoch,
	}, nil
}

func (c *Codec) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return c.secret, nil
		case *jwt.SigningMethodRSA:
			if c.trustBundle == nil {
				return nil, errors.New("no trust bundle configured for RS256 credentials")
			}

			keyID, _ := token.Header["kid"].(string)

			key, err := c.trustBundle.GetJWK(ctx, keyID)
			if err != nil {
				return nil, err
			}

			var publicKey interface{}
			if err := key.Raw(&publicKey); err != nil {
				return nil, fmt.Errorf("failed to materialize JWK: %w", err)
			}

			return publicKey, nil
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
	}
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", authgateerrors.ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", authgateerrors.ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %v", authgateerrors.ErrInvalidSignature, err)
	}
}
