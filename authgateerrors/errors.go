package authgateerrors

import (
	"errors"
)

var ErrNotFound = errors.New("not found")

var ErrMalformed = errors.New("malformed credential")

var ErrExpired = errors.New("expired credential")

var ErrInvalidSignature = errors.New("invalid credential signature")

var ErrVerificationTimeout = errors.New("credential verification timed out")

var ErrRevocationMismatch = errors.New("credential revoked")

var ErrInvalidKeyID = errors.New("invalid key id")
