package proxion

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken covers issuance precondition failures.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnsupportedAlg and ErrSignatureMismatch are the two ways
	// integrity verification fails.
	ErrUnsupportedAlg    = errors.New("unsupported alg")
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrAttenuation is the base error for Derive failures.
	ErrAttenuation = errors.New("attenuation failed")

	ErrEmptyPermissions = fmt.Errorf("%w: derived permissions must be non-empty", ErrAttenuation)
	ErrWidening         = fmt.Errorf("%w: permission widening is not allowed", ErrAttenuation)
	ErrParentExpired    = fmt.Errorf("%w: parent token expired", ErrAttenuation)
)
