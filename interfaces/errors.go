package interfaces

import "errors"

// The error taxonomy exposed by this layer. Callers match with errors.Is;
// internal failures from collaborators are translated into one of these
// before crossing the package boundary.
var (
	ErrInvalidKeyBlob                 = errors.New("invalid key blob")
	ErrUnsupportedAlgorithm           = errors.New("unsupported algorithm")
	ErrIncompatibleAlgorithm          = errors.New("incompatible algorithm")
	ErrIncompatiblePurpose            = errors.New("incompatible purpose")
	ErrIncompatibleDigest             = errors.New("incompatible digest")
	ErrIncompatiblePaddingMode        = errors.New("incompatible padding mode")
	ErrUnimplemented                  = errors.New("unimplemented")
	ErrRollbackResistanceUnavailable  = errors.New("rollback resistance unavailable")
	ErrInvalidArgument                = errors.New("invalid argument")
	ErrMemoryAllocationFailed         = errors.New("memory allocation failed")
	ErrSecureHwCommunicationFailed    = errors.New("secure hardware communication failed")
	ErrAuthenticationFailure          = errors.New("key blob authentication failed")
	ErrRootOfTrustAlreadySet          = errors.New("root of trust already set")
	ErrNoUserConfirmation             = errors.New("no user confirmation")
	ErrKeyRequiresUpgrade             = errors.New("key blob requires upgrade")
	ErrUnknown                        = errors.New("unknown error")
)
