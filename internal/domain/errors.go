package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")

	ErrInsufficientData = errors.New("insufficient bar history")
	ErrNoData           = errors.New("no bars returned")
	ErrInvalidSetting   = errors.New("invalid setting")

	// Order rejections. Callers treat these as no-ops rather than failures.
	ErrPositionClosed   = errors.New("position is not open")
	ErrAlreadyHeld      = errors.New("symbol already held")
	ErrMaxPositions     = errors.New("max positions reached")
	ErrInvalidLevels    = errors.New("invalid price levels")
	ErrZeroSize         = errors.New("position size is zero")
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrStaleState       = errors.New("position changed concurrently")
)

// IsRejection reports whether err is an order rejection rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrPositionClosed, ErrAlreadyHeld, ErrMaxPositions,
		ErrInvalidLevels, ErrZeroSize, ErrInsufficientCash,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
