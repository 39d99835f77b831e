package domain

import "errors"

var (
	ErrSerializationFailure  = errors.New("serialization failure")
	ErrStorageTimeout        = errors.New("storage timeout")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("dates unavailable")
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrReservationNotPending = errors.New("reservation is not pending")
	ErrForbidden             = errors.New("actor not allowed")
)

// Retryable reports whether an operation that failed with err may be
// attempted again without risking a duplicate write. Creation and approval
// are guarded by the store's transactional re-check, so retrying after a
// timeout or serialization failure cannot double-book.
func Retryable(err error) bool {
	return errors.Is(err, ErrSerializationFailure) || errors.Is(err, ErrStorageTimeout)
}
