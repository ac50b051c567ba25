package entities

import "errors"

var (
	// ErrInvalidFact marks a malformed candidate fact. Never retried.
	ErrInvalidFact = errors.New("invalid fact")

	// ErrEntityExists is returned by repositories when an entity with the same
	// canonical name was created concurrently.
	ErrEntityExists = errors.New("entity already exists")

	// ErrFactConflict is returned by repositories when the active facts of a
	// conflict key changed between the conflict lookup and the write.
	ErrFactConflict = errors.New("conflicting fact written concurrently")

	// ErrStorage marks a persistence failure the caller may retry.
	ErrStorage = errors.New("storage failure")
)

// IsRetryable reports whether err is a storage failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage)
}
