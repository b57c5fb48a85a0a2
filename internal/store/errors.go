package store

// notFoundError signals a lookup for a mask, layer or project the store has
// never seen.
type notFoundError struct{ key string }

func (e notFoundError) Error() string { return "not found: " + e.key }

// ErrNotFound constructs a notFoundError for the given key.
func ErrNotFound(key string) error { return notFoundError{key: key} }

// IsNotFound reports whether err indicates a missing store entry.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// syncConflictError signals that a single document notification carried more
// than one structural change. Reconciliation resolves at most one change per
// notification; anything beyond that is logged and skipped, never guessed at.
type syncConflictError struct{ msg string }

func (e syncConflictError) Error() string { return "sync conflict: " + e.msg }

// ErrSyncConflict constructs a syncConflictError.
func ErrSyncConflict(msg string) error { return syncConflictError{msg: msg} }

// IsSyncConflict reports whether err indicates simultaneous structural
// changes that reconciliation refused to resolve.
func IsSyncConflict(err error) bool {
	_, ok := err.(syncConflictError)
	return ok
}
