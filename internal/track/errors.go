package track

// sessionActiveError signals a start request while a session is already
// running. Only one tracking session exists at a time.
type sessionActiveError struct{ key string }

func (e sessionActiveError) Error() string { return "tracking session already running: " + e.key }

// ErrSessionActive constructs a sessionActiveError.
func ErrSessionActive(key string) error { return sessionActiveError{key: key} }

// IsSessionActive reports whether err indicates a second concurrent session.
func IsSessionActive(err error) bool {
	_, ok := err.(sessionActiveError)
	return ok
}

// noSessionError signals a cancel request with nothing running.
type noSessionError struct{}

func (noSessionError) Error() string { return "no tracking session running" }

// ErrNoSession constructs a noSessionError.
func ErrNoSession() error { return noSessionError{} }

// IsNoSession reports whether err indicates an idle tracker.
func IsNoSession(err error) bool {
	_, ok := err.(noSessionError)
	return ok
}
