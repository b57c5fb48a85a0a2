package engine

// modelLoadError signals missing or unloadable weight files. It must surface
// to the operator before any inference is attempted; it is never degraded to
// a blank prediction.
type modelLoadError struct{ msg string }

func (e modelLoadError) Error() string { return "model load: " + e.msg }

// ErrModelLoad constructs a modelLoadError.
func ErrModelLoad(msg string) error { return modelLoadError{msg: msg} }

// IsModelLoad reports whether err indicates missing/broken model weights.
func IsModelLoad(err error) bool {
	_, ok := err.(modelLoadError)
	return ok
}

// inferenceError signals a failure inside a model call (numerical failure,
// unexpected output shape). The current frame aborts; no fallback mask is
// substituted.
type inferenceError struct{ msg string }

func (e inferenceError) Error() string { return "inference: " + e.msg }

// ErrInference constructs an inferenceError.
func ErrInference(msg string) error { return inferenceError{msg: msg} }

// IsInference reports whether err came from inside a model call.
func IsInference(err error) bool {
	_, ok := err.(inferenceError)
	return ok
}
