package track

// Event is one tracking lifecycle event. The tracker emits four of them:
// "session_started" (frame, backwards), "frame_tracked" (frame) once per
// frame written to the mask sequence, "session_ended" (final state) and
// "session_error" (error) when a session aborts. Key is the project/layer
// key of the tracked mask layer.
type Event struct {
	Name   string
	Key    string
	Fields map[string]any
}

// EventPublisher receives events from the tracker. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
