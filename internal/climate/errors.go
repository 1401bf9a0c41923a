package climate

import (
	"errors"
	"fmt"
)

var (
	// ErrNotCached is returned by a Store when no series is held for a key.
	ErrNotCached = errors.New("series not cached")

	// ErrAllSourcesFailed is returned by a multi-source fetch when no provider succeeded.
	ErrAllSourcesFailed = errors.New("all sources failed")

	// ErrUnknownSource is returned when a request names a source with no registered adapter.
	ErrUnknownSource = errors.New("unknown source")
)

// ValidationError represents a malformed or missing request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CapabilityError is returned by an adapter asked for something outside its
// declared envelope (wrong location form, range too long, wrong direction in time).
type CapabilityError struct {
	Source SourceKind
	Reason string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s cannot serve request: %s", e.Source, e.Reason)
}

// UpstreamError is a failed provider call: non-2xx status, malformed body or
// an open circuit. Body is already truncated for diagnostics.
type UpstreamError struct {
	Source     SourceKind
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s upstream error", e.Source)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ChunkError wraps the failure of one chunk of a historical request.
type ChunkError struct {
	Index int
	Range DateRange
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d (%s) failed: %v", e.Index+1, e.Range, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}
