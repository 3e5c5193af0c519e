package transporter

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL    = errors.New("invalid upload url")
	ErrSerialization = errors.New("failed to serialize ping")
	ErrTransport     = errors.New("transport error")
)

// UploadError is the outcome of a failed upload. Kind is one of
// ErrInvalidURL, ErrSerialization or ErrTransport, so callers can match
// it with errors.Is.
type UploadError struct {
	Kind     error
	PingType string
	PingID   string
	URL      string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s ping %s to %s: %v: %v", e.PingType, e.PingID, e.URL, e.Kind, e.Err)
}

func (e *UploadError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Outcome returns the metric label for an upload result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrSerialization):
		return "serialization"
	default:
		return "transport"
	}
}
