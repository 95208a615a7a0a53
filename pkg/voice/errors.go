package voice

import (
	"github.com/pkg/errors"
)

var (
	ErrPermissionDenied     = errors.New("microphone permission denied")
	ErrDeviceUnavailable    = errors.New("microphone unavailable")
	ErrConfigurationMissing = errors.New("voice agent not configured")
	ErrSessionStartFailed   = errors.New("voice session start failed")
)

// Error pairs one of the sentinels above with the underlying cause. Both match
// with errors.Is.
type Error struct {
	Kind  error
	Cause error
}

func newError(kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// classifyMicError keeps a permission or device sentinel reported by the
// microphone and treats anything else as an unavailable device.
func classifyMicError(err error) *Error {
	var ve *Error
	if errors.As(err, &ve) && (ve.Kind == ErrPermissionDenied || ve.Kind == ErrDeviceUnavailable) {
		return ve
	}
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return newError(ErrPermissionDenied, err)
	default:
		return newError(ErrDeviceUnavailable, err)
	}
}
