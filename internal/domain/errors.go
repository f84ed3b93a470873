package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session failures for user-facing messaging.
type ErrorKind string

const (
	ErrorKindUnsupported       ErrorKind = "unsupported"
	ErrorKindNotAllowed        ErrorKind = "not_allowed"
	ErrorKindNotFound          ErrorKind = "not_found"
	ErrorKindNotReadable       ErrorKind = "not_readable"
	ErrorKindOverconstrained   ErrorKind = "overconstrained"
	ErrorKindUnknown           ErrorKind = "unknown"
	ErrorKindToggleUnavailable ErrorKind = "toggle_unavailable"
	ErrorKindToggleFailed      ErrorKind = "toggle_failed"
	ErrorKindPlayback          ErrorKind = "playback"
)

// Message returns the human-readable text shown for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorKindUnsupported:
		return "Camera access is not supported on this system"
	case ErrorKindNotAllowed:
		return "Camera permission denied"
	case ErrorKindNotFound:
		return "No camera found"
	case ErrorKindNotReadable:
		return "Camera is already in use"
	case ErrorKindOverconstrained:
		return "Camera does not support the requested quality"
	case ErrorKindToggleUnavailable:
		return "Switching cameras is not supported on this device"
	case ErrorKindToggleFailed:
		return "Switching cameras failed"
	case ErrorKindPlayback:
		return "Video playback error"
	default:
		return "An error occurred while accessing the camera"
	}
}

var (
	ErrUnsupported       = errors.New("camera api is not available")
	ErrToggleUnavailable = errors.New("facing mode toggle is not available")
)

// AcquisitionError is a failed stream request, classified by platform error.
type AcquisitionError struct {
	Kind ErrorKind
	Err  error
}

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("acquire stream: %s", e.Kind)
	}
	return fmt.Sprintf("acquire stream: %s: %v", e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ToggleFailedError is a toggle or device switch the platform rejected.
type ToggleFailedError struct {
	Target string
	Cause  error
}

func (e *ToggleFailedError) Error() string {
	return fmt.Sprintf("switch to %s failed: %v", e.Target, e.Cause)
}

func (e *ToggleFailedError) Unwrap() error { return e.Cause }

// KindOf extracts the ErrorKind carried by err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var toggleErr *ToggleFailedError
	if errors.As(err, &toggleErr) {
		return ErrorKindToggleFailed
	}
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		return acqErr.Kind
	}
	switch {
	case errors.Is(err, ErrUnsupported):
		return ErrorKindUnsupported
	case errors.Is(err, ErrToggleUnavailable):
		return ErrorKindToggleUnavailable
	default:
		return ErrorKindUnknown
	}
}
