package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"

	"camflip/internal/camera"
)

// PlatformError is a failed stream request carrying the platform error
// class name (NotAllowedError, NotFoundError, ...).
type PlatformError struct {
	Class   string
	Message string
	Err     error
}

func (e *PlatformError) Error() string {
	msg := e.Class
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PlatformError) Name() string { return e.Class }

func (e *PlatformError) Unwrap() error { return e.Err }

// AbortError is used for failures no other class describes.
const AbortError = "AbortError"

func accessError(path string, err error) *PlatformError {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return &PlatformError{Class: camera.NotAllowedError, Message: path, Err: err}
	case errors.Is(err, fs.ErrNotExist):
		return &PlatformError{Class: camera.NotFoundError, Message: path, Err: err}
	case errors.Is(err, syscall.EBUSY):
		return &PlatformError{Class: camera.NotReadableError, Message: path, Err: err}
	default:
		return &PlatformError{Class: camera.NotReadableError, Message: path, Err: err}
	}
}

// classifyStderr maps ffmpeg's startup diagnostics to an error class.
func classifyStderr(stderr string) string {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "permission denied"):
		return camera.NotAllowedError
	case strings.Contains(lower, "no such file"), strings.Contains(lower, "no such device"):
		return camera.NotFoundError
	case strings.Contains(lower, "device or resource busy"):
		return camera.NotReadableError
	case strings.Contains(lower, "invalid argument"),
		strings.Contains(lower, "not supported"),
		strings.Contains(lower, "unsupported"):
		return camera.OverconstrainedError
	default:
		return AbortError
	}
}
