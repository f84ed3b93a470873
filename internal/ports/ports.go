package ports

import (
	"context"

	"camflip/internal/domain"
)

// PlatformCapabilities reports which camera primitives the runtime exposes.
type PlatformCapabilities struct {
	StreamRequests bool
	DeviceListing  bool
}

// RawDevice is one entry of the platform's device list.
type RawDevice struct {
	DeviceID string
	Label    string
	Kind     domain.DeviceKind
	// FacingModes lists the facing modes the device is known to deliver.
	FacingModes []domain.FacingMode
}

// MediaPlatform is the camera/microphone runtime.
type MediaPlatform interface {
	Capabilities() PlatformCapabilities
	// RequestStream fails with an error whose Name() is the platform error
	// class (NotAllowedError, NotFoundError, ...).
	RequestStream(ctx context.Context, constraints domain.Constraints) (Stream, error)
	ListDevices(ctx context.Context) ([]RawDevice, error)
}

// NamedError is implemented by platform errors that carry a class name.
type NamedError interface {
	error
	Name() string
}

// TrackKind is the media type of a track.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// TrackSettings are the values a live track actually runs with.
// FacingMode is empty when the hardware does not report it.
type TrackSettings struct {
	DeviceID   string
	FacingMode domain.FacingMode
	Width      int
	Height     int
}

// TrackCapabilities describes what the underlying device could deliver.
type TrackCapabilities struct {
	FacingModes []domain.FacingMode
}

// Track is one live hardware channel.
type Track interface {
	ID() string
	Kind() TrackKind
	Label() string
	Settings() TrackSettings
	Capabilities() TrackCapabilities
	// Stop releases the hardware. Calling it more than once is a no-op.
	Stop()
	// Done is closed once the track has ended, stopped or not.
	Done() <-chan struct{}
}

// Stream is a set of live tracks acquired together.
type Stream interface {
	ID() string
	Tracks() []Track
}

// FrameSource delivers encoded video frames for preview.
type FrameSource interface {
	ContentType() string
	Subscribe() (frames <-chan []byte, cancel func())
}

// Previewable is implemented by video tracks that expose their frames.
type Previewable interface {
	Frames() FrameSource
}

// PlaybackSurface renders the current stream. Its lifecycle callbacks are
// reported back through the session controller. Attach and Detach are
// called with the controller lock held and must not call back into it.
type PlaybackSurface interface {
	Attach(stream Stream)
	Detach()
	Play() error
	Pause() error
}

// EventSink emits session state to the view.
type EventSink interface {
	StatusChanged(status domain.Status)
	DevicesChanged(devices []domain.DeviceDescriptor, caps domain.CapabilityFlags)
	SessionError(kind domain.ErrorKind, detail string)
}
