// Package platformtest provides an in-memory MediaPlatform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"camflip/internal/domain"
	"camflip/internal/ports"
)

// Error is a platform error with a class name.
type Error struct {
	ErrName string
	Msg     string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.ErrName
	}
	return e.ErrName + ": " + e.Msg
}

func (e *Error) Name() string { return e.ErrName }

// Camera is one fake video input.
type Camera struct {
	DeviceID string
	Label    string
	// Facing is what an opened track reports in its settings.
	Facing domain.FacingMode
	// Listed is the facing mode advertised by ListDevices, if any.
	Listed []domain.FacingMode
	// Modes is what an opened track reports in its capabilities.
	Modes []domain.FacingMode
}

// Platform is a scripted MediaPlatform. Zero value platforms support both
// stream requests and device listing and have no cameras.
type Platform struct {
	mu sync.Mutex

	Cameras   []Camera
	NoStreams bool
	NoListing bool
	ListErr   error
	// HideLabels withholds labels until a stream has been granted.
	HideLabels bool
	// Fail, when set, is consulted before every request. A non-nil
	// return fails the request.
	Fail func(constraints domain.Constraints) error
	// Gate, when set, blocks every request until it receives a value or
	// is closed.
	Gate chan struct{}

	granted  bool
	requests []domain.Constraints
	streams  []*Stream
	lists    int
	nextID   int
}

func (p *Platform) Capabilities() ports.PlatformCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ports.PlatformCapabilities{StreamRequests: !p.NoStreams, DeviceListing: !p.NoListing}
}

func (p *Platform) ListDevices(_ context.Context) ([]ports.RawDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists++
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	out := make([]ports.RawDevice, 0, len(p.Cameras))
	for _, cam := range p.Cameras {
		device := ports.RawDevice{
			DeviceID:    cam.DeviceID,
			Kind:        domain.KindVideoInput,
			FacingModes: cam.Listed,
		}
		if !p.HideLabels || p.granted {
			device.Label = cam.Label
		}
		out = append(out, device)
	}
	return out, nil
}

func (p *Platform) RequestStream(ctx context.Context, constraints domain.Constraints) (ports.Stream, error) {
	p.mu.Lock()
	p.requests = append(p.requests, constraints.Clone())
	gate := p.Gate
	fail := p.Fail
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		if err := fail(constraints); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	cam, err := p.pick(constraints)
	if err != nil {
		return nil, err
	}
	p.granted = true
	p.nextID++
	stream := &Stream{id: fmt.Sprintf("stream-%d", p.nextID)}
	stream.tracks = []ports.Track{NewTrack(
		fmt.Sprintf("video-%d", p.nextID),
		ports.TrackVideo,
		cam.Label,
		ports.TrackSettings{
			DeviceID:   cam.DeviceID,
			FacingMode: cam.Facing,
			Width:      constraints.Video.Width.Ideal,
			Height:     constraints.Video.Height.Ideal,
		},
		ports.TrackCapabilities{FacingModes: cam.Modes},
	)}
	if constraints.Audio != nil {
		stream.tracks = append(stream.tracks, NewTrack(
			fmt.Sprintf("audio-%d", p.nextID), ports.TrackAudio, "Microphone",
			ports.TrackSettings{DeviceID: "default"}, ports.TrackCapabilities{},
		))
	}
	p.streams = append(p.streams, stream)
	return stream, nil
}

func (p *Platform) pick(constraints domain.Constraints) (Camera, error) {
	if len(p.Cameras) == 0 {
		return Camera{}, &Error{ErrName: "NotFoundError", Msg: "no cameras"}
	}
	video := constraints.Video
	if video.DeviceID != "" {
		for _, cam := range p.Cameras {
			if cam.DeviceID == video.DeviceID {
				return cam, nil
			}
		}
		return Camera{}, &Error{ErrName: "NotFoundError", Msg: video.DeviceID}
	}
	if video.FacingMode.IsZero() {
		return p.Cameras[0], nil
	}
	for _, cam := range p.Cameras {
		if cam.Facing == video.FacingMode.Mode {
			return cam, nil
		}
	}
	if video.FacingMode.Required() {
		return Camera{}, &Error{ErrName: "OverconstrainedError", Msg: "facingMode"}
	}
	return p.Cameras[0], nil
}

// Requests returns every constraint set passed to RequestStream.
func (p *Platform) Requests() []domain.Constraints {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Constraints, len(p.requests))
	copy(out, p.requests)
	return out
}

// Streams returns every stream handed out, in order.
func (p *Platform) Streams() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Stream, len(p.streams))
	copy(out, p.streams)
	return out
}

// LiveStreams returns the streams that still have a running track.
func (p *Platform) LiveStreams() []*Stream {
	var live []*Stream
	for _, stream := range p.Streams() {
		if !stream.Stopped() {
			live = append(live, stream)
		}
	}
	return live
}

// ListCalls returns how many times ListDevices ran.
func (p *Platform) ListCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lists
}

// Stream is a fake stream.
type Stream struct {
	id     string
	tracks []ports.Track
}

func (s *Stream) ID() string            { return s.id }
func (s *Stream) Tracks() []ports.Track { return s.tracks }

// Stopped reports whether every track has been stopped.
func (s *Stream) Stopped() bool {
	for _, track := range s.tracks {
		if !track.(*Track).Stopped() {
			return false
		}
	}
	return true
}

// Video returns the stream's video track.
func (s *Stream) Video() *Track {
	for _, track := range s.tracks {
		if track.Kind() == ports.TrackVideo {
			return track.(*Track)
		}
	}
	return nil
}

// NewStream builds a stream from tracks.
func NewStream(id string, tracks ...ports.Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

// Track is a fake track whose end can be triggered from a test.
type Track struct {
	id       string
	kind     ports.TrackKind
	label    string
	settings ports.TrackSettings
	caps     ports.TrackCapabilities

	mu        sync.Mutex
	stopCalls int
	done      chan struct{}
	once      sync.Once
}

func NewTrack(id string, kind ports.TrackKind, label string, settings ports.TrackSettings, caps ports.TrackCapabilities) *Track {
	return &Track{id: id, kind: kind, label: label, settings: settings, caps: caps, done: make(chan struct{})}
}

func (t *Track) ID() string                            { return t.id }
func (t *Track) Kind() ports.TrackKind                 { return t.kind }
func (t *Track) Label() string                         { return t.label }
func (t *Track) Settings() ports.TrackSettings         { return t.settings }
func (t *Track) Capabilities() ports.TrackCapabilities { return t.caps }
func (t *Track) Done() <-chan struct{}                 { return t.done }

func (t *Track) Stop() {
	t.mu.Lock()
	t.stopCalls++
	t.mu.Unlock()
	t.once.Do(func() { close(t.done) })
}

// End simulates the hardware going away without Stop being called.
func (t *Track) End() {
	t.once.Do(func() { close(t.done) })
}

// Stopped reports whether Stop was called.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopCalls > 0
}

// StopCalls returns how many times Stop was called.
func (t *Track) StopCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopCalls
}
