package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"camflip/internal/camera"
	"camflip/internal/domain"
	"camflip/internal/log"
	"camflip/internal/metrics"
	"camflip/internal/ports"
)

var (
	ErrInvalidState = errors.New("operation not valid in current session state")
	ErrSuperseded   = errors.New("session was torn down or re-initialized")
)

// SwapOrder decides whether a camera switch opens the new stream before or
// after releasing the old one.
type SwapOrder string

const (
	SwapAcquireFirst SwapOrder = "acquire-first"
	SwapReleaseFirst SwapOrder = "release-first"
)

// Config controls session behaviour.
type Config struct {
	Constraints     domain.Constraints
	Strategy        camera.Strategy
	SwapOrder       SwapOrder
	ProbeFacingMode domain.FacingMode
	DescribeDevices bool
	HistorySize     int
}

// SessionController is the single owner of the current stream and the
// session status. The view drives it; platform calls go through the camera
// components.
type SessionController struct {
	prober   *camera.Prober
	devices  *camera.Enumerator
	acquirer *camera.Acquirer
	resolver camera.Resolver
	surface  ports.PlaybackSurface
	events   ports.EventSink
	log      zerolog.Logger
	cfg      Config
	history  *diagnostics

	toggles  singleflight.Group
	switchMu sync.Mutex

	mu          sync.Mutex
	generation  uint64
	constraints domain.Constraints
	active      *activeStream
	deviceList  []domain.DeviceDescriptor
	envProbe    bool
	caps        domain.CapabilityFlags
	status      domain.Status
}

func NewSessionController(
	prober *camera.Prober,
	devices *camera.Enumerator,
	acquirer *camera.Acquirer,
	surface ports.PlaybackSurface,
	events ports.EventSink,
	logger zerolog.Logger,
	cfg Config,
) *SessionController {
	if cfg.ProbeFacingMode == "" {
		cfg.ProbeFacingMode = domain.FacingEnvironment
	}
	if cfg.SwapOrder != SwapReleaseFirst {
		cfg.SwapOrder = SwapAcquireFirst
	}
	if cfg.Strategy == "" {
		cfg.Strategy = camera.StrategyDevice
	}
	return &SessionController{
		prober:      prober,
		devices:     devices,
		acquirer:    acquirer,
		resolver:    camera.Resolver{Strategy: cfg.Strategy},
		surface:     surface,
		events:      events,
		log:         logger,
		cfg:         cfg,
		history:     newDiagnostics(cfg.HistorySize),
		constraints: cfg.Constraints.Clone(),
		status:      domain.Status{State: domain.StateIdle},
	}
}

// Initialize probes the runtime, enumerates cameras and opens the default
// stream. Any stream held from an earlier session is released first.
func (c *SessionController) Initialize(ctx context.Context) (domain.Status, error) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	previous := c.detachLocked()
	c.setStatusLocked(domain.Status{State: domain.StateProbing, Reason: domain.ReasonProbing})
	status := c.status
	c.mu.Unlock()

	if previous != nil {
		c.acquirer.Stop(previous.stream)
	}
	c.events.StatusChanged(status)

	if !c.prober.IsSupported() {
		c.mu.Lock()
		if c.generation == gen {
			c.deviceList = nil
			c.envProbe = false
		}
		c.mu.Unlock()
		return c.fail(gen, domain.ReasonUnsupported, domain.ErrUnsupported, domain.CapabilityFlags{})
	}

	devices := c.devices.ListVideoInputs(ctx)
	envOK := c.prober.ProbeFacingMode(ctx, c.cfg.ProbeFacingMode)
	if envOK && missingLabels(devices) {
		devices = c.devices.ListVideoInputs(ctx)
	}
	if c.cfg.DescribeDevices && len(devices) > 0 {
		devices = c.devices.Describe(ctx, devices)
	}

	c.mu.Lock()
	if c.generation != gen {
		status = c.status
		c.mu.Unlock()
		return status, ErrSuperseded
	}
	c.deviceList = devices
	c.envProbe = envOK
	c.caps = domain.CapabilityFlags{
		APISupported:        true,
		CanToggleFacingMode: camera.SupportsToggle(devices, envOK),
	}
	constraints := c.constraints.Clone()
	c.setStatusLocked(domain.Status{State: domain.StateAcquiring, Reason: domain.ReasonAcquiring})
	status = c.status
	c.mu.Unlock()
	c.events.StatusChanged(status)

	stream, err := c.acquirer.Acquire(ctx, constraints)
	if err != nil {
		return c.fail(gen, domain.ReasonAcquisitionFailed, err, c.Capabilities())
	}

	c.mu.Lock()
	if c.generation != gen {
		status = c.status
		c.mu.Unlock()
		c.acquirer.Stop(stream)
		c.log.Debug().Str(log.FieldStreamID, stream.ID()).Msg("discarded stream from superseded initialization")
		return status, ErrSuperseded
	}
	active := newActiveStream(stream, constraints, c.deviceList)
	c.active = active
	c.caps.CanToggleFacingMode = camera.SupportsToggleWith(c.deviceList, envOK, stream)
	c.setStatusLocked(active.status(domain.ReasonStreamStarted))
	c.surface.Attach(stream)
	status = c.status
	caps := c.caps
	devices = c.devicesLocked()
	c.mu.Unlock()

	go c.watch(active)
	c.events.DevicesChanged(devices, caps)
	c.events.StatusChanged(status)
	return status, nil
}

// ToggleFacing switches between the user and environment cameras. A call
// made while another toggle is in flight shares that toggle's outcome.
func (c *SessionController) ToggleFacing(ctx context.Context) (domain.Status, error) {
	value, err, _ := c.toggles.Do("toggle", func() (interface{}, error) {
		return c.toggle(ctx)
	})
	status, _ := value.(domain.Status)
	return status, err
}

func (c *SessionController) toggle(ctx context.Context) (domain.Status, error) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	if c.active == nil || !c.status.State.Live() {
		status := c.status
		c.mu.Unlock()
		return status, ErrInvalidState
	}
	if !c.caps.CanToggleFacingMode {
		c.status.Reason = domain.ReasonToggleUnavailable
		c.status.Message = domain.ErrorKindToggleUnavailable.Message()
		c.history.Add(c.status.Message)
		status := c.status
		c.mu.Unlock()
		metrics.IncToggle("unavailable")
		c.events.SessionError(domain.ErrorKindToggleUnavailable, domain.ErrToggleUnavailable.Error())
		c.events.StatusChanged(status)
		return status, domain.ErrToggleUnavailable
	}
	gen := c.generation
	previous := c.active
	target := camera.TargetFacingMode(previous.facing)
	plans := c.resolver.Plans(c.deviceList, previous.stream, previous.constraints, target)
	c.mu.Unlock()

	c.log.Info().
		Str(log.FieldFacingMode, string(target)).
		Int("plans", len(plans)).
		Msg("toggling facing mode")
	return c.switchTo(ctx, gen, previous, plans, string(target), domain.ReasonToggled, domain.ReasonToggleFailed)
}

// SelectDevice switches the session to a specific enumerated camera.
func (c *SessionController) SelectDevice(ctx context.Context, deviceID string) (domain.Status, error) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	if c.active == nil || !c.status.State.Live() {
		status := c.status
		c.mu.Unlock()
		return status, ErrInvalidState
	}
	if c.active.deviceID == deviceID {
		status := c.status
		c.mu.Unlock()
		return status, nil
	}
	var (
		device domain.DeviceDescriptor
		found  bool
	)
	for _, candidate := range c.deviceList {
		if candidate.DeviceID == deviceID {
			device, found = candidate, true
			break
		}
	}
	if !found {
		status := c.status
		c.mu.Unlock()
		return status, &domain.AcquisitionError{Kind: domain.ErrorKindNotFound, Err: fmt.Errorf("unknown device %q", deviceID)}
	}
	gen := c.generation
	previous := c.active
	plan := camera.DevicePlan(previous.constraints, device)
	c.mu.Unlock()

	return c.switchTo(ctx, gen, previous, []domain.Constraints{plan}, deviceID, domain.ReasonDeviceSelected, domain.ReasonSelectFailed)
}

// switchTo tries each plan until one yields a stream and installs it.
// Callers hold switchMu.
func (c *SessionController) switchTo(
	ctx context.Context,
	gen uint64,
	previous *activeStream,
	plans []domain.Constraints,
	target string,
	okReason domain.StateReason,
	failReason domain.StateReason,
) (domain.Status, error) {
	releaseFirst := c.cfg.SwapOrder == SwapReleaseFirst
	if releaseFirst {
		c.mu.Lock()
		if c.generation != gen {
			status := c.status
			c.mu.Unlock()
			return status, ErrSuperseded
		}
		c.active = nil
		c.mu.Unlock()
		c.acquirer.Stop(previous.stream)
	}

	var lastErr error
	for _, plan := range plans {
		if status, stale := c.superseded(gen); stale {
			return status, ErrSuperseded
		}
		stream, err := c.acquirer.Acquire(ctx, plan)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		status, err := c.install(gen, previous, stream, plan, okReason)
		if err == nil {
			metrics.IncToggle("success")
		}
		return status, err
	}
	if lastErr == nil {
		lastErr = &domain.AcquisitionError{Kind: domain.ErrorKindUnknown, Err: errors.New("no switch plan")}
	}
	metrics.IncToggle("failed")

	if releaseFirst {
		c.restore(ctx, gen, previous)
	}

	toggleErr := &domain.ToggleFailedError{Target: target, Cause: lastErr}
	c.mu.Lock()
	if c.generation != gen {
		status := c.status
		c.mu.Unlock()
		return status, ErrSuperseded
	}
	c.status.Reason = failReason
	c.status.Message = fmt.Sprintf("%s: %s", domain.ErrorKindToggleFailed.Message(), domain.KindOf(lastErr).Message())
	c.history.Add(c.status.Message)
	status := c.status
	c.mu.Unlock()

	c.log.Warn().Err(lastErr).Str("target", target).Msg("camera switch failed; keeping previous stream")
	c.events.SessionError(domain.ErrorKindToggleFailed, toggleErr.Error())
	c.events.StatusChanged(status)
	return status, toggleErr
}

// restore reopens the previous constraints after a release-first switch failed.
func (c *SessionController) restore(ctx context.Context, gen uint64, previous *activeStream) {
	if _, stale := c.superseded(gen); stale {
		return
	}
	stream, err := c.acquirer.Acquire(ctx, previous.constraints)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.acquirer.Stop(stream)
		return
	}
	if err != nil {
		kind := domain.KindOf(err)
		c.setStatusLocked(domain.Status{
			State:     domain.StateError,
			Reason:    domain.ReasonAcquisitionFailed,
			ErrorKind: kind,
			Message:   kind.Message(),
		})
		c.surface.Detach()
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("could not restore previous stream")
		return
	}
	restored := newActiveStream(stream, previous.constraints, c.deviceList)
	c.active = restored
	c.status.StreamID = stream.ID()
	c.surface.Attach(stream)
	c.mu.Unlock()

	go c.watch(restored)
}

func (c *SessionController) install(
	gen uint64,
	previous *activeStream,
	stream ports.Stream,
	plan domain.Constraints,
	reason domain.StateReason,
) (domain.Status, error) {
	c.mu.Lock()
	if c.generation != gen {
		status := c.status
		c.mu.Unlock()
		c.acquirer.Stop(stream)
		return status, ErrSuperseded
	}
	next := newActiveStream(stream, plan, c.deviceList)
	c.active = next
	c.constraints = plan.Clone()
	c.setStatusLocked(next.status(reason))
	c.surface.Attach(stream)
	status := c.status
	c.mu.Unlock()

	c.acquirer.Stop(previous.stream)
	go c.watch(next)

	c.log.Info().
		Str(log.FieldStreamID, stream.ID()).
		Str(log.FieldDeviceID, next.deviceID).
		Str(log.FieldFacingMode, string(next.facing)).
		Msg("camera switched")
	c.events.StatusChanged(status)
	return status, nil
}

// Play forwards a play intent to the playback surface.
func (c *SessionController) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || !c.status.State.Live() {
		return ErrInvalidState
	}
	return c.surface.Play()
}

// Pause forwards a pause intent to the playback surface.
func (c *SessionController) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || !c.status.State.Live() {
		return ErrInvalidState
	}
	return c.surface.Pause()
}

// HandlePlaybackEvent mirrors a playback surface callback into the status.
// Events that arrive without a live stream are ignored.
func (c *SessionController) HandlePlaybackEvent(event domain.PlaybackEvent) domain.Status {
	c.mu.Lock()
	if c.active == nil {
		status := c.status
		c.mu.Unlock()
		return status
	}
	target, ok := event.TargetState()
	if !ok {
		c.history.Add(fmt.Sprintf("Video status: %s", event))
		status := c.status
		c.mu.Unlock()
		return status
	}
	recovering := c.status.State == domain.StateError && c.status.ErrorKind == domain.ErrorKindPlayback
	if !c.status.State.Live() && !recovering {
		status := c.status
		c.mu.Unlock()
		return status
	}

	next := c.active.status(domain.ReasonPlayback)
	next.State = target
	if target == domain.StateError {
		next.ErrorKind = domain.ErrorKindPlayback
		next.Message = domain.ErrorKindPlayback.Message()
	}
	c.setStatusLocked(next)
	status := c.status
	c.mu.Unlock()

	if target == domain.StateError {
		c.events.SessionError(domain.ErrorKindPlayback, "playback surface reported an error")
	}
	c.events.StatusChanged(status)
	return status
}

// Teardown stops the current stream and returns to Idle. It may be called
// at any time, including while another operation is waiting on the platform.
func (c *SessionController) Teardown() domain.Status {
	c.mu.Lock()
	c.generation++
	previous := c.detachLocked()
	changed := previous != nil || c.status.State != domain.StateIdle
	c.setStatusLocked(domain.Status{State: domain.StateIdle, Reason: domain.ReasonTornDown})
	status := c.status
	c.mu.Unlock()

	if previous != nil {
		c.acquirer.Stop(previous.stream)
	}
	if changed {
		c.events.StatusChanged(status)
	}
	return status
}

// UpdateConstraints merges update into the constraints used by the next
// acquisition and returns the result.
func (c *SessionController) UpdateConstraints(update domain.ConstraintsUpdate) domain.Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.constraints = c.constraints.Merge(update)
	return c.constraints.Clone()
}

// Constraints returns a copy of the constraints for the next acquisition.
func (c *SessionController) Constraints() domain.Constraints {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.constraints.Clone()
}

// Status returns the current session status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Capabilities returns the flags computed by the last initialization.
func (c *SessionController) Capabilities() domain.CapabilityFlags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// Devices returns the last enumerated video inputs.
func (c *SessionController) Devices() []domain.DeviceDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devicesLocked()
}

// Messages returns recent user-visible diagnostics, oldest first.
func (c *SessionController) Messages() []string {
	return c.history.Snapshot()
}

// CurrentStream returns the stream the session currently owns, or nil.
func (c *SessionController) CurrentStream() ports.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	return c.active.stream
}

// watch marks the session Ended when the video track of active stops on
// its own, e.g. the camera was unplugged.
func (c *SessionController) watch(active *activeStream) {
	video := camera.VideoTrack(active.stream)
	if video == nil {
		return
	}
	<-video.Done()

	c.mu.Lock()
	if c.active != active {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.surface.Detach()
	next := c.status
	next.State = domain.StateEnded
	next.Reason = domain.ReasonStreamEnded
	next.Message = "Camera stream ended"
	c.setStatusLocked(next)
	status := c.status
	c.mu.Unlock()

	c.acquirer.Stop(active.stream)
	c.events.StatusChanged(status)
}

func (c *SessionController) fail(
	gen uint64,
	reason domain.StateReason,
	err error,
	caps domain.CapabilityFlags,
) (domain.Status, error) {
	kind := domain.KindOf(err)

	c.mu.Lock()
	if c.generation != gen {
		status := c.status
		c.mu.Unlock()
		return status, ErrSuperseded
	}
	c.caps = caps
	c.setStatusLocked(domain.Status{
		State:     domain.StateError,
		Reason:    reason,
		ErrorKind: kind,
		Message:   kind.Message(),
	})
	status := c.status
	devices := c.devicesLocked()
	c.mu.Unlock()

	c.events.DevicesChanged(devices, caps)
	c.events.SessionError(kind, err.Error())
	c.events.StatusChanged(status)
	return status, err
}

// superseded reports whether a teardown or re-initialization happened
// since gen was taken.
func (c *SessionController) superseded(gen uint64) (domain.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.generation != gen
}

// detachLocked clears the active stream and detaches the surface. The caller
// stops the returned stream after releasing the lock.
func (c *SessionController) detachLocked() *activeStream {
	previous := c.active
	c.active = nil
	if previous != nil {
		c.surface.Detach()
	}
	return previous
}

func (c *SessionController) setStatusLocked(next domain.Status) {
	if next.State != c.status.State {
		c.log.Debug().
			Str(log.FieldOldState, string(c.status.State)).
			Str(log.FieldNewState, string(next.State)).
			Str("reason", string(next.Reason)).
			Msg("session state changed")
		metrics.IncTransition(string(next.State))
	}
	c.status = next
	c.history.Add(next.Message)
}

func (c *SessionController) devicesLocked() []domain.DeviceDescriptor {
	out := make([]domain.DeviceDescriptor, len(c.deviceList))
	copy(out, c.deviceList)
	return out
}

func newActiveStream(stream ports.Stream, constraints domain.Constraints, devices []domain.DeviceDescriptor) *activeStream {
	active := &activeStream{
		stream:      stream,
		constraints: constraints.Clone(),
		facing:      camera.CurrentFacingMode(stream, constraints),
	}
	if video := camera.VideoTrack(stream); video != nil {
		active.deviceID = video.Settings().DeviceID
		active.label = video.Label()
	}
	if active.facing == "" {
		for _, device := range devices {
			if device.DeviceID == active.deviceID {
				active.facing = camera.DeviceFacingMode(device)
				break
			}
		}
	}
	return active
}

func missingLabels(devices []domain.DeviceDescriptor) bool {
	for _, device := range devices {
		if device.Label == "" {
			return true
		}
	}
	return false
}
