package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"camflip/internal/bootstrap"
	"camflip/internal/config"
	"camflip/internal/domain"
	"camflip/internal/log"
	"camflip/internal/ports"
	"camflip/internal/usecase"
)

const (
	eventStatus   = "camflip:status"
	eventDevices  = "camflip:devices"
	eventError    = "camflip:error"
	eventPlayback = "camflip:playback"
	eventLog      = "camflip:log"

	errorKindStartup domain.ErrorKind = "startup"
)

// App is the Wails application root and the session's event sink.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error
	mirror     *log.Mirror
	unsubLog   func()
	preview    *previewProxy
}

func NewApp() *App {
	return &App{mirror: log.NewMirror(0), preview: &previewProxy{}}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsSurface{app: a}, a.mirror)
	if err != nil {
		a.bootErr = err
		a.SessionError(errorKindStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.preview.set(services.Preview)
	a.unsubLog = a.mirror.Subscribe(func(entry log.Entry) {
		runtime.EventsEmit(a.ctx, eventLog, entry)
	})
	a.StatusChanged(a.controller.Status())
}

func (a *App) shutdown(context.Context) {
	if a.unsubLog != nil {
		a.unsubLog()
	}
	if a.controller != nil {
		a.controller.Teardown()
	}
}

// Initialize probes the platform and opens the default camera.
func (a *App) Initialize() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	return a.settle(a.controller.Initialize(a.ctx))
}

// ToggleFacing switches between the front and back cameras.
func (a *App) ToggleFacing() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	return a.settle(a.controller.ToggleFacing(a.ctx))
}

// SelectDevice switches the session to a specific camera.
func (a *App) SelectDevice(deviceID string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	return a.settle(a.controller.SelectDevice(a.ctx, deviceID))
}

// settle reports the current status in place of ErrSuperseded: a newer
// initialize or teardown already owns the session.
func (a *App) settle(status domain.Status, err error) (domain.Status, error) {
	if errors.Is(err, usecase.ErrSuperseded) {
		return a.GetStatus(), nil
	}
	return status, err
}

// Play resumes the preview.
func (a *App) Play() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Play()
}

// Pause freezes the preview.
func (a *App) Pause() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.Pause()
}

// ReportPlayback forwards a video element lifecycle event.
func (a *App) ReportPlayback(event string) domain.Status {
	if a.controller == nil {
		return a.GetStatus()
	}
	return a.controller.HandlePlaybackEvent(domain.PlaybackEvent(event))
}

// Teardown releases the camera.
func (a *App) Teardown() domain.Status {
	if a.controller == nil {
		return a.GetStatus()
	}
	return a.controller.Teardown()
}

// UpdateConstraints changes the constraints used by the next acquisition.
func (a *App) UpdateConstraints(update domain.ConstraintsUpdate) (domain.Constraints, error) {
	if err := a.requireReady(); err != nil {
		return domain.Constraints{}, err
	}
	return a.controller.UpdateConstraints(update), nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.StateError, ErrorKind: errorKindStartup, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.StateIdle}
	}
	return a.controller.Status()
}

func (a *App) GetDevices() []domain.DeviceDescriptor {
	if a.controller == nil {
		return nil
	}
	return a.controller.Devices()
}

func (a *App) GetCapabilities() domain.CapabilityFlags {
	if a.controller == nil {
		return domain.CapabilityFlags{}
	}
	return a.controller.Capabilities()
}

// GetMessages returns the diagnostic history, oldest first.
func (a *App) GetMessages() []string {
	if a.controller == nil {
		return nil
	}
	return a.controller.Messages()
}

func (a *App) GetLogs() []log.Entry {
	return a.mirror.Recent()
}

// ClearLogs empties the log panel history.
func (a *App) ClearLogs() {
	a.mirror.Clear()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"configFile":    a.cfg.Path,
		"ffmpeg":        a.cfg.Capture.FFmpegCommand,
		"inputFormat":   a.cfg.Capture.InputFormat,
		"audioInput":    a.cfg.Capture.AudioDevice,
		"toggleMode":    a.cfg.Session.Strategy,
		"swapOrder":     a.cfg.Session.SwapOrder,
		"probeFacing":   a.cfg.Session.ProbeFacingMode,
		"defaultFacing": a.cfg.Constraints.FacingMode,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// StatusChanged emits session lifecycle updates to the frontend.
func (a *App) StatusChanged(status domain.Status) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventStatus, map[string]any{
		"status":  status,
		"message": statusMessage(status),
	})
}

// DevicesChanged emits the enumerated cameras and capability flags.
func (a *App) DevicesChanged(devices []domain.DeviceDescriptor, caps domain.CapabilityFlags) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventDevices, map[string]any{
		"devices":      devices,
		"capabilities": caps,
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(kind domain.ErrorKind, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"kind":    string(kind),
		"message": errorMessage(kind, detail),
		"detail":  detail,
	})
}

func previewURL(streamID string) string {
	return "/preview/" + streamID
}

func statusMessage(status domain.Status) string {
	if status.Message != "" {
		return status.Message
	}
	switch status.Reason {
	case domain.ReasonTornDown:
		return "Camera released"
	case domain.ReasonProbing:
		return "Checking camera support..."
	case domain.ReasonAcquiring:
		return "Opening camera..."
	case domain.ReasonStreamStarted:
		return "Camera ready"
	case domain.ReasonToggled:
		return "Switched camera"
	case domain.ReasonDeviceSelected:
		return "Camera selected"
	case domain.ReasonStreamEnded:
		return "Camera disconnected"
	default:
		return ""
	}
}

func errorMessage(kind domain.ErrorKind, detail string) string {
	switch kind {
	case errorKindStartup:
		return "Startup failed"
	case "":
		if detail == "" {
			return "Unknown error"
		}
		return detail
	default:
		return kind.Message()
	}
}

// wailsSurface drives the frontend video element through playback events.
type wailsSurface struct {
	app *App
}

// Attach points the video element at the stream's preview URL.
func (s *wailsSurface) Attach(stream ports.Stream) {
	s.emit(map[string]string{
		"action":   "attach",
		"streamId": stream.ID(),
		"url":      previewURL(stream.ID()),
	})
}

func (s *wailsSurface) Detach() {
	s.emit(map[string]string{"action": "detach"})
}

func (s *wailsSurface) Play() error {
	return s.emit(map[string]string{"action": "play"})
}

func (s *wailsSurface) Pause() error {
	return s.emit(map[string]string{"action": "pause"})
}

func (s *wailsSurface) emit(payload map[string]string) error {
	if s.app.ctx == nil {
		return errors.New("playback surface is not attached to a window")
	}
	runtime.EventsEmit(s.app.ctx, eventPlayback, payload)
	return nil
}

// previewProxy serves preview and metrics requests the asset server does not
// resolve from the embedded frontend. It answers 503 until startup wires the
// real handler.
type previewProxy struct {
	mu      sync.RWMutex
	handler http.Handler
}

func (p *previewProxy) set(handler http.Handler) {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
}

func (p *previewProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()
	if handler == nil {
		http.Error(w, "backend is not initialized", http.StatusServiceUnavailable)
		return
	}
	handler.ServeHTTP(w, r)
}
