package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"camflip/internal/camera"
	"camflip/internal/log"
	"camflip/internal/ports"
)

const stopGrace = 1200 * time.Millisecond

// trackSpec describes the ffmpeg process behind one track.
type trackSpec struct {
	kind     ports.TrackKind
	label    string
	settings ports.TrackSettings
	caps     ports.TrackCapabilities
	command  string
	args     []string
	grace    time.Duration
}

// ffmpegTrack is a live track backed by an ffmpeg child process.
type ffmpegTrack struct {
	id       string
	kind     ports.TrackKind
	label    string
	settings ports.TrackSettings
	caps     ports.TrackCapabilities
	frames   *broadcaster
	log      zerolog.Logger

	process *os.Process
	stderr  *lockedBuffer
	done    chan struct{}
	exitErr error

	stopOnce sync.Once
}

// startTrack launches the process and waits out the startup grace. A process
// that exits inside the grace is reported as a PlatformError classified from
// its stderr.
func startTrack(ctx context.Context, spec trackSpec, logger zerolog.Logger) (*ffmpegTrack, error) {
	cmd := exec.Command(spec.command, spec.args...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &PlatformError{Class: camera.NotReadableError, Message: "failed to start ffmpeg", Err: err}
	}

	track := &ffmpegTrack{
		id:       uuid.NewString(),
		kind:     spec.kind,
		label:    spec.label,
		settings: spec.settings,
		caps:     spec.caps,
		log:      logger,
		process:  cmd.Process,
		stderr:   stderr,
		done:     make(chan struct{}),
	}
	track.log = logger.With().Str(log.FieldTrackID, track.id).Str("kind", string(spec.kind)).Logger()
	if spec.kind == ports.TrackVideo {
		track.frames = newBroadcaster()
	}

	go track.run(cmd, stdout)

	grace := spec.grace
	if grace <= 0 {
		grace = 250 * time.Millisecond
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-track.done:
		detail := stringsTrimSpaceSafe(stderr.String())
		return nil, &PlatformError{
			Class:   classifyStderr(detail),
			Message: "ffmpeg exited before capture started: " + detail,
			Err:     track.exitErr,
		}
	case <-ctx.Done():
		track.Stop()
		return nil, ctx.Err()
	case <-timer.C:
	}

	track.log.Debug().Str(log.FieldDeviceID, spec.settings.DeviceID).Msg("track started")
	return track, nil
}

// run drains stdout until the process closes it, then reaps the process.
func (t *ffmpegTrack) run(cmd *exec.Cmd, stdout io.Reader) {
	var pumpErr error
	if t.frames != nil {
		pumpErr = pumpFrames(stdout, t.frames.publish)
	} else {
		_, pumpErr = io.Copy(io.Discard, stdout)
	}

	t.exitErr = normalizeStopErr(cmd.Wait())
	if t.frames != nil {
		t.frames.close()
	}
	if pumpErr != nil {
		t.log.Warn().Err(pumpErr).Msg("frame decoding stopped")
	}
	close(t.done)
}

func (t *ffmpegTrack) ID() string                            { return t.id }
func (t *ffmpegTrack) Kind() ports.TrackKind                 { return t.kind }
func (t *ffmpegTrack) Label() string                         { return t.label }
func (t *ffmpegTrack) Settings() ports.TrackSettings         { return t.settings }
func (t *ffmpegTrack) Capabilities() ports.TrackCapabilities { return t.caps }
func (t *ffmpegTrack) Done() <-chan struct{}                 { return t.done }

// Frames returns the preview source of a video track, or nil.
func (t *ffmpegTrack) Frames() ports.FrameSource {
	if t.frames == nil {
		return nil
	}
	return t.frames
}

// Stop interrupts ffmpeg and kills it if it does not exit in time.
func (t *ffmpegTrack) Stop() {
	t.stopOnce.Do(func() {
		select {
		case <-t.done:
			return
		default:
		}

		if t.process != nil {
			_ = t.process.Signal(os.Interrupt)
		}
		select {
		case <-t.done:
		case <-time.After(stopGrace):
			if t.process != nil {
				_ = t.process.Kill()
			}
			<-t.done
		}

		if t.exitErr != nil {
			t.log.Warn().Err(t.exitErr).Str("stderr", stringsTrimSpaceSafe(t.stderr.String())).Msg("ffmpeg exited with error")
			return
		}
		t.log.Debug().Msg("track stopped")
	})
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}

// lockedBuffer is a bytes.Buffer safe for the writer goroutine exec starts
// and concurrent readers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
