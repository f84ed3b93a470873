package capture

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mau.fi/util/ffmpeg"

	"camflip/internal/domain"
	"camflip/internal/log"
	"camflip/internal/ports"
)

// Config configures the Linux platform binding.
type Config struct {
	FFmpegCommand string
	SysfsRoot     string
	DevRoot       string
	InputFormat   string
	MJPEGQuality  int
	StartupGrace  time.Duration
	// FacingMap pins the facing mode of specific device nodes.
	FacingMap map[string]domain.FacingMode

	AudioEnabled bool
	AudioFormat  string
	AudioDevice  string
}

func (c Config) withDefaults() Config {
	if c.FFmpegCommand == "" {
		c.FFmpegCommand = "ffmpeg"
	}
	if c.SysfsRoot == "" {
		c.SysfsRoot = "/sys/class/video4linux"
	}
	if c.DevRoot == "" {
		c.DevRoot = "/dev"
	}
	if c.InputFormat == "" {
		c.InputFormat = "v4l2"
	}
	if c.MJPEGQuality <= 0 {
		c.MJPEGQuality = 5
	}
	if c.StartupGrace <= 0 {
		c.StartupGrace = 250 * time.Millisecond
	}
	if c.AudioFormat == "" {
		c.AudioFormat = "pulse"
	}
	if c.AudioDevice == "" {
		c.AudioDevice = "default"
	}
	return c
}

// Platform implements ports.MediaPlatform with V4L2 devices and ffmpeg.
type Platform struct {
	cfg Config
	log zerolog.Logger
	// supported reports whether the ffmpeg binary can be run.
	supported func() bool

	mu      sync.Mutex
	granted bool
}

func NewPlatform(cfg Config, logger zerolog.Logger) *Platform {
	cfg = cfg.withDefaults()
	return &Platform{cfg: cfg, log: logger, supported: ffmpeg.Supported}
}

func (p *Platform) Capabilities() ports.PlatformCapabilities {
	return ports.PlatformCapabilities{
		StreamRequests: p.supported(),
		DeviceListing:  sysfsReadable(p.cfg.SysfsRoot),
	}
}

// ListDevices lists primary V4L2 capture nodes and, when audio is enabled,
// the configured microphone. Labels stay empty until a stream was granted.
func (p *Platform) ListDevices(ctx context.Context) ([]ports.RawDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes, err := scanVideoNodes(p.cfg.SysfsRoot, p.cfg.DevRoot, p.cfg.FacingMap)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	granted := p.granted
	p.mu.Unlock()

	devices := make([]ports.RawDevice, 0, len(nodes)+1)
	for _, node := range nodes {
		device := ports.RawDevice{DeviceID: node.deviceID, Kind: domain.KindVideoInput}
		if granted {
			device.Label = node.name
		}
		if node.facing != "" {
			device.FacingModes = []domain.FacingMode{node.facing}
		}
		devices = append(devices, device)
	}
	if p.cfg.AudioEnabled {
		device := ports.RawDevice{DeviceID: p.cfg.AudioDevice, Kind: domain.KindAudioInput}
		if granted {
			device.Label = "Microphone (" + p.cfg.AudioDevice + ")"
		}
		devices = append(devices, device)
	}
	return devices, nil
}

// RequestStream opens the camera matching constraints and, when requested
// and enabled, the microphone. Each track is its own ffmpeg process.
func (p *Platform) RequestStream(ctx context.Context, constraints domain.Constraints) (ports.Stream, error) {
	nodes, err := scanVideoNodes(p.cfg.SysfsRoot, p.cfg.DevRoot, p.cfg.FacingMap)
	if err != nil {
		return nil, &PlatformError{Class: AbortError, Message: "device enumeration failed", Err: err}
	}
	node, err := pickNode(nodes, constraints.Video)
	if err != nil {
		return nil, err
	}
	width, err := resolveDimension("width", constraints.Video.Width, 640)
	if err != nil {
		return nil, err
	}
	height, err := resolveDimension("height", constraints.Video.Height, 480)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(node.deviceID); err != nil {
		return nil, err
	}

	video, err := startTrack(ctx, p.videoSpec(node, width, height), p.log)
	if err != nil {
		return nil, err
	}
	stream := &mediaStream{id: uuid.NewString(), tracks: []ports.Track{video}}

	if constraints.Audio != nil {
		if p.cfg.AudioEnabled {
			audio, err := startTrack(ctx, p.audioSpec(*constraints.Audio), p.log)
			if err != nil {
				video.Stop()
				return nil, err
			}
			stream.tracks = append(stream.tracks, audio)
		} else {
			p.log.Debug().Msg("audio requested but disabled; opening video only")
		}
	}

	p.mu.Lock()
	p.granted = true
	p.mu.Unlock()

	p.log.Info().
		Str(log.FieldStreamID, stream.id).
		Str(log.FieldDeviceID, node.deviceID).
		Int("width", width).
		Int("height", height).
		Msg("capture started")
	return stream, nil
}

func (p *Platform) videoSpec(node videoNode, width, height int) trackSpec {
	var modes []domain.FacingMode
	if node.facing != "" {
		modes = []domain.FacingMode{node.facing}
	}
	return trackSpec{
		kind:  ports.TrackVideo,
		label: node.name,
		settings: ports.TrackSettings{
			DeviceID:   node.deviceID,
			FacingMode: node.facing,
			Width:      width,
			Height:     height,
		},
		caps:    ports.TrackCapabilities{FacingModes: modes},
		command: p.cfg.FFmpegCommand,
		args: []string{
			"-nostdin",
			"-hide_banner",
			"-loglevel", "warning",
			"-f", p.cfg.InputFormat,
			"-video_size", fmt.Sprintf("%dx%d", width, height),
			"-i", node.deviceID,
			"-f", "mpjpeg",
			"-q:v", strconv.Itoa(p.cfg.MJPEGQuality),
			"-",
		},
		grace: p.cfg.StartupGrace,
	}
}

func (p *Platform) audioSpec(audio domain.AudioConstraints) trackSpec {
	channels := audio.ChannelCount
	if channels <= 0 {
		channels = 1
	}
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", p.cfg.AudioFormat,
		"-i", p.cfg.AudioDevice,
		"-ac", strconv.Itoa(channels),
	}
	if audio.NoiseSuppression {
		args = append(args, "-af", "afftdn")
	}
	args = append(args, "-f", "s16le", "-")

	return trackSpec{
		kind:     ports.TrackAudio,
		label:    "Microphone (" + p.cfg.AudioDevice + ")",
		settings: ports.TrackSettings{DeviceID: p.cfg.AudioDevice},
		command:  p.cfg.FFmpegCommand,
		args:     args,
		grace:    p.cfg.StartupGrace,
	}
}

type mediaStream struct {
	id     string
	tracks []ports.Track
}

func (s *mediaStream) ID() string { return s.id }

func (s *mediaStream) Tracks() []ports.Track { return s.tracks }
