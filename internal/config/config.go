package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"camflip/internal/domain"
)

// Config stores runtime configuration for the camera session.
type Config struct {
	Constraints ConstraintsConfig `yaml:"constraints"`
	Capture     CaptureConfig     `yaml:"capture"`
	Session     SessionConfig     `yaml:"session"`
	Log         LogConfig         `yaml:"log"`

	// Path is the config file that was read, if any.
	Path string `yaml:"-"`
}

type ConstraintsConfig struct {
	FacingMode       string       `yaml:"facing_mode"`
	Width            domain.Range `yaml:"width"`
	Height           domain.Range `yaml:"height"`
	Audio            bool         `yaml:"audio"`
	NoiseSuppression bool         `yaml:"noise_suppression"`
	ChannelCount     int          `yaml:"channel_count"`
}

type CaptureConfig struct {
	FFmpegCommand  string            `yaml:"ffmpeg_command"`
	SysfsRoot      string            `yaml:"sysfs_root"`
	DevRoot        string            `yaml:"dev_root"`
	InputFormat    string            `yaml:"input_format"`
	AudioFormat    string            `yaml:"audio_input_format"`
	AudioDevice    string            `yaml:"audio_input_device"`
	MJPEGQuality   int               `yaml:"mjpeg_quality"`
	StartupGraceMS int               `yaml:"startup_grace_ms"`
	Facing         map[string]string `yaml:"facing"`
}

type SessionConfig struct {
	Strategy         string `yaml:"strategy"`
	SwapOrder        string `yaml:"swap_order"`
	ProbeFacingMode  string `yaml:"probe_facing_mode"`
	HistorySize      int    `yaml:"history_size"`
	DescribeDevices  bool   `yaml:"describe_devices"`
	DescribeParallel int    `yaml:"describe_parallel"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Constraints: ConstraintsConfig{
			FacingMode:       string(domain.FacingUser),
			Width:            domain.Range{Min: 480, Ideal: 640, Max: 960},
			Height:           domain.Range{Min: 480, Ideal: 480, Max: 480},
			Audio:            true,
			NoiseSuppression: true,
			ChannelCount:     1,
		},
		Capture: CaptureConfig{
			FFmpegCommand:  "ffmpeg",
			SysfsRoot:      "/sys/class/video4linux",
			DevRoot:        "/dev",
			InputFormat:    "v4l2",
			AudioFormat:    "pulse",
			AudioDevice:    "default",
			MJPEGQuality:   5,
			StartupGraceMS: 250,
		},
		Session: SessionConfig{
			Strategy:         "device",
			SwapOrder:        "acquire-first",
			ProbeFacingMode:  string(domain.FacingEnvironment),
			HistorySize:      50,
			DescribeDevices:  true,
			DescribeParallel: 2,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load resolves configuration from defaults, the YAML config file and
// environment variables, in that order.
func Load() (Config, error) {
	cfg := Defaults()

	path, explicit := configPath()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg.Path = path
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func configPath() (string, bool) {
	if path := strings.TrimSpace(os.Getenv("CAMFLIP_CONFIG")); path != "" {
		return path, true
	}
	var candidates []string
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "camflip", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "camflip", "config.yaml"))
	}
	return firstExisting(candidates...), false
}

func applyEnv(cfg *Config) {
	c := &cfg.Constraints
	c.FacingMode = envOrDefault("CAMFLIP_FACING_MODE", c.FacingMode)
	c.Width.Min = envOrDefaultInt("CAMFLIP_WIDTH_MIN", c.Width.Min)
	c.Width.Ideal = envOrDefaultInt("CAMFLIP_WIDTH_IDEAL", c.Width.Ideal)
	c.Width.Max = envOrDefaultInt("CAMFLIP_WIDTH_MAX", c.Width.Max)
	c.Height.Min = envOrDefaultInt("CAMFLIP_HEIGHT_MIN", c.Height.Min)
	c.Height.Ideal = envOrDefaultInt("CAMFLIP_HEIGHT_IDEAL", c.Height.Ideal)
	c.Height.Max = envOrDefaultInt("CAMFLIP_HEIGHT_MAX", c.Height.Max)
	c.Audio = envOrDefaultBool("CAMFLIP_AUDIO", c.Audio)
	c.NoiseSuppression = envOrDefaultBool("CAMFLIP_NOISE_SUPPRESSION", c.NoiseSuppression)
	c.ChannelCount = envOrDefaultInt("CAMFLIP_CHANNELS", c.ChannelCount)

	p := &cfg.Capture
	p.FFmpegCommand = firstNonEmpty(os.Getenv("CAMFLIP_FFMPEG_COMMAND"), os.Getenv("FFMPEG_PATH"), p.FFmpegCommand)
	p.SysfsRoot = envOrDefault("CAMFLIP_SYSFS_ROOT", p.SysfsRoot)
	p.DevRoot = envOrDefault("CAMFLIP_DEV_ROOT", p.DevRoot)
	p.InputFormat = envOrDefault("CAMFLIP_VIDEO_INPUT_FORMAT", p.InputFormat)
	p.AudioFormat = envOrDefault("CAMFLIP_AUDIO_INPUT_FORMAT", p.AudioFormat)
	p.AudioDevice = firstNonEmpty(os.Getenv("CAMFLIP_AUDIO_INPUT_DEVICE"), os.Getenv("PULSE_SOURCE"), p.AudioDevice)
	p.MJPEGQuality = envOrDefaultInt("CAMFLIP_MJPEG_QUALITY", p.MJPEGQuality)
	p.StartupGraceMS = firstNonNegativeInt("CAMFLIP_STARTUP_GRACE_MS", "CAMFLIP_FFMPEG_GRACE_MS", p.StartupGraceMS)
	if raw := strings.TrimSpace(os.Getenv("CAMFLIP_FACING_MAP")); raw != "" {
		p.Facing = parseFacingMap(raw)
	}

	s := &cfg.Session
	s.Strategy = envOrDefault("CAMFLIP_TOGGLE_STRATEGY", s.Strategy)
	s.SwapOrder = envOrDefault("CAMFLIP_SWAP_ORDER", s.SwapOrder)
	s.ProbeFacingMode = envOrDefault("CAMFLIP_PROBE_FACING_MODE", s.ProbeFacingMode)
	s.HistorySize = envOrDefaultInt("CAMFLIP_HISTORY_SIZE", s.HistorySize)
	s.DescribeDevices = envOrDefaultBool("CAMFLIP_DESCRIBE_DEVICES", s.DescribeDevices)
	s.DescribeParallel = envOrDefaultInt("CAMFLIP_DESCRIBE_PARALLEL", s.DescribeParallel)

	cfg.Log.Level = envOrDefault("CAMFLIP_LOG_LEVEL", cfg.Log.Level)
}

func normalize(cfg *Config) {
	defaults := Defaults()

	if !validFacing(cfg.Constraints.FacingMode) {
		cfg.Constraints.FacingMode = defaults.Constraints.FacingMode
	}
	if cfg.Constraints.ChannelCount <= 0 {
		cfg.Constraints.ChannelCount = defaults.Constraints.ChannelCount
	}
	if cfg.Capture.MJPEGQuality < 2 || cfg.Capture.MJPEGQuality > 31 {
		cfg.Capture.MJPEGQuality = defaults.Capture.MJPEGQuality
	}
	if cfg.Capture.StartupGraceMS <= 0 {
		cfg.Capture.StartupGraceMS = defaults.Capture.StartupGraceMS
	}
	switch strings.ToLower(cfg.Session.Strategy) {
	case "device", "facing":
		cfg.Session.Strategy = strings.ToLower(cfg.Session.Strategy)
	default:
		cfg.Session.Strategy = defaults.Session.Strategy
	}
	switch strings.ToLower(cfg.Session.SwapOrder) {
	case "acquire-first", "release-first":
		cfg.Session.SwapOrder = strings.ToLower(cfg.Session.SwapOrder)
	default:
		cfg.Session.SwapOrder = defaults.Session.SwapOrder
	}
	if !validFacing(cfg.Session.ProbeFacingMode) {
		cfg.Session.ProbeFacingMode = defaults.Session.ProbeFacingMode
	}
	if cfg.Session.HistorySize <= 0 {
		cfg.Session.HistorySize = defaults.Session.HistorySize
	}
	if cfg.Session.DescribeParallel <= 0 {
		cfg.Session.DescribeParallel = defaults.Session.DescribeParallel
	}
}

// DomainConstraints returns the default stream request.
func (c ConstraintsConfig) DomainConstraints() domain.Constraints {
	out := domain.Constraints{
		Video: domain.VideoConstraints{
			FacingMode: domain.PlainFacing(domain.FacingMode(c.FacingMode)),
			Width:      c.Width,
			Height:     c.Height,
		},
	}
	if c.Audio {
		out.Audio = &domain.AudioConstraints{
			NoiseSuppression: c.NoiseSuppression,
			ChannelCount:     c.ChannelCount,
		}
	}
	return out
}

// FacingMap returns the configured device facing modes. Entries with an
// unknown facing mode are dropped.
func (c CaptureConfig) FacingMap() map[string]domain.FacingMode {
	out := make(map[string]domain.FacingMode, len(c.Facing))
	for device, facing := range c.Facing {
		facing = strings.ToLower(strings.TrimSpace(facing))
		if validFacing(facing) {
			out[strings.TrimSpace(device)] = domain.FacingMode(facing)
		}
	}
	return out
}

func (c CaptureConfig) StartupGrace() time.Duration {
	return time.Duration(c.StartupGraceMS) * time.Millisecond
}

// parseFacingMap reads "device=facing" pairs separated by commas.
func parseFacingMap(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		device, facing, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		device = strings.TrimSpace(device)
		if device == "" {
			continue
		}
		out[device] = strings.TrimSpace(facing)
	}
	return out
}

func validFacing(value string) bool {
	switch domain.FacingMode(value) {
	case domain.FacingUser, domain.FacingEnvironment:
		return true
	default:
		return false
	}
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}
