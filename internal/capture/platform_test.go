package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"camflip/internal/camera"
	"camflip/internal/domain"
	"camflip/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const frameScript = `#!/usr/bin/env bash
echo "$@" > %ARGS%
printf '%s\r\n' '--ffmpeg' 'Content-Type: image/jpeg' 'Content-Length: 4' ''
printf 'JPEG\r\n'
printf '%s\r\n' '--ffmpeg' 'Content-Type: image/jpeg' 'Content-Length: 4' ''
printf 'JPEG\r\n'
exec sleep 30
`

type testRig struct {
	sysfs    string
	dev      string
	argsFile string
	script   string
}

func newTestRig(t *testing.T, cameras map[string]string) testRig {
	t.Helper()
	root := t.TempDir()
	rig := testRig{
		sysfs:    filepath.Join(root, "sys"),
		dev:      filepath.Join(root, "dev"),
		argsFile: filepath.Join(root, "args"),
	}
	require.NoError(t, os.MkdirAll(rig.dev, 0o755))
	for node, name := range cameras {
		writeSysfsNode(t, rig.sysfs, node, "0", name)
		require.NoError(t, os.WriteFile(filepath.Join(rig.dev, node), nil, 0o600))
	}
	rig.script = writeScript(t, "ffmpeg.sh", strings.ReplaceAll(frameScript, "%ARGS%", rig.argsFile))
	return rig
}

func (r testRig) platform(cfg Config) *Platform {
	cfg.SysfsRoot = r.sysfs
	cfg.DevRoot = r.dev
	if cfg.FFmpegCommand == "" {
		cfg.FFmpegCommand = r.script
	}
	cfg.StartupGrace = 100 * time.Millisecond
	platform := NewPlatform(cfg, zerolog.Nop())
	platform.supported = func() bool { return true }
	return platform
}

func stopStream(stream ports.Stream) {
	for _, track := range stream.Tracks() {
		track.Stop()
	}
}

func TestPlatformListDevicesWithholdsLabelsUntilGranted(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, map[string]string{
		"video0": "Integrated Camera",
		"video2": "USB Rear Camera",
	})
	platform := rig.platform(Config{})

	devices, err := platform.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, filepath.Join(rig.dev, "video0"), devices[0].DeviceID)
	assert.Empty(t, devices[0].Label)
	assert.Equal(t, []domain.FacingMode{domain.FacingUser}, devices[0].FacingModes)
	assert.Equal(t, []domain.FacingMode{domain.FacingEnvironment}, devices[1].FacingModes)

	stream, err := platform.RequestStream(context.Background(), domain.Constraints{
		Video: domain.VideoConstraints{FacingMode: domain.ExactFacing(domain.FacingEnvironment)},
	})
	require.NoError(t, err)
	defer stopStream(stream)

	devices, err = platform.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Integrated Camera", devices[0].Label)
	assert.Equal(t, "USB Rear Camera", devices[1].Label)
}

func TestPlatformListDevicesIncludesMicrophone(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, map[string]string{"video0": "Integrated Camera"})
	platform := rig.platform(Config{AudioEnabled: true})

	devices, err := platform.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, domain.KindAudioInput, devices[1].Kind)
	assert.Equal(t, "default", devices[1].DeviceID)
}

func TestPlatformRequestStreamStartsVideoTrack(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, map[string]string{
		"video0": "Integrated Camera",
		"video2": "USB Rear Camera",
	})
	platform := rig.platform(Config{MJPEGQuality: 3})

	stream, err := platform.RequestStream(context.Background(), domain.Constraints{
		Video: domain.VideoConstraints{
			FacingMode: domain.IdealFacing(domain.FacingEnvironment),
			Width:      domain.Range{Min: 480, Ideal: 1920, Max: 960},
			Height:     domain.Range{Min: 480, Ideal: 480, Max: 480},
		},
	})
	require.NoError(t, err)
	defer stopStream(stream)

	require.Len(t, stream.Tracks(), 1)
	video := stream.Tracks()[0]
	assert.Equal(t, ports.TrackVideo, video.Kind())
	assert.Equal(t, "USB Rear Camera", video.Label())
	assert.NotEmpty(t, video.ID())

	settings := video.Settings()
	assert.Equal(t, filepath.Join(rig.dev, "video2"), settings.DeviceID)
	assert.Equal(t, domain.FacingEnvironment, settings.FacingMode)
	assert.Equal(t, 960, settings.Width)
	assert.Equal(t, 480, settings.Height)
	assert.Equal(t, []domain.FacingMode{domain.FacingEnvironment}, video.Capabilities().FacingModes)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(rig.argsFile)
		return err == nil && len(data) > 0
	}, time.Second, 10*time.Millisecond)
	args, err := os.ReadFile(rig.argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "-video_size 960x480")
	assert.Contains(t, string(args), "-f mpjpeg")
	assert.Contains(t, string(args), "-q:v 3")

	previewable, ok := video.(ports.Previewable)
	require.True(t, ok)
	frames, cancel := previewable.Frames().Subscribe()
	defer cancel()
	select {
	case frame := <-frames:
		assert.Equal(t, "JPEG", string(frame))
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a frame")
	}
}

func TestPlatformRequestStreamWithAudio(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, map[string]string{"video0": "Integrated Camera"})
	platform := rig.platform(Config{AudioEnabled: true})

	stream, err := platform.RequestStream(context.Background(), domain.DefaultConstraints())
	require.NoError(t, err)
	defer stopStream(stream)

	require.Len(t, stream.Tracks(), 2)
	assert.Equal(t, ports.TrackAudio, stream.Tracks()[1].Kind())
}

func TestPlatformRequestStreamErrors(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, map[string]string{"video0": "Integrated Camera"})
	busy := writeScript(t, "busy.sh", "#!/usr/bin/env bash\necho 'video0: Device or resource busy' 1>&2\nexit 1\n")

	tests := []struct {
		name        string
		cfg         Config
		constraints domain.Constraints
		want        string
	}{
		{
			name:        "unknown device",
			constraints: domain.Constraints{Video: domain.VideoConstraints{DeviceID: "/dev/video9"}},
			want:        camera.NotFoundError,
		},
		{
			name:        "exact facing without match",
			constraints: domain.Constraints{Video: domain.VideoConstraints{FacingMode: domain.ExactFacing(domain.FacingEnvironment)}},
			want:        camera.OverconstrainedError,
		},
		{
			name:        "empty range",
			constraints: domain.Constraints{Video: domain.VideoConstraints{Width: domain.Range{Min: 1000, Max: 500}}},
			want:        camera.OverconstrainedError,
		},
		{
			name:        "ffmpeg reports busy device",
			cfg:         Config{FFmpegCommand: busy},
			constraints: domain.Constraints{},
			want:        camera.NotReadableError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := rig.platform(tt.cfg)
			_, err := platform.RequestStream(context.Background(), tt.constraints)
			var platformErr *PlatformError
			require.ErrorAs(t, err, &platformErr)
			assert.Equal(t, tt.want, platformErr.Name())
		})
	}
}

func TestPlatformRequestStreamPermissionDenied(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}

	rig := newTestRig(t, map[string]string{"video0": "Integrated Camera"})
	require.NoError(t, os.Chmod(filepath.Join(rig.dev, "video0"), 0o000))

	_, err := rig.platform(Config{}).RequestStream(context.Background(), domain.Constraints{})
	assert.Equal(t, domain.ErrorKindNotAllowed, camera.ClassifyError(err))
}

func TestPlatformCapabilities(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, map[string]string{"video0": "Integrated Camera"})
	platform := rig.platform(Config{})
	assert.Equal(t, ports.PlatformCapabilities{StreamRequests: true, DeviceListing: true}, platform.Capabilities())

	missing := NewPlatform(Config{SysfsRoot: filepath.Join(t.TempDir(), "missing")}, zerolog.Nop())
	missing.supported = func() bool { return false }
	assert.Equal(t, ports.PlatformCapabilities{}, missing.Capabilities())
}

func TestFFMPEGTrackStopIsIdempotent(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nexec sleep 30\n")
	track, err := startTrack(context.Background(), trackSpec{
		kind:    ports.TrackAudio,
		command: script,
		grace:   50 * time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)

	track.Stop()
	track.Stop()

	select {
	case <-track.Done():
	default:
		t.Fatalf("expected done to be closed after stop")
	}
	assert.Nil(t, track.Frames())
}

func TestFFMPEGTrackDoneClosesWhenProcessEnds(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "short.sh", "#!/usr/bin/env bash\nsleep 0.3\n")
	track, err := startTrack(context.Background(), trackSpec{
		kind:    ports.TrackVideo,
		command: script,
		grace:   50 * time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	defer track.Stop()

	select {
	case <-track.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("expected track to end with its process")
	}

	frames, cancel := track.Frames().Subscribe()
	defer cancel()
	_, open := <-frames
	assert.False(t, open, "subscribers of an ended track get a closed channel")
}

func TestFFMPEGTrackStartCanceled(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "slow.sh", "#!/usr/bin/env bash\nexec sleep 30\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := startTrack(ctx, trackSpec{kind: ports.TrackAudio, command: script, grace: time.Second}, zerolog.Nop())
	require.True(t, errors.Is(err, context.Canceled), "unexpected error: %v", err)
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func writeSysfsNode(t *testing.T, root, node, index, name string) {
	t.Helper()
	dir := filepath.Join(root, node)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index"), []byte(index+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "name"), []byte(name+"\n"), 0o644))
}
