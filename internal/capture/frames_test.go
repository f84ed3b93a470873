package capture

import (
	"bytes"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/textproto"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camflip/internal/camera"
	"camflip/internal/domain"
)

func TestPumpFramesDecodesMPJPEG(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.SetBoundary(mpjpegBoundary))
	for _, frame := range []string{"one", "two", "three"} {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "image/jpeg")
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write([]byte(frame))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	var got []string
	err := pumpFrames(&body, func(frame []byte) { got = append(got, string(frame)) })
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestPumpFramesDrainsGarbage(t *testing.T) {
	t.Parallel()

	input := strings.NewReader("--ffmpeg\r\nbroken header without colon\r\n\r\nrest")
	var calls int
	err := pumpFrames(input, func([]byte) { calls++ })
	require.Error(t, err)
	assert.Zero(t, calls)
	assert.Zero(t, input.Len(), "input must be drained")
}

func TestBroadcasterReplaysLastFrameAndDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := newBroadcaster()
	b.publish([]byte("first"))

	frames, cancel := b.Subscribe()
	assert.Equal(t, "first", string(<-frames))

	for i := 0; i < 10; i++ {
		b.publish([]byte{byte(i)})
	}
	assert.Len(t, frames, cap(frames), "slow subscriber keeps a full buffer and misses the rest")

	cancel()
	cancel()
	for range frames {
	}

	b.close()
	late, lateCancel := b.Subscribe()
	defer lateCancel()
	_, open := <-late
	assert.False(t, open)
	assert.Equal(t, "image/jpeg", b.ContentType())
}

func TestAccessErrorClasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want domain.ErrorKind
	}{
		{err: fmt.Errorf("open: %w", fs.ErrPermission), want: domain.ErrorKindNotAllowed},
		{err: fmt.Errorf("open: %w", fs.ErrNotExist), want: domain.ErrorKindNotFound},
		{err: fmt.Errorf("open: %w", syscall.EBUSY), want: domain.ErrorKindNotReadable},
		{err: fmt.Errorf("open: something else"), want: domain.ErrorKindNotReadable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, camera.ClassifyError(accessError("/dev/video0", tt.err)), tt.err.Error())
	}
}

func TestClassifyStderr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, camera.NotAllowedError, classifyStderr("/dev/video0: Permission denied"))
	assert.Equal(t, camera.NotFoundError, classifyStderr("/dev/video3: No such file or directory"))
	assert.Equal(t, camera.NotReadableError, classifyStderr("ioctl(VIDIOC_STREAMON): Device or resource busy"))
	assert.Equal(t, camera.OverconstrainedError, classifyStderr("VIDIOC_S_FMT: Invalid argument"))
	assert.Equal(t, AbortError, classifyStderr("boom"))
}

func TestResolveDimension(t *testing.T) {
	t.Parallel()

	got, err := resolveDimension("width", domain.Range{Min: 480, Ideal: 640, Max: 960}, 0)
	require.NoError(t, err)
	assert.Equal(t, 640, got)

	got, err = resolveDimension("width", domain.Range{Min: 480, Ideal: 320, Max: 960}, 0)
	require.NoError(t, err)
	assert.Equal(t, 480, got)

	got, err = resolveDimension("height", domain.Range{}, 480)
	require.NoError(t, err)
	assert.Equal(t, 480, got)

	_, err = resolveDimension("height", domain.Range{Min: 600, Max: 480}, 480)
	assert.Equal(t, domain.ErrorKindOverconstrained, camera.ClassifyError(err))
}

func TestScanVideoNodesSkipsMetadataNodes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeSysfsNode(t, root, "video0", "0", "Integrated Camera")
	writeSysfsNode(t, root, "video1", "1", "Integrated Camera")
	writeSysfsNode(t, root, "video10", "0", "Capture Card")
	writeSysfsNode(t, root, "video2", "0", "USB Rear Camera")
	writeSysfsNode(t, root, "media0", "0", "not a video node")

	nodes, err := scanVideoNodes(root, "/dev", map[string]domain.FacingMode{"/dev/video10": domain.FacingEnvironment})
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.Equal(t, "/dev/video0", nodes[0].deviceID)
	assert.Equal(t, domain.FacingUser, nodes[0].facing)
	assert.Equal(t, "/dev/video2", nodes[1].deviceID)
	assert.Equal(t, domain.FacingEnvironment, nodes[1].facing)
	assert.Equal(t, "/dev/video10", nodes[2].deviceID)
	assert.Equal(t, domain.FacingEnvironment, nodes[2].facing)
}

func TestNormalizeStopErrAndTrim(t *testing.T) {
	t.Parallel()

	assert.NoError(t, normalizeStopErr(nil))
	assert.Equal(t, "hi", stringsTrimSpaceSafe("  hi\n"))
	assert.Empty(t, stringsTrimSpaceSafe(""))
}
