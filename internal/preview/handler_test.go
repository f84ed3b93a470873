package preview

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camflip/internal/platformtest"
	"camflip/internal/ports"
)

type fakeFrames struct {
	frames [][]byte
}

func (f *fakeFrames) ContentType() string { return "image/jpeg" }

func (f *fakeFrames) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, len(f.frames))
	for _, frame := range f.frames {
		ch <- frame
	}
	close(ch)
	return ch, func() {}
}

type previewTrack struct {
	*platformtest.Track
	source ports.FrameSource
}

func (p previewTrack) Frames() ports.FrameSource { return p.source }

type fakeSource struct {
	mu     sync.Mutex
	stream ports.Stream
}

func (f *fakeSource) CurrentStream() ports.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stream
}

func newPreviewStream(id string, frames ...string) ports.Stream {
	source := &fakeFrames{}
	for _, frame := range frames {
		source.frames = append(source.frames, []byte(frame))
	}
	track := previewTrack{
		Track:  platformtest.NewTrack("video-1", ports.TrackVideo, "Camera", ports.TrackSettings{}, ports.TrackCapabilities{}),
		source: source,
	}
	return platformtest.NewStream(id, track)
}

func TestPreviewStreamsFramesAsMultipart(t *testing.T) {
	t.Parallel()

	source := &fakeSource{stream: newPreviewStream("stream-1", "frame-a", "frame-b")}
	handler := NewHandler(source, zerolog.Nop())

	for _, path := range []string{"/preview/current", "/preview/stream-1"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusOK, rec.Code, path)
		mediaType, params, err := mime.ParseMediaType(rec.Header().Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/x-mixed-replace", mediaType)

		reader := multipart.NewReader(rec.Body, params["boundary"])
		var got []string
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
			data, err := io.ReadAll(part)
			require.NoError(t, err)
			got = append(got, string(data))
		}
		assert.Equal(t, []string{"frame-a", "frame-b"}, got, path)
	}
}

func TestPreviewWithoutStream(t *testing.T) {
	t.Parallel()

	handler := NewHandler(&fakeSource{}, zerolog.Nop())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/current", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewRejectsStaleStreamID(t *testing.T) {
	t.Parallel()

	handler := NewHandler(&fakeSource{stream: newPreviewStream("stream-2", "x")}, zerolog.Nop())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/stream-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewRejectsTrackWithoutFrames(t *testing.T) {
	t.Parallel()

	track := platformtest.NewTrack("video-1", ports.TrackVideo, "Camera", ports.TrackSettings{}, ports.TrackCapabilities{})
	handler := NewHandler(&fakeSource{stream: platformtest.NewStream("stream-1", track)}, zerolog.Nop())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/current", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	handler := NewHandler(&fakeSource{}, zerolog.Nop())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}
