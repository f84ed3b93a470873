// Package preview serves the live camera stream and process metrics over
// HTTP. The handler is mounted behind the desktop shell's asset server.
package preview

import (
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"camflip/internal/camera"
	"camflip/internal/log"
	"camflip/internal/ports"
)

const frameBoundary = "camflipframe"

// StreamSource returns the stream currently owned by the session, or nil.
type StreamSource interface {
	CurrentStream() ports.Stream
}

type handler struct {
	source StreamSource
	log    zerolog.Logger
}

// NewHandler routes /preview/current, /preview/{streamID} and /metrics.
func NewHandler(source StreamSource, logger zerolog.Logger) http.Handler {
	h := &handler{source: source, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Get("/preview/current", h.serveCurrent)
	r.Get("/preview/{streamID}", h.serveStream)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func (h *handler) serveCurrent(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

func (h *handler) serveStream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, chi.URLParam(r, "streamID"))
}

// serve writes frames as multipart/x-mixed-replace until the client goes
// away or the track ends. A non-empty streamID must name the current stream.
func (h *handler) serve(w http.ResponseWriter, r *http.Request, streamID string) {
	stream := h.source.CurrentStream()
	if stream == nil || (streamID != "" && stream.ID() != streamID) {
		http.Error(w, "no such stream", http.StatusNotFound)
		return
	}
	previewable, ok := camera.VideoTrack(stream).(ports.Previewable)
	if !ok || previewable.Frames() == nil {
		http.Error(w, "stream has no previewable video", http.StatusNotFound)
		return
	}
	source := previewable.Frames()
	frames, cancel := source.Subscribe()
	defer cancel()

	writer := multipart.NewWriter(w)
	if err := writer.SetBoundary(frameBoundary); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+frameBoundary)
	w.WriteHeader(http.StatusOK)

	logger := h.log.With().Str(log.FieldStreamID, stream.ID()).Logger()
	logger.Debug().Msg("preview client attached")
	defer logger.Debug().Msg("preview client detached")

	rc := http.NewResponseController(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				_ = writer.Close()
				return
			}
			header := textproto.MIMEHeader{}
			header.Set("Content-Type", source.ContentType())
			header.Set("Content-Length", strconv.Itoa(len(frame)))
			part, err := writer.CreatePart(header)
			if err != nil {
				return
			}
			if _, err := part.Write(frame); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}
