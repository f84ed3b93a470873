package camera

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"camflip/internal/domain"
	"camflip/internal/log"
	"camflip/internal/metrics"
	"camflip/internal/ports"
)

// Platform error class names.
const (
	NotAllowedError      = "NotAllowedError"
	NotFoundError        = "NotFoundError"
	NotReadableError     = "NotReadableError"
	OverconstrainedError = "OverconstrainedError"
)

// Acquirer opens and releases streams. It tracks which streams still hold
// hardware so Stop can be called any number of times.
type Acquirer struct {
	platform ports.MediaPlatform
	log      zerolog.Logger

	mu   sync.Mutex
	live map[string]struct{}
}

func NewAcquirer(platform ports.MediaPlatform, logger zerolog.Logger) *Acquirer {
	return &Acquirer{platform: platform, log: logger, live: make(map[string]struct{})}
}

// Acquire requests a stream for a private copy of constraints. Failures are
// returned as *domain.AcquisitionError.
func (a *Acquirer) Acquire(ctx context.Context, constraints domain.Constraints) (ports.Stream, error) {
	started := time.Now()
	stream, err := a.platform.RequestStream(ctx, constraints.Clone())
	if err != nil {
		kind := ClassifyError(err)
		metrics.ObserveAcquire(string(kind), time.Since(started))
		a.log.Warn().Err(err).Str(log.FieldErrorKind, string(kind)).Msg("stream acquisition failed")
		return nil, &domain.AcquisitionError{Kind: kind, Err: err}
	}
	metrics.ObserveAcquire("", time.Since(started))

	a.mu.Lock()
	a.live[stream.ID()] = struct{}{}
	a.mu.Unlock()
	metrics.LiveStreams.Inc()

	a.log.Info().Str(log.FieldStreamID, stream.ID()).Int("tracks", len(stream.Tracks())).Msg("stream acquired")
	return stream, nil
}

// Stop stops every track of stream. A nil or already stopped stream is a no-op.
func (a *Acquirer) Stop(stream ports.Stream) {
	if stream == nil {
		return
	}
	for _, track := range stream.Tracks() {
		track.Stop()
	}

	a.mu.Lock()
	_, wasLive := a.live[stream.ID()]
	delete(a.live, stream.ID())
	a.mu.Unlock()

	if wasLive {
		metrics.LiveStreams.Dec()
		a.log.Info().Str(log.FieldStreamID, stream.ID()).Msg("stream stopped")
	}
}

// Live reports how many acquired streams have not been stopped.
func (a *Acquirer) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// ClassifyError maps a platform error to an acquisition error kind.
func ClassifyError(err error) domain.ErrorKind {
	var named ports.NamedError
	if !errors.As(err, &named) {
		return domain.ErrorKindUnknown
	}
	switch named.Name() {
	case NotAllowedError:
		return domain.ErrorKindNotAllowed
	case NotFoundError:
		return domain.ErrorKindNotFound
	case NotReadableError:
		return domain.ErrorKindNotReadable
	case OverconstrainedError:
		return domain.ErrorKindOverconstrained
	default:
		return domain.ErrorKindUnknown
	}
}
