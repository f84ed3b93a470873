package camera

import (
	"context"

	"github.com/rs/zerolog"

	"camflip/internal/domain"
	"camflip/internal/log"
	"camflip/internal/ports"
)

// Prober answers capability questions about the camera runtime.
type Prober struct {
	platform ports.MediaPlatform
	log      zerolog.Logger
}

func NewProber(platform ports.MediaPlatform, logger zerolog.Logger) *Prober {
	return &Prober{platform: platform, log: logger}
}

// IsSupported reports whether the runtime can both open streams and list devices.
func (p *Prober) IsSupported() bool {
	caps := p.platform.Capabilities()
	return caps.StreamRequests && caps.DeviceListing
}

// ProbeFacingMode opens and immediately releases a video-only stream that
// must face mode. Any failure yields false.
func (p *Prober) ProbeFacingMode(ctx context.Context, mode domain.FacingMode) bool {
	constraints := domain.Constraints{
		Video: domain.VideoConstraints{FacingMode: domain.ExactFacing(mode)},
	}
	stream, err := p.platform.RequestStream(ctx, constraints)
	if err != nil {
		p.log.Debug().Err(err).Str(log.FieldFacingMode, string(mode)).Msg("facing mode probe failed")
		return false
	}
	stopAll(stream)
	p.log.Debug().Str(log.FieldFacingMode, string(mode)).Msg("facing mode probe succeeded")
	return true
}

func stopAll(stream ports.Stream) {
	if stream == nil {
		return
	}
	for _, track := range stream.Tracks() {
		track.Stop()
	}
}
