package camera

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"camflip/internal/domain"
	"camflip/internal/log"
	"camflip/internal/ports"
)

// Enumerator lists video inputs.
type Enumerator struct {
	platform ports.MediaPlatform
	log      zerolog.Logger
	// parallel bounds concurrent capability probes in Describe.
	parallel int
}

func NewEnumerator(platform ports.MediaPlatform, logger zerolog.Logger, parallel int) *Enumerator {
	if parallel <= 0 {
		parallel = 1
	}
	return &Enumerator{platform: platform, log: logger, parallel: parallel}
}

// ListVideoInputs returns the video inputs in platform order. Enumeration
// failures degrade to an empty list.
func (e *Enumerator) ListVideoInputs(ctx context.Context) []domain.DeviceDescriptor {
	raw, err := e.platform.ListDevices(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("device enumeration failed")
		return []domain.DeviceDescriptor{}
	}

	devices := make([]domain.DeviceDescriptor, 0, len(raw))
	for _, device := range raw {
		if device.Kind != domain.KindVideoInput {
			continue
		}
		descriptor := domain.DeviceDescriptor{DeviceID: device.DeviceID, Label: device.Label}
		if len(device.FacingModes) > 0 {
			descriptor.FacingMode = device.FacingModes[0]
		}
		devices = append(devices, descriptor)
	}
	return devices
}

// Describe fills in unknown facing modes by briefly opening each such device
// and reading what its video track reports. The input is not modified.
func (e *Enumerator) Describe(ctx context.Context, devices []domain.DeviceDescriptor) []domain.DeviceDescriptor {
	out := make([]domain.DeviceDescriptor, len(devices))
	copy(out, devices)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.parallel)
	for i := range out {
		if out[i].FacingMode != "" {
			continue
		}
		group.Go(func() error {
			out[i].FacingMode = e.describeOne(groupCtx, out[i].DeviceID)
			return nil
		})
	}
	_ = group.Wait()
	return out
}

func (e *Enumerator) describeOne(ctx context.Context, deviceID string) domain.FacingMode {
	stream, err := e.platform.RequestStream(ctx, domain.Constraints{
		Video: domain.VideoConstraints{DeviceID: deviceID},
	})
	if err != nil {
		e.log.Debug().Err(err).Str(log.FieldDeviceID, deviceID).Msg("capability probe failed")
		return ""
	}
	defer stopAll(stream)

	video := videoTrack(stream)
	if video == nil {
		return ""
	}
	if mode := video.Settings().FacingMode; mode != "" {
		return mode
	}
	if modes := video.Capabilities().FacingModes; len(modes) > 0 {
		return modes[0]
	}
	return ""
}
