package camera

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camflip/internal/domain"
	"camflip/internal/platformtest"
)

func frontAndBack() []platformtest.Camera {
	return []platformtest.Camera{
		{DeviceID: "front", Label: "Front Camera", Facing: domain.FacingUser, Modes: []domain.FacingMode{domain.FacingUser}},
		{DeviceID: "back", Label: "Back Camera", Facing: domain.FacingEnvironment, Modes: []domain.FacingMode{domain.FacingEnvironment}},
	}
}

func TestProberIsSupported(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		platform *platformtest.Platform
		want     bool
	}{
		{name: "full", platform: &platformtest.Platform{}, want: true},
		{name: "no streams", platform: &platformtest.Platform{NoStreams: true}},
		{name: "no listing", platform: &platformtest.Platform{NoListing: true}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NewProber(tt.platform, zerolog.Nop()).IsSupported())
		})
	}
}

func TestProberProbeFacingModeReleasesStream(t *testing.T) {
	t.Parallel()

	platform := &platformtest.Platform{Cameras: frontAndBack()}
	prober := NewProber(platform, zerolog.Nop())

	require.True(t, prober.ProbeFacingMode(context.Background(), domain.FacingEnvironment))

	requests := platform.Requests()
	require.Len(t, requests, 1)
	assert.Nil(t, requests[0].Audio)
	assert.Equal(t, domain.ExactFacing(domain.FacingEnvironment), requests[0].Video.FacingMode)
	assert.Empty(t, platform.LiveStreams())
}

func TestProberProbeFacingModeFailure(t *testing.T) {
	t.Parallel()

	onlyFront := []platformtest.Camera{frontAndBack()[0]}
	prober := NewProber(&platformtest.Platform{Cameras: onlyFront}, zerolog.Nop())
	assert.False(t, prober.ProbeFacingMode(context.Background(), domain.FacingEnvironment))

	denied := &platformtest.Platform{
		Cameras: frontAndBack(),
		Fail: func(domain.Constraints) error {
			return &platformtest.Error{ErrName: NotAllowedError}
		},
	}
	assert.False(t, NewProber(denied, zerolog.Nop()).ProbeFacingMode(context.Background(), domain.FacingUser))
}
