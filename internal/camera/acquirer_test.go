package camera

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camflip/internal/domain"
	"camflip/internal/platformtest"
)

func TestAcquirerAcquireAndStop(t *testing.T) {
	t.Parallel()

	platform := &platformtest.Platform{Cameras: frontAndBack()}
	acquirer := NewAcquirer(platform, zerolog.Nop())

	constraints := domain.DefaultConstraints()
	stream, err := acquirer.Acquire(context.Background(), constraints)
	require.NoError(t, err)
	assert.Equal(t, 1, acquirer.Live())
	require.Len(t, stream.Tracks(), 2)

	acquirer.Stop(stream)
	acquirer.Stop(stream)
	acquirer.Stop(nil)
	assert.Equal(t, 0, acquirer.Live())
	assert.True(t, platform.Streams()[0].Stopped())
	assert.Equal(t, 2, platform.Streams()[0].Video().StopCalls())
}

func TestAcquirerPassesPrivateCopy(t *testing.T) {
	t.Parallel()

	var seen *domain.AudioConstraints
	platform := &platformtest.Platform{
		Cameras: frontAndBack(),
		Fail: func(c domain.Constraints) error {
			seen = c.Audio
			return nil
		},
	}
	acquirer := NewAcquirer(platform, zerolog.Nop())

	constraints := domain.DefaultConstraints()
	stream, err := acquirer.Acquire(context.Background(), constraints)
	require.NoError(t, err)
	defer acquirer.Stop(stream)

	require.NotNil(t, seen)
	assert.NotSame(t, constraints.Audio, seen)
}

func TestAcquirerClassifiesFailures(t *testing.T) {
	t.Parallel()

	platform := &platformtest.Platform{
		Cameras: frontAndBack(),
		Fail: func(domain.Constraints) error {
			return &platformtest.Error{ErrName: NotReadableError, Msg: "busy"}
		},
	}
	acquirer := NewAcquirer(platform, zerolog.Nop())

	_, err := acquirer.Acquire(context.Background(), domain.DefaultConstraints())
	var acqErr *domain.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, domain.ErrorKindNotReadable, acqErr.Kind)
	assert.Equal(t, domain.ErrorKindNotReadable, domain.KindOf(err))
	assert.Equal(t, 0, acquirer.Live())
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want domain.ErrorKind
	}{
		"not allowed":     {err: &platformtest.Error{ErrName: NotAllowedError}, want: domain.ErrorKindNotAllowed},
		"not found":       {err: &platformtest.Error{ErrName: NotFoundError}, want: domain.ErrorKindNotFound},
		"not readable":    {err: &platformtest.Error{ErrName: NotReadableError}, want: domain.ErrorKindNotReadable},
		"overconstrained": {err: &platformtest.Error{ErrName: OverconstrainedError}, want: domain.ErrorKindOverconstrained},
		"other name":      {err: &platformtest.Error{ErrName: "SecurityError"}, want: domain.ErrorKindUnknown},
		"wrapped":         {err: fmt.Errorf("open: %w", &platformtest.Error{ErrName: NotFoundError}), want: domain.ErrorKindNotFound},
		"unnamed":         {err: errors.New("boom"), want: domain.ErrorKindUnknown},
	}
	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}
