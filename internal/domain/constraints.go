package domain

// AudioConstraints configures the optional audio track.
type AudioConstraints struct {
	NoiseSuppression bool `json:"noiseSuppression"`
	ChannelCount     int  `json:"channelCount"`
}

// VideoConstraints configures the video track.
type VideoConstraints struct {
	FacingMode FacingModeSpec `json:"facingMode"`
	Width      Range          `json:"width"`
	Height     Range          `json:"height"`
	DeviceID   string         `json:"deviceId,omitempty"`
}

// Constraints is a stream request. A nil Audio requests video only.
type Constraints struct {
	Audio *AudioConstraints `json:"audio,omitempty"`
	Video VideoConstraints  `json:"video"`
}

// DefaultConstraints returns the request used when nothing is configured.
func DefaultConstraints() Constraints {
	return Constraints{
		Audio: &AudioConstraints{NoiseSuppression: true, ChannelCount: 1},
		Video: VideoConstraints{
			FacingMode: PlainFacing(FacingUser),
			Width:      Range{Min: 480, Ideal: 640, Max: 960},
			Height:     Range{Min: 480, Ideal: 480, Max: 480},
		},
	}
}

// Clone returns a copy that shares no memory with c.
func (c Constraints) Clone() Constraints {
	out := c
	if c.Audio != nil {
		audio := *c.Audio
		out.Audio = &audio
	}
	return out
}

// VideoUpdate carries the video fields a caller wants to change.
// Nil fields are left as they are.
type VideoUpdate struct {
	FacingMode *FacingModeSpec `json:"facingMode,omitempty"`
	Width      *Range          `json:"width,omitempty"`
	Height     *Range          `json:"height,omitempty"`
	DeviceID   *string         `json:"deviceId,omitempty"`
}

// ConstraintsUpdate is a partial constraints change.
type ConstraintsUpdate struct {
	Audio        *AudioConstraints `json:"audio,omitempty"`
	DisableAudio bool              `json:"disableAudio,omitempty"`
	Video        *VideoUpdate      `json:"video,omitempty"`
}

// Merge applies u on top of c. The video object is merged field by field;
// a supplied facing mode replaces the old one as a whole so ideal and exact
// specifiers never mix.
func (c Constraints) Merge(u ConstraintsUpdate) Constraints {
	out := c.Clone()

	switch {
	case u.DisableAudio:
		out.Audio = nil
	case u.Audio != nil:
		audio := *u.Audio
		out.Audio = &audio
	}

	if u.Video == nil {
		return out
	}
	if u.Video.FacingMode != nil {
		out.Video.FacingMode = *u.Video.FacingMode
	}
	if u.Video.Width != nil {
		out.Video.Width = *u.Video.Width
	}
	if u.Video.Height != nil {
		out.Video.Height = *u.Video.Height
	}
	if u.Video.DeviceID != nil {
		out.Video.DeviceID = *u.Video.DeviceID
	}
	return out
}
