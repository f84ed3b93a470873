package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FacingMode is the physical direction a camera points.
type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// FacingSpecKind distinguishes plain, ideal and exact facing-mode requests.
type FacingSpecKind int

const (
	FacingPlain FacingSpecKind = iota
	FacingIdeal
	FacingExact
)

// FacingModeSpec is the facing-mode field of a video constraint.
// A zero value means "no facing-mode preference".
type FacingModeSpec struct {
	Mode FacingMode
	Kind FacingSpecKind
}

func PlainFacing(mode FacingMode) FacingModeSpec { return FacingModeSpec{Mode: mode, Kind: FacingPlain} }
func IdealFacing(mode FacingMode) FacingModeSpec { return FacingModeSpec{Mode: mode, Kind: FacingIdeal} }
func ExactFacing(mode FacingMode) FacingModeSpec { return FacingModeSpec{Mode: mode, Kind: FacingExact} }

func (s FacingModeSpec) IsZero() bool { return s.Mode == "" }

// Required reports whether the platform must fail rather than fall back.
func (s FacingModeSpec) Required() bool { return s.Kind == FacingExact && s.Mode != "" }

func (s FacingModeSpec) String() string {
	switch {
	case s.Mode == "":
		return ""
	case s.Kind == FacingIdeal:
		return fmt.Sprintf("{ideal:%s}", s.Mode)
	case s.Kind == FacingExact:
		return fmt.Sprintf("{exact:%s}", s.Mode)
	default:
		return string(s.Mode)
	}
}

// MarshalJSON encodes s as "user", {"ideal":"user"} or {"exact":"user"}.
func (s FacingModeSpec) MarshalJSON() ([]byte, error) {
	switch {
	case s.Mode == "":
		return []byte("null"), nil
	case s.Kind == FacingIdeal:
		return json.Marshal(map[string]FacingMode{"ideal": s.Mode})
	case s.Kind == FacingExact:
		return json.Marshal(map[string]FacingMode{"exact": s.Mode})
	default:
		return json.Marshal(s.Mode)
	}
}

func (s *FacingModeSpec) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = FacingModeSpec{}
		return nil
	}
	var plain FacingMode
	if err := json.Unmarshal(data, &plain); err == nil {
		*s = PlainFacing(plain)
		return nil
	}
	var obj struct {
		Ideal FacingMode `json:"ideal"`
		Exact FacingMode `json:"exact"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid facingMode: %w", err)
	}
	switch {
	case obj.Exact != "" && obj.Ideal != "":
		return errors.New("invalid facingMode: both ideal and exact set")
	case obj.Exact != "":
		*s = ExactFacing(obj.Exact)
	case obj.Ideal != "":
		*s = IdealFacing(obj.Ideal)
	default:
		*s = FacingModeSpec{}
	}
	return nil
}

// Range is a min/ideal/max dimension constraint. Zero fields are unset.
type Range struct {
	Min   int `json:"min,omitempty" yaml:"min"`
	Ideal int `json:"ideal,omitempty" yaml:"ideal"`
	Max   int `json:"max,omitempty" yaml:"max"`
}

// DeviceKind mirrors the enumeration kinds of a media device list.
type DeviceKind string

const (
	KindVideoInput DeviceKind = "videoinput"
	KindAudioInput DeviceKind = "audioinput"
)

// DeviceDescriptor is one enumerated video input.
type DeviceDescriptor struct {
	DeviceID   string     `json:"deviceId"`
	Label      string     `json:"label"`
	FacingMode FacingMode `json:"facingMode"`
}

// SessionState models the camera session lifecycle.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateProbing   SessionState = "probing"
	StateAcquiring SessionState = "acquiring"
	StatePlaying   SessionState = "playing"
	StateBuffering SessionState = "buffering"
	StatePaused    SessionState = "paused"
	StateError     SessionState = "error"
	StateEnded     SessionState = "ended"
)

// Live reports whether a stream is installed and the session can be toggled.
func (s SessionState) Live() bool {
	return s == StatePlaying || s == StatePaused || s == StateBuffering
}

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonTornDown          StateReason = "torn_down"
	ReasonProbing           StateReason = "probing"
	ReasonUnsupported       StateReason = "unsupported"
	ReasonAcquiring         StateReason = "acquiring"
	ReasonStreamStarted     StateReason = "stream_started"
	ReasonAcquisitionFailed StateReason = "acquisition_failed"
	ReasonToggled           StateReason = "toggled"
	ReasonToggleUnavailable StateReason = "toggle_unavailable"
	ReasonToggleFailed      StateReason = "toggle_failed"
	ReasonDeviceSelected    StateReason = "device_selected"
	ReasonSelectFailed      StateReason = "select_failed"
	ReasonPlayback          StateReason = "playback"
	ReasonStreamEnded       StateReason = "stream_ended"
)

// Status is the view-facing snapshot of the session.
type Status struct {
	State       SessionState `json:"state"`
	Reason      StateReason  `json:"reason,omitempty"`
	ErrorKind   ErrorKind    `json:"errorKind,omitempty"`
	Message     string       `json:"message,omitempty"`
	FacingMode  FacingMode   `json:"facingMode,omitempty"`
	StreamID    string       `json:"streamId,omitempty"`
	DeviceID    string       `json:"deviceId,omitempty"`
	DeviceLabel string       `json:"deviceLabel,omitempty"`
}

// CapabilityFlags are computed once per initialization.
type CapabilityFlags struct {
	APISupported        bool `json:"isApiSupported"`
	CanToggleFacingMode bool `json:"canToggleFacingMode"`
}

// PlaybackEvent is a lifecycle callback from the playback surface.
type PlaybackEvent string

const (
	PlaybackWaiting PlaybackEvent = "waiting"
	PlaybackPlaying PlaybackEvent = "playing"
	PlaybackPause   PlaybackEvent = "pause"
	PlaybackEnded   PlaybackEvent = "ended"
	PlaybackError   PlaybackEvent = "error"
)

// TargetState maps a playback event to the state it drives. ok is false for
// informational events such as "canplay" or "stalled".
func (e PlaybackEvent) TargetState() (state SessionState, ok bool) {
	switch e {
	case PlaybackWaiting:
		return StateBuffering, true
	case PlaybackPlaying:
		return StatePlaying, true
	case PlaybackPause:
		return StatePaused, true
	case PlaybackEnded:
		return StateEnded, true
	case PlaybackError:
		return StateError, true
	default:
		return "", false
	}
}
