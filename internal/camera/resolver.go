package camera

import (
	"strings"

	"camflip/internal/domain"
	"camflip/internal/ports"
)

// Strategy selects which switch request is attempted first.
type Strategy string

const (
	// StrategyDevice switches to another device id whose facing mode matches.
	StrategyDevice Strategy = "device"
	// StrategyFacing asks for the target facing mode without pinning a device.
	StrategyFacing Strategy = "facing"
)

// ParseStrategy returns StrategyDevice for anything it does not recognise.
func ParseStrategy(value string) Strategy {
	if Strategy(strings.ToLower(strings.TrimSpace(value))) == StrategyFacing {
		return StrategyFacing
	}
	return StrategyDevice
}

// Resolver decides facing modes and plans camera switches.
type Resolver struct {
	Strategy Strategy
}

// CurrentFacingMode reads the live video track's facing mode and falls back
// to the facing mode requested in used.
func CurrentFacingMode(stream ports.Stream, used domain.Constraints) domain.FacingMode {
	if video := videoTrack(stream); video != nil {
		if mode := video.Settings().FacingMode; mode != "" {
			return mode
		}
	}
	return used.Video.FacingMode.Mode
}

// TargetFacingMode toggles user and environment. Anything else goes to environment.
func TargetFacingMode(current domain.FacingMode) domain.FacingMode {
	if current == domain.FacingEnvironment {
		return domain.FacingUser
	}
	return domain.FacingEnvironment
}

// SupportsToggle reports whether a flip control may be shown: the
// environment probe must have succeeded and at least two distinct video
// inputs must exist.
func SupportsToggle(devices []domain.DeviceDescriptor, environmentProbe bool) bool {
	return SupportsToggleWith(devices, environmentProbe, nil)
}

// SupportsToggleWith also accepts a single device whose active track can
// change facing mode without switching device id.
func SupportsToggleWith(devices []domain.DeviceDescriptor, environmentProbe bool, active ports.Stream) bool {
	if !environmentProbe || len(devices) == 0 {
		return false
	}
	if distinctDevices(devices) >= 2 {
		return true
	}
	video := videoTrack(active)
	if video == nil {
		return false
	}
	modes := map[domain.FacingMode]struct{}{}
	for _, mode := range video.Capabilities().FacingModes {
		modes[mode] = struct{}{}
	}
	_, user := modes[domain.FacingUser]
	_, environment := modes[domain.FacingEnvironment]
	return user && environment
}

// DeviceFacingMode returns the device's reported facing mode, or one guessed
// from its label. Empty labels are never matched.
func DeviceFacingMode(device domain.DeviceDescriptor) domain.FacingMode {
	if device.FacingMode != "" {
		return device.FacingMode
	}
	return FacingFromLabel(device.Label)
}

// FacingFromLabel guesses a facing mode from common camera names.
func FacingFromLabel(label string) domain.FacingMode {
	label = strings.ToLower(label)
	if label == "" {
		return ""
	}
	for _, word := range []string{"back", "rear", "environment", "world"} {
		if strings.Contains(label, word) {
			return domain.FacingEnvironment
		}
	}
	for _, word := range []string{"front", "user", "facetime", "selfie", "integrated"} {
		if strings.Contains(label, word) {
			return domain.FacingUser
		}
	}
	return ""
}

// Plans returns the constraint sets to try, in order, to move the session
// to target. base is the constraints of the current stream.
func (r Resolver) Plans(
	devices []domain.DeviceDescriptor,
	current ports.Stream,
	base domain.Constraints,
	target domain.FacingMode,
) []domain.Constraints {
	var plans []domain.Constraints

	byDevice, ok := r.devicePlan(devices, current, base, target)
	byFacing := base.Clone()
	byFacing.Video.DeviceID = ""
	byFacing.Video.FacingMode = domain.ExactFacing(target)

	if r.Strategy == StrategyFacing {
		plans = append(plans, byFacing)
		if ok {
			plans = append(plans, byDevice)
		}
		return plans
	}
	if ok {
		plans = append(plans, byDevice)
	}
	return append(plans, byFacing)
}

// DevicePlan returns the constraints that pin deviceID while keeping the
// rest of base.
func DevicePlan(base domain.Constraints, device domain.DeviceDescriptor) domain.Constraints {
	plan := base.Clone()
	plan.Video.DeviceID = device.DeviceID
	plan.Video.FacingMode = domain.FacingModeSpec{}
	if mode := DeviceFacingMode(device); mode != "" {
		plan.Video.FacingMode = domain.IdealFacing(mode)
	}
	return plan
}

func (r Resolver) devicePlan(
	devices []domain.DeviceDescriptor,
	current ports.Stream,
	base domain.Constraints,
	target domain.FacingMode,
) (domain.Constraints, bool) {
	currentID := ""
	if video := videoTrack(current); video != nil {
		currentID = video.Settings().DeviceID
	}

	for _, device := range devices {
		if device.DeviceID != currentID && DeviceFacingMode(device) == target {
			return DevicePlan(base, device), true
		}
	}

	// Without any facing signal, cycle to the next distinct device.
	if distinctDevices(devices) < 2 {
		return domain.Constraints{}, false
	}
	for _, device := range devices {
		if DeviceFacingMode(device) == "" && device.DeviceID != currentID {
			plan := DevicePlan(base, device)
			plan.Video.FacingMode = domain.IdealFacing(target)
			return plan, true
		}
	}
	return domain.Constraints{}, false
}

func distinctDevices(devices []domain.DeviceDescriptor) int {
	seen := make(map[string]struct{}, len(devices))
	for _, device := range devices {
		seen[device.DeviceID] = struct{}{}
	}
	return len(seen)
}

func videoTrack(stream ports.Stream) ports.Track {
	if stream == nil {
		return nil
	}
	for _, track := range stream.Tracks() {
		if track.Kind() == ports.TrackVideo {
			return track
		}
	}
	return nil
}

// VideoTrack returns the first video track of stream, or nil.
func VideoTrack(stream ports.Stream) ports.Track { return videoTrack(stream) }
