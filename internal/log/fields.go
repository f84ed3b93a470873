package log

// Canonical field name constants for structured logging.
const (
	FieldComponent  = "component"
	FieldStreamID   = "stream_id"
	FieldTrackID    = "track_id"
	FieldDeviceID   = "device_id"
	FieldFacingMode = "facing_mode"
	FieldOldState   = "old_state"
	FieldNewState   = "new_state"
	FieldErrorKind  = "error_kind"
	FieldEvent      = "event"
)
