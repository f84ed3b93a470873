package usecase

import (
	"strings"
	"sync"

	"camflip/internal/domain"
	"camflip/internal/ports"
)

// activeStream is the stream the controller currently owns together with
// the constraints it was acquired with.
type activeStream struct {
	stream      ports.Stream
	constraints domain.Constraints
	facing      domain.FacingMode
	deviceID    string
	label       string
}

func (a *activeStream) status(reason domain.StateReason) domain.Status {
	return domain.Status{
		State:       domain.StatePlaying,
		Reason:      reason,
		FacingMode:  a.facing,
		StreamID:    a.stream.ID(),
		DeviceID:    a.deviceID,
		DeviceLabel: a.label,
	}
}

// diagnostics keeps the most recent user-visible messages.
type diagnostics struct {
	mu       sync.Mutex
	messages []string
	limit    int
}

func newDiagnostics(limit int) *diagnostics {
	if limit <= 0 {
		limit = 50
	}
	return &diagnostics{limit: limit}
}

func (d *diagnostics) Add(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(d.messages); n > 0 && d.messages[n-1] == message {
		return
	}
	d.messages = append(d.messages, message)
	if len(d.messages) > d.limit {
		d.messages = d.messages[len(d.messages)-d.limit:]
	}
}

func (d *diagnostics) Snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.messages))
	copy(out, d.messages)
	return out
}
