package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"camflip/internal/domain"
	"camflip/internal/log"
	"camflip/internal/ports"
)

func TestBuildSuccess(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CAMFLIP_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("CAMFLIP_SYSFS_ROOT", filepath.Join(home, "missing"))

	mirror := log.NewMirror(10)
	services, err := Build(noopEventSink{}, noopSurface{}, mirror)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Preview == nil {
		t.Fatalf("expected controller and preview handler")
	}
	if services.Mirror != mirror {
		t.Fatalf("expected mirror to be kept")
	}
	if services.Config.Session.Strategy != "device" {
		t.Fatalf("unexpected strategy: %q", services.Config.Session.Strategy)
	}
	if got := services.Controller.Constraints(); got.Video != domain.DefaultConstraints().Video {
		t.Fatalf("unexpected default constraints: %+v", got.Video)
	}
}

func TestBuildFailsOnInvalidConfig(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "bad.yaml")
	if err := os.WriteFile(path, []byte("constraints: [oops\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("CAMFLIP_CONFIG", path)

	_, err := Build(noopEventSink{}, noopSurface{}, nil)
	if err == nil {
		t.Fatalf("expected build error due to invalid config")
	}
}

type noopEventSink struct{}

func (noopEventSink) StatusChanged(_ domain.Status)                                        {}
func (noopEventSink) DevicesChanged(_ []domain.DeviceDescriptor, _ domain.CapabilityFlags) {}
func (noopEventSink) SessionError(_ domain.ErrorKind, _ string)                            {}

type noopSurface struct{}

func (noopSurface) Attach(_ ports.Stream) {}
func (noopSurface) Detach()               {}
func (noopSurface) Play() error           { return nil }
func (noopSurface) Pause() error          { return nil }
