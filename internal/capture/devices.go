package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"camflip/internal/camera"
	"camflip/internal/domain"
)

// videoNode is a primary V4L2 capture node found under sysfs.
type videoNode struct {
	deviceID string
	name     string
	number   int
	facing   domain.FacingMode
}

// scanVideoNodes lists video* entries of sysfsRoot whose index is 0. Metadata
// nodes of the same camera carry higher indexes and are skipped.
func scanVideoNodes(sysfsRoot, devRoot string, facingMap map[string]domain.FacingMode) ([]videoNode, error) {
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sysfsRoot, err)
	}

	var nodes []videoNode
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		number, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}
		dir := filepath.Join(sysfsRoot, name)
		if index, ok := readTrimmed(filepath.Join(dir, "index")); ok && index != "0" {
			continue
		}

		label, _ := readTrimmed(filepath.Join(dir, "name"))
		deviceID := filepath.Join(devRoot, name)
		facing := facingMap[deviceID]
		if facing == "" {
			facing = camera.FacingFromLabel(label)
		}
		nodes = append(nodes, videoNode{deviceID: deviceID, name: label, number: number, facing: facing})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].number < nodes[j].number })
	return nodes, nil
}

func readTrimmed(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// pickNode resolves the device a request should open.
func pickNode(nodes []videoNode, video domain.VideoConstraints) (videoNode, error) {
	if len(nodes) == 0 {
		return videoNode{}, &PlatformError{Class: camera.NotFoundError, Message: "no video input devices"}
	}
	if video.DeviceID != "" {
		for _, node := range nodes {
			if node.deviceID == video.DeviceID {
				return node, nil
			}
		}
		return videoNode{}, &PlatformError{Class: camera.NotFoundError, Message: video.DeviceID}
	}
	if !video.FacingMode.IsZero() {
		for _, node := range nodes {
			if node.facing == video.FacingMode.Mode {
				return node, nil
			}
		}
		if video.FacingMode.Required() {
			return videoNode{}, &PlatformError{
				Class:   camera.OverconstrainedError,
				Message: "no camera faces " + string(video.FacingMode.Mode),
			}
		}
	}
	return nodes[0], nil
}

// checkAccess opens the device node once so permission and busy errors
// surface before ffmpeg starts.
func checkAccess(path string) error {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return accessError(path, err)
	}
	_ = file.Close()
	return nil
}

// resolveDimension picks the ideal value clamped to [min, max].
func resolveDimension(name string, r domain.Range, fallback int) (int, error) {
	if r.Max > 0 && r.Min > r.Max {
		return 0, &PlatformError{
			Class:   camera.OverconstrainedError,
			Message: fmt.Sprintf("%s range %d..%d is empty", name, r.Min, r.Max),
		}
	}
	value := r.Ideal
	if value <= 0 {
		value = fallback
	}
	if r.Min > 0 && value < r.Min {
		value = r.Min
	}
	if r.Max > 0 && value > r.Max {
		value = r.Max
	}
	return value, nil
}

func sysfsReadable(root string) bool {
	info, err := os.Stat(root)
	return err == nil && info.IsDir()
}
