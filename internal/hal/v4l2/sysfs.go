//go:build linux

package v4l2

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/smazurov/camcore/internal/camera"
)

// node is a capture device node discovered in sysfs.
type node struct {
	device camera.Device
	path   string // /dev/videoN
	kname  string // videoN
}

// scanNodes lists capture nodes under sysRoot. Only the first node of each
// physical device (index 0) is a capture node; the rest carry metadata.
func scanNodes(sysRoot, byIDDir string) ([]node, error) {
	entries, err := os.ReadDir(sysRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	var nodes []node
	for _, entry := range entries {
		kname := entry.Name()
		if !strings.HasPrefix(kname, "video") {
			continue
		}
		dir := filepath.Join(sysRoot, kname)
		if readSysfsInt(filepath.Join(dir, "index")) != 0 {
			continue
		}

		id := findStableID(byIDDir, kname, 0)
		if id == "" {
			id = "platform-" + kname
		}
		name := readSysfsString(filepath.Join(dir, "name"))
		if name == "" {
			name = kname
		}

		nodes = append(nodes, node{
			device: camera.Device{
				ID:         id,
				Name:       name,
				Position:   camera.PositionUnspecified,
				Type:       camera.TypeWideAngle,
				Connection: connectionOf(dir, id),
			},
			path:  "/dev/" + kname,
			kname: kname,
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return videoNumber(nodes[i].kname) < videoNumber(nodes[j].kname) })
	return nodes, nil
}

// findStableID looks for a stable ID symlink in byIDDir pointing at kname.
func findStableID(byIDDir, kname string, index int) string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	suffix := fmt.Sprintf("-video-index%d", index)
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == kname && strings.HasSuffix(entry.Name(), suffix) {
			return entry.Name()
		}
	}
	return ""
}

func connectionOf(sysDir, id string) camera.ConnectionType {
	if strings.HasPrefix(id, "usb-") {
		return camera.ConnectionUSB
	}
	// device is a symlink into the bus hierarchy
	if target, err := filepath.EvalSymlinks(filepath.Join(sysDir, "device")); err == nil && strings.Contains(target, "/usb") {
		return camera.ConnectionUSB
	}
	return camera.ConnectionBuiltIn
}

func videoNumber(kname string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(kname, "video"))
	if err != nil {
		return 1 << 30
	}
	return n
}

func readSysfsInt(path string) int {
	val, _ := strconv.Atoi(readSysfsString(path))
	return val
}

func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
