package v4l2

import (
	"bytes"
	"strings"
)

// uevent actions the driver reacts to.
const (
	actionAdd    = "add"
	actionRemove = "remove"
)

const subsystemVideo4Linux = "video4linux"

// UEvent is a kernel device event.
type UEvent struct {
	Action    string
	KObj      string
	Subsystem string
	DevName   string
	Env       map[string]string
}

// ParseUEvent parses a kernel uevent message of the form
// "ACTION@KOBJ\0KEY=VALUE\0KEY=VALUE\0...". Messages relayed by libudev
// start with a binary header; the first "action@path" segment after it is
// used, or ACTION and DEVPATH from the properties when there is none.
// It returns nil for anything else.
func ParseUEvent(data []byte) *UEvent {
	if len(data) == 0 {
		return nil
	}
	parts := bytes.Split(data, []byte{0})

	if bytes.Equal(parts[0], []byte("libudev")) {
		for i, part := range parts[1:] {
			if isUEventHeader(part) {
				return parseUEvent(parts[i+1:])
			}
		}
		ev := &UEvent{Env: make(map[string]string)}
		ev.addProperties(parts[1:])
		ev.Action, ev.KObj = ev.Env["ACTION"], ev.Env["DEVPATH"]
		if ev.Action == "" || ev.KObj == "" {
			return nil
		}
		return ev
	}
	return parseUEvent(parts)
}

// isUEventHeader reports whether b looks like "action@path".
func isUEventHeader(b []byte) bool {
	at := bytes.IndexByte(b, '@')
	if at < 1 {
		return false
	}
	for _, c := range b[:at] {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

func parseUEvent(parts [][]byte) *UEvent {
	if !isUEventHeader(parts[0]) {
		return nil
	}
	action, kobj, _ := strings.Cut(string(parts[0]), "@")
	ev := &UEvent{
		Action: action,
		KObj:   kobj,
		Env:    make(map[string]string),
	}
	ev.addProperties(parts[1:])
	return ev
}

func (ev *UEvent) addProperties(parts [][]byte) {
	for _, part := range parts {
		key, value, ok := strings.Cut(string(part), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVNAME":
			// libudev reports the full node path
			ev.DevName = strings.TrimPrefix(value, "/dev/")
		}
	}
}
