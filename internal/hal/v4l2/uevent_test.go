package v4l2

import "testing"

func TestParseUEvent(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		wantNil   bool
		action    string
		subsystem string
		devName   string
	}{
		{
			name:      "video add",
			data:      []byte("add@/devices/pci0000:00/usb1/1-1/video4linux/video0\x00ACTION=add\x00SUBSYSTEM=video4linux\x00DEVNAME=video0\x00"),
			action:    "add",
			subsystem: "video4linux",
			devName:   "video0",
		},
		{
			name:      "video remove",
			data:      []byte("remove@/devices/platform/fe800000.csi/video4linux/video2\x00SUBSYSTEM=video4linux\x00DEVNAME=video2"),
			action:    "remove",
			subsystem: "video4linux",
			devName:   "video2",
		},
		{
			name:      "libudev header",
			data:      []byte("libudev\x00\xfe\xed\x00add@/devices/x/video4linux/video1\x00SUBSYSTEM=video4linux\x00DEVNAME=video1"),
			action:    "add",
			subsystem: "video4linux",
			devName:   "video1",
		},
		{
			name:      "libudev header containing @",
			data:      []byte("libudev\x00\xfe@\x01\x00\x10@\x00add@/devices/x/video4linux/video3\x00SUBSYSTEM=video4linux\x00DEVNAME=video3"),
			action:    "add",
			subsystem: "video4linux",
			devName:   "video3",
		},
		{
			name:      "libudev properties only",
			data:      []byte("libudev\x00\xfe\xed\x00ACTION=remove\x00DEVPATH=/devices/x/video4linux/video1\x00SUBSYSTEM=video4linux\x00DEVNAME=/dev/video1"),
			action:    "remove",
			subsystem: "video4linux",
			devName:   "video1",
		},
		{name: "libudev without action", data: []byte("libudev\x00\xfe\xed\x00SUBSYSTEM=video4linux"), wantNil: true},
		{name: "empty", data: nil, wantNil: true},
		{name: "no action", data: []byte("@/devices/x\x00SUBSYSTEM=usb"), wantNil: true},
		{name: "garbage", data: []byte("not a uevent"), wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ParseUEvent(tt.data)
			if tt.wantNil {
				if ev != nil {
					t.Fatalf("Expected nil, got %+v", ev)
				}
				return
			}
			if ev == nil {
				t.Fatal("Expected event, got nil")
			}
			if ev.Action != tt.action {
				t.Errorf("Expected action %s, got %s", tt.action, ev.Action)
			}
			if ev.Subsystem != tt.subsystem {
				t.Errorf("Expected subsystem %s, got %s", tt.subsystem, ev.Subsystem)
			}
			if ev.DevName != tt.devName {
				t.Errorf("Expected devname %s, got %s", tt.devName, ev.DevName)
			}
		})
	}
}
