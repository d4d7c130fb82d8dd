package systemd

import (
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// listenNotify points NOTIFY_SOCKET at a datagram socket and returns it.
func listenNotify(t *testing.T) *net.UnixConn {
	t.Helper()
	dir, err := os.MkdirTemp("", "sd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func readMessage(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	buf := make([]byte, 256)
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("no notification received: %v", err)
	}
	return string(buf[:n])
}

func TestNotifierWithoutSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	n := NewNotifier(newTestLogger())
	n.Ready()
	n.Status("idle")
	n.Stopping()
}

func TestNotifierMessages(t *testing.T) {
	conn := listenNotify(t)
	t.Setenv("WATCHDOG_USEC", "")
	n := NewNotifier(newTestLogger())

	n.Ready()
	if got := readMessage(t, conn); got != "READY=1" {
		t.Errorf("ready message = %q", got)
	}

	n.Status("2 pipelines running")
	if got := readMessage(t, conn); got != "STATUS=2 pipelines running" {
		t.Errorf("status message = %q", got)
	}

	n.Stopping()
	if got := readMessage(t, conn); got != "STOPPING=1" {
		t.Errorf("stopping message = %q", got)
	}
}

func TestNotifierWatchdog(t *testing.T) {
	conn := listenNotify(t)
	// 100ms watchdog, pinged every 50ms
	t.Setenv("WATCHDOG_USEC", "100000")
	t.Setenv("WATCHDOG_PID", "")
	n := NewNotifier(newTestLogger())

	n.Ready()
	if got := readMessage(t, conn); got != "READY=1" {
		t.Fatalf("ready message = %q", got)
	}
	if got := readMessage(t, conn); !strings.HasPrefix(got, "WATCHDOG=1") {
		t.Errorf("expected watchdog ping, got %q", got)
	}

	n.Stopping()
	// drain pings sent before the watchdog stopped
	for {
		if got := readMessage(t, conn); got == "STOPPING=1" {
			break
		}
	}
}
