//go:build linux

package v4l2

import (
	"context"
	"errors"
	"syscall"
)

// netlinkKobjectUEvent is the netlink protocol for kernel object events.
const netlinkKobjectUEvent = 15

// monitor reads kernel uevents from a netlink socket.
type monitor struct {
	fd  int
	buf []byte
}

func newMonitor() (*monitor, error) {
	fd, err := syscall.Socket(syscall.AF_NETLINK, syscall.SOCK_DGRAM|syscall.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}
	addr := &syscall.SockaddrNetlink{
		Family: syscall.AF_NETLINK,
		Groups: 1, // kernel broadcast group
	}
	if err := syscall.Bind(fd, addr); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	// Periodic read timeout so next can observe ctx.
	tv := syscall.Timeval{Sec: 1}
	if err := syscall.SetsockoptTimeval(fd, syscall.SOL_SOCKET, syscall.SO_RCVTIMEO, &tv); err != nil {
		syscall.Close(fd)
		return nil, err
	}
	return &monitor{fd: fd, buf: make([]byte, 8192)}, nil
}

func (m *monitor) Close() error {
	return syscall.Close(m.fd)
}

// next blocks until a parseable event arrives or ctx is done.
func (m *monitor) next(ctx context.Context) (*UEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, _, err := syscall.Recvfrom(m.fd, m.buf, 0)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINTR) {
				continue
			}
			return nil, err
		}
		if n == 0 {
			continue
		}
		if ev := ParseUEvent(m.buf[:n]); ev != nil {
			return ev, nil
		}
	}
}
