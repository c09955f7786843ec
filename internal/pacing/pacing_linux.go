//go:build linux

// Package pacing applies SO_MAX_PACING_RATE to the probe socket so the
// kernel smooths bursts between the userspace pacer's wakeups. The
// option only takes effect when an fq qdisc is installed, so callers
// can check FQInstalled and warn instead of failing.
package pacing

import (
	"syscall"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Apply sets the kernel pacing rate (bytes/sec) on conn.
func Apply(conn syscall.Conn, bytesPerSec float64) error {
	if bytesPerSec <= 0 {
		return nil
	}
	rate := uint64(bytesPerSec)
	if rate < 1 {
		rate = 1
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	controlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptUint64(int(fd), unix.SOL_SOCKET, unix.SO_MAX_PACING_RATE, rate)
	})
	if controlErr != nil {
		return controlErr
	}
	return sockErr
}

// FQInstalled reports whether any interface carries an fq qdisc.
func FQInstalled() (bool, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return false, err
	}
	for _, link := range links {
		qdiscs, err := netlink.QdiscList(link)
		if err != nil {
			continue
		}
		for _, qdisc := range qdiscs {
			if qdisc.Type() == "fq" {
				return true, nil
			}
		}
	}
	return false, nil
}
