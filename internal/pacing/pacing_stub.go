//go:build !linux

package pacing

import (
	"errors"
	"syscall"
)

// ErrUnsupported reports that kernel pacing is linux-only.
var ErrUnsupported = errors.New("pacing: kernel pacing is only supported on linux")

// Apply is a no-op stub on non-linux platforms.
func Apply(_ syscall.Conn, bytesPerSec float64) error {
	if bytesPerSec <= 0 {
		return nil
	}
	return ErrUnsupported
}

// FQInstalled always reports false on non-linux platforms.
func FQInstalled() (bool, error) {
	return false, nil
}
