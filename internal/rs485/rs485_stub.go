//go:build !linux

package rs485

import (
	"errors"
	"time"
)

// ErrUnsupported is returned where the platform has no kernel RS-485 mode.
var ErrUnsupported = errors.New("rs485: kernel mode not supported on this platform")

// Configure is a stub on non-Linux platforms; use a GPIO direction pin
// instead.
func Configure(path string, delayBefore, delayAfter time.Duration) error {
	return ErrUnsupported
}
