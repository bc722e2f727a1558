//go:build linux

package rs485

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// serial_rs485 from <linux/serial.h>.
type serialRS485 struct {
	Flags              uint32
	DelayRtsBeforeSend uint32
	DelayRtsAfterSend  uint32
	Padding            [5]uint32
}

const (
	serRS485Enabled      = 1 << 0
	serRS485RTSOnSend    = 1 << 1
	serRS485RTSAfterSend = 1 << 2
)

// Configure enables kernel-managed RS-485 on the tty at path: the driver
// asserts RTS for the duration of each transmission, with the given delays
// (rounded to milliseconds) around it. Callers then use Nop as the
// userspace direction controller. Returns an error if the tty driver does
// not implement TIOCSRS485.
func Configure(path string, delayBefore, delayAfter time.Duration) error {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return fmt.Errorf("rs485: open %s: %w", path, err)
	}
	defer f.Close()

	rs := serialRS485{
		Flags:              serRS485Enabled | serRS485RTSOnSend,
		DelayRtsBeforeSend: uint32(delayBefore.Milliseconds()),
		DelayRtsAfterSend:  uint32(delayAfter.Milliseconds()),
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.TIOCSRS485, uintptr(unsafe.Pointer(&rs)))
	if errno != 0 {
		return fmt.Errorf("rs485: TIOCSRS485 on %s: %w", path, errno)
	}
	return nil
}
