// Package rs485 controls the transceiver direction of a half-duplex RS-485
// link. The bus carries one talker at a time, so the driver must be enabled
// just before transmitting and released as soon as the last bit has left
// the UART.
package rs485

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Direction switches a transceiver between transmit and receive mode.
type Direction interface {
	SetTransmit() error
	SetReceive() error
}

// Nop is used for full-duplex links, externally switched transceivers, or
// ttys where the kernel drives RTS itself (see Configure).
type Nop struct{}

func (Nop) SetTransmit() error { return nil }
func (Nop) SetReceive() error  { return nil }

// GPIOPin drives a direction-enable pin through the sysfs GPIO interface.
// High selects transmit, low selects receive, matching the usual DE/RE~
// wiring of MAX485-class transceivers.
type GPIOPin struct {
	valuePath string
}

// NewGPIOPin exports pin under base (normally /sys/class/gpio), sets it as
// an output and returns it in receive mode. A base override keeps the type
// testable without hardware.
func NewGPIOPin(base string, pin int) (*GPIOPin, error) {
	if base == "" {
		base = "/sys/class/gpio"
	}
	dir := filepath.Join(base, fmt.Sprintf("gpio%d", pin))
	if _, err := os.Stat(dir); err != nil {
		if err := os.WriteFile(filepath.Join(base, "export"), []byte(strconv.Itoa(pin)), 0o200); err != nil {
			return nil, fmt.Errorf("rs485: export gpio%d: %w", pin, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("out"), 0o200); err != nil {
		return nil, fmt.Errorf("rs485: gpio%d direction: %w", pin, err)
	}
	p := &GPIOPin{valuePath: filepath.Join(dir, "value")}
	if err := p.SetReceive(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *GPIOPin) write(v string) error {
	if err := os.WriteFile(p.valuePath, []byte(v), 0o200); err != nil {
		return fmt.Errorf("rs485: gpio write: %w", err)
	}
	return nil
}

func (p *GPIOPin) SetTransmit() error { return p.write("1") }
func (p *GPIOPin) SetReceive() error  { return p.write("0") }
