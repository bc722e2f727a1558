package main

import (
	"fmt"

	"go.bug.st/serial"
)

// listSerialPorts prints the serial devices visible to the OS, as a
// convenience for picking the -serial flag value.
func listSerialPorts() error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}
