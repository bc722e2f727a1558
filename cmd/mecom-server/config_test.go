package main

import (
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		serialDev:       "/dev/null",
		baud:            57600,
		listenAddr:      ":20001",
		serialReadTO:    10 * time.Millisecond,
		rxTimeout:       500 * time.Millisecond,
		rs485Mode:       "none",
		rs485Pin:        4,
		rs485Turnaround: time.Millisecond,
		logFormat:       "text",
		logLevel:        "info",
		hubBuffer:       8,
		hubPolicy:       "drop",
		backend:         "serial",
		maxClients:      0,
		handshakeTO:     time.Second,
		clientReadTO:    time.Second,
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_TCPBackend(t *testing.T) {
	c := baseConfig()
	c.backend = "tcp"
	c.deviceAddr = "10.0.0.5:5000"
	if err := c.validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badBackend", func(c *appConfig) { c.backend = "x" }},
		{"tcpNoAddr", func(c *appConfig) { c.backend = "tcp"; c.deviceAddr = "" }},
		{"badRS485Mode", func(c *appConfig) { c.rs485Mode = "x" }},
		{"badRS485Pin", func(c *appConfig) { c.rs485Mode = "gpio"; c.rs485Pin = -1 }},
		{"badTurnaround", func(c *appConfig) { c.rs485Turnaround = -time.Millisecond }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badBaud", func(c *appConfig) { c.baud = 0 }},
		{"badSerialTO", func(c *appConfig) { c.serialReadTO = 0 }},
		{"badRxTimeout", func(c *appConfig) { c.rxTimeout = 0 }},
		{"badHandshakeTO", func(c *appConfig) { c.handshakeTO = 0 }},
		{"badClientReadTO", func(c *appConfig) { c.clientReadTO = 0 }},
		{"badMaxClients", func(c *appConfig) { c.maxClients = -1 }},
	}
	for _, tc := range tests {
		base := baseConfig()
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
