package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := &appConfig{
		serialDev:       "/dev/null",
		baud:            57600,
		listenAddr:      ":20001",
		serialReadTO:    50 * time.Millisecond,
		rxTimeout:       500 * time.Millisecond,
		rs485Mode:       "none",
		logFormat:       "text",
		logLevel:        "info",
		metricsAddr:     "",
		hubBuffer:       512,
		hubPolicy:       "drop",
		backend:         "serial",
		maxClients:      0,
		handshakeTO:     3 * time.Second,
		clientReadTO:    60 * time.Second,
		logMetricsEvery: 0,
		mdnsEnable:      false,
		mdnsName:        "",
	}

	// Set env overrides
	os.Setenv("MECOM_SERVER_BAUD", "115200")
	os.Setenv("MECOM_SERVER_MDNS_ENABLE", "true")
	os.Setenv("MECOM_SERVER_RX_TIMEOUT", "250ms")
	os.Setenv("MECOM_SERVER_RS485_MODE", "gpio")
	os.Setenv("MECOM_SERVER_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("MECOM_SERVER_BAUD")
		os.Unsetenv("MECOM_SERVER_MDNS_ENABLE")
		os.Unsetenv("MECOM_SERVER_RX_TIMEOUT")
		os.Unsetenv("MECOM_SERVER_RS485_MODE")
		os.Unsetenv("MECOM_SERVER_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.baud != 115200 {
		t.Fatalf("expected baud override, got %d", base.baud)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.rxTimeout != 250*time.Millisecond {
		t.Fatalf("expected rxTimeout 250ms got %v", base.rxTimeout)
	}
	if base.rs485Mode != "gpio" {
		t.Fatalf("expected rs485Mode gpio got %q", base.rs485Mode)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{baud: 57600}
	os.Setenv("MECOM_SERVER_BAUD", "115200")
	t.Cleanup(func() { os.Unsetenv("MECOM_SERVER_BAUD") })
	// Simulate user passed -baud flag (so env should be ignored)
	if err := applyEnvOverrides(base, map[string]struct{}{"baud": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.baud != 57600 {
		t.Fatalf("expected baud unchanged 57600 got %d", base.baud)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{hubBuffer: 512}
	os.Setenv("MECOM_SERVER_HUB_BUFFER", "notint")
	t.Cleanup(func() { os.Unsetenv("MECOM_SERVER_HUB_BUFFER") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}

func TestApplyEnvOverrides_BadDuration(t *testing.T) {
	base := &appConfig{rxTimeout: 500 * time.Millisecond}
	os.Setenv("MECOM_SERVER_RX_TIMEOUT", "soon")
	t.Cleanup(func() { os.Unsetenv("MECOM_SERVER_RX_TIMEOUT") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}
