package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	serialDev       string
	baud            int
	listenAddr      string
	serialReadTO    time.Duration
	rxTimeout       time.Duration
	rs485Mode       string
	rs485Pin        int
	rs485Turnaround time.Duration
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	backend         string
	deviceAddr      string
	maxClients      int
	handshakeTO     time.Duration
	clientReadTO    time.Duration
	mdnsEnable      bool
	mdnsName        string
	mqttBroker      string
}

func parseFlags() (*appConfig, bool, bool) {
	cfg := &appConfig{}
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baud := flag.Int("baud", 57600, "Serial baud rate")
	listen := flag.String("listen", ":20001", "TCP listen address")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read poll timeout")
	rxTimeout := flag.Duration("rx-timeout", 500*time.Millisecond, "Receive window: partial lines idle longer than this are flushed")
	rs485Mode := flag.String("rs485-mode", "none", "RS-485 direction control: none|gpio|kernel")
	rs485Pin := flag.Int("rs485-pin", 4, "GPIO pin driving the transceiver direction (when --rs485-mode=gpio)")
	rs485Turnaround := flag.Duration("rs485-turnaround", time.Millisecond, "Guard interval after TX drain before releasing the bus")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	hubBuf := flag.Int("hub-buffer", 512, "Per-client hub buffer (frames)")
	hubPolicy := flag.String("hub-policy", "drop", "Backpressure policy: drop|kick")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	backend := flag.String("backend", "serial", "Device backend: serial|tcp")
	deviceAddr := flag.String("device-addr", "", "Device TCP address (when --backend=tcp)")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	handshakeTO := flag.Duration("handshake-timeout", 3*time.Second, "Client handshake timeout")
	clientReadTO := flag.Duration("client-read-timeout", 60*time.Second, "Per-connection read deadline")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement (packaged systemd unit enables by default)")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default mecom-server-<hostname>)")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker URL (e.g., mqtt://host:1883/prefix); empty disables the bridge")
	showVersion := flag.Bool("version", false, "Print version and exit")
	listPortsFlag := flag.Bool("list-ports", false, "List available serial ports and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.listenAddr = *listen
	cfg.serialReadTO = *serialReadTO
	cfg.rxTimeout = *rxTimeout
	cfg.rs485Mode = *rs485Mode
	cfg.rs485Pin = *rs485Pin
	cfg.rs485Turnaround = *rs485Turnaround
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.hubBuffer = *hubBuf
	cfg.hubPolicy = *hubPolicy
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.backend = *backend
	cfg.deviceAddr = *deviceAddr
	cfg.maxClients = *maxClients
	cfg.handshakeTO = *handshakeTO
	cfg.clientReadTO = *clientReadTO
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.mqttBroker = *mqttBroker

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion, *listPortsFlag
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion, *listPortsFlag
	}
	return cfg, *showVersion, *listPortsFlag
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "serial", "tcp":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.backend == "tcp" && c.deviceAddr == "" {
		return errors.New("device-addr is required with --backend=tcp")
	}
	switch c.rs485Mode {
	case "none", "gpio", "kernel":
	default:
		return fmt.Errorf("invalid rs485-mode: %s", c.rs485Mode)
	}
	if c.rs485Mode == "gpio" && c.rs485Pin < 0 {
		return fmt.Errorf("rs485-pin must be >= 0 (got %d)", c.rs485Pin)
	}
	if c.rs485Turnaround < 0 {
		return errors.New("rs485-turnaround must be >= 0")
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return errors.New("serial-read-timeout must be > 0")
	}
	if c.rxTimeout <= 0 {
		return errors.New("rx-timeout must be > 0")
	}
	if c.handshakeTO <= 0 {
		return errors.New("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return errors.New("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return errors.New("max-clients must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps MECOM_SERVER_* environment variables to config fields
// unless a corresponding flag was explicitly set. Boolean & numeric parsing is lax:
// empty values ignored. Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	// Only apply if NOT in set (flag wins).
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	str := func(flagName, env string, dst *string) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			*dst = v
		}
	}
	num := func(flagName, env string, dst *int, min int) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= min {
				*dst = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", env, err)
			}
		}
	}
	dur := func(flagName, env string, dst *time.Duration) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				*dst = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", env, err)
			}
		}
	}
	str("serial", "MECOM_SERVER_SERIAL", &c.serialDev)
	num("baud", "MECOM_SERVER_BAUD", &c.baud, 1)
	str("listen", "MECOM_SERVER_LISTEN", &c.listenAddr)
	dur("serial-read-timeout", "MECOM_SERVER_SERIAL_READ_TIMEOUT", &c.serialReadTO)
	dur("rx-timeout", "MECOM_SERVER_RX_TIMEOUT", &c.rxTimeout)
	str("rs485-mode", "MECOM_SERVER_RS485_MODE", &c.rs485Mode)
	num("rs485-pin", "MECOM_SERVER_RS485_PIN", &c.rs485Pin, 0)
	dur("rs485-turnaround", "MECOM_SERVER_RS485_TURNAROUND", &c.rs485Turnaround)
	str("log-format", "MECOM_SERVER_LOG_FORMAT", &c.logFormat)
	str("log-level", "MECOM_SERVER_LOG_LEVEL", &c.logLevel)
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("MECOM_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	num("hub-buffer", "MECOM_SERVER_HUB_BUFFER", &c.hubBuffer, 1)
	str("hub-policy", "MECOM_SERVER_HUB_POLICY", &c.hubPolicy)
	str("backend", "MECOM_SERVER_BACKEND", &c.backend)
	str("device-addr", "MECOM_SERVER_DEVICE_ADDR", &c.deviceAddr)
	num("max-clients", "MECOM_SERVER_MAX_CLIENTS", &c.maxClients, 0)
	dur("handshake-timeout", "MECOM_SERVER_HANDSHAKE_TIMEOUT", &c.handshakeTO)
	dur("client-read-timeout", "MECOM_SERVER_CLIENT_READ_TIMEOUT", &c.clientReadTO)
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("MECOM_SERVER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	str("mdns-name", "MECOM_SERVER_MDNS_NAME", &c.mdnsName)
	str("mqtt-broker", "MECOM_SERVER_MQTT_BROKER", &c.mqttBroker)
	dur("log-metrics-interval", "MECOM_SERVER_LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	return firstErr
}
