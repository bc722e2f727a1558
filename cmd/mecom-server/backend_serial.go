package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/thermoctl/go-mecom-server/internal/hub"
	"github.com/thermoctl/go-mecom-server/internal/mecom"
	"github.com/thermoctl/go-mecom-server/internal/metrics"
	"github.com/thermoctl/go-mecom-server/internal/rs485"
	"github.com/thermoctl/go-mecom-server/internal/serial"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// openSerialPort is a hook for tests (overridden in unit tests).
var openSerialPort = serial.Open

// initDirection builds the RS-485 direction controller for the configured
// mode. Kernel mode configures the tty driver to own RTS and returns Nop.
func initDirection(cfg *appConfig, l *slog.Logger) (rs485.Direction, error) {
	switch cfg.rs485Mode {
	case "gpio":
		pin, err := rs485.NewGPIOPin("", cfg.rs485Pin)
		if err != nil {
			return nil, err
		}
		l.Info("rs485_gpio", "pin", cfg.rs485Pin)
		return pin, nil
	case "kernel":
		if err := rs485.Configure(cfg.serialDev, 0, cfg.rs485Turnaround); err != nil {
			return nil, err
		}
		l.Info("rs485_kernel", "device", cfg.serialDev)
		return rs485.Nop{}, nil
	default:
		return rs485.Nop{}, nil
	}
}

// initSerialBackend sets up the serial backend, launching the RX loop.
func initSerialBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func(mecom.Frame) error, func(), error) {
	dir, err := initDirection(cfg, l)
	if err != nil {
		return nil, func() {}, fmt.Errorf("rs485 setup: %w", err)
	}
	sp, err := openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		return nil, func() {}, fmt.Errorf("open serial: %w", err)
	}
	_ = sp.Flush() // discard whatever accumulated while the bus was unattended
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud, "rs485", cfg.rs485Mode)
	codec := mecom.Codec{}
	w := serial.NewTXWriter(ctx, sp, codec, dir, serial.TXConfig{Baud: cfg.baud, Turnaround: cfg.rs485Turnaround}, txQueueSize)
	lb := serial.NewLineBuffer(mecom.MaxFrameLen, cfg.rxTimeout, func(line []byte) {
		fr, derr := codec.DecodeLine(line)
		if derr != nil {
			l.Debug("serial_frame_rejected", "error", derr, "len", len(line))
			return
		}
		metrics.IncSerialRx()
		h.Broadcast(fr)
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("serial_rx_end")
		buf := make([]byte, serialReadBufSize)
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := sp.Read(buf)
			if n > 0 {
				lb.Write(buf[:n])
				backoff = rxBackoffMin
			} else {
				lb.ExpireIfIdle()
			}
			if err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				var perr *os.PathError
				if errors.As(err, &perr) {
					return // device removed or fatal
				}
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					continue // ignore transient EOF
				}
				metrics.IncError(metrics.ErrSerialRead)
				l.Warn("serial_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
			}
		}
	}()
	return w.SendFrame, func() { _ = sp.Close(); w.Close() }, nil
}
