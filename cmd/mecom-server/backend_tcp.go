package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/thermoctl/go-mecom-server/internal/devtcp"
	"github.com/thermoctl/go-mecom-server/internal/hub"
	"github.com/thermoctl/go-mecom-server/internal/mecom"
	"github.com/thermoctl/go-mecom-server/internal/metrics"
	"github.com/thermoctl/go-mecom-server/internal/serial"
)

// dialDevice is a hook for tests (overridden in unit tests).
var dialDevice = devtcp.Dial

var errDeviceDown = errors.New("device link down")

// connHolder lets the TX writer keep a stable io.Writer across reconnects.
type connHolder struct {
	mu   sync.RWMutex
	conn net.Conn
}

func (h *connHolder) Write(p []byte) (int, error) {
	h.mu.RLock()
	c := h.conn
	h.mu.RUnlock()
	if c == nil {
		return 0, errDeviceDown
	}
	return c.Write(p)
}

func (h *connHolder) get() net.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn
}

// swap installs a new connection and returns the previous one.
func (h *connHolder) swap(c net.Conn) net.Conn {
	h.mu.Lock()
	old := h.conn
	h.conn = c
	h.mu.Unlock()
	return old
}

// initTCPBackend connects to a TCP-attached device and launches the RX loop
// with redial on link loss.
func initTCPBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func(mecom.Frame) error, func(), error) {
	conn, err := dialDevice(cfg.deviceAddr, deviceDialTimeout)
	if err != nil {
		return nil, func() {}, fmt.Errorf("dial device: %w", err)
	}
	l.Info("device_connected", "addr", cfg.deviceAddr)
	holder := &connHolder{conn: conn}
	codec := mecom.Codec{}
	tw := devtcp.NewTXWriter(ctx, holder, codec, txQueueSize)
	lb := serial.NewLineBuffer(mecom.MaxFrameLen, cfg.rxTimeout, func(line []byte) {
		fr, derr := codec.DecodeLine(line)
		if derr != nil {
			l.Debug("device_frame_rejected", "error", derr, "len", len(line))
			return
		}
		metrics.IncTCPDevRx()
		h.Broadcast(fr)
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("device_rx_end")
		buf := make([]byte, serialReadBufSize)
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c := holder.get()
			if c == nil {
				nc, derr := dialDevice(cfg.deviceAddr, deviceDialTimeout)
				if derr != nil {
					if ctx.Err() != nil {
						return
					}
					metrics.IncError(metrics.ErrTCPDevRead)
					l.Warn("device_redial_error", "error", derr, "backoff", backoff)
					sleepFn(backoff)
					backoff *= 2
					if backoff > rxBackoffMax {
						backoff = rxBackoffMax
					}
					continue
				}
				holder.swap(nc)
				l.Info("device_reconnected", "addr", cfg.deviceAddr)
				backoff = rxBackoffMin
				continue
			}
			_ = c.SetReadDeadline(time.Now().Add(cfg.rxTimeout))
			n, rerr := c.Read(buf)
			if n > 0 {
				lb.Write(buf[:n])
			} else {
				lb.ExpireIfIdle()
			}
			if rerr != nil {
				if ctx.Err() != nil {
					return
				}
				if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
					continue
				}
				metrics.IncError(metrics.ErrTCPDevRead)
				l.Warn("device_read_error", "error", rerr)
				_ = c.Close()
				holder.swap(nil)
			}
		}
	}()
	cleanup := func() {
		if c := holder.swap(nil); c != nil {
			_ = c.Close()
		}
		tw.Close()
	}
	return tw.SendFrame, cleanup, nil
}
