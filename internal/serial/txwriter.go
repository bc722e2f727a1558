package serial

import (
	"context"
	"errors"
	"time"

	"github.com/thermoctl/go-mecom-server/internal/logging"
	"github.com/thermoctl/go-mecom-server/internal/mecom"
	"github.com/thermoctl/go-mecom-server/internal/metrics"
	"github.com/thermoctl/go-mecom-server/internal/rs485"
	"github.com/thermoctl/go-mecom-server/internal/transport"
)

var ErrTxOverflow = errors.New("serial tx overflow")

// sleepFn allows tests to intercept turnaround sleeps.
var sleepFn = time.Sleep

// TXConfig sets the half-duplex timing of the writer.
type TXConfig struct {
	// Baud is used to model the drain time of written bytes (10 bits per
	// byte at 8N1); tarm/serial exposes no tcdrain.
	Baud int
	// Turnaround is an extra guard interval after the drain before the bus
	// is released back to receive.
	Turnaround time.Duration
}

func wireTime(n, baud int) time.Duration {
	if baud <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(n) * 10 * time.Second / time.Duration(baud)
}

// TXWriter funnels all serial writes through one goroutine and brackets
// each write with the RS-485 direction switch: transmit mode, write, drain,
// back to receive mode.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a serial TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, sp Port, codec mecom.Codec, dir rs485.Direction, cfg TXConfig, buf int) *TXWriter {
	send := func(fr mecom.Frame) error {
		var scratch [mecom.MaxFrameLen]byte
		b := codec.AppendFrame(scratch[:0], fr)
		if err := dir.SetTransmit(); err != nil {
			metrics.IncError(metrics.ErrDirectionSwitch)
			return err
		}
		_, werr := sp.Write(b)
		sleepFn(wireTime(len(b), cfg.Baud) + cfg.Turnaround)
		if derr := dir.SetReceive(); derr != nil {
			metrics.IncError(metrics.ErrDirectionSwitch)
			logging.L().Error("rs485_release_error", "error", derr)
			if werr == nil {
				werr = derr
			}
		}
		return werr
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			logging.L().Error("serial_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncSerialTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues a frame for asynchronous write (drops with ErrTxOverflow if buffer full).
func (w *TXWriter) SendFrame(fr mecom.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for pending goroutine exit.
func (w *TXWriter) Close() { w.base.Close() }
