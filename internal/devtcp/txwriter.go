package devtcp

import (
	"context"
	"errors"
	"io"

	"github.com/thermoctl/go-mecom-server/internal/logging"
	"github.com/thermoctl/go-mecom-server/internal/mecom"
	"github.com/thermoctl/go-mecom-server/internal/metrics"
	"github.com/thermoctl/go-mecom-server/internal/transport"
)

var ErrTxOverflow = errors.New("device tcp tx overflow")

// TXWriter funnels all device writes through one goroutine. No direction
// control here; the TCP link is full duplex.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a device TXWriter with a buffered channel of size buf.
func NewTXWriter(parent context.Context, w io.Writer, codec mecom.Codec, buf int) *TXWriter {
	send := func(fr mecom.Frame) error {
		var scratch [mecom.MaxFrameLen]byte
		_, err := w.Write(codec.AppendFrame(scratch[:0], fr))
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrTCPDevWrite)
			logging.L().Error("tcpdev_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncTCPDevTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrTCPDevOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues a frame for asynchronous write (drops with ErrTxOverflow if buffer full).
func (w *TXWriter) SendFrame(fr mecom.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for pending goroutine exit.
func (w *TXWriter) Close() { w.base.Close() }
