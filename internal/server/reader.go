package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/thermoctl/go-mecom-server/internal/devtcp"
	"github.com/thermoctl/go-mecom-server/internal/hub"
	"github.com/thermoctl/go-mecom-server/internal/mecom"
	"github.com/thermoctl/go-mecom-server/internal/metrics"
	"github.com/thermoctl/go-mecom-server/internal/serial"
)

// isProtocolErr reports codec rejections that leave the stream usable: the
// offending frame was consumed (or can be skipped to the next CR), so the
// connection stays up.
func isProtocolErr(err error) bool {
	return errors.Is(err, mecom.ErrBadCRC) ||
		errors.Is(err, mecom.ErrInvalidHeader) ||
		errors.Is(err, mecom.ErrFrameTooLong)
}

// drainToCR skips bytes until the next frame terminator so an overlong
// frame does not desynchronize the stream.
func drainToCR(r io.Reader) error {
	var b [1]byte
	for {
		if _, err := r.Read(b[:]); err != nil {
			return err
		}
		if b[0] == '\r' {
			return nil
		}
	}
}

func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close() }()
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			fr, err := s.Codec.Decode(conn)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				if isProtocolErr(err) {
					logger.Debug("client_frame_rejected", "error", err)
					if errors.Is(err, mecom.ErrFrameTooLong) {
						if derr := drainToCR(conn); derr != nil {
							return
						}
					}
					continue
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return
			}
			if s.frameFilter != nil && !s.frameFilter(&fr) {
				continue
			}
			metrics.IncTCPRx()
			if err := s.Send(fr); err != nil {
				if errors.Is(err, serial.ErrTxOverflow) || errors.Is(err, devtcp.ErrTxOverflow) {
					s.totalBackendOverflow.Add(1)
					logger.Debug("backend_overflow_drop", "addr", fr.Addr, "seq", fr.Seq)
				} else {
					wrap := fmt.Errorf("%w: %v", ErrBackendTx, err)
					s.setError(wrap)
					s.totalBackendErrors.Add(1)
					logger.Error("backend_tx_error", "error", wrap, "addr", fr.Addr, "seq", fr.Seq)
				}
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}
