package server

import (
	"context"
	"net"

	"github.com/thermoctl/go-mecom-server/internal/mecom"
)

// Handshake runs the required TCP hello exchange.
func (s *Server) Handshake(ctx context.Context, c net.Conn) error {
	return mecom.Handshake(ctx, c, s.handshakeTimeout)
}
