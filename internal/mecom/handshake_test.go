package mecom

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestHandshakeBothSides(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	ctx := context.Background()
	errCh := make(chan error, 1)
	go func() { errCh <- Handshake(ctx, b, time.Second) }()
	if err := Handshake(ctx, a, time.Second); err != nil {
		t.Fatalf("handshake a: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("handshake b: %v", err)
	}
}

func TestHandshakeBadHello(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	go func() {
		buf := make([]byte, len(hello))
		_, _ = b.Read(buf)
		_, _ = b.Write([]byte("NOTMECOMX"))
	}()
	if err := Handshake(context.Background(), a, time.Second); err == nil {
		t.Fatal("expected error on bad hello")
	}
}

func TestHandshakeTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	// peer never answers
	start := time.Now()
	if err := Handshake(context.Background(), a, 50*time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatal("handshake did not respect deadline")
	}
}
