package serial

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thermoctl/go-mecom-server/internal/mecom"
)

// recordingPort captures writes; Read blocks briefly like an idle bus.
type recordingPort struct {
	mu     sync.Mutex
	writes [][]byte
	block  chan struct{} // if set, Write blocks until closed
}

func (p *recordingPort) Read(b []byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (p *recordingPort) Write(b []byte) (int, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	p.writes = append(p.writes, append([]byte(nil), b...))
	p.mu.Unlock()
	return len(b), nil
}

func (p *recordingPort) Flush() error { return nil }
func (p *recordingPort) Close() error { return nil }

// recordingDirection records the switch sequence.
type recordingDirection struct {
	mu  sync.Mutex
	seq []string
}

func (d *recordingDirection) SetTransmit() error {
	d.mu.Lock()
	d.seq = append(d.seq, "tx")
	d.mu.Unlock()
	return nil
}

func (d *recordingDirection) SetReceive() error {
	d.mu.Lock()
	d.seq = append(d.seq, "rx")
	d.mu.Unlock()
	return nil
}

func TestTXWriterBracketsWriteWithDirectionSwitch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleepFn = func(time.Duration) {}
	defer func() { sleepFn = time.Sleep }()

	sp := &recordingPort{}
	dir := &recordingDirection{}
	w := NewTXWriter(ctx, sp, mecom.Codec{}, dir, TXConfig{Baud: 57600, Turnaround: time.Millisecond}, 8)
	defer w.Close()

	fr := mecom.Frame{Control: mecom.ControlHost, Addr: 1, Seq: 2, Len: 3}
	copy(fr.Data[:], "?IF")
	if err := w.SendFrame(fr); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sp.mu.Lock()
		n := len(sp.writes)
		sp.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if len(sp.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(sp.writes))
	}
	wire := sp.writes[0]
	if wire[0] != mecom.ControlHost || wire[len(wire)-1] != '\r' {
		t.Fatalf("unexpected wire frame %q", wire)
	}
	dir.mu.Lock()
	defer dir.mu.Unlock()
	if len(dir.seq) != 2 || dir.seq[0] != "tx" || dir.seq[1] != "rx" {
		t.Fatalf("direction sequence %v, want [tx rx]", dir.seq)
	}
}

func TestTXWriterOverflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleepFn = func(time.Duration) {}
	defer func() { sleepFn = time.Sleep }()

	block := make(chan struct{})
	sp := &recordingPort{block: block}
	w := NewTXWriter(ctx, sp, mecom.Codec{}, &recordingDirection{}, TXConfig{Baud: 57600}, 2)
	defer w.Close()
	defer close(block) // unblock the worker before Close waits on it

	var overflow error
	for i := 0; i < 8; i++ {
		if err := w.SendFrame(mecom.Frame{Control: mecom.ControlHost}); err != nil && overflow == nil {
			overflow = err
		}
	}
	if !errors.Is(overflow, ErrTxOverflow) {
		t.Fatalf("expected ErrTxOverflow, got %v", overflow)
	}
}

func TestWireTime(t *testing.T) {
	// 10 bits per byte: 57600 baud moves 5760 bytes/s.
	if got := wireTime(5760, 57600); got != time.Second {
		t.Fatalf("wireTime(5760, 57600) = %v, want 1s", got)
	}
	if got := wireTime(10, 0); got != 0 {
		t.Fatalf("wireTime with zero baud = %v, want 0", got)
	}
}
