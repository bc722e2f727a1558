package serial

import (
	"time"

	"github.com/thermoctl/go-mecom-server/internal/metrics"
)

// LineBuffer assembles the byte stream from the device into lines for the
// frame parser. A line ends at the carriage-return terminator. A line that
// reaches Max without a terminator is emitted truncated at the bound. A
// partial line that sees no new bytes within Idle is flushed as-is; the
// parser rejects it downstream. With nothing buffered, an expired window
// emits nothing.
type LineBuffer struct {
	Max  int
	Idle time.Duration
	Out  func(line []byte) // line is only valid for the duration of the call

	buf  []byte
	last time.Time
	now  func() time.Time // test hook
}

func NewLineBuffer(max int, idle time.Duration, out func([]byte)) *LineBuffer {
	if max <= 0 {
		max = 128
	}
	return &LineBuffer{Max: max, Idle: idle, Out: out, buf: make([]byte, 0, max), now: time.Now}
}

func (lb *LineBuffer) emit() {
	if len(lb.buf) == 0 {
		return
	}
	lb.Out(lb.buf)
	lb.buf = lb.buf[:0]
}

// Write feeds received bytes into the buffer, emitting each completed or
// bound-truncated line.
func (lb *LineBuffer) Write(p []byte) {
	for _, b := range p {
		lb.buf = append(lb.buf, b)
		if b == '\r' {
			lb.emit()
			continue
		}
		if len(lb.buf) >= lb.Max {
			metrics.IncLineTruncated()
			lb.emit()
		}
	}
	if len(lb.buf) > 0 {
		lb.last = lb.now()
	}
}

// Pending returns the number of buffered bytes awaiting a terminator.
func (lb *LineBuffer) Pending() int { return len(lb.buf) }

// ExpireIfIdle flushes a stale partial line once the receive window has
// elapsed without new bytes. Returns true if a flush happened.
func (lb *LineBuffer) ExpireIfIdle() bool {
	if len(lb.buf) == 0 || lb.Idle <= 0 {
		return false
	}
	if lb.now().Sub(lb.last) < lb.Idle {
		return false
	}
	metrics.IncIdleFlush()
	lb.emit()
	return true
}
