// internal/protocol/frame.go
package protocol

import (
	"context"
	"strings"
	"time"
)

const (
	cr = 0x0D
	lf = 0x0A

	// endOfMessage is the number of terminator bytes closing a frame
	endOfMessage = 2
)

// Poll is the receive budget of one frame
type Poll struct {
	Count    int
	Interval time.Duration
	// ResetOnData restarts the idle count whenever a byte arrives
	ResetOnData bool
}

// Budget returns the worst-case idle wait
func (p Poll) Budget() time.Duration {
	return time.Duration(p.Count) * p.Interval
}

// StandardPoll is the serial default: 20 polls of 10ms, not reset by traffic
func StandardPoll() Poll {
	return Poll{Count: 20, Interval: 10 * time.Millisecond}
}

// FastPoll is the serial variant for bulk retrieval: n idle polls of 1ms
func FastPoll(n int) Poll {
	return Poll{Count: n, Interval: time.Millisecond, ResetOnData: true}
}

// WLANPoll is the datagram budget: 5 polls of 100ms
func WLANPoll() Poll {
	return Poll{Count: 5, Interval: 100 * time.Millisecond}
}

// FrameReceiver accumulates reply bytes until a frame is complete.
// The zero value is ready to use.
type FrameReceiver struct {
	buf         strings.Builder
	started     bool
	terminators int
}

func isTerminator(b byte) bool {
	return b == cr || b == lf
}

// Feed adds one byte. It returns the frame text and true once the second
// terminator after the first payload byte has been seen.
func (f *FrameReceiver) Feed(b byte) (string, bool) {
	if !isTerminator(b) {
		f.buf.WriteByte(b)
		f.started = true
		return "", false
	}
	if !f.started {
		return "", false
	}
	f.terminators++
	if f.terminators < endOfMessage {
		return "", false
	}
	frame := f.buf.String()
	f.Reset()
	return frame, true
}

// FeedDatagram adds one datagram. A datagram longer than one byte is a
// whole message on its own; single bytes go through Feed.
func (f *FrameReceiver) FeedDatagram(d []byte) (string, bool) {
	switch len(d) {
	case 0:
		return "", false
	case 1:
		return f.Feed(d[0])
	}
	f.Reset()
	return strings.Trim(string(d), "\r\n"), true
}

// Partial returns the bytes accumulated so far
func (f *FrameReceiver) Partial() string {
	return f.buf.String()
}

// Reset discards any partial frame
func (f *FrameReceiver) Reset() {
	f.buf.Reset()
	f.started = false
	f.terminators = 0
}

// ByteSource delivers at most one byte per call. A false result means no
// byte arrived within one poll interval.
type ByteSource interface {
	ReadByte(interval time.Duration) (byte, bool, error)
}

// ByteSourceFunc adapts a function to ByteSource
type ByteSourceFunc func(interval time.Duration) (byte, bool, error)

// ReadByte calls f
func (f ByteSourceFunc) ReadByte(interval time.Duration) (byte, bool, error) {
	return f(interval)
}

// ReceiveFrame pulls bytes from src until a frame completes or the poll
// budget is spent. On timeout the partial frame is discarded and
// ErrTimedOut is returned.
func ReceiveFrame(ctx context.Context, src ByteSource, poll Poll) (string, error) {
	var fr FrameReceiver
	idle := 0
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		b, ok, err := src.ReadByte(poll.Interval)
		if err != nil {
			return "", err
		}
		if !ok {
			idle++
			if idle >= poll.Count {
				return "", ErrTimedOut
			}
			continue
		}
		if poll.ResetOnData {
			idle = 0
		}
		if frame, done := fr.Feed(b); done {
			return frame, nil
		}
	}
}
