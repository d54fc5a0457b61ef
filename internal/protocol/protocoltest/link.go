// Package protocoltest provides in-memory links and a simulated PiKoder
// for tests.
package protocoltest

import (
	"context"
	"sync"

	"pikoder-service/internal/model"
	"pikoder-service/internal/protocol"
)

// Responder produces the reply to one transmitted frame. ok is false when
// the device stays silent.
type Responder func(frame []byte) (reply string, ok bool)

// Link is a scripted protocol.Transport. Replies produced by Respond are
// queued and handed out by Receive; an empty queue reads as a timeout.
type Link struct {
	mu      sync.Mutex
	kind    model.LinkType
	caps    protocol.Capabilities
	target  string
	open    bool
	respond Responder
	pending []string
	sent    []string

	// ConnectErr fails the next Connect
	ConnectErr error
	// SendErr fails every Send and closes the link
	SendErr error

	Drains       int
	FastReceives int
}

// NewLink creates a closed link of kind answering through respond.
// Serial links report a liveness probe and binary frames; WLAN links neither.
func NewLink(kind model.LinkType, respond Responder) *Link {
	l := &Link{kind: kind, respond: respond}
	if kind == model.LinkTypeSerial {
		l.caps = protocol.Capabilities{LivenessProbe: true, BinaryFrames: true}
	}
	return l
}

// SetResponder replaces the device behind the link
func (l *Link) SetResponder(respond Responder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.respond = respond
}

// Sent returns every frame transmitted so far
func (l *Link) Sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.sent))
	copy(out, l.sent)
	return out
}

// Queue appends an unsolicited reply
func (l *Link) Queue(reply string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, reply)
}

func (l *Link) Connect(ctx context.Context, target string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ConnectErr != nil {
		err := l.ConnectErr
		l.ConnectErr = nil
		return &protocol.TransportError{Link: l.kind, Op: "open", Err: err}
	}
	l.open = true
	l.target = target
	return nil
}

func (l *Link) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
	l.pending = nil
	return nil
}

func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

func (l *Link) Send(ctx context.Context, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return protocol.ErrNotOpen
	}
	if l.SendErr != nil {
		l.open = false
		return &protocol.TransportError{Link: l.kind, Op: "write", Err: l.SendErr}
	}
	l.sent = append(l.sent, string(data))
	if l.respond != nil {
		if reply, ok := l.respond(data); ok {
			l.pending = append(l.pending, reply)
		}
	}
	return nil
}

func (l *Link) Receive(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return "", protocol.ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(l.pending) == 0 {
		return "", protocol.ErrTimedOut
	}
	reply := l.pending[0]
	l.pending = l.pending[1:]
	return reply, nil
}

func (l *Link) ReceiveFast(ctx context.Context, polls int) (string, error) {
	l.mu.Lock()
	l.FastReceives++
	l.mu.Unlock()
	return l.Receive(ctx)
}

func (l *Link) Drain(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return protocol.ErrNotOpen
	}
	l.Drains++
	l.pending = nil
	return nil
}

// IsAlive sends "*" when the link has a liveness probe
func (l *Link) IsAlive(ctx context.Context) bool {
	if !l.caps.LivenessProbe {
		return l.IsOpen()
	}
	if err := l.Send(ctx, []byte("*")); err != nil {
		return false
	}
	reply, err := l.Receive(ctx)
	return err == nil && reply == "?"
}

func (l *Link) Kind() model.LinkType {
	return l.kind
}

func (l *Link) Target() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target
}

func (l *Link) Capabilities() protocol.Capabilities {
	return l.caps
}

func (l *Link) Stats() protocol.ProtocolStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return protocol.ProtocolStats{
		OperationCount: int64(len(l.sent)),
		IsConnected:    l.open,
	}
}
