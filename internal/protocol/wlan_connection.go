// internal/protocol/wlan_connection.go
package protocol

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"pikoder-service/internal/model"
	"pikoder-service/internal/utils"
)

const (
	maxDatagram = 512
	// readSlice bounds how long the listener blocks before checking for cancellation
	readSlice = 20 * time.Millisecond
)

// listener collects one reply for one Send
type listener struct {
	cancel context.CancelFunc
	done   chan struct{}
	frames chan string
}

// WLANConnection implements Transport over the PiKoder WLAN bridge.
// Commands go to the access point as datagrams; replies arrive on a
// local UDP port and are collected by a listener started with each Send.
type WLANConnection struct {
	config WLANConfig
	tx     *net.UDPConn
	rx     *net.UDPConn
	target string
	logger *zap.Logger
	mutex  sync.Mutex
	active *listener
	stats  linkStats
}

// NewWLANConnection creates a closed WLAN link
func NewWLANConnection(config WLANConfig, logger *zap.Logger) *WLANConnection {
	return &WLANConnection{
		config: config,
		logger: logger.With(zap.String("protocol", "wlan")),
	}
}

// Connect binds the reply port and addresses the access point. An empty
// target uses the configured access point address.
func (wc *WLANConnection) Connect(ctx context.Context, target string) error {
	wc.mutex.Lock()
	defer wc.mutex.Unlock()

	if target == "" {
		target = wc.config.APAddress
	}
	if wc.tx != nil {
		if wc.target == target {
			return nil
		}
		wc.closeLocked()
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := wc.config
	cfg.APAddress = target
	ll := utils.NewLinkLogger(wc.logger, string(model.LinkTypeWLAN), cfg.TxAddress())

	raddr, err := net.ResolveUDPAddr("udp", cfg.TxAddress())
	if err != nil {
		ll.LogConnection("resolve", false, err)
		return &TransportError{Link: model.LinkTypeWLAN, Op: "open", Err: err}
	}
	laddr, err := net.ResolveUDPAddr("udp", cfg.RxAddress())
	if err != nil {
		return &TransportError{Link: model.LinkTypeWLAN, Op: "open", Err: err}
	}

	rx, err := net.ListenUDP("udp", laddr)
	if err != nil {
		ll.LogConnection("listen", false, err)
		return &TransportError{Link: model.LinkTypeWLAN, Op: "open", Err: err}
	}
	tx, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		rx.Close()
		ll.LogConnection("dial", false, err)
		return &TransportError{Link: model.LinkTypeWLAN, Op: "open", Err: err}
	}

	wc.tx = tx
	wc.rx = rx
	wc.target = target
	wc.stats.connected.Store(true)
	wc.stats.lastActivity.Store(time.Now())

	ll.LogConnection("open", true, nil)
	return nil
}

// LocalAddr returns the bound reply address, nil when closed
func (wc *WLANConnection) LocalAddr() net.Addr {
	wc.mutex.Lock()
	defer wc.mutex.Unlock()
	if wc.rx == nil {
		return nil
	}
	return wc.rx.LocalAddr()
}

// Disconnect stops the listener and closes both sockets
func (wc *WLANConnection) Disconnect() error {
	wc.mutex.Lock()
	defer wc.mutex.Unlock()
	if wc.tx == nil {
		return nil
	}
	wc.closeLocked()
	wc.logger.Info("WLAN link closed", zap.String("target", wc.target))
	return nil
}

func (wc *WLANConnection) closeLocked() {
	wc.stopListenerLocked()
	if wc.rx != nil {
		wc.rx.Close()
		wc.rx = nil
	}
	if wc.tx != nil {
		wc.tx.Close()
		wc.tx = nil
	}
	wc.stats.connected.Store(false)
}

// stopListenerLocked cancels the active listener and waits for it to exit
func (wc *WLANConnection) stopListenerLocked() {
	if wc.active == nil {
		return
	}
	wc.active.cancel()
	<-wc.active.done
	wc.active = nil
}

// IsOpen returns whether the sockets are bound
func (wc *WLANConnection) IsOpen() bool {
	wc.mutex.Lock()
	defer wc.mutex.Unlock()
	return wc.tx != nil
}

// Send starts a fresh reply listener, then transmits data
func (wc *WLANConnection) Send(ctx context.Context, data []byte) error {
	wc.mutex.Lock()
	if wc.tx == nil {
		wc.mutex.Unlock()
		return ErrNotOpen
	}

	select {
	case <-ctx.Done():
		wc.mutex.Unlock()
		return ctx.Err()
	default:
	}

	wc.stopListenerLocked()
	lctx, cancel := context.WithCancel(context.Background())
	l := &listener{
		cancel: cancel,
		done:   make(chan struct{}),
		frames: make(chan string, 1),
	}
	wc.active = l
	go wc.listen(lctx, wc.rx, l)

	tx := wc.tx
	wc.mutex.Unlock()

	startTime := time.Now()
	n, err := tx.Write(data)
	if err != nil {
		return wc.fail("write", err)
	}
	wc.stats.recordWrite(n, time.Since(startTime))
	return nil
}

// listen reads datagrams until one frame is complete or ctx is cancelled
func (wc *WLANConnection) listen(ctx context.Context, rx *net.UDPConn, l *listener) {
	defer close(l.done)

	var fr FrameReceiver
	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := rx.SetReadDeadline(time.Now().Add(readSlice)); err != nil {
			return
		}
		n, _, err := rx.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				wc.logger.Debug("WLAN receive failed", zap.Error(err))
			}
			return
		}
		wc.stats.recordRead(n)
		if frame, done := fr.FeedDatagram(buf[:n]); done {
			l.frames <- frame
			return
		}
	}
}

// Receive waits for the reply to the last Send
func (wc *WLANConnection) Receive(ctx context.Context) (string, error) {
	wc.mutex.Lock()
	if wc.tx == nil {
		wc.mutex.Unlock()
		return "", ErrNotOpen
	}
	l := wc.active
	wc.mutex.Unlock()

	if l == nil {
		wc.stats.recordTimeout()
		return "", ErrTimedOut
	}

	poll := wc.config.poll()
	ticker := time.NewTicker(poll.Interval)
	defer ticker.Stop()

	for i := 0; i < poll.Count; {
		select {
		case frame := <-l.frames:
			return frame, nil
		case <-ctx.Done():
			wc.abandon(l)
			return "", ctx.Err()
		case <-ticker.C:
			i++
		}
	}

	select {
	case frame := <-l.frames:
		return frame, nil
	default:
	}
	wc.abandon(l)
	wc.stats.recordTimeout()
	return "", ErrTimedOut
}

// ReceiveFast has no faster variant on WLAN
func (wc *WLANConnection) ReceiveFast(ctx context.Context, _ int) (string, error) {
	return wc.Receive(ctx)
}

// abandon stops l if it is still the active listener
func (wc *WLANConnection) abandon(l *listener) {
	wc.mutex.Lock()
	defer wc.mutex.Unlock()
	if wc.active == l {
		wc.stopListenerLocked()
	}
}

// Drain is a no-op; every Send starts from an empty listener
func (wc *WLANConnection) Drain(ctx context.Context) error {
	return nil
}

func (wc *WLANConnection) fail(op string, err error) error {
	wc.stats.recordError()
	wc.logger.Error("Disconnect WLAN link due to error", zap.String("op", op), zap.Error(err))
	_ = wc.Disconnect()
	return &TransportError{Link: model.LinkTypeWLAN, Op: op, Err: err}
}

// IsAlive reports the socket state; the bridge has no liveness probe
func (wc *WLANConnection) IsAlive(ctx context.Context) bool {
	return wc.IsOpen()
}

// Kind returns the link type
func (wc *WLANConnection) Kind() model.LinkType {
	return model.LinkTypeWLAN
}

// Target returns the access point address
func (wc *WLANConnection) Target() string {
	wc.mutex.Lock()
	defer wc.mutex.Unlock()
	return wc.target
}

// Capabilities reports a text-only link without a probe
func (wc *WLANConnection) Capabilities() Capabilities {
	return Capabilities{}
}

// Stats returns link statistics
func (wc *WLANConnection) Stats() ProtocolStats {
	return wc.stats.snapshot()
}
