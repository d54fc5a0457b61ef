// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"pikoder-service/internal/model"
	"pikoder-service/internal/utils"
)

// maxDrainFrames bounds Drain on a chattering device
const maxDrainFrames = 16

// portHandle is the subset of serial.Port the link uses
type portHandle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// openPort is replaced in tests
var openPort = func(name string, mode *serial.Mode) (portHandle, error) {
	return serial.Open(name, mode)
}

// ListSerialPorts returns the serial ports present on this host
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// SerialConnection implements Transport over a virtual COM port
type SerialConnection struct {
	config      SerialConfig
	port        portHandle
	portName    string
	readTimeout time.Duration
	logger      *zap.Logger
	mutex       sync.RWMutex
	stats       linkStats
}

// NewSerialConnection creates a closed serial link
func NewSerialConnection(config SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(zap.String("protocol", "serial")),
	}
}

// Connect opens target. Reconnecting to the open port is a no-op; a
// different port closes the current one first.
func (sc *SerialConnection) Connect(ctx context.Context, target string) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.port != nil {
		if sc.portName == target {
			return nil
		}
		if err := sc.port.Close(); err != nil {
			sc.logger.Warn("Failed to close previous serial port",
				zap.String("port", sc.portName),
				zap.Error(err),
			)
		}
		sc.port = nil
		sc.stats.connected.Store(false)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	ll := utils.NewLinkLogger(sc.logger, string(model.LinkTypeSerial), target)

	mode, err := sc.config.Mode()
	if err != nil {
		return &TransportError{Link: model.LinkTypeSerial, Op: "open", Err: err}
	}

	port, err := openPort(target, mode)
	if err != nil {
		ll.LogConnection("open", false, err)
		return &TransportError{Link: model.LinkTypeSerial, Op: "open", Err: err}
	}

	if err := port.ResetInputBuffer(); err != nil {
		sc.logger.Debug("Failed to reset input buffer", zap.Error(err))
	}

	sc.port = port
	sc.portName = target
	sc.readTimeout = 0
	sc.stats.connected.Store(true)
	sc.stats.lastActivity.Store(time.Now())

	ll.LogConnection("open", true, nil)
	return nil
}

// Disconnect closes the port
func (sc *SerialConnection) Disconnect() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.port == nil {
		return nil
	}

	err := sc.port.Close()
	sc.port = nil
	sc.stats.connected.Store(false)
	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return &TransportError{Link: model.LinkTypeSerial, Op: "close", Err: err}
	}

	sc.logger.Info("Serial port closed", zap.String("port", sc.portName))
	return nil
}

// IsOpen returns whether the port is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.port != nil
}

// fail closes the port after an I/O error
func (sc *SerialConnection) fail(op string, err error) error {
	sc.stats.recordError()
	sc.logger.Error("Disconnect port due to serial error", zap.String("op", op), zap.Error(err))
	_ = sc.Disconnect()
	return &TransportError{Link: model.LinkTypeSerial, Op: op, Err: err}
}

func (sc *SerialConnection) handle() (portHandle, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	if sc.port == nil {
		return nil, ErrNotOpen
	}
	return sc.port, nil
}

// Send writes data to the port
func (sc *SerialConnection) Send(ctx context.Context, data []byte) error {
	port, err := sc.handle()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	startTime := time.Now()
	n, err := port.Write(data)
	if err != nil {
		return sc.fail("write", err)
	}
	if n != len(data) {
		return sc.fail("write", fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data)))
	}

	sc.stats.recordWrite(n, time.Since(startTime))
	return nil
}

// ReadByte reads at most one byte, waiting up to interval
func (sc *SerialConnection) ReadByte(interval time.Duration) (byte, bool, error) {
	sc.mutex.Lock()
	port := sc.port
	if port == nil {
		sc.mutex.Unlock()
		return 0, false, ErrNotOpen
	}
	if sc.readTimeout != interval {
		if err := port.SetReadTimeout(interval); err != nil {
			sc.mutex.Unlock()
			return 0, false, err
		}
		sc.readTimeout = interval
	}
	sc.mutex.Unlock()

	var buf [1]byte
	n, err := port.Read(buf[:])
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	sc.stats.recordRead(n)
	return buf[0], true, nil
}

func (sc *SerialConnection) receive(ctx context.Context, poll Poll) (string, error) {
	if !sc.IsOpen() {
		return "", ErrNotOpen
	}
	frame, err := ReceiveFrame(ctx, sc, poll)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, ErrTimedOut):
		sc.stats.recordTimeout()
		return "", err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrNotOpen):
		return "", err
	default:
		return "", sc.fail("read", err)
	}
}

// Receive waits for one frame with the standard budget
func (sc *SerialConnection) Receive(ctx context.Context) (string, error) {
	return sc.receive(ctx, sc.config.poll())
}

// ReceiveFast waits for one frame, allowing polls idle 1ms polls between
// bytes. polls <= 0 uses the configured count.
func (sc *SerialConnection) ReceiveFast(ctx context.Context, polls int) (string, error) {
	if polls <= 0 {
		polls = sc.config.FastPollCount
	}
	return sc.receive(ctx, FastPoll(polls))
}

// Drain discards pending input and any frames still in flight
func (sc *SerialConnection) Drain(ctx context.Context) error {
	port, err := sc.handle()
	if err != nil {
		return err
	}
	if err := port.ResetInputBuffer(); err != nil {
		return sc.fail("reset", err)
	}
	for i := 0; i < maxDrainFrames; i++ {
		frame, err := sc.receive(ctx, sc.config.poll())
		if errors.Is(err, ErrTimedOut) {
			return nil
		}
		if err != nil {
			return err
		}
		sc.logger.Debug("Discarded stale frame", zap.String("frame", frame))
	}
	return nil
}

// IsAlive sends an unknown command; a live PiKoder answers "?"
func (sc *SerialConnection) IsAlive(ctx context.Context) bool {
	if err := sc.Send(ctx, []byte("*")); err != nil {
		return false
	}
	reply, err := sc.Receive(ctx)
	if err != nil || reply != "?" {
		return false
	}
	return true
}

// Kind returns the link type
func (sc *SerialConnection) Kind() model.LinkType {
	return model.LinkTypeSerial
}

// Target returns the port name
func (sc *SerialConnection) Target() string {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.portName
}

// Capabilities reports a probing, binary-capable link
func (sc *SerialConnection) Capabilities() Capabilities {
	return Capabilities{LivenessProbe: true, BinaryFrames: true}
}

// Stats returns link statistics
func (sc *SerialConnection) Stats() ProtocolStats {
	return sc.stats.snapshot()
}
