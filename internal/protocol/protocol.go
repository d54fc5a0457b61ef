// internal/protocol/protocol.go
package protocol

import (
	"context"
	"time"

	"pikoder-service/internal/model"
)

// Transport is a physical link to a PiKoder. Exactly one request may be
// outstanding at a time; callers serialize Send/Receive pairs.
type Transport interface {
	// Connection lifecycle
	Connect(ctx context.Context, target string) error
	Disconnect() error
	IsOpen() bool

	// Data communication
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) (string, error)
	ReceiveFast(ctx context.Context, polls int) (string, error)
	Drain(ctx context.Context) error

	// Health and diagnostics
	IsAlive(ctx context.Context) bool

	// Link information
	Kind() model.LinkType
	Target() string
	Capabilities() Capabilities
	Stats() ProtocolStats
}

// Capabilities describe what a link can carry beyond plain text commands
type Capabilities struct {
	// LivenessProbe is set when IsAlive actually asks the device
	LivenessProbe bool `json:"liveness_probe"`
	// BinaryFrames is set when raw binary command frames reach the device
	BinaryFrames bool `json:"binary_frames"`
}

// ProtocolStats provides link-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	TimeoutCount   int64         `json:"timeout_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}
