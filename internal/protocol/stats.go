// internal/protocol/stats.go
package protocol

import (
	"time"

	"go.uber.org/atomic"
)

// linkStats records ProtocolStats without a lock
type linkStats struct {
	bytesWritten   atomic.Int64
	bytesRead      atomic.Int64
	operationCount atomic.Int64
	errorCount     atomic.Int64
	timeoutCount   atomic.Int64
	lastActivity   atomic.Time
	averageLatency atomic.Duration
	connected      atomic.Bool
}

func (s *linkStats) recordWrite(n int, latency time.Duration) {
	s.bytesWritten.Add(int64(n))
	s.operationCount.Inc()
	s.lastActivity.Store(time.Now())
	s.updateAverageLatency(latency)
}

func (s *linkStats) recordRead(n int) {
	s.bytesRead.Add(int64(n))
	s.lastActivity.Store(time.Now())
}

func (s *linkStats) recordError() {
	s.errorCount.Inc()
}

func (s *linkStats) recordTimeout() {
	s.timeoutCount.Inc()
}

// updateAverageLatency updates the running average latency
func (s *linkStats) updateAverageLatency(newLatency time.Duration) {
	current := s.averageLatency.Load()
	if current == 0 {
		s.averageLatency.Store(newLatency)
		return
	}
	s.averageLatency.Store((current + newLatency) / 2)
}

func (s *linkStats) snapshot() ProtocolStats {
	return ProtocolStats{
		BytesWritten:   s.bytesWritten.Load(),
		BytesRead:      s.bytesRead.Load(),
		OperationCount: s.operationCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		TimeoutCount:   s.timeoutCount.Load(),
		LastActivity:   s.lastActivity.Load(),
		AverageLatency: s.averageLatency.Load(),
		IsConnected:    s.connected.Load(),
	}
}
