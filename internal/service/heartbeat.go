// internal/service/heartbeat.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pikoder-service/internal/model"
)

// minHeartbeat bounds the probe rate for very short device timeouts
const minHeartbeat = 100 * time.Millisecond

// heartbeatInterval probes at half the device timeout so the link is
// refreshed before the PiKoder drops its outputs. Without a device timeout
// the configured interval applies.
func (s *SessionService) heartbeatInterval(params *model.Parameters) time.Duration {
	interval := s.config.Heartbeat.Interval
	if params != nil && params.Timeout.Confirmed && params.Timeout.Value > 0 {
		// the timeout is counted in tenths of a second
		interval = time.Duration(params.Timeout.Value) * 100 * time.Millisecond / 2
	}
	if interval < minHeartbeat {
		interval = minHeartbeat
	}
	return interval
}

// startHeartbeat replaces the supervision goroutine
func (s *SessionService) startHeartbeat(interval time.Duration) {
	s.stopHeartbeat()

	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.heartbeat = hb
	s.mu.Unlock()

	s.logger.Debug("Heartbeat started", zap.Duration("interval", interval))
	go s.runHeartbeat(ctx, hb, interval)
}

// stopHeartbeat cancels supervision and waits for it to exit. Must not be
// called with s.mu held.
func (s *SessionService) stopHeartbeat() {
	s.mu.Lock()
	hb := s.heartbeat
	s.heartbeat = nil
	s.mu.Unlock()

	if hb == nil {
		return
	}
	hb.cancel()
	<-hb.done
}

func (s *SessionService) runHeartbeat(ctx context.Context, hb *heartbeat, interval time.Duration) {
	defer close(hb.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.client.State() != model.StateConnected {
			s.checkLink(context.Canceled)
			return
		}
		if s.client.IsAlive(ctx) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("Heartbeat failed, link lost")
		s.endSession(model.EventLinkLost)
		return
	}
}
