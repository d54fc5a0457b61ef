// internal/service/session_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pikoder-service/internal/config"
	"pikoder-service/internal/model"
	"pikoder-service/internal/pikoder"
	"pikoder-service/internal/protocol"
	"pikoder-service/internal/utils"
)

// LinkFactory builds the transport for a link type
type LinkFactory func(kind model.LinkType) (protocol.Transport, error)

// DefaultLinkFactory builds serial and WLAN links from the link configuration
func DefaultLinkFactory(cfg *config.LinkConfig, logger *zap.Logger) LinkFactory {
	return func(kind model.LinkType) (protocol.Transport, error) {
		return protocol.NewLink(kind, cfg, logger)
	}
}

// EventPublisher receives session events
type EventPublisher interface {
	Publish(event model.SessionEvent)
}

// listPorts is replaced in tests
var listPorts = protocol.ListSerialPorts

// ConnectRequest selects the link and port of a new session
type ConnectRequest struct {
	Link string `json:"link" binding:"required"`
	Port string `json:"port"`
}

// SessionStatus is a snapshot of the active session
type SessionStatus struct {
	State   model.ConnectionState   `json:"state"`
	Session *model.Session          `json:"session,omitempty"`
	Stats   *protocol.ProtocolStats `json:"stats,omitempty"`
}

type heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// SessionService owns the single PiKoder session: link selection, device
// identification, the mirrored parameter set and link supervision.
type SessionService struct {
	client    *pikoder.Client
	factory   LinkFactory
	publisher EventPublisher
	config    *config.Config
	logger    *utils.ServiceLogger

	// flow serializes connect, disconnect and reload
	flow sync.Mutex

	mu        sync.Mutex
	links     map[model.LinkType]protocol.Transport
	session   *model.Session
	params    *model.Parameters
	heartbeat *heartbeat
}

// NewSessionService creates a session service without an active link
func NewSessionService(
	cfg *config.Config,
	factory LinkFactory,
	publisher EventPublisher,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		client:    pikoder.NewClient(pikoder.OptionsFrom(&cfg.Protocol), logger),
		factory:   factory,
		publisher: publisher,
		config:    cfg,
		logger:    utils.NewServiceLogger(logger, "session-service"),
		links:     make(map[model.LinkType]protocol.Transport),
		params:    model.NewParameters(),
	}
}

// Client exposes the protocol client of the session
func (s *SessionService) Client() *pikoder.Client {
	return s.client
}

// ListPorts returns the serial ports present on the host
func (s *SessionService) ListPorts() ([]string, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the requested link, identifies the device and loads its
// parameters. A previous session is closed first.
func (s *SessionService) Connect(ctx context.Context, req *ConnectRequest) (*model.Session, error) {
	kind, err := model.ParseLinkType(req.Link)
	if err != nil {
		return nil, err
	}
	target := req.Port
	if kind == model.LinkTypeSerial && target == "" {
		target = s.config.Link.Serial.Port
		if target == "" {
			return nil, errors.New("serial port is required")
		}
	}

	s.flow.Lock()
	defer s.flow.Unlock()

	s.stopHeartbeat()
	s.endSession(model.EventLinkDisconnected)

	link, err := s.link(kind)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:        uuid.New(),
		Link:      kind,
		StartedAt: time.Now(),
	}
	opLogger := utils.NewOperationLogger(s.logger.Logger, "connect", session.ID.String())
	opLogger.Start(zap.String("link", string(kind)), zap.String("target", target))

	if err := s.client.Connect(ctx, link, target); err != nil {
		opLogger.Error(err)
		return nil, fmt.Errorf("failed to open %s link: %w", kind, err)
	}
	session.Target = link.Target()
	session.State = model.StateConnected

	s.mu.Lock()
	s.session = session
	s.params = model.NewParameters()
	s.mu.Unlock()
	s.publish(model.EventLinkConnected, "INFO", map[string]interface{}{
		"link":   string(kind),
		"target": session.Target,
	})

	profile, err := s.client.Identify(ctx)
	if err != nil {
		opLogger.Error(err)
		_ = s.client.Disconnect()
		s.endSession(model.EventLinkDisconnected)
		return nil, fmt.Errorf("failed to identify device: %w", err)
	}

	s.mu.Lock()
	session.Profile = profile
	s.mu.Unlock()
	s.publish(model.EventDeviceIdentified, "INFO", map[string]interface{}{
		"family":   profile.Family.String(),
		"firmware": profile.FirmwareText,
	})
	opLogger.Progress("Device identified", 0.5, zap.String("family", profile.Family.String()))

	params, err := s.load(ctx, profile)
	if err != nil {
		opLogger.Error(err)
		s.checkLink(err)
		return nil, fmt.Errorf("failed to load parameters: %w", err)
	}
	s.storeParameters(params)

	if s.config.Heartbeat.Enabled {
		s.startHeartbeat(s.heartbeatInterval(params))
	}

	opLogger.Success(
		zap.String("family", profile.Family.String()),
		zap.String("firmware", profile.FirmwareText),
	)
	return s.Session().Session, nil
}

// link returns the cached transport for kind, building it on first use
func (s *SessionService) link(kind model.LinkType) (protocol.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if link, ok := s.links[kind]; ok {
		return link, nil
	}
	link, err := s.factory(kind)
	if err != nil {
		return nil, err
	}
	s.links[kind] = link
	return link, nil
}

// Disconnect closes the active link
func (s *SessionService) Disconnect() error {
	s.flow.Lock()
	defer s.flow.Unlock()

	s.stopHeartbeat()
	err := s.client.Disconnect()
	s.endSession(model.EventLinkDisconnected)
	return err
}

// endSession forgets the current session and invalidates the mirror
func (s *SessionService) endSession(eventType model.EventType) {
	s.mu.Lock()
	session := s.session
	if session == nil || session.State == model.StateDisconnected {
		s.mu.Unlock()
		return
	}
	session.State = model.StateDisconnected
	s.params.Invalidate()
	s.mu.Unlock()

	severity := "INFO"
	if eventType == model.EventLinkLost {
		severity = "WARNING"
	}
	s.publish(eventType, severity, map[string]interface{}{
		"target": session.Target,
	})
}

// checkLink ends the session when an operation left the client disconnected
func (s *SessionService) checkLink(err error) {
	if err == nil || s.client.State() != model.StateDisconnected {
		return
	}
	s.logger.Warn("Lost connection to PiKoder", zap.Error(err))
	s.endSession(model.EventLinkLost)
}

// Session returns the state of the active session
func (s *SessionService) Session() *SessionStatus {
	status := &SessionStatus{State: s.client.State()}

	s.mu.Lock()
	if s.session != nil {
		session := *s.session
		session.State = status.State
		status.Session = &session
	}
	s.mu.Unlock()

	if link := s.client.Link(); link != nil {
		stats := link.Stats()
		status.Stats = &stats
	}
	return status
}

// Parameters returns a copy of the mirrored parameters
func (s *SessionService) Parameters() *model.Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	params := *s.params
	return &params
}

// ReloadParameters reads every parameter from the device again
func (s *SessionService) ReloadParameters(ctx context.Context) (*model.Parameters, error) {
	s.flow.Lock()
	defer s.flow.Unlock()

	profile, err := s.connectedProfile()
	if err != nil {
		return nil, err
	}
	params, err := s.load(ctx, profile)
	if err != nil {
		s.checkLink(err)
		return nil, err
	}
	s.storeParameters(params)
	return s.Parameters(), nil
}

func (s *SessionService) storeParameters(params *model.Parameters) {
	s.mu.Lock()
	s.params = params
	s.mu.Unlock()
	s.publish(model.EventParametersLoaded, "INFO", nil)
}

// connectedProfile returns the negotiated profile of a live session
func (s *SessionService) connectedProfile() (*model.DeviceProfile, error) {
	if s.client.State() != model.StateConnected {
		return nil, pikoder.ErrNotConnected
	}
	profile := s.client.Profile()
	if profile == nil {
		return nil, pikoder.ErrNotConnected
	}
	return profile, nil
}

// updateParameters applies f to the mirror
func (s *SessionService) updateParameters(f func(p *model.Parameters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.params)
}

func (s *SessionService) publish(eventType model.EventType, severity string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	var sessionID uuid.UUID
	s.mu.Lock()
	if s.session != nil {
		sessionID = s.session.ID
	}
	s.mu.Unlock()
	s.publisher.Publish(model.NewSessionEvent(eventType, sessionID, severity, data))
}

// Close stops supervision and releases every link
func (s *SessionService) Close() error {
	err := s.Disconnect()

	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, link := range s.links {
		if link.IsOpen() {
			if cerr := link.Disconnect(); cerr != nil {
				s.logger.Warn("Failed to close link", zap.String("link", string(kind)), zap.Error(cerr))
			}
		}
		delete(s.links, kind)
	}
	return err
}
