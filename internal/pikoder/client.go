// internal/pikoder/client.go
package pikoder

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"pikoder-service/internal/config"
	"pikoder-service/internal/model"
	"pikoder-service/internal/protocol"
	"pikoder-service/internal/utils"
)

const statusMarker = "T="

// Options are the retry budgets of the command protocol
type Options struct {
	GetRetries      int
	StatusRetries   int
	FirmwareRetries int
	// FastPolls is the idle budget of fast channel retrieval; zero uses the link default
	FastPolls int
}

// DefaultOptions returns the budgets the PiKoder firmware is tuned for
func DefaultOptions() Options {
	return Options{
		GetRetries:      5,
		StatusRetries:   10,
		FirmwareRetries: 5,
	}
}

// OptionsFrom converts the loaded protocol section
func OptionsFrom(cfg *config.ProtocolConfig) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.GetRetries > 0 {
		opts.GetRetries = cfg.GetRetries
	}
	if cfg.StatusRetries > 0 {
		opts.StatusRetries = cfg.StatusRetries
	}
	if cfg.FirmwareRetries > 0 {
		opts.FirmwareRetries = cfg.FirmwareRetries
	}
	return opts
}

// Client drives one PiKoder over one active link. All calls are
// serialized; the client may be shared between goroutines.
type Client struct {
	mu      sync.Mutex
	link    protocol.Transport
	ll      *utils.LinkLogger
	profile *model.DeviceProfile
	state   atomic.Int32
	opts    Options
	logger  *zap.Logger

	// stale is set when a probe was abandoned with its reply still in flight
	stale bool
}

// NewClient creates a disconnected client
func NewClient(opts Options, logger *zap.Logger) *Client {
	logger = logger.With(zap.String("component", "pikoder"))
	return &Client{
		opts:   opts,
		logger: logger,
		ll:     utils.NewLinkLogger(logger, "", ""),
	}
}

// State returns the connection state
func (c *Client) State() model.ConnectionState {
	return model.ConnectionState(c.state.Load())
}

func (c *Client) setState(s model.ConnectionState) {
	c.state.Store(int32(s))
}

// Profile returns the negotiated profile, nil before Identify
func (c *Client) Profile() *model.DeviceProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// Link returns the active link, nil when disconnected
func (c *Client) Link() protocol.Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// Connect opens link to target and makes it the active link. A previously
// active link of a different instance is closed first.
func (c *Client) Connect(ctx context.Context, link protocol.Transport, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link != nil && c.link != link {
		if err := c.link.Disconnect(); err != nil {
			c.logger.Warn("Failed to close previous link", zap.Error(err))
		}
	}
	c.link = nil
	c.profile = nil
	c.stale = false
	c.setState(model.StateLinking)

	if err := link.Connect(ctx, target); err != nil {
		c.setState(model.StateDisconnected)
		return err
	}

	c.link = link
	c.ll = utils.NewLinkLogger(c.logger, string(link.Kind()), link.Target())
	c.setState(model.StateConnected)
	return nil
}

// Disconnect closes the active link
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

func (c *Client) disconnectLocked() error {
	c.setState(model.StateDisconnected)
	c.profile = nil
	if c.link == nil {
		return nil
	}
	link := c.link
	c.link = nil
	return link.Disconnect()
}

// IsAlive probes the device where the link supports it. A failed probe
// closes the link; a probe cut short by ctx leaves it open.
func (c *Client) IsAlive(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link == nil {
		return false
	}
	if c.link.IsAlive(ctx) {
		return true
	}
	if ctx.Err() != nil {
		c.stale = true
		c.logger.Debug("Liveness probe abandoned", zap.Error(ctx.Err()))
		return false
	}
	c.logger.Warn("PiKoder liveness probe failed", zap.String("target", c.link.Target()))
	_ = c.disconnectLocked()
	return false
}

// exchange sends cmd and waits for one reply. Must hold c.mu.
func (c *Client) exchange(ctx context.Context, cmd string, fast bool) (string, error) {
	if c.link == nil {
		return "", ErrNotConnected
	}
	if c.stale {
		if err := c.link.Drain(ctx); err != nil {
			return "", c.checkLink(err)
		}
		c.stale = false
	}
	if err := c.link.Send(ctx, []byte(cmd)); err != nil {
		return "", c.checkLink(err)
	}

	var (
		reply string
		err   error
	)
	if fast {
		reply, err = c.link.ReceiveFast(ctx, c.opts.FastPolls)
	} else {
		reply, err = c.link.Receive(ctx)
	}
	if err != nil {
		return "", c.checkLink(err)
	}
	return reply, nil
}

// checkLink drops the link after a transport failure
func (c *Client) checkLink(err error) error {
	if protocol.IsTransportError(err) || errors.Is(err, protocol.ErrNotOpen) {
		c.link = nil
		c.profile = nil
		c.setState(model.StateDisconnected)
	}
	return err
}

// retrieve repeats cmd until validate accepts the reply or attempts are spent.
// Must hold c.mu.
func (c *Client) retrieve(ctx context.Context, cmd string, attempts int, fast bool, validate func(string) error) (string, error) {
	var last error = ErrTimedOut
	for attempt := 1; attempt <= attempts; attempt++ {
		reply, err := c.exchange(ctx, cmd, fast)
		c.ll.LogExchange(cmd, reply, attempt, err)
		if err != nil {
			if errors.Is(err, ErrTimedOut) {
				last = ErrTimedOut
				continue
			}
			return "", err
		}
		if verr := validate(reply); verr != nil {
			last = &ValidationError{Command: cmd, Reply: reply, Err: verr}
			continue
		}
		return reply, nil
	}
	return "", last
}

// get decodes the reply of a repeated query
func get[T any](c *Client, ctx context.Context, cmd string, attempts int, fast bool, decode func(string) (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var value T
	_, err := c.retrieve(ctx, cmd, attempts, fast, func(reply string) error {
		v, err := decode(reply)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// set sends cmd once. The result is true iff the reply contains "!"; a
// missing reply is false with a nil error.
func (c *Client) set(ctx context.Context, cmd string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.exchange(ctx, cmd, false)
	c.ll.LogExchange(cmd, reply, 1, err)
	if errors.Is(err, ErrTimedOut) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.Contains(reply, "!"), nil
}

// send writes a frame that has no reply
func (c *Client) send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link == nil {
		return ErrNotConnected
	}
	if !c.link.Capabilities().BinaryFrames {
		return ErrLegacyPPMUnsupported
	}
	if err := c.link.Send(ctx, frame); err != nil {
		return c.checkLink(err)
	}
	return nil
}

// hp and fast read the negotiated profile. Must hold c.mu.
func (c *Client) hp() bool {
	return c.profile != nil && c.profile.HPMath
}

func (c *Client) fast() bool {
	return c.profile != nil && c.profile.FastRetrieve
}

func (c *Client) withProfile() (hp, fast bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hp(), c.fast()
}
