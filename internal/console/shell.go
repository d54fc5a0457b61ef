// Package console provides an ishell backed interactive shell for a
// PiKoder session.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"pikoder-service/internal/model"
	"pikoder-service/internal/service"
)

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "

	// DefaultTimeout bounds one command; connect gets connectTimeout
	DefaultTimeout = 10 * time.Second
	connectTimeout = 60 * time.Second
)

// ErrNotAcknowledged is reported when a write is not confirmed by the device
var ErrNotAcknowledged = errors.New("not acknowledged")

// Shell wires console commands to a session service.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell    *ishell.Shell
	Sessions *service.SessionService
}

// New creates a new shell.
func New(sessions *service.SessionService) *Shell {
	s := &Shell{
		Interactive: true,
		Timeout:     DefaultTimeout,
		Shell:       ishell.New(),
		Sessions:    sessions,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Sessions.Session().State != model.StateConnected {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Run processes args as a single command, or starts the interactive loop.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if !s.Interactive {
		return errors.New("command expected")
	}
	s.Shell.Run()
	return nil
}

// WatchEvents prints link changes until ch is closed and keeps the prompt
// in sync with the session.
func (s *Shell) WatchEvents(ch <-chan model.SessionEvent) {
	for event := range ch {
		switch event.EventType {
		case model.EventLinkLost:
			s.Shell.Println("link lost")
			s.Shell.SetPrompt(unconnectedPrompt)
		case model.EventLinkDisconnected:
			s.Shell.SetPrompt(unconnectedPrompt)
		case model.EventParameterInvalid, model.EventDefaultsRestored:
			s.Shell.Printf("%s %v\n", strings.ToLower(string(event.EventType)), event.Data)
		}
	}
}

func (s *Shell) commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if s.Timeout > timeout {
		timeout = s.Timeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (s *Shell) updatePrompt() {
	if s.Shell == nil {
		return
	}
	status := s.Sessions.Session()
	if status.State != model.StateConnected || status.Session == nil || status.Session.Profile == nil {
		s.Shell.SetPrompt(unconnectedPrompt)
		return
	}
	s.Shell.SetPrompt(fmt.Sprintf("[%s@%s] > ", status.Session.Profile.Family, status.Session.Target))
}

// Format renders a command result for display.
func (s *Shell) Format(v interface{}) (string, error) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return format(v), nil
}

func format(v interface{}) string {
	switch r := v.(type) {
	case nil:
		return "OK"
	case string:
		return r
	case []string:
		if len(r) == 0 {
			return "No serial ports found"
		}
		return strings.Join(r, "\n")
	case model.Reading:
		return formatReading(r)
	case model.IOReading:
		return confirmed(r.Value.String(), r.Confirmed)
	case model.PPMReading:
		return confirmed(r.Settings.String(), r.Confirmed)
	case *model.Session:
		return formatSession(r)
	case *service.SessionStatus:
		if r.Session == nil {
			return r.State.String()
		}
		out := r.State.String() + "\n" + formatSession(r.Session)
		if r.Stats != nil {
			out += fmt.Sprintf("\noperations %d, errors %d, timeouts %d",
				r.Stats.OperationCount, r.Stats.ErrorCount, r.Stats.TimeoutCount)
		}
		return out
	case *model.Parameters:
		return formatParameters(r)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func confirmed(s string, ok bool) string {
	if ok {
		return s
	}
	return s + " (unconfirmed)"
}

func formatReading(r model.Reading) string {
	return confirmed(fmt.Sprintf("%d", r.Value), r.Confirmed)
}

func formatSession(s *model.Session) string {
	if s.Profile == nil {
		return fmt.Sprintf("%s %s", s.Link, s.Target)
	}
	return fmt.Sprintf("%s firmware %s on %s %s",
		s.Profile.Family, s.Profile.FirmwareText, s.Link, s.Target)
}

func formatParameters(p *model.Parameters) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-3s %-18s %-18s %-18s %-18s %s\n", "ch", "pulse", "neutral", "lower", "upper", "io")
	for _, c := range p.Channels {
		fmt.Fprintf(&b, "%-3d %-18s %-18s %-18s %-18s %s\n", c.Number,
			formatReading(c.PulseLength), formatReading(c.Neutral),
			formatReading(c.LowerLimit), formatReading(c.UpperLimit),
			confirmed(c.IOType.Value.String(), c.IOType.Confirmed))
	}
	fmt.Fprintf(&b, "timeout %s, offset %s, i2c %s, ppm %s",
		formatReading(p.Timeout), formatReading(p.ZeroOffset), formatReading(p.I2CAddress),
		confirmed(p.PPM.Settings.String(), p.PPM.Confirmed))
	return b.String()
}
