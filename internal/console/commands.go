package console

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"pikoder-service/internal/model"
	"pikoder-service/internal/service"
)

// action is the body of a console command
type action func(s *Shell, args []string) (interface{}, error)

// run adapts an action to ishell and prints its result.
func run(fn action) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		s := ShellFrom(c)
		result, err := fn(s, c.Args)
		if err != nil {
			c.Err(err)
			return
		}
		out, err := s.Format(result)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(out)
	}
}

var commands = []*ishell.Cmd{
	{Name: "ports", Help: "list serial ports", Func: run(ports)},
	{Name: "connect", Aliases: []string{"c"}, Help: "serial PORT | wlan", Func: run(connect)},
	{Name: "disconnect", Aliases: []string{"d"}, Help: "close the link", Func: run(disconnect)},
	{Name: "status", Aliases: []string{"s"}, Help: "session state and link statistics", Func: run(status)},
	{Name: "params", Aliases: []string{"p"}, Help: "mirrored parameters", Func: run(params)},
	{Name: "reload", Help: "read every parameter again", Func: MustBeConnected(run(reload))},
	{Name: "get", Help: "FIELD CH (pulse, neutral, lower, upper, io)", Func: MustBeConnected(run(get))},
	{Name: "set", Help: "FIELD CH VALUE", Func: MustBeConnected(run(set))},
	{Name: "timeout", Help: "[VALUE] failsafe timeout in 100ms units", Func: MustBeConnected(run(setting(service.SettingTimeout)))},
	{Name: "offset", Help: "[VALUE] zero offset", Func: MustBeConnected(run(setting(service.SettingZeroOffset)))},
	{Name: "i2c", Help: "[VALUE] I2C address", Func: MustBeConnected(run(setting(service.SettingI2CAddress)))},
	{Name: "ppm", Help: "[CHANNELS P|N] PPM output", Func: MustBeConnected(run(ppm))},
	{Name: "save", Help: "store the current values on the device", Func: MustBeConnected(run(save))},
	{Name: "defaults", Help: "CH restore factory default pulse", Func: MustBeConnected(run(defaults))},
	{Name: "aux", Help: "firmware of the auxiliary controller", Func: MustBeConnected(run(aux))},
}

func ports(s *Shell, _ []string) (interface{}, error) {
	return s.Sessions.ListPorts()
}

func connect(s *Shell, args []string) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: connect serial PORT | connect wlan")
	}
	req := &service.ConnectRequest{Link: args[0]}
	if len(args) > 1 {
		req.Port = args[1]
	}

	ctx, cancel := s.commandContext(connectTimeout)
	defer cancel()
	session, err := s.Sessions.Connect(ctx, req)
	s.updatePrompt()
	if err != nil {
		return nil, err
	}
	return session, nil
}

func disconnect(s *Shell, _ []string) (interface{}, error) {
	err := s.Sessions.Disconnect()
	s.updatePrompt()
	return nil, err
}

func status(s *Shell, _ []string) (interface{}, error) {
	return s.Sessions.Session(), nil
}

func params(s *Shell, _ []string) (interface{}, error) {
	return s.Sessions.Parameters(), nil
}

func reload(s *Shell, _ []string) (interface{}, error) {
	ctx, cancel := s.commandContext(connectTimeout)
	defer cancel()
	return s.Sessions.ReloadParameters(ctx)
}

func parseInt(name, arg string) (int, error) {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %q", name, arg)
	}
	return v, nil
}

// fieldArgs parses FIELD CH
func fieldArgs(args []string, n int, usage string) (model.ChannelField, int, error) {
	if len(args) != n {
		return "", 0, fmt.Errorf("usage: %s", usage)
	}
	field, err := model.ParseChannelField(args[0])
	if err != nil {
		return "", 0, err
	}
	ch, err := parseInt("channel", args[1])
	if err != nil {
		return "", 0, err
	}
	return field, ch, nil
}

func get(s *Shell, args []string) (interface{}, error) {
	field, ch, err := fieldArgs(args, 2, "get FIELD CH")
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.commandContext(DefaultTimeout)
	defer cancel()
	if field == model.FieldIOType {
		return s.Sessions.GetIOType(ctx, ch)
	}
	return s.Sessions.GetChannelValue(ctx, ch, field)
}

func set(s *Shell, args []string) (interface{}, error) {
	field, ch, err := fieldArgs(args, 3, "set FIELD CH VALUE")
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.commandContext(DefaultTimeout)
	defer cancel()

	var acked bool
	if field == model.FieldIOType {
		t, err := model.ParseIOType(args[2])
		if err != nil {
			return nil, err
		}
		acked, err = s.Sessions.SetIOType(ctx, ch, t)
		if err != nil {
			return nil, err
		}
	} else {
		v, err := parseInt("value", args[2])
		if err != nil {
			return nil, err
		}
		acked, err = s.Sessions.SetChannelValue(ctx, ch, field, v)
		if err != nil {
			return nil, err
		}
	}
	if !acked {
		return nil, ErrNotAcknowledged
	}
	return nil, nil
}

// setting reads a device-wide setting without arguments and writes it with one
func setting(name service.Setting) action {
	return func(s *Shell, args []string) (interface{}, error) {
		ctx, cancel := s.commandContext(DefaultTimeout)
		defer cancel()

		switch len(args) {
		case 0:
			return s.Sessions.GetSetting(ctx, name)
		case 1:
			v, err := parseInt(string(name), args[0])
			if err != nil {
				return nil, err
			}
			acked, err := s.Sessions.SetSetting(ctx, name, v)
			if err != nil {
				return nil, err
			}
			if !acked {
				return nil, ErrNotAcknowledged
			}
			return nil, nil
		default:
			return nil, fmt.Errorf("usage: %s [VALUE]", name)
		}
	}
}

// parsePPM accepts "8 N" or "8N"
func parsePPM(args []string) (model.PPMSettings, error) {
	if len(args) == 1 && len(args[0]) > 1 {
		word := args[0]
		args = []string{word[:len(word)-1], word[len(word)-1:]}
	}
	if len(args) != 2 {
		return model.PPMSettings{}, fmt.Errorf("usage: ppm [CHANNELS P|N]")
	}
	n, err := parseInt("channels", args[0])
	if err != nil {
		return model.PPMSettings{}, err
	}
	polarity, err := model.ParsePPMPolarity(strings.TrimSpace(args[1]))
	if err != nil {
		return model.PPMSettings{}, err
	}
	return model.PPMSettings{Channels: n, Polarity: polarity}, nil
}

func ppm(s *Shell, args []string) (interface{}, error) {
	ctx, cancel := s.commandContext(DefaultTimeout)
	defer cancel()

	if len(args) == 0 {
		return s.Sessions.GetPPMSettings(ctx)
	}
	settings, err := parsePPM(args)
	if err != nil {
		return nil, err
	}
	acked, err := s.Sessions.SetPPMSettings(ctx, settings)
	if err != nil {
		return nil, err
	}
	if !acked {
		return nil, ErrNotAcknowledged
	}
	return nil, nil
}

func save(s *Shell, _ []string) (interface{}, error) {
	ctx, cancel := s.commandContext(DefaultTimeout)
	defer cancel()

	acked, err := s.Sessions.SavePreferences(ctx)
	if err != nil {
		return nil, err
	}
	if !acked {
		return nil, ErrNotAcknowledged
	}
	return nil, nil
}

func defaults(s *Shell, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: defaults CH")
	}
	ch, err := parseInt("channel", args[0])
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.commandContext(DefaultTimeout)
	defer cancel()
	acked, err := s.Sessions.RestoreChannelDefault(ctx, ch)
	if err != nil {
		return nil, err
	}
	if !acked {
		return nil, ErrNotAcknowledged
	}
	return nil, nil
}

func aux(s *Shell, _ []string) (interface{}, error) {
	ctx, cancel := s.commandContext(DefaultTimeout)
	defer cancel()
	return s.Sessions.AuxFirmwareVersion(ctx)
}
