// internal/service/parameter_loader.go
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"pikoder-service/internal/model"
	"pikoder-service/internal/pikoder"
)

// readFailure marks the first parameter that could not be read. Loading
// stops there and the remaining fields stay unconfirmed.
type readFailure struct {
	field   string
	channel int
	err     error
}

// recoverable reports whether a read failure leaves the link usable
func recoverable(err error) bool {
	return errors.Is(err, pikoder.ErrTimedOut)
}

// load reads every parameter the profile exposes. Timeouts and invalid
// replies end the load early and are reported as PARAMETER_INVALID; only
// link failures are returned.
func (s *SessionService) load(ctx context.Context, profile *model.DeviceProfile) (*model.Parameters, error) {
	params := model.NewParameters()
	failure, err := s.readParameters(ctx, profile, params)
	params.LoadedAt = time.Now()
	if err != nil {
		return nil, err
	}
	if failure != nil {
		s.logger.Warn("Parameter load incomplete",
			zap.String("field", failure.field),
			zap.Int("channel", failure.channel),
			zap.Error(failure.err),
		)
		data := map[string]interface{}{
			"field": failure.field,
			"error": failure.err.Error(),
		}
		if failure.channel > 0 {
			data["channel"] = failure.channel
		}
		s.publish(model.EventParameterInvalid, "WARNING", data)
	}
	return params, nil
}

func (s *SessionService) readParameters(ctx context.Context, profile *model.DeviceProfile, params *model.Parameters) (*readFailure, error) {
	for ch := model.MinChannel; ch <= model.MaxChannel; ch++ {
		if failure, err := s.readChannel(ctx, profile, params.Channel(ch)); failure != nil || err != nil {
			return failure, err
		}
	}

	settings := []struct {
		name    string
		enabled bool
		get     func(context.Context) (int, error)
		reading *model.Reading
	}{
		{"timeout", profile.HasTimeout, s.client.GetTimeout, &params.Timeout},
		{"zero_offset", profile.HasZeroOffset, s.client.GetZeroOffset, &params.ZeroOffset},
		{"i2c_address", profile.HasI2CAddress, s.client.GetI2CAddress, &params.I2CAddress},
	}
	for _, setting := range settings {
		if !setting.enabled {
			continue
		}
		v, err := setting.get(ctx)
		if err != nil {
			return fail(setting.name, 0, err)
		}
		*setting.reading = model.Confirm(v)
	}

	if profile.HasPPM {
		if failure, err := s.readPPM(ctx, profile, params); failure != nil || err != nil {
			return failure, err
		}
	}
	return nil, nil
}

// fail splits a read error into a recoverable failure or a link error
func fail(field string, ch int, err error) (*readFailure, error) {
	if recoverable(err) {
		return &readFailure{field: field, channel: ch, err: err}, nil
	}
	return nil, err
}

func (s *SessionService) readChannel(ctx context.Context, profile *model.DeviceProfile, channel *model.Channel) (*readFailure, error) {
	ch := channel.Number

	pulse, err := s.client.GetPulseLength(ctx, ch)
	if err != nil {
		pulse, err = s.recoverFactoryDefault(ctx, model.FieldPulse, ch, err)
		if err != nil {
			return fail(string(model.FieldPulse), ch, err)
		}
	}
	channel.PulseLength = model.Confirm(pulse)

	if profile.HasNeutral {
		neutral, err := s.client.GetNeutral(ctx, ch)
		if err != nil {
			neutral, err = s.recoverFactoryDefault(ctx, model.FieldNeutral, ch, err)
			if err != nil {
				return fail(string(model.FieldNeutral), ch, err)
			}
		}
		channel.Neutral = model.Confirm(neutral)
	}

	if profile.HasLimits {
		lower, err := s.client.GetLowerLimit(ctx, ch)
		if err != nil {
			return fail(string(model.FieldLower), ch, err)
		}
		channel.LowerLimit = model.Confirm(lower)

		upper, err := s.client.GetUpperLimit(ctx, ch)
		if err != nil {
			return fail(string(model.FieldUpper), ch, err)
		}
		channel.UpperLimit = model.Confirm(upper)
	} else {
		channel.LowerLimit = model.Reading{Value: profile.DefaultLowerLimit}
		channel.UpperLimit = model.Reading{Value: profile.DefaultUpperLimit}
	}

	if profile.IOSwitching {
		t, err := s.client.GetIOType(ctx, ch)
		if err != nil {
			return fail(string(model.FieldIOType), ch, err)
		}
		channel.IOType = model.IOReading{Value: t, Confirmed: true}
	}
	return nil, nil
}

// recoverFactoryDefault pushes the factory default to a channel whose value
// could not be read, when configured to do so, and returns the value read
// back afterwards.
func (s *SessionService) recoverFactoryDefault(ctx context.Context, field model.ChannelField, ch int, readErr error) (int, error) {
	if !s.config.Protocol.AutoFactoryDefaults || !recoverable(readErr) {
		return 0, readErr
	}
	ok, err := s.client.SetChannelValue(ctx, field, ch, model.FactoryDefaultPulse)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, readErr
	}
	s.logger.Info("Loaded factory default",
		zap.String("field", string(field)),
		zap.Int("channel", ch),
	)
	s.publish(model.EventDefaultsRestored, "WARNING", map[string]interface{}{
		"field":   string(field),
		"channel": ch,
		"value":   model.FactoryDefaultPulse,
	})
	return s.client.GetChannelValue(ctx, field, ch)
}

// readPPM reads the PPM settings. Legacy firmware cannot report them, so
// the factory settings are pushed instead and the acknowledged push stands
// in for the read.
func (s *SessionService) readPPM(ctx context.Context, profile *model.DeviceProfile, params *model.Parameters) (*readFailure, error) {
	if profile.PPMLegacy {
		if _, err := s.client.ApplyPPMSettings(ctx, model.DefaultPPMSettings); err != nil {
			if errors.Is(err, pikoder.ErrLegacyPPMUnsupported) {
				return &readFailure{field: "ppm", err: err}, nil
			}
			return nil, err
		}
		params.PPM = model.PPMReading{Settings: model.DefaultPPMSettings, Confirmed: true}
		return nil, nil
	}

	settings, err := s.client.GetPPMSettings(ctx)
	if err == nil {
		params.PPM = model.PPMReading{Settings: settings, Confirmed: true}
		return nil, nil
	}
	if !s.config.Protocol.AutoFactoryDefaults || !recoverable(err) {
		return fail("ppm", 0, err)
	}
	ok, serr := s.client.SetPPMSettings(ctx, model.DefaultPPMSettings)
	if serr != nil {
		return nil, serr
	}
	if !ok {
		return fail("ppm", 0, err)
	}
	s.publish(model.EventDefaultsRestored, "WARNING", map[string]interface{}{
		"field": "ppm",
		"value": model.DefaultPPMSettings.String(),
	})
	settings, err = s.client.GetPPMSettings(ctx)
	if err != nil {
		params.PPM = model.PPMReading{Settings: model.DefaultPPMSettings}
		return fail("ppm", 0, err)
	}
	params.PPM = model.PPMReading{Settings: settings, Confirmed: true}
	return nil, nil
}
