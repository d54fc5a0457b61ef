// internal/service/parameter_service.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pikoder-service/internal/codec"
	"pikoder-service/internal/model"
	"pikoder-service/internal/pikoder"
)

// Setting names a device-wide parameter
type Setting string

const (
	SettingTimeout    Setting = "timeout"
	SettingZeroOffset Setting = "offset"
	SettingI2CAddress Setting = "i2c"
)

// ParseSetting validates a setting name
func ParseSetting(s string) (Setting, error) {
	switch v := Setting(s); v {
	case SettingTimeout, SettingZeroOffset, SettingI2CAddress:
		return v, nil
	default:
		return "", fmt.Errorf("unknown setting: %s", s)
	}
}

// channelFieldSupported gates channel fields on the negotiated profile
func channelFieldSupported(profile *model.DeviceProfile, field model.ChannelField) bool {
	switch field {
	case model.FieldNeutral:
		return profile.HasNeutral
	case model.FieldLower, model.FieldUpper:
		return profile.HasLimits
	case model.FieldIOType:
		return profile.IOSwitching
	default:
		return true
	}
}

func (s *SessionService) channelProfile(field model.ChannelField, ch int) (*model.DeviceProfile, error) {
	if err := codec.CheckChannel(ch); err != nil {
		return nil, err
	}
	profile, err := s.connectedProfile()
	if err != nil {
		return nil, err
	}
	if !channelFieldSupported(profile, field) {
		return nil, fmt.Errorf("%s on %s: %w", field, profile.Family, pikoder.ErrNotSupported)
	}
	return profile, nil
}

// GetChannelValue reads a numeric channel field and refreshes the mirror
func (s *SessionService) GetChannelValue(ctx context.Context, ch int, field model.ChannelField) (model.Reading, error) {
	if field == model.FieldIOType {
		return model.Reading{}, fmt.Errorf("%s is not numeric", field)
	}
	if _, err := s.channelProfile(field, ch); err != nil {
		return model.Reading{}, err
	}

	v, err := s.client.GetChannelValue(ctx, field, ch)
	if err != nil {
		s.invalidateChannelField(ch, field, err)
		return model.Reading{}, err
	}
	reading := model.Confirm(v)
	s.updateParameters(func(p *model.Parameters) {
		r, _ := p.Channel(ch).Reading(field)
		*r = reading
	})
	return reading, nil
}

// SetChannelValue writes a numeric channel field and reads it back. The
// result is false when the device did not acknowledge the write.
func (s *SessionService) SetChannelValue(ctx context.Context, ch int, field model.ChannelField, us int) (bool, error) {
	if field == model.FieldIOType {
		return false, fmt.Errorf("%s is not numeric", field)
	}
	if _, err := s.channelProfile(field, ch); err != nil {
		return false, err
	}

	ok, err := s.client.SetChannelValue(ctx, field, ch, us)
	if err != nil || !ok {
		s.checkLink(err)
		return ok, err
	}
	s.publish(model.EventParameterChanged, "INFO", map[string]interface{}{
		"field":   string(field),
		"channel": ch,
		"value":   us,
	})
	if _, err := s.GetChannelValue(ctx, ch, field); err != nil {
		s.logger.Warn("Read back failed", zap.String("field", string(field)), zap.Int("channel", ch), zap.Error(err))
	}
	return true, nil
}

func (s *SessionService) invalidateChannelField(ch int, field model.ChannelField, err error) {
	s.checkLink(err)
	s.updateParameters(func(p *model.Parameters) {
		c := p.Channel(ch)
		if field == model.FieldIOType {
			c.IOType.Confirmed = false
			return
		}
		if r, ok := c.Reading(field); ok {
			r.Confirmed = false
		}
	})
	s.publish(model.EventParameterInvalid, "WARNING", map[string]interface{}{
		"field":   string(field),
		"channel": ch,
		"error":   err.Error(),
	})
}

// GetIOType reads the output mode of a channel
func (s *SessionService) GetIOType(ctx context.Context, ch int) (model.IOReading, error) {
	if _, err := s.channelProfile(model.FieldIOType, ch); err != nil {
		return model.IOReading{}, err
	}
	t, err := s.client.GetIOType(ctx, ch)
	if err != nil {
		s.invalidateChannelField(ch, model.FieldIOType, err)
		return model.IOReading{}, err
	}
	reading := model.IOReading{Value: t, Confirmed: true}
	s.updateParameters(func(p *model.Parameters) {
		p.Channel(ch).IOType = reading
	})
	return reading, nil
}

// SetIOType switches the output mode of a channel
func (s *SessionService) SetIOType(ctx context.Context, ch int, t model.IOType) (bool, error) {
	if _, err := s.channelProfile(model.FieldIOType, ch); err != nil {
		return false, err
	}
	ok, err := s.client.SetIOType(ctx, ch, t)
	if err != nil || !ok {
		s.checkLink(err)
		return ok, err
	}
	s.publish(model.EventParameterChanged, "INFO", map[string]interface{}{
		"field":   string(model.FieldIOType),
		"channel": ch,
		"value":   t.String(),
	})
	if _, err := s.GetIOType(ctx, ch); err != nil {
		s.logger.Warn("Read back failed", zap.Int("channel", ch), zap.Error(err))
	}
	return true, nil
}

// RestoreChannelDefault pushes the factory default to the pulse length and,
// where the device has one, the neutral position of a channel.
func (s *SessionService) RestoreChannelDefault(ctx context.Context, ch int) (bool, error) {
	profile, err := s.channelProfile(model.FieldPulse, ch)
	if err != nil {
		return false, err
	}

	fields := []model.ChannelField{model.FieldPulse}
	if profile.HasNeutral {
		fields = append(fields, model.FieldNeutral)
	}
	for _, field := range fields {
		ok, err := s.client.SetChannelValue(ctx, field, ch, model.FactoryDefaultPulse)
		if err != nil || !ok {
			s.checkLink(err)
			return false, err
		}
		if _, err := s.GetChannelValue(ctx, ch, field); err != nil {
			s.logger.Warn("Read back failed", zap.String("field", string(field)), zap.Int("channel", ch), zap.Error(err))
		}
	}

	s.publish(model.EventDefaultsRestored, "INFO", map[string]interface{}{
		"channel": ch,
		"value":   model.FactoryDefaultPulse,
	})
	return true, nil
}

type settingOps struct {
	supported func(*model.DeviceProfile) bool
	get       func(context.Context) (int, error)
	set       func(context.Context, int) (bool, error)
	reading   func(*model.Parameters) *model.Reading
}

func (s *SessionService) opsFor(setting Setting) (settingOps, error) {
	switch setting {
	case SettingTimeout:
		return settingOps{
			supported: func(p *model.DeviceProfile) bool { return p.HasTimeout },
			get:       s.client.GetTimeout,
			set:       s.client.SetTimeout,
			reading:   func(p *model.Parameters) *model.Reading { return &p.Timeout },
		}, nil
	case SettingZeroOffset:
		return settingOps{
			supported: func(p *model.DeviceProfile) bool { return p.HasZeroOffset },
			get:       s.client.GetZeroOffset,
			set:       s.client.SetZeroOffset,
			reading:   func(p *model.Parameters) *model.Reading { return &p.ZeroOffset },
		}, nil
	case SettingI2CAddress:
		return settingOps{
			supported: func(p *model.DeviceProfile) bool { return p.HasI2CAddress },
			get:       s.client.GetI2CAddress,
			set:       s.client.SetI2CAddress,
			reading:   func(p *model.Parameters) *model.Reading { return &p.I2CAddress },
		}, nil
	default:
		return settingOps{}, fmt.Errorf("unknown setting: %s", setting)
	}
}

func (s *SessionService) supportedSetting(setting Setting) (settingOps, error) {
	ops, err := s.opsFor(setting)
	if err != nil {
		return ops, err
	}
	profile, err := s.connectedProfile()
	if err != nil {
		return ops, err
	}
	if !ops.supported(profile) {
		return ops, fmt.Errorf("%s on %s: %w", setting, profile.Family, pikoder.ErrNotSupported)
	}
	return ops, nil
}

// GetSetting reads a device-wide setting
func (s *SessionService) GetSetting(ctx context.Context, setting Setting) (model.Reading, error) {
	ops, err := s.supportedSetting(setting)
	if err != nil {
		return model.Reading{}, err
	}
	v, err := ops.get(ctx)
	if err != nil {
		s.checkLink(err)
		s.updateParameters(func(p *model.Parameters) { ops.reading(p).Confirmed = false })
		return model.Reading{}, err
	}
	reading := model.Confirm(v)
	s.updateParameters(func(p *model.Parameters) { *ops.reading(p) = reading })
	return reading, nil
}

// SetSetting writes a device-wide setting and reads it back. A new timeout
// also retunes link supervision.
func (s *SessionService) SetSetting(ctx context.Context, setting Setting, v int) (bool, error) {
	ops, err := s.supportedSetting(setting)
	if err != nil {
		return false, err
	}
	ok, err := ops.set(ctx, v)
	if err != nil || !ok {
		s.checkLink(err)
		return ok, err
	}
	s.updateParameters(func(p *model.Parameters) { *ops.reading(p) = model.Reading{Value: v} })
	s.publish(model.EventParameterChanged, "INFO", map[string]interface{}{
		"field": string(setting),
		"value": v,
	})
	if _, err := s.GetSetting(ctx, setting); err != nil {
		s.logger.Warn("Read back failed", zap.String("field", string(setting)), zap.Error(err))
	}

	if setting == SettingTimeout && s.config.Heartbeat.Enabled {
		s.startHeartbeat(s.heartbeatInterval(s.Parameters()))
	}
	return true, nil
}

// SettingReading returns the mirrored value of a setting without device I/O
func (s *SessionService) SettingReading(setting Setting) (model.Reading, error) {
	ops, err := s.opsFor(setting)
	if err != nil {
		return model.Reading{}, err
	}
	return *ops.reading(s.Parameters()), nil
}

// GetPPMSettings reads the PPM configuration. Legacy firmware cannot report
// it; the last value pushed is returned instead.
func (s *SessionService) GetPPMSettings(ctx context.Context) (model.PPMReading, error) {
	profile, err := s.connectedProfile()
	if err != nil {
		return model.PPMReading{}, err
	}
	if !profile.HasPPM {
		return model.PPMReading{}, fmt.Errorf("ppm on %s: %w", profile.Family, pikoder.ErrNotSupported)
	}
	if profile.PPMLegacy {
		return s.Parameters().PPM, nil
	}

	settings, err := s.client.GetPPMSettings(ctx)
	if err != nil {
		s.checkLink(err)
		s.updateParameters(func(p *model.Parameters) { p.PPM.Confirmed = false })
		return model.PPMReading{}, err
	}
	reading := model.PPMReading{Settings: settings, Confirmed: true}
	s.updateParameters(func(p *model.Parameters) { p.PPM = reading })
	return reading, nil
}

// SetPPMSettings writes the PPM configuration in the encoding of the
// connected firmware
func (s *SessionService) SetPPMSettings(ctx context.Context, settings model.PPMSettings) (bool, error) {
	if _, err := codec.EncodePPM(settings); err != nil {
		return false, err
	}
	ok, err := s.client.ApplyPPMSettings(ctx, settings)
	if err != nil || !ok {
		s.checkLink(err)
		return ok, err
	}
	legacy := s.client.Profile() != nil && s.client.Profile().PPMLegacy
	s.updateParameters(func(p *model.Parameters) {
		p.PPM = model.PPMReading{Settings: settings, Confirmed: legacy}
	})
	s.publish(model.EventParameterChanged, "INFO", map[string]interface{}{
		"field": "ppm",
		"value": settings.String(),
	})
	if !legacy {
		if _, err := s.GetPPMSettings(ctx); err != nil {
			s.logger.Warn("Read back failed", zap.String("field", "ppm"), zap.Error(err))
		}
	}
	return true, nil
}

// SavePreferences stores the current settings on the device
func (s *SessionService) SavePreferences(ctx context.Context) (bool, error) {
	profile, err := s.connectedProfile()
	if err != nil {
		return false, err
	}
	if !profile.HasSave {
		return false, fmt.Errorf("save on %s: %w", profile.Family, pikoder.ErrNotSupported)
	}
	ok, err := s.client.SavePreferences(ctx)
	if err != nil || !ok {
		s.checkLink(err)
		return ok, err
	}
	s.publish(model.EventPreferencesStored, "INFO", map[string]interface{}{
		"protected": profile.ProtectedSave,
	})
	return true, nil
}

// AuxFirmwareVersion reads the firmware version of the radio module
func (s *SessionService) AuxFirmwareVersion(ctx context.Context) (string, error) {
	if _, err := s.connectedProfile(); err != nil {
		return "", err
	}
	version, err := s.client.GetAuxFirmwareVersion(ctx)
	if err != nil {
		s.checkLink(err)
		return "", err
	}
	s.updateParameters(func(p *model.Parameters) { p.AuxFirmware = version })
	return version, nil
}
