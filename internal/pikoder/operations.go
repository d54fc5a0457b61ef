// internal/pikoder/operations.go
package pikoder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pikoder-service/internal/codec"
	"pikoder-service/internal/model"
)

// Legacy binary PPM frame: tag, sub-command, reserved, value
const (
	legacyTag          = 83
	legacyPPMChannels  = 21
	legacyPPMMode      = 22
	legacyModePositive = 0
	legacyModeNegative = 1
)

// saveProtected is appended to "S" on firmware that guards the EEPROM write
const saveProtected = "U]U]"

// fieldPrefix maps a channel field to its command letter
var fieldPrefix = map[model.ChannelField]string{
	model.FieldPulse:   "",
	model.FieldNeutral: "N",
	model.FieldLower:   "L",
	model.FieldUpper:   "U",
	model.FieldIOType:  "O",
}

func channelCommand(field model.ChannelField, ch int, suffix string) string {
	return fieldPrefix[field] + strconv.Itoa(ch) + suffix
}

// GetChannelValue reads a pulse-family field of channel ch in microseconds
func (c *Client) GetChannelValue(ctx context.Context, field model.ChannelField, ch int) (int, error) {
	if field == model.FieldIOType {
		return 0, fmt.Errorf("%s is not a pulse field", field)
	}
	if err := codec.CheckChannel(ch); err != nil {
		return 0, err
	}
	hp, fast := c.withProfile()
	return get(c, ctx, channelCommand(field, ch, "?"), c.opts.GetRetries, fast, func(reply string) (int, error) {
		return codec.DecodePulse(codec.NormalizePulse(reply, hp), hp)
	})
}

// SetChannelValue writes a pulse-family field of channel ch in microseconds
func (c *Client) SetChannelValue(ctx context.Context, field model.ChannelField, ch, us int) (bool, error) {
	if field == model.FieldIOType {
		return false, fmt.Errorf("%s is not a pulse field", field)
	}
	if err := codec.CheckChannel(ch); err != nil {
		return false, err
	}
	hp, _ := c.withProfile()
	payload, err := codec.EncodePulse(us, hp)
	if err != nil {
		return false, err
	}
	return c.set(ctx, channelCommand(field, ch, "="+payload))
}

// GetPulseLength reads the current pulse length of channel ch
func (c *Client) GetPulseLength(ctx context.Context, ch int) (int, error) {
	return c.GetChannelValue(ctx, model.FieldPulse, ch)
}

// SetPulseLength moves channel ch
func (c *Client) SetPulseLength(ctx context.Context, ch, us int) (bool, error) {
	return c.SetChannelValue(ctx, model.FieldPulse, ch, us)
}

func (c *Client) GetNeutral(ctx context.Context, ch int) (int, error) {
	return c.GetChannelValue(ctx, model.FieldNeutral, ch)
}

func (c *Client) SetNeutral(ctx context.Context, ch, us int) (bool, error) {
	return c.SetChannelValue(ctx, model.FieldNeutral, ch, us)
}

func (c *Client) GetLowerLimit(ctx context.Context, ch int) (int, error) {
	return c.GetChannelValue(ctx, model.FieldLower, ch)
}

func (c *Client) SetLowerLimit(ctx context.Context, ch, us int) (bool, error) {
	return c.SetChannelValue(ctx, model.FieldLower, ch, us)
}

func (c *Client) GetUpperLimit(ctx context.Context, ch int) (int, error) {
	return c.GetChannelValue(ctx, model.FieldUpper, ch)
}

func (c *Client) SetUpperLimit(ctx context.Context, ch, us int) (bool, error) {
	return c.SetChannelValue(ctx, model.FieldUpper, ch, us)
}

// GetIOType reads the output mode of channel ch. Any non-empty reply is
// accepted; only "P" means pulse.
func (c *Client) GetIOType(ctx context.Context, ch int) (model.IOType, error) {
	if err := codec.CheckChannel(ch); err != nil {
		return model.IOPulse, err
	}
	return get(c, ctx, channelCommand(model.FieldIOType, ch, "?"), c.opts.GetRetries, false, func(reply string) (model.IOType, error) {
		if strings.TrimSpace(reply) == "" {
			return model.IOPulse, errors.New("empty reply")
		}
		return codec.DecodeIOType(reply), nil
	})
}

// SetIOType switches channel ch between pulse and switch output
func (c *Client) SetIOType(ctx context.Context, ch int, t model.IOType) (bool, error) {
	if err := codec.CheckChannel(ch); err != nil {
		return false, err
	}
	return c.set(ctx, channelCommand(model.FieldIOType, ch, "="+codec.EncodeIOType(t)))
}

// GetFirmwareVersion returns the raw version reply. It is repeated on
// timeout only.
func (c *Client) GetFirmwareVersion(ctx context.Context) (string, error) {
	return get(c, ctx, "0", c.opts.FirmwareRetries, false, func(reply string) (string, error) {
		return reply, nil
	})
}

// GetAuxFirmwareVersion returns the firmware version of the WLAN module
func (c *Client) GetAuxFirmwareVersion(ctx context.Context) (string, error) {
	return get(c, ctx, "$", c.opts.FirmwareRetries, false, func(reply string) (string, error) {
		return reply, nil
	})
}

// GetStatusRecord queries "?" until the reply carries a status record.
// Stale frames are drained before every attempt.
func (c *Client) GetStatusRecord(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		last      error = ErrTimedOut
		lastReply string
	)
	for attempt := 1; attempt <= c.opts.StatusRetries; attempt++ {
		if c.link == nil {
			return "", ErrNotConnected
		}
		if err := c.link.Drain(ctx); err != nil {
			return "", c.checkLink(err)
		}
		reply, err := c.exchange(ctx, "?", false)
		c.ll.LogExchange("?", reply, attempt, err)
		if err != nil {
			if errors.Is(err, ErrTimedOut) {
				last = ErrTimedOut
				continue
			}
			return "", err
		}
		lastReply = reply
		if strings.Contains(reply, statusMarker) {
			return reply, nil
		}
		last = &ValidationError{Command: "?", Reply: reply, Err: errors.New("no status record")}
	}
	if strings.TrimSpace(lastReply) == "?" {
		return "", ErrUnknownCommand
	}
	return "", last
}

// Identify classifies the connected device and negotiates its profile.
// The profile stays in effect until the link is closed.
func (c *Client) Identify(ctx context.Context) (*model.DeviceProfile, error) {
	status, err := c.GetStatusRecord(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read status record: %w", err)
	}
	family, err := ClassifyFamily(status)
	if err != nil {
		return nil, err
	}
	version, err := c.GetFirmwareVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s firmware version: %w", family, err)
	}
	profile, err := NegotiateProfile(family, version)
	if err != nil {
		return nil, err
	}
	profile.StatusRecord = status

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return nil, ErrNotConnected
	}
	c.profile = profile
	return profile, nil
}

// GetTimeout reads the device timeout in tenths of a second
func (c *Client) GetTimeout(ctx context.Context) (int, error) {
	return get(c, ctx, "T?", c.opts.GetRetries, false, func(reply string) (int, error) {
		return codec.DecodeBounded("timeout", reply, codec.TimeoutRange)
	})
}

func (c *Client) SetTimeout(ctx context.Context, v int) (bool, error) {
	payload, err := codec.EncodeBounded("timeout", v, codec.TimeoutRange, codec.TimeoutWidth)
	if err != nil {
		return false, err
	}
	return c.set(ctx, "T="+payload)
}

// GetZeroOffset reads the Mini SSC channel offset
func (c *Client) GetZeroOffset(ctx context.Context) (int, error) {
	return get(c, ctx, "M?", c.opts.GetRetries, false, func(reply string) (int, error) {
		return codec.DecodeBounded("zero offset", reply, codec.ZeroOffsetRange)
	})
}

func (c *Client) SetZeroOffset(ctx context.Context, v int) (bool, error) {
	payload, err := codec.EncodeBounded("zero offset", v, codec.ZeroOffsetRange, codec.ZeroOffsetWidth)
	if err != nil {
		return false, err
	}
	return c.set(ctx, "M="+payload)
}

// GetI2CAddress reads the I2C base address of an SSC PRO
func (c *Client) GetI2CAddress(ctx context.Context) (int, error) {
	return get(c, ctx, "I?", c.opts.GetRetries, false, func(reply string) (int, error) {
		return codec.DecodeBounded("i2c address", reply, codec.I2CAddressRange)
	})
}

func (c *Client) SetI2CAddress(ctx context.Context, v int) (bool, error) {
	payload, err := codec.EncodeBounded("i2c address", v, codec.I2CAddressRange, codec.I2CAddressWidth)
	if err != nil {
		return false, err
	}
	return c.set(ctx, "I="+payload)
}

// GetPPMSettings reads channel count and polarity
func (c *Client) GetPPMSettings(ctx context.Context) (model.PPMSettings, error) {
	return get(c, ctx, "P?", c.opts.GetRetries, false, codec.DecodePPM)
}

// SetPPMSettings writes channel count and polarity with the textual command
func (c *Client) SetPPMSettings(ctx context.Context, s model.PPMSettings) (bool, error) {
	payload, err := codec.EncodePPM(s)
	if err != nil {
		return false, err
	}
	return c.set(ctx, "P="+payload)
}

// SetPPMChannelsLegacy sends the binary channel count frame. No reply is
// expected.
func (c *Client) SetPPMChannelsLegacy(ctx context.Context, n int) error {
	if !codec.PPMChannelRange.Contains(n) {
		return &codec.RangeError{Field: "ppm channels", Value: n, Range: codec.PPMChannelRange}
	}
	return c.send(ctx, []byte{legacyTag, legacyPPMChannels, 0, byte(n)})
}

// SetPPMModeLegacy sends the binary polarity frame. No reply is expected.
func (c *Client) SetPPMModeLegacy(ctx context.Context, p model.PPMPolarity) error {
	mode := byte(legacyModePositive)
	if p == model.PPMNegative {
		mode = legacyModeNegative
	}
	return c.send(ctx, []byte{legacyTag, legacyPPMMode, 0, mode})
}

// ApplyPPMSettings writes s with the encoding the negotiated firmware
// understands. Legacy frames are not acknowledged and report true once sent.
func (c *Client) ApplyPPMSettings(ctx context.Context, s model.PPMSettings) (bool, error) {
	profile := c.Profile()
	if profile == nil {
		return false, ErrNotConnected
	}
	if !profile.HasPPM {
		return false, ErrNotSupported
	}
	if !profile.PPMLegacy {
		return c.SetPPMSettings(ctx, s)
	}
	if err := c.SetPPMChannelsLegacy(ctx, s.Channels); err != nil {
		return false, err
	}
	if err := c.SetPPMModeLegacy(ctx, s.Polarity); err != nil {
		return false, err
	}
	return true, nil
}

// SavePreferences stores the current settings as power-on defaults
func (c *Client) SavePreferences(ctx context.Context) (bool, error) {
	cmd := "S"
	if p := c.Profile(); p != nil && p.ProtectedSave {
		cmd += saveProtected
	}
	return c.set(ctx, cmd)
}
