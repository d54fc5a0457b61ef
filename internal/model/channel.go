// internal/model/channel.go
package model

import (
	"fmt"
	"strings"
)

const (
	MinChannel   = 1
	MaxChannel   = 8
	ChannelCount = MaxChannel - MinChannel + 1

	// FactoryDefaultPulse is pushed when a channel cannot be read back
	FactoryDefaultPulse = 1500
)

// IOType is the output mode of a channel
type IOType int

const (
	IOPulse IOType = iota
	IOSwitch
)

func (t IOType) String() string {
	if t == IOPulse {
		return "PULSE"
	}
	return "SWITCH"
}

// MarshalText renders the output mode by name
func (t IOType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *IOType) UnmarshalText(text []byte) error {
	parsed, err := ParseIOType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseIOType accepts the names used by the API and the console
func ParseIOType(s string) (IOType, error) {
	switch strings.ToLower(s) {
	case "pulse", "p", "pwm":
		return IOPulse, nil
	case "switch", "s":
		return IOSwitch, nil
	default:
		return IOPulse, fmt.Errorf("unknown io type: %s", s)
	}
}

// ChannelField names one attribute of a channel
type ChannelField string

const (
	FieldPulse   ChannelField = "pulse"
	FieldNeutral ChannelField = "neutral"
	FieldLower   ChannelField = "lower"
	FieldUpper   ChannelField = "upper"
	FieldIOType  ChannelField = "io"
)

// ParseChannelField validates a field name
func ParseChannelField(s string) (ChannelField, error) {
	switch f := ChannelField(strings.ToLower(s)); f {
	case FieldPulse, FieldNeutral, FieldLower, FieldUpper, FieldIOType:
		return f, nil
	default:
		return "", fmt.Errorf("unknown channel field: %s", s)
	}
}

// Reading is a mirrored device value. Confirmed is true only when the
// value was read back from the device and passed validation.
type Reading struct {
	Value     int  `json:"value"`
	Confirmed bool `json:"confirmed"`
}

// Confirm marks v as read back from the device
func Confirm(v int) Reading {
	return Reading{Value: v, Confirmed: true}
}

// IOReading is the mirrored output mode of a channel
type IOReading struct {
	Value     IOType `json:"value"`
	Confirmed bool   `json:"confirmed"`
}

// Channel mirrors one servo output of the device
type Channel struct {
	Number      int       `json:"number"`
	PulseLength Reading   `json:"pulse_length"`
	Neutral     Reading   `json:"neutral"`
	LowerLimit  Reading   `json:"lower_limit"`
	UpperLimit  Reading   `json:"upper_limit"`
	IOType      IOReading `json:"io_type"`
}

// Invalidate drops every confirmed flag, e.g. after the link was lost
func (c *Channel) Invalidate() {
	c.PulseLength.Confirmed = false
	c.Neutral.Confirmed = false
	c.LowerLimit.Confirmed = false
	c.UpperLimit.Confirmed = false
	c.IOType.Confirmed = false
}

// Reading returns the numeric reading for field
func (c *Channel) Reading(field ChannelField) (*Reading, bool) {
	switch field {
	case FieldPulse:
		return &c.PulseLength, true
	case FieldNeutral:
		return &c.Neutral, true
	case FieldLower:
		return &c.LowerLimit, true
	case FieldUpper:
		return &c.UpperLimit, true
	default:
		return nil, false
	}
}
