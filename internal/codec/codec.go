// internal/codec/codec.go
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pikoder-service/internal/model"
)

// HPFactor scales microseconds to high precision units
const HPFactor = 5

// Field widths on the wire
const (
	PulseWidth      = 3
	HPPulseWidth    = 5
	TimeoutWidth    = 3
	ZeroOffsetWidth = 3
	I2CAddressWidth = 2
)

// Range is an inclusive bound
type Range struct {
	Min int
	Max int
}

// Contains reports whether v lies within the bound, both ends included
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

var (
	PulseRange      = Range{Min: 750, Max: 2250}
	HPPulseRange    = Range{Min: 3750, Max: 11250}
	ZeroOffsetRange = Range{Min: 0, Max: 248}
	TimeoutRange    = Range{Min: 0, Max: 999}
	I2CAddressRange = Range{Min: 0, Max: 80}
	PPMChannelRange = Range{Min: 1, Max: 8}
	ChannelRange    = Range{Min: model.MinChannel, Max: model.MaxChannel}
)

// ErrNotNumeric is returned for replies that are not plain decimal digits
var ErrNotNumeric = errors.New("reply is not numeric")

// RangeError reports a value outside its protocol range
type RangeError struct {
	Field string
	Value int
	Range Range
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range %s", e.Field, e.Value, e.Range)
}

// PadLeft renders v in decimal, left padded with zeros to width digits
func PadLeft(v, width int) string {
	s := strconv.Itoa(v)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// ParseDigits parses a reply made only of ASCII digits
func ParseDigits(reply string) (int, error) {
	s := strings.TrimSpace(reply)
	if s == "" {
		return 0, ErrNotNumeric
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, reply)
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, reply)
	}
	return v, nil
}

// EncodeBounded checks v against r and renders it with the given width
func EncodeBounded(field string, v int, r Range, width int) (string, error) {
	if !r.Contains(v) {
		return "", &RangeError{Field: field, Value: v, Range: r}
	}
	return PadLeft(v, width), nil
}

// DecodeBounded parses a reply and checks it against r
func DecodeBounded(field, reply string, r Range) (int, error) {
	v, err := ParseDigits(reply)
	if err != nil {
		return 0, err
	}
	if !r.Contains(v) {
		return 0, &RangeError{Field: field, Value: v, Range: r}
	}
	return v, nil
}

// EncodePulse renders a pulse-family value given in microseconds.
// In high precision mode the value is scaled by HPFactor.
func EncodePulse(us int, hp bool) (string, error) {
	if !PulseRange.Contains(us) {
		return "", &RangeError{Field: "pulse", Value: us, Range: PulseRange}
	}
	if hp {
		return PadLeft(us*HPFactor, HPPulseWidth), nil
	}
	return PadLeft(us, PulseWidth), nil
}

// DecodePulse validates a pulse-family reply and returns microseconds
func DecodePulse(reply string, hp bool) (int, error) {
	if hp {
		v, err := DecodeBounded("pulse", reply, HPPulseRange)
		if err != nil {
			return 0, err
		}
		return v / HPFactor, nil
	}
	return DecodeBounded("pulse", reply, PulseRange)
}

// NormalizePulse strips the leading zero of a fixed width reply, e.g.
// "0750" becomes "750" and "09000" becomes "9000" in high precision mode.
func NormalizePulse(reply string, hp bool) string {
	s := strings.TrimSpace(reply)
	width, limit := 4, 1000
	if hp {
		width, limit = 5, 10000
	}
	if v, err := ParseDigits(s); err == nil && v < limit && len(s) == width {
		return s[1:]
	}
	return s
}

// EncodeIOType renders the output mode letter
func EncodeIOType(t model.IOType) string {
	if t == model.IOPulse {
		return "P"
	}
	return "S"
}

// DecodeIOType maps "P" to pulse and anything else to switch
func DecodeIOType(reply string) model.IOType {
	if strings.TrimSpace(reply) == "P" {
		return model.IOPulse
	}
	return model.IOSwitch
}

// EncodePPM renders "<n><P|N>"
func EncodePPM(s model.PPMSettings) (string, error) {
	if !PPMChannelRange.Contains(s.Channels) {
		return "", &RangeError{Field: "ppm channels", Value: s.Channels, Range: PPMChannelRange}
	}
	return s.String(), nil
}

// DecodePPM parses "<n><P|N>"
func DecodePPM(reply string) (model.PPMSettings, error) {
	s := strings.TrimSpace(reply)
	if len(s) != 2 {
		return model.PPMSettings{}, fmt.Errorf("malformed ppm settings %q", reply)
	}
	n, err := ParseDigits(s[:1])
	if err != nil {
		return model.PPMSettings{}, err
	}
	if !PPMChannelRange.Contains(n) {
		return model.PPMSettings{}, &RangeError{Field: "ppm channels", Value: n, Range: PPMChannelRange}
	}
	var polarity model.PPMPolarity
	switch s[1] {
	case 'P':
		polarity = model.PPMPositive
	case 'N':
		polarity = model.PPMNegative
	default:
		return model.PPMSettings{}, fmt.Errorf("malformed ppm polarity %q", reply)
	}
	return model.PPMSettings{Channels: n, Polarity: polarity}, nil
}

// CheckChannel validates a channel number
func CheckChannel(ch int) error {
	if !ChannelRange.Contains(ch) {
		return &RangeError{Field: "channel", Value: ch, Range: ChannelRange}
	}
	return nil
}
