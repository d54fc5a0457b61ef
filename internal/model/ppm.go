// internal/model/ppm.go
package model

import (
	"fmt"
	"strings"
)

// PPMPolarity is the pulse polarity of the PPM stream
type PPMPolarity int

const (
	PPMPositive PPMPolarity = iota
	PPMNegative
)

// Letter is the wire form of the polarity
func (p PPMPolarity) Letter() string {
	if p == PPMNegative {
		return "N"
	}
	return "P"
}

func (p PPMPolarity) String() string {
	if p == PPMNegative {
		return "NEGATIVE"
	}
	return "POSITIVE"
}

// MarshalText renders the polarity by name
func (p PPMPolarity) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePPMPolarity accepts letters and names
func ParsePPMPolarity(s string) (PPMPolarity, error) {
	switch strings.ToLower(s) {
	case "p", "positive", "pos", "+":
		return PPMPositive, nil
	case "n", "negative", "neg", "futaba", "-":
		return PPMNegative, nil
	default:
		return PPMPositive, fmt.Errorf("unknown ppm polarity: %s", s)
	}
}

// PPMSettings is the channel count and polarity of the PPM output
type PPMSettings struct {
	Channels int         `json:"channels"`
	Polarity PPMPolarity `json:"polarity"`
}

// DefaultPPMSettings are the factory settings: 8 channels, negative
var DefaultPPMSettings = PPMSettings{Channels: 8, Polarity: PPMNegative}

// String renders the wire form, e.g. "8N"
func (s PPMSettings) String() string {
	return fmt.Sprintf("%d%s", s.Channels, s.Polarity.Letter())
}

// PPMReading is the mirrored PPM configuration
type PPMReading struct {
	Settings  PPMSettings `json:"settings"`
	Confirmed bool        `json:"confirmed"`
}
