// internal/model/parameters.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Parameters is the full mirrored configuration of the connected device
type Parameters struct {
	Channels    [ChannelCount]Channel `json:"channels"`
	Timeout     Reading               `json:"timeout"`
	ZeroOffset  Reading               `json:"zero_offset"`
	I2CAddress  Reading               `json:"i2c_address"`
	PPM         PPMReading            `json:"ppm"`
	AuxFirmware string                `json:"aux_firmware,omitempty"`
	LoadedAt    time.Time             `json:"loaded_at"`
}

// NewParameters returns an unconfirmed snapshot with numbered channels
func NewParameters() *Parameters {
	p := &Parameters{}
	for i := range p.Channels {
		p.Channels[i].Number = i + MinChannel
	}
	return p
}

// Channel returns the mirror of channel n, or nil if n is out of range
func (p *Parameters) Channel(n int) *Channel {
	if n < MinChannel || n > MaxChannel {
		return nil
	}
	return &p.Channels[n-MinChannel]
}

// Invalidate drops every confirmed flag
func (p *Parameters) Invalidate() {
	for i := range p.Channels {
		p.Channels[i].Invalidate()
	}
	p.Timeout.Confirmed = false
	p.ZeroOffset.Confirmed = false
	p.I2CAddress.Confirmed = false
	p.PPM.Confirmed = false
}

// Session describes the active link and what is known about the device
type Session struct {
	ID        uuid.UUID       `json:"id"`
	Link      LinkType        `json:"link"`
	Target    string          `json:"target"`
	State     ConnectionState `json:"state"`
	Profile   *DeviceProfile  `json:"profile,omitempty"`
	StartedAt time.Time       `json:"started_at"`
}
