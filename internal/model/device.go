// internal/model/device.go
package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LinkType represents the physical link to the PiKoder
type LinkType string

const (
	LinkTypeSerial LinkType = "SERIAL"
	LinkTypeWLAN   LinkType = "WLAN"
)

// ParseLinkType accepts the link names used by the API and the console
func ParseLinkType(s string) (LinkType, error) {
	switch s {
	case "serial", "SERIAL", "com", "COM":
		return LinkTypeSerial, nil
	case "wlan", "WLAN", "wifi", "udp":
		return LinkTypeWLAN, nil
	default:
		return "", fmt.Errorf("unsupported link type: %s", s)
	}
}

// ConnectionState represents the state of the single active link
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateLinking
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateLinking:
		return "LINKING"
	case StateConnected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

// MarshalText renders the state by name in JSON payloads
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Family is the PiKoder device family, fixed once the device is identified
type Family int

const (
	FamilySSC Family = iota + 1
	FamilySSCe
	FamilySSCeFree
	FamilySSCPro
	FamilySSCHP
	FamilyUSB2PPM
	FamilyUART2PPM
)

// Families lists every known family
var Families = []Family{
	FamilySSC, FamilySSCe, FamilySSCeFree, FamilySSCPro,
	FamilySSCHP, FamilyUSB2PPM, FamilyUART2PPM,
}

func (f Family) String() string {
	switch f {
	case FamilySSC:
		return "SSC"
	case FamilySSCe:
		return "SSCe"
	case FamilySSCeFree:
		return "SSCe (free)"
	case FamilySSCPro:
		return "SSC PRO"
	case FamilySSCHP:
		return "SSC-HP"
	case FamilyUSB2PPM:
		return "USB2PPM"
	case FamilyUART2PPM:
		return "UART2PPM"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// MarshalText renders the family by its product name
func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// DeviceProfile captures what the connected firmware supports.
// It is computed once per connection and never mutated afterwards.
type DeviceProfile struct {
	Family            Family          `json:"family"`
	Firmware          decimal.Decimal `json:"firmware"`
	FirmwareText      string          `json:"firmware_text"`
	StatusRecord      string          `json:"status_record"`
	IOSwitching       bool            `json:"io_switching"`
	FastRetrieve      bool            `json:"fast_channel_retrieve"`
	ProtectedSave     bool            `json:"protected_save"`
	HPMath            bool            `json:"hp_math"`
	PPMLegacy         bool            `json:"ppm_legacy"`
	StartupValues     bool            `json:"startup_values"`
	HasTimeout        bool            `json:"has_timeout"`
	HasZeroOffset     bool            `json:"has_zero_offset"`
	HasI2CAddress     bool            `json:"has_i2c_address"`
	HasPPM            bool            `json:"has_ppm"`
	HasSave           bool            `json:"has_save"`
	HasLimits         bool            `json:"has_limits"`
	HasNeutral        bool            `json:"has_neutral"`
	DefaultLowerLimit int             `json:"default_lower_limit,omitempty"`
	DefaultUpperLimit int             `json:"default_upper_limit,omitempty"`
}
