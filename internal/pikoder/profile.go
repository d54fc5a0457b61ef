// internal/pikoder/profile.go
package pikoder

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pikoder-service/internal/model"
)

// Default limits reported by families that do not expose limit commands
const (
	DefaultLowerLimit = 1000
	DefaultUpperLimit = 2000
)

var (
	v1_00 = decimal.RequireFromString("1.00")
	v1_01 = decimal.RequireFromString("1.01")
	v1_02 = decimal.RequireFromString("1.02")
	v2_00 = decimal.RequireFromString("2.00")
	v2_02 = decimal.RequireFromString("2.02")
	v2_03 = decimal.RequireFromString("2.03")
	v2_04 = decimal.RequireFromString("2.04")
	v2_06 = decimal.RequireFromString("2.06")
	v2_07 = decimal.RequireFromString("2.07")
	v2_09 = decimal.RequireFromString("2.09")
	v3_01 = decimal.RequireFromString("3.01")
)

// ParseFirmwareVersion parses a version reply such as "2.09". Parsing is
// independent of the host locale.
func ParseFirmwareVersion(reply string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(reply))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("malformed firmware version %q: %w", reply, err)
	}
	return v, nil
}

// NegotiateProfile derives the feature set of family running firmware
// version. Versions outside the supported window yield
// *UnsupportedFirmwareError.
func NegotiateProfile(family model.Family, version string) (*model.DeviceProfile, error) {
	v, err := ParseFirmwareVersion(version)
	if err != nil {
		return nil, err
	}

	p := &model.DeviceProfile{
		Family:       family,
		Firmware:     v,
		FirmwareText: strings.TrimSpace(version),
		HasLimits:    true,
		HasNeutral:   true,
	}
	unsupported := func() (*model.DeviceProfile, error) {
		return nil, &UnsupportedFirmwareError{Family: family, Version: p.FirmwareText}
	}
	allFeatures := func() {
		p.IOSwitching = true
		p.FastRetrieve = true
		p.ProtectedSave = true
	}

	switch family {
	case model.FamilySSC:
		if v.GreaterThan(v3_01) || v.LessThan(v2_00) {
			return unsupported()
		}
		switch {
		case v.GreaterThanOrEqual(v2_09):
			allFeatures()
		case v.GreaterThanOrEqual(v2_07):
			p.IOSwitching = true
		}
		p.HasTimeout = true
		p.HasZeroOffset = true
		p.HasSave = true

	case model.FamilySSCHP:
		if v.GreaterThan(v2_04) || v.LessThan(v2_03) {
			return unsupported()
		}
		p.IOSwitching = v.Equal(v2_04)
		p.HPMath = true
		p.HasTimeout = true
		p.HasZeroOffset = true
		p.HasSave = true

	case model.FamilySSCe:
		if v.GreaterThan(v1_01) || v.LessThan(v1_00) {
			return unsupported()
		}
		allFeatures()
		p.HasZeroOffset = true
		p.HasSave = true

	case model.FamilySSCeFree:
		if !v.Equal(v1_00) {
			return unsupported()
		}
		allFeatures()

	case model.FamilySSCPro:
		if !v.Equal(v1_02) {
			return unsupported()
		}
		allFeatures()
		p.HasTimeout = true
		p.HasZeroOffset = true
		p.HasSave = true
		p.HasI2CAddress = true

	case model.FamilyUART2PPM:
		if v.GreaterThan(v2_06) {
			return unsupported()
		}
		p.HasTimeout = true
		p.HasZeroOffset = true
		p.HasSave = true

	case model.FamilyUSB2PPM:
		if v.GreaterThan(v2_04) || v.LessThan(v1_02) {
			return unsupported()
		}
		switch {
		case v.GreaterThan(v2_02):
			p.ProtectedSave = true
			p.StartupValues = true
		case v.GreaterThan(v2_00):
			p.ProtectedSave = true
			p.StartupValues = true
			p.PPMLegacy = true
		default:
			p.PPMLegacy = true
		}
		p.HasPPM = true
		p.HasSave = p.StartupValues
		p.HasLimits = false
		p.HasNeutral = p.StartupValues
		p.DefaultLowerLimit = DefaultLowerLimit
		p.DefaultUpperLimit = DefaultUpperLimit

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDeviceType, family)
	}

	return p, nil
}
