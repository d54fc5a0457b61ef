package pikoder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"pikoder-service/internal/model"
)

func TestClassifyFamily(t *testing.T) {
	tests := []struct {
		status string
		want   model.Family
	}{
		{"PiKoder/UART2PPM T=0100", model.FamilyUART2PPM},
		{"PiKoder/USB2PPM T=0000", model.FamilyUSB2PPM},
		{"PiKoder/SSC-HP T=0100", model.FamilySSCHP},
		{"PiKoder/SSC PRO T=0100", model.FamilySSCPro},
		{"PiKoder/SSCe (free) T=0100", model.FamilySSCeFree},
		{"PiKoder/SSCe T=0100", model.FamilySSCe},
		{"PiKoder/SSC T=0100", model.FamilySSC},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			got, err := ClassifyFamily(tt.status)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := ClassifyFamily("T=0100")
	require.ErrorIs(t, err, ErrUnknownDeviceType)
}

func TestNegotiateProfileVersionWindows(t *testing.T) {
	tests := []struct {
		family    model.Family
		version   string
		supported bool
	}{
		{model.FamilySSC, "1.99", false},
		{model.FamilySSC, "2.00", true},
		{model.FamilySSC, "3.01", true},
		{model.FamilySSC, "3.02", false},
		{model.FamilySSCHP, "2.02", false},
		{model.FamilySSCHP, "2.03", true},
		{model.FamilySSCHP, "2.04", true},
		{model.FamilySSCHP, "2.05", false},
		{model.FamilySSCe, "0.99", false},
		{model.FamilySSCe, "1.00", true},
		{model.FamilySSCe, "1.01", true},
		{model.FamilySSCe, "1.02", false},
		{model.FamilySSCeFree, "1.00", true},
		{model.FamilySSCeFree, "1.01", false},
		{model.FamilySSCPro, "1.02", true},
		{model.FamilySSCPro, "1.01", false},
		{model.FamilySSCPro, "1.03", false},
		{model.FamilyUART2PPM, "2.06", true},
		{model.FamilyUART2PPM, "2.07", false},
		{model.FamilyUSB2PPM, "1.01", false},
		{model.FamilyUSB2PPM, "1.02", true},
		{model.FamilyUSB2PPM, "2.04", true},
		{model.FamilyUSB2PPM, "2.05", false},
	}
	for _, tt := range tests {
		t.Run(tt.family.String()+"/"+tt.version, func(t *testing.T) {
			p, err := NegotiateProfile(tt.family, tt.version)
			if tt.supported {
				require.NoError(t, err)
				require.Equal(t, tt.family, p.Family)
				return
			}
			var uerr *UnsupportedFirmwareError
			require.ErrorAs(t, err, &uerr)
			require.Equal(t, tt.version, uerr.Version)
		})
	}
}

func TestNegotiateProfileSSCFeatures(t *testing.T) {
	p, err := NegotiateProfile(model.FamilySSC, "2.09")
	require.NoError(t, err)
	require.True(t, p.IOSwitching)
	require.True(t, p.FastRetrieve)
	require.True(t, p.ProtectedSave)

	p, err = NegotiateProfile(model.FamilySSC, "2.08")
	require.NoError(t, err)
	require.True(t, p.IOSwitching)
	require.False(t, p.FastRetrieve)
	require.False(t, p.ProtectedSave)

	p, err = NegotiateProfile(model.FamilySSC, "2.06")
	require.NoError(t, err)
	require.False(t, p.IOSwitching)
	require.True(t, p.HasTimeout)
	require.True(t, p.HasZeroOffset)
	require.False(t, p.HPMath)
}

func TestNegotiateProfileSSCHP(t *testing.T) {
	p, err := NegotiateProfile(model.FamilySSCHP, "2.04")
	require.NoError(t, err)
	require.True(t, p.HPMath)
	require.True(t, p.IOSwitching)

	p, err = NegotiateProfile(model.FamilySSCHP, "2.03")
	require.NoError(t, err)
	require.True(t, p.HPMath)
	require.False(t, p.IOSwitching)
}

func TestFirmware204EnablesIOSwitching(t *testing.T) {
	hp, err := NegotiateProfile(model.FamilySSCHP, "2.04")
	require.NoError(t, err)
	require.True(t, hp.IOSwitching)

	ssc, err := NegotiateProfile(model.FamilySSC, "2.04")
	require.NoError(t, err)
	require.False(t, ssc.IOSwitching)
	require.False(t, ssc.FastRetrieve)
	require.False(t, ssc.ProtectedSave)
}

func TestNegotiateProfileSSCVariants(t *testing.T) {
	p, err := NegotiateProfile(model.FamilySSCPro, "1.02")
	require.NoError(t, err)
	require.True(t, p.HasI2CAddress)
	require.True(t, p.ProtectedSave)
	require.False(t, p.HasPPM)

	p, err = NegotiateProfile(model.FamilySSCe, "1.00")
	require.NoError(t, err)
	require.False(t, p.HasTimeout)
	require.True(t, p.HasZeroOffset)

	p, err = NegotiateProfile(model.FamilySSCeFree, "1.00")
	require.NoError(t, err)
	require.False(t, p.HasTimeout)
	require.False(t, p.HasZeroOffset)
	require.False(t, p.HasSave)
}

func TestNegotiateProfileUSB2PPM(t *testing.T) {
	tests := []struct {
		version       string
		legacy        bool
		protectedSave bool
		startup       bool
	}{
		{"1.02", true, false, false},
		{"2.00", true, false, false},
		{"2.01", true, true, true},
		{"2.02", true, true, true},
		{"2.03", false, true, true},
		{"2.04", false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			p, err := NegotiateProfile(model.FamilyUSB2PPM, tt.version)
			require.NoError(t, err)
			require.Equal(t, tt.legacy, p.PPMLegacy)
			require.Equal(t, tt.protectedSave, p.ProtectedSave)
			require.Equal(t, tt.startup, p.StartupValues)
			require.Equal(t, tt.startup, p.HasNeutral)
			require.Equal(t, tt.startup, p.HasSave)
			require.True(t, p.HasPPM)
			require.False(t, p.HasLimits)
			require.Equal(t, DefaultLowerLimit, p.DefaultLowerLimit)
			require.Equal(t, DefaultUpperLimit, p.DefaultUpperLimit)
		})
	}
}

func TestNegotiateProfileMalformedVersion(t *testing.T) {
	_, err := NegotiateProfile(model.FamilySSC, "2,09")
	require.Error(t, err)
	var uerr *UnsupportedFirmwareError
	require.False(t, errors.As(err, &uerr))

	_, err = NegotiateProfile(model.Family(99), "1.00")
	require.ErrorIs(t, err, ErrUnknownDeviceType)
}

func TestValidationErrorMatchesTimedOut(t *testing.T) {
	err := &ValidationError{Command: "1?", Reply: "x", Err: errors.New("bad")}
	require.ErrorIs(t, err, ErrTimedOut)
	require.Contains(t, err.Error(), `"1?"`)
}
