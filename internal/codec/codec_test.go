package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"pikoder-service/internal/model"
)

func TestPadLeft(t *testing.T) {
	require.Equal(t, "075", PadLeft(75, 3))
	require.Equal(t, "000", PadLeft(0, 3))
	require.Equal(t, "07", PadLeft(7, 2))
	require.Equal(t, "80", PadLeft(80, 2))
	require.Equal(t, "2250", PadLeft(2250, 3))
	require.Equal(t, "03750", PadLeft(3750, 5))
}

func TestRangeBoundariesInclusive(t *testing.T) {
	testCases := []struct {
		name string
		r    Range
	}{
		{"pulse", PulseRange},
		{"hp pulse", HPPulseRange},
		{"zero offset", ZeroOffsetRange},
		{"timeout", TimeoutRange},
		{"i2c", I2CAddressRange},
		{"ppm channels", PPMChannelRange},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, tc.r.Contains(tc.r.Min))
			require.True(t, tc.r.Contains(tc.r.Max))
			require.False(t, tc.r.Contains(tc.r.Min-1))
			require.False(t, tc.r.Contains(tc.r.Max+1))
		})
	}
}

func TestPulseStandardRoundTrip(t *testing.T) {
	for v := PulseRange.Min; v <= PulseRange.Max; v++ {
		s, err := EncodePulse(v, false)
		require.NoError(t, err)
		got, err := DecodePulse(s, false)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestPulseHPRoundTrip(t *testing.T) {
	for v := PulseRange.Min; v <= PulseRange.Max; v++ {
		s, err := EncodePulse(v, true)
		require.NoError(t, err)
		require.Len(t, s, HPPulseWidth)
		got, err := DecodePulse(s, true)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestDecodePulseHP(t *testing.T) {
	v, err := DecodePulse("3750", true)
	require.NoError(t, err)
	require.Equal(t, 750, v)

	v, err = DecodePulse("11250", true)
	require.NoError(t, err)
	require.Equal(t, 2250, v)

	_, err = DecodePulse("3749", true)
	var rangeErr *RangeError
	require.True(t, errors.As(err, &rangeErr))
	require.Equal(t, HPPulseRange, rangeErr.Range)

	_, err = DecodePulse("11251", true)
	require.Error(t, err)
}

func TestDecodePulseStandard(t *testing.T) {
	v, err := DecodePulse("0750", false)
	require.NoError(t, err)
	require.Equal(t, 750, v)

	for _, reply := range []string{"749", "2251", "0", "3750", "", "TimeOut", "12a4", "-800", "?"} {
		_, err := DecodePulse(reply, false)
		require.Errorf(t, err, "reply %q", reply)
	}
}

func TestEncodePulseRejectsOutOfRange(t *testing.T) {
	_, err := EncodePulse(749, false)
	require.Error(t, err)
	_, err = EncodePulse(2251, true)
	require.Error(t, err)
}

func TestNormalizePulse(t *testing.T) {
	require.Equal(t, "750", NormalizePulse("0750", false))
	require.Equal(t, "1500", NormalizePulse("1500", false))
	require.Equal(t, "9000", NormalizePulse("09000", true))
	require.Equal(t, "11250", NormalizePulse("11250", true))
}

func TestBoundedFields(t *testing.T) {
	s, err := EncodeBounded("timeout", 75, TimeoutRange, TimeoutWidth)
	require.NoError(t, err)
	require.Equal(t, "075", s)

	s, err = EncodeBounded("offset", 248, ZeroOffsetRange, ZeroOffsetWidth)
	require.NoError(t, err)
	require.Equal(t, "248", s)

	_, err = EncodeBounded("offset", 249, ZeroOffsetRange, ZeroOffsetWidth)
	require.Error(t, err)

	s, err = EncodeBounded("i2c", 5, I2CAddressRange, I2CAddressWidth)
	require.NoError(t, err)
	require.Equal(t, "05", s)

	_, err = EncodeBounded("i2c", 81, I2CAddressRange, I2CAddressWidth)
	require.Error(t, err)

	v, err := DecodeBounded("timeout", "999", TimeoutRange)
	require.NoError(t, err)
	require.Equal(t, 999, v)

	_, err = DecodeBounded("timeout", "1000", TimeoutRange)
	require.Error(t, err)

	_, err = DecodeBounded("timeout", "abc", TimeoutRange)
	require.True(t, errors.Is(err, ErrNotNumeric))
}

func TestIOType(t *testing.T) {
	require.Equal(t, model.IOPulse, DecodeIOType("P"))
	require.Equal(t, model.IOSwitch, DecodeIOType("S"))
	require.Equal(t, model.IOSwitch, DecodeIOType("x"))
	require.Equal(t, "P", EncodeIOType(model.IOPulse))
	require.Equal(t, "S", EncodeIOType(model.IOSwitch))
}

func TestPPM(t *testing.T) {
	s, err := EncodePPM(model.PPMSettings{Channels: 8, Polarity: model.PPMNegative})
	require.NoError(t, err)
	require.Equal(t, "8N", s)

	got, err := DecodePPM("4P")
	require.NoError(t, err)
	require.Equal(t, model.PPMSettings{Channels: 4, Polarity: model.PPMPositive}, got)

	for _, reply := range []string{"0N", "9P", "8X", "8", "", "88N"} {
		_, err := DecodePPM(reply)
		require.Errorf(t, err, "reply %q", reply)
	}
	_, err = EncodePPM(model.PPMSettings{Channels: 0})
	require.Error(t, err)
}

func TestCheckChannel(t *testing.T) {
	require.NoError(t, CheckChannel(1))
	require.NoError(t, CheckChannel(8))
	require.Error(t, CheckChannel(0))
	require.Error(t, CheckChannel(9))
}
