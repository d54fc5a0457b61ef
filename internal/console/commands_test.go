package console

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pikoder-service/internal/config"
	"pikoder-service/internal/model"
	"pikoder-service/internal/protocol"
	"pikoder-service/internal/protocol/protocoltest"
	"pikoder-service/internal/service"
)

type nopPublisher struct{}

func (nopPublisher) Publish(model.SessionEvent) {}

func newTestShell(t *testing.T, sim *protocoltest.Simulator) *Shell {
	t.Helper()
	cfg := &config.Config{
		Protocol: config.ProtocolConfig{
			GetRetries:      5,
			StatusRetries:   10,
			FirmwareRetries: 5,
		},
	}
	factory := func(kind model.LinkType) (protocol.Transport, error) {
		return sim.Link(kind), nil
	}
	sessions := service.NewSessionService(cfg, factory, nopPublisher{}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = sessions.Close() })
	return &Shell{Sessions: sessions, Timeout: DefaultTimeout}
}

func TestConnectAndStatus(t *testing.T) {
	s := newTestShell(t, protocoltest.NewSimulator(model.FamilySSC, "2.09"))

	_, err := connect(s, nil)
	require.Error(t, err)

	result, err := connect(s, []string{"serial", "COM3"})
	require.NoError(t, err)
	session := result.(*model.Session)
	require.Equal(t, model.FamilySSC, session.Profile.Family)
	require.Equal(t, "SSC firmware 2.09 on serial COM3", format(session))

	result, err = status(s, nil)
	require.NoError(t, err)
	require.Contains(t, format(result), "SSC firmware 2.09")

	_, err = disconnect(s, nil)
	require.NoError(t, err)
	result, err = status(s, nil)
	require.NoError(t, err)
	require.Contains(t, format(result), model.StateDisconnected.String())
}

func TestGetAndSetChannel(t *testing.T) {
	sim := protocoltest.NewSimulator(model.FamilySSC, "2.09")
	s := newTestShell(t, sim)
	_, err := connect(s, []string{"serial", "COM3"})
	require.NoError(t, err)

	result, err := get(s, []string{"pulse", "2"})
	require.NoError(t, err)
	require.Equal(t, "1500", format(result))

	result, err = set(s, []string{"pulse", "2", "1600"})
	require.NoError(t, err)
	require.Equal(t, "OK", format(result))
	sim.Do(func(sim *protocoltest.Simulator) { require.Equal(t, 1600, sim.Pulse[2]) })

	_, err = set(s, []string{"io", "3", "switch"})
	require.NoError(t, err)
	result, err = get(s, []string{"io", "3"})
	require.NoError(t, err)
	require.Equal(t, "SWITCH", format(result))

	_, err = get(s, []string{"pulse"})
	require.Error(t, err)
	_, err = get(s, []string{"speed", "1"})
	require.Error(t, err)
	_, err = set(s, []string{"pulse", "1", "fast"})
	require.Error(t, err)
}

func TestSetNotAcknowledged(t *testing.T) {
	sim := protocoltest.NewSimulator(model.FamilySSC, "2.09")
	sim.Reject["1=1200"] = true
	s := newTestShell(t, sim)
	_, err := connect(s, []string{"serial", "COM3"})
	require.NoError(t, err)

	_, err = set(s, []string{"pulse", "1", "1200"})
	require.ErrorIs(t, err, ErrNotAcknowledged)
}

func TestSettingCommand(t *testing.T) {
	sim := protocoltest.NewSimulator(model.FamilySSC, "2.09")
	s := newTestShell(t, sim)
	_, err := connect(s, []string{"serial", "COM3"})
	require.NoError(t, err)

	timeout := setting(service.SettingTimeout)
	result, err := timeout(s, nil)
	require.NoError(t, err)
	require.Equal(t, "100", format(result))

	_, err = timeout(s, []string{"50"})
	require.NoError(t, err)
	sim.Do(func(sim *protocoltest.Simulator) { require.Equal(t, 50, sim.Timeout) })

	_, err = timeout(s, []string{"1", "2"})
	require.Error(t, err)
}

func TestDefaultsAndAux(t *testing.T) {
	sim := protocoltest.NewSimulator(model.FamilySSC, "2.09")
	s := newTestShell(t, sim)
	_, err := connect(s, []string{"serial", "COM3"})
	require.NoError(t, err)
	_, err = set(s, []string{"pulse", "4", "900"})
	require.NoError(t, err)

	_, err = defaults(s, []string{"4"})
	require.NoError(t, err)
	sim.Do(func(sim *protocoltest.Simulator) { require.Equal(t, model.FactoryDefaultPulse, sim.Pulse[4]) })

	result, err := aux(s, nil)
	require.NoError(t, err)
	require.Equal(t, "1.0", format(result))
}

func TestParsePPM(t *testing.T) {
	tests := []struct {
		args    []string
		want    model.PPMSettings
		wantErr bool
	}{
		{args: []string{"8N"}, want: model.PPMSettings{Channels: 8, Polarity: model.PPMNegative}},
		{args: []string{"4", "P"}, want: model.PPMSettings{Channels: 4, Polarity: model.PPMPositive}},
		{args: []string{"6", "negative"}, want: model.PPMSettings{Channels: 6, Polarity: model.PPMNegative}},
		{args: []string{"8"}, wantErr: true},
		{args: []string{"xN"}, wantErr: true},
		{args: []string{"8", "Q"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parsePPM(tt.args)
		if tt.wantErr {
			require.Error(t, err, "%v", tt.args)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}

func TestFormat(t *testing.T) {
	require.Equal(t, "OK", format(nil))
	require.Equal(t, "No serial ports found", format([]string{}))
	require.Equal(t, "COM3\nCOM4", format([]string{"COM3", "COM4"}))
	require.Equal(t, "750 (unconfirmed)", format(model.Reading{Value: 750}))
	require.Equal(t, "8N", format(model.PPMReading{Settings: model.DefaultPPMSettings, Confirmed: true}))

	s := &Shell{OutputJSON: true}
	out, err := s.Format(model.Confirm(1500))
	require.NoError(t, err)
	require.JSONEq(t, `{"value":1500,"confirmed":true}`, out)
}
