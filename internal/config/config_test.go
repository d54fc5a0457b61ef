package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 9600, cfg.Link.Serial.BaudRate)
	require.Equal(t, 8, cfg.Link.Serial.DataBits)
	require.Equal(t, 1, cfg.Link.Serial.StopBits)
	require.Equal(t, "none", cfg.Link.Serial.Parity)
	require.Equal(t, 20, cfg.Link.Serial.PollCount)
	require.Equal(t, 10*time.Millisecond, cfg.Link.Serial.PollInterval)

	require.Equal(t, "192.168.4.1", cfg.Link.WLAN.APAddress)
	require.Equal(t, 12001, cfg.Link.WLAN.TxPort)
	require.Equal(t, 12000, cfg.Link.WLAN.RxPort)
	require.Equal(t, 5, cfg.Link.WLAN.PollCount)
	require.Equal(t, 100*time.Millisecond, cfg.Link.WLAN.PollInterval)

	require.Equal(t, 5, cfg.Protocol.GetRetries)
	require.Equal(t, 10, cfg.Protocol.StatusRetries)
	require.False(t, cfg.MQTT.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
link:
  serial:
    port: /dev/ttyUSB0
  wlan:
    ap_address: 10.0.0.7
logging:
  level: debug
  format: console
`), 0o644))
	t.Setenv("PIKODER_PROTOCOL_GET_RETRIES", "3")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB0", cfg.Link.Serial.Port)
	require.Equal(t, "10.0.0.7", cfg.Link.WLAN.APAddress)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 3, cfg.Protocol.GetRetries)
}

func TestValidateRejectsBadLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: chatty\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}
