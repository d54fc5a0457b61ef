package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pikoder-service/internal/codec"
	"pikoder-service/internal/config"
	"pikoder-service/internal/model"
	"pikoder-service/internal/pikoder"
	"pikoder-service/internal/protocol"
	"pikoder-service/internal/protocol/protocoltest"
	"pikoder-service/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(model.SessionEvent) {}

func newTestRouter(t *testing.T, sim *protocoltest.Simulator) (*gin.Engine, *service.SessionService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		App: config.AppConfig{Name: "pikoder-service", Version: "test"},
		Protocol: config.ProtocolConfig{
			GetRetries:      5,
			StatusRetries:   10,
			FirmwareRetries: 5,
		},
	}
	factory := func(kind model.LinkType) (protocol.Transport, error) {
		return sim.Link(kind), nil
	}
	logger := zaptest.NewLogger(t)
	sessions := service.NewSessionService(cfg, factory, nopPublisher{}, logger)
	t.Cleanup(func() { _ = sessions.Close() })

	router := gin.New()
	NewHealthHandler(sessions, cfg, logger).RegisterRoutes(router.Group(""))
	NewSessionHandler(sessions, logger).RegisterRoutes(router.Group("/api/v1"))
	return router, sessions
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func connectSerial(t *testing.T, router *gin.Engine) {
	t.Helper()
	code, env := do(t, router, http.MethodPost, "/api/v1/session/connect", gin.H{"link": "serial", "port": "COM3"})
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t, protocoltest.NewSimulator(model.FamilySSC, "2.09"))

	code, _ := do(t, router, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, code)

	code, env := do(t, router, http.MethodGet, "/api/v1/channels/1/pulse", nil)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "CONFLICT", env.Error.Code)

	connectSerial(t, router)

	code, _ = do(t, router, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = do(t, router, http.MethodGet, "/api/v1/session", nil)
	require.Equal(t, http.StatusOK, code)
	var status struct {
		State   string `json:"state"`
		Session struct {
			Target  string `json:"target"`
			Profile struct {
				Family string `json:"family"`
			} `json:"profile"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	require.Equal(t, model.StateConnected.String(), status.State)
	require.Equal(t, "COM3", status.Session.Target)
	require.Equal(t, model.FamilySSC.String(), status.Session.Profile.Family)

	code, _ = do(t, router, http.MethodPost, "/api/v1/session/disconnect", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, router, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestConnectRejectsBadRequest(t *testing.T) {
	router, _ := newTestRouter(t, protocoltest.NewSimulator(model.FamilySSC, "2.09"))

	code, _ := do(t, router, http.MethodPost, "/api/v1/session/connect", gin.H{})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, http.MethodPost, "/api/v1/session/connect", gin.H{"link": "serial"})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestConnectUnsupportedFirmware(t *testing.T) {
	router, _ := newTestRouter(t, protocoltest.NewSimulator(model.FamilySSC, "3.02"))

	code, env := do(t, router, http.MethodPost, "/api/v1/session/connect", gin.H{"link": "serial", "port": "COM3"})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "UNSUPPORTED_DEVICE", env.Error.Code)
}

func TestChannelFieldOverHTTP(t *testing.T) {
	sim := protocoltest.NewSimulator(model.FamilySSC, "2.09")
	router, _ := newTestRouter(t, sim)
	connectSerial(t, router)

	code, env := do(t, router, http.MethodGet, "/api/v1/channels/2/pulse", nil)
	require.Equal(t, http.StatusOK, code)
	var reading model.Reading
	require.NoError(t, json.Unmarshal(env.Data, &reading))
	require.Equal(t, model.Confirm(1500), reading)

	code, env = do(t, router, http.MethodPut, "/api/v1/channels/2/pulse", gin.H{"value": 1600})
	require.Equal(t, http.StatusOK, code)
	var channel model.Channel
	require.NoError(t, json.Unmarshal(env.Data, &channel))
	require.Equal(t, model.Confirm(1600), channel.PulseLength)

	code, _ = do(t, router, http.MethodPut, "/api/v1/channels/2/pulse", gin.H{"value": 2251})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, http.MethodGet, "/api/v1/channels/x/pulse", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, router, http.MethodGet, "/api/v1/channels/2/speed", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, router, http.MethodPut, "/api/v1/channels/3/io", gin.H{"type": "switch"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &channel))
	require.Equal(t, model.IOSwitch, channel.IOType.Value)
}

func TestSetNotAcknowledgedOverHTTP(t *testing.T) {
	sim := protocoltest.NewSimulator(model.FamilySSC, "2.09")
	sim.Reject["1=1200"] = true
	router, _ := newTestRouter(t, sim)
	connectSerial(t, router)

	code, env := do(t, router, http.MethodPut, "/api/v1/channels/1/pulse", gin.H{"value": 1200})
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, "LINK_ERROR", env.Error.Code)
}

func TestSettingsOverHTTP(t *testing.T) {
	sim := protocoltest.NewSimulator(model.FamilySSC, "2.09")
	router, _ := newTestRouter(t, sim)
	connectSerial(t, router)

	code, env := do(t, router, http.MethodPut, "/api/v1/settings/timeout", gin.H{"value": 50})
	require.Equal(t, http.StatusOK, code)
	var reading model.Reading
	require.NoError(t, json.Unmarshal(env.Data, &reading))
	require.Equal(t, model.Confirm(50), reading)

	// acknowledged but not applied: the read-back value is returned
	sim.Do(func(sim *protocoltest.Simulator) { sim.Script["T=020"] = []string{"!"} })
	code, env = do(t, router, http.MethodPut, "/api/v1/settings/timeout", gin.H{"value": 20})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &reading))
	require.Equal(t, model.Confirm(50), reading)

	code, _ = do(t, router, http.MethodGet, "/api/v1/settings/i2c", nil)
	require.Equal(t, http.StatusNotImplemented, code)

	code, _ = do(t, router, http.MethodGet, "/api/v1/settings/volume", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, router, http.MethodPut, "/api/v1/settings/timeout", gin.H{})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&codec.RangeError{Field: "pulse", Value: 1, Range: codec.PPMChannelRange}, http.StatusBadRequest},
		{pikoder.ErrNotConnected, http.StatusConflict},
		{fmt.Errorf("neutral: %w", pikoder.ErrNotSupported), http.StatusNotImplemented},
		{pikoder.ErrUnknownDeviceType, http.StatusUnprocessableEntity},
		{fmt.Errorf("get: %w", pikoder.ErrTimedOut), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, errorStatus(tt.err))
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
	req.Header.Set("Origin", "http://bench.local")

	require.True(t, checkOrigin(nil)(req))
	require.True(t, checkOrigin([]string{"http://bench.local"})(req))
	require.False(t, checkOrigin([]string{"http://other.local"})(req))
}
