// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pikoder-service/internal/config"
	"pikoder-service/internal/model"
	"pikoder-service/internal/service"
	"pikoder-service/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	sessions  *service.SessionService
	config    *config.Config
	startTime time.Time
	logger    *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(sessions *service.SessionService, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		sessions:  sessions,
		config:    config,
		startTime: time.Now(),
		logger:    utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports service health and the state of the PiKoder link.
// A missing device does not make the service unhealthy.
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startTime).String(),
		Checks:    make(map[string]CheckResult),
	}

	status := h.sessions.Session()
	link := CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"state": status.State.String(),
		},
	}
	if status.Session != nil {
		link.Data["link"] = string(status.Session.Link)
		link.Data["target"] = status.Session.Target
		if status.Session.Profile != nil {
			link.Data["family"] = status.Session.Profile.Family.String()
			link.Data["firmware"] = status.Session.Profile.FirmwareText
		}
	}
	if status.Stats != nil {
		link.Data["operations"] = status.Stats.OperationCount
		link.Data["errors"] = status.Stats.ErrorCount
		link.Data["timeouts"] = status.Stats.TimeoutCount
	}
	if status.State != model.StateConnected {
		link.Status = "idle"
		link.Message = "No PiKoder connected"
	}
	health.Checks["pikoder"] = link

	c.JSON(http.StatusOK, health)
}

// ReadinessCheck reports ready once a PiKoder session is connected
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if state := h.sessions.Session().State; state != model.StateConnected {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "pikoder " + state.String(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	// Simple liveness check - service is alive if it can respond
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
