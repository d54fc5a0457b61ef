// internal/handler/session_handler.go
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pikoder-service/internal/model"
	"pikoder-service/internal/service"
	"pikoder-service/internal/utils"
)

// connectTimeout bounds identification plus the full parameter load
const connectTimeout = 60 * time.Second

// SessionHandler exposes the PiKoder session over HTTP
type SessionHandler struct {
	sessions *service.SessionService
	logger   *utils.ServiceLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   utils.NewServiceLogger(logger, "session-handler"),
	}
}

// RegisterRoutes registers session, channel and settings routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)

	session := router.Group("/session")
	{
		session.GET("", h.GetSession)
		session.POST("/connect", h.Connect)
		session.POST("/disconnect", h.Disconnect)
		session.GET("/parameters", h.GetParameters)
		session.POST("/parameters/reload", h.ReloadParameters)
	}

	channels := router.Group("/channels/:ch")
	{
		channels.GET("/:field", h.GetChannelField)
		channels.PUT("/:field", h.SetChannelField)
		channels.POST("/defaults", h.RestoreDefaults)
	}

	settings := router.Group("/settings")
	{
		settings.POST("/save", h.SavePreferences)
		settings.GET("/ppm", h.GetPPM)
		settings.PUT("/ppm", h.SetPPM)
		settings.GET("/:name", h.GetSetting)
		settings.PUT("/:name", h.SetSetting)
	}
}

// ValueRequest carries a numeric value
type ValueRequest struct {
	Value *int `json:"value" binding:"required"`
}

// IOTypeRequest carries a channel output mode
type IOTypeRequest struct {
	Type string `json:"type" binding:"required"`
}

// PPMRequest carries PPM channel count and polarity
type PPMRequest struct {
	Channels int    `json:"channels" binding:"required"`
	Polarity string `json:"polarity" binding:"required"`
}

// ListPorts lists the serial ports of the host
// @Summary List serial ports
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]string}
// @Router /ports [get]
func (h *SessionHandler) ListPorts(c *gin.Context) {
	ports, err := h.sessions.ListPorts()
	if err != nil {
		h.logger.Error("Failed to list ports", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list serial ports", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Serial ports retrieved successfully", ports)
}

// GetSession returns state, profile and link statistics
func (h *SessionHandler) GetSession(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Session retrieved successfully", h.sessions.Session())
}

// Connect opens a link, identifies the PiKoder and loads its parameters
// @Summary Connect to a PiKoder
// @Tags Session
// @Accept json
// @Produce json
// @Param request body service.ConnectRequest true "Link and port"
// @Success 200 {object} utils.APIResponse{data=model.Session}
// @Failure 422 {object} utils.APIResponse "Unsupported device or firmware"
// @Failure 502 {object} utils.APIResponse "Link failure"
// @Router /session/connect [post]
func (h *SessionHandler) Connect(c *gin.Context) {
	var req service.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), connectTimeout)
	defer cancel()

	session, err := h.sessions.Connect(ctx, &req)
	if err != nil {
		logger := utils.LoggerWithRequestID(h.logger.Logger, c.GetString("request_id"))
		logger.Error("Failed to connect PiKoder",
			zap.String("link", req.Link),
			zap.String("port", req.Port),
			zap.Error(err),
		)
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		utils.ErrorResponse(c, status, "Failed to connect PiKoder", err)
		return
	}

	h.logger.Info("PiKoder connected",
		zap.String("family", session.Profile.Family.String()),
		zap.String("target", session.Target),
	)
	utils.SuccessResponse(c, http.StatusOK, "PiKoder connected", session)
}

// Disconnect closes the active link
func (h *SessionHandler) Disconnect(c *gin.Context) {
	if err := h.sessions.Disconnect(); err != nil {
		deviceError(c, "Failed to disconnect", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "PiKoder disconnected", nil)
}

// GetParameters returns the mirrored parameters without touching the device
func (h *SessionHandler) GetParameters(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Parameters retrieved successfully", h.sessions.Parameters())
}

// ReloadParameters reads every parameter from the device again
func (h *SessionHandler) ReloadParameters(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), connectTimeout)
	defer cancel()

	params, err := h.sessions.ReloadParameters(ctx)
	if err != nil {
		deviceError(c, "Failed to reload parameters", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Parameters reloaded", params)
}

// channelParams parses the channel number and field of a channel route
func channelParams(c *gin.Context) (int, model.ChannelField, bool) {
	ch, err := strconv.Atoi(c.Param("ch"))
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"ch": "must be a channel number"})
		return 0, "", false
	}
	field, err := model.ParseChannelField(c.Param("field"))
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"field": err.Error()})
		return 0, "", false
	}
	return ch, field, true
}

// GetChannelField reads one channel field from the device
func (h *SessionHandler) GetChannelField(c *gin.Context) {
	ch, field, ok := channelParams(c)
	if !ok {
		return
	}

	if field == model.FieldIOType {
		reading, err := h.sessions.GetIOType(c.Request.Context(), ch)
		if err != nil {
			deviceError(c, "Failed to read channel output type", err)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, "Channel output type retrieved", reading)
		return
	}

	reading, err := h.sessions.GetChannelValue(c.Request.Context(), ch, field)
	if err != nil {
		deviceError(c, "Failed to read channel "+string(field), err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Channel "+string(field)+" retrieved", reading)
}

// SetChannelField writes one channel field
func (h *SessionHandler) SetChannelField(c *gin.Context) {
	ch, field, ok := channelParams(c)
	if !ok {
		return
	}

	var (
		acked bool
		err   error
	)
	if field == model.FieldIOType {
		var req IOTypeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		t, perr := model.ParseIOType(req.Type)
		if perr != nil {
			utils.ValidationErrorResponse(c, map[string]string{"type": perr.Error()})
			return
		}
		acked, err = h.sessions.SetIOType(c.Request.Context(), ch, t)
	} else {
		var req ValueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		acked, err = h.sessions.SetChannelValue(c.Request.Context(), ch, field, *req.Value)
	}

	if err != nil {
		deviceError(c, "Failed to set channel "+string(field), err)
		return
	}
	if !acked {
		notAcknowledged(c, "Channel "+string(field)+" not accepted")
		return
	}
	channel := h.sessions.Parameters().Channel(ch)
	utils.SuccessResponse(c, http.StatusOK, "Channel "+string(field)+" updated", channel)
}

// RestoreDefaults pushes the factory default pulse to a channel
func (h *SessionHandler) RestoreDefaults(c *gin.Context) {
	ch, err := strconv.Atoi(c.Param("ch"))
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"ch": "must be a channel number"})
		return
	}
	acked, err := h.sessions.RestoreChannelDefault(c.Request.Context(), ch)
	if err != nil {
		deviceError(c, "Failed to restore defaults", err)
		return
	}
	if !acked {
		notAcknowledged(c, "Defaults not accepted")
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Factory defaults restored", h.sessions.Parameters().Channel(ch))
}

// GetSetting reads timeout, zero offset or I2C address
func (h *SessionHandler) GetSetting(c *gin.Context) {
	setting, err := service.ParseSetting(c.Param("name"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Unknown setting", err)
		return
	}
	reading, err := h.sessions.GetSetting(c.Request.Context(), setting)
	if err != nil {
		deviceError(c, "Failed to read "+string(setting), err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Setting retrieved", reading)
}

// SetSetting writes timeout, zero offset or I2C address
func (h *SessionHandler) SetSetting(c *gin.Context) {
	setting, err := service.ParseSetting(c.Param("name"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Unknown setting", err)
		return
	}
	var req ValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	acked, err := h.sessions.SetSetting(c.Request.Context(), setting, *req.Value)
	if err != nil {
		deviceError(c, "Failed to set "+string(setting), err)
		return
	}
	if !acked {
		notAcknowledged(c, string(setting)+" not accepted")
		return
	}
	reading, err := h.sessions.SettingReading(setting)
	if err != nil {
		deviceError(c, "Failed to read "+string(setting), err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Setting updated", reading)
}

// GetPPM reads the PPM configuration
func (h *SessionHandler) GetPPM(c *gin.Context) {
	reading, err := h.sessions.GetPPMSettings(c.Request.Context())
	if err != nil {
		deviceError(c, "Failed to read PPM settings", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "PPM settings retrieved", reading)
}

// SetPPM writes the PPM configuration
func (h *SessionHandler) SetPPM(c *gin.Context) {
	var req PPMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	polarity, err := model.ParsePPMPolarity(req.Polarity)
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"polarity": err.Error()})
		return
	}
	settings := model.PPMSettings{Channels: req.Channels, Polarity: polarity}

	acked, err := h.sessions.SetPPMSettings(c.Request.Context(), settings)
	if err != nil {
		deviceError(c, "Failed to set PPM settings", err)
		return
	}
	if !acked {
		notAcknowledged(c, "PPM settings not accepted")
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "PPM settings updated", h.sessions.Parameters().PPM)
}

// SavePreferences stores the current settings on the device
func (h *SessionHandler) SavePreferences(c *gin.Context) {
	acked, err := h.sessions.SavePreferences(c.Request.Context())
	if err != nil {
		deviceError(c, "Failed to save preferences", err)
		return
	}
	if !acked {
		notAcknowledged(c, "Save not accepted")
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Preferences saved", nil)
}
