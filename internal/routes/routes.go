// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pikoder-service/internal/config"
	"pikoder-service/internal/handler"
	"pikoder-service/internal/middleware"
	"pikoder-service/internal/service"
	"pikoder-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config   *config.Config
	logger   *zap.Logger
	sessions *service.SessionService
	ws       *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	sessions *service.SessionService,
	ws *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:   config,
		logger:   logger,
		sessions: sessions,
		ws:       ws,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.App.Environment == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.sessions, r.config, r.logger)
	sessionHandler := handler.NewSessionHandler(r.sessions, r.logger)

	healthHandler.RegisterRoutes(router.Group(""))
	sessionHandler.RegisterRoutes(router.Group("/api/v1"))
	if r.ws != nil {
		r.ws.RegisterRoutes(router.Group("/ws"))
	}

	r.logger.Info("All routes configured successfully")
}
