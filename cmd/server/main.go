// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pikoder-service/internal/config"
	"pikoder-service/internal/events"
	"pikoder-service/internal/handler"
	"pikoder-service/internal/routes"
	"pikoder-service/internal/service"
	"pikoder-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	bus       *events.Bus
	mqtt      *events.MQTTPublisher
	sessions  *service.SessionService
	wsHandler *handler.WebSocketHandler
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "pikoder-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeEvents(); err != nil {
		return nil, fmt.Errorf("failed to initialize events: %w", err)
	}

	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeEvents sets up the event bus and the optional MQTT publisher
func (app *Application) initializeEvents() error {
	app.bus = events.NewBus(app.logger)

	if !app.config.MQTT.Enabled {
		return nil
	}
	app.mqtt = events.NewMQTTPublisher(&app.config.MQTT, app.logger)
	if err := app.mqtt.Connect(); err != nil {
		return fmt.Errorf("failed to connect MQTT broker: %w", err)
	}
	go app.mqtt.Forward(app.bus.Subscribe(events.AllEvents))
	return nil
}

// initializeServices creates the session service
func (app *Application) initializeServices() {
	factory := service.DefaultLinkFactory(&app.config.Link, app.logger)
	app.sessions = service.NewSessionService(app.config, factory, app.bus, app.logger)

	app.logger.Info("Services initialized successfully")
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	app.wsHandler = handler.NewWebSocketHandler(app.sessions, app.config.Security.AllowedOrigins, app.logger)
	go app.wsHandler.Forward(app.bus.Subscribe(events.AllEvents))

	routerManager := routes.NewRouter(app.config, app.logger, app.sessions, app.wsHandler)
	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)
}

// connectConfiguredPort opens the configured serial port at startup
func (app *Application) connectConfiguredPort() {
	if app.config.Link.Serial.Port == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := app.sessions.Connect(ctx, &service.ConnectRequest{Link: "serial"})
	if err != nil {
		app.logger.Warn("No PiKoder on configured port",
			zap.String("port", app.config.Link.Serial.Port),
			zap.Error(err),
		)
		return
	}
	app.logger.Info("PiKoder connected at startup",
		zap.String("family", session.Profile.Family.String()),
		zap.String("firmware", session.Profile.FirmwareText),
	)
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "pikoder-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if err := app.sessions.Close(); err != nil {
		app.logger.Error("Session close error", zap.Error(err))
	} else {
		app.logger.Info("PiKoder link closed")
	}

	app.bus.Close()
	if app.mqtt != nil {
		app.mqtt.Disconnect()
	}

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start serves HTTP until a shutdown signal arrives
func (app *Application) Start() error {
	go app.bus.Start()

	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	go app.connectConfiguredPort()

	app.waitForShutdown()

	return nil
}
