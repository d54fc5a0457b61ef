// cmd/pikoder-shell/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"pikoder-service/internal/config"
	"pikoder-service/internal/console"
	"pikoder-service/internal/events"
	"pikoder-service/internal/service"
	"pikoder-service/internal/utils"
)

var (
	configFile string
	evalOnly   bool
	outputJSON bool
	link       string
	port       string
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file.")
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&link, "link", "", "Connect before running: serial or wlan.")
	flag.StringVar(&port, "port", "", "Serial port for -link serial.")
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Keep the terminal for the shell
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
		cfg.Logging.Level = "warn"
	}
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.CloseLogger(logger)

	bus := events.NewBus(logger)
	go bus.Start()
	defer bus.Close()

	sessions := service.NewSessionService(cfg, service.DefaultLinkFactory(&cfg.Link, logger), bus, logger)
	defer sessions.Close()

	sh := console.New(sessions)
	sh.Interactive = !evalOnly
	sh.OutputJSON = outputJSON
	go sh.WatchEvents(bus.Subscribe(events.AllEvents))

	if link != "" {
		if err := sh.Run("connect", link, port); err != nil {
			logger.Error("Auto connect failed", zap.Error(err))
			os.Exit(1)
		}
	}
	if err := sh.Run(flag.Args()...); err != nil {
		logger.Error("Shell command failed", zap.Error(err))
		os.Exit(1)
	}
}
