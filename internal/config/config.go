// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Link      LinkConfig      `mapstructure:"link"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	App       AppConfig       `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LinkConfig groups the physical link settings
type LinkConfig struct {
	Serial SerialLinkConfig `mapstructure:"serial"`
	WLAN   WLANLinkConfig   `mapstructure:"wlan"`
}

// SerialLinkConfig represents serial port configuration
type SerialLinkConfig struct {
	Port          string        `mapstructure:"port"`
	BaudRate      int           `mapstructure:"baud_rate"`
	DataBits      int           `mapstructure:"data_bits"`
	StopBits      int           `mapstructure:"stop_bits"`
	Parity        string        `mapstructure:"parity"`
	PollCount     int           `mapstructure:"poll_count"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	FastPollCount int           `mapstructure:"fast_poll_count"`
}

// WLANLinkConfig represents the UDP link to the PiKoder access point
type WLANLinkConfig struct {
	APAddress    string        `mapstructure:"ap_address"`
	TxPort       int           `mapstructure:"tx_port"`
	RxPort       int           `mapstructure:"rx_port"`
	PollCount    int           `mapstructure:"poll_count"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ProtocolConfig represents retry budgets of the command protocol
type ProtocolConfig struct {
	GetRetries          int  `mapstructure:"get_retries"`
	StatusRetries       int  `mapstructure:"status_retries"`
	FirmwareRetries     int  `mapstructure:"firmware_retries"`
	AutoFactoryDefaults bool `mapstructure:"auto_factory_defaults"`
}

// HeartbeatConfig represents link supervision
type HeartbeatConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// MQTTConfig represents the optional event publisher
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
	QoS      byte   `mapstructure:"qos"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from file and environment variables.
// A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pikoder")

	return load(v)
}

// LoadFile loads configuration from an explicit file
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Environment variable support
	v.SetEnvPrefix("PIKODER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8086")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Serial link defaults: 9600 8N1, 20 polls of 10ms
	v.SetDefault("link.serial.baud_rate", 9600)
	v.SetDefault("link.serial.data_bits", 8)
	v.SetDefault("link.serial.stop_bits", 1)
	v.SetDefault("link.serial.parity", "none")
	v.SetDefault("link.serial.poll_count", 20)
	v.SetDefault("link.serial.poll_interval", "10ms")
	v.SetDefault("link.serial.fast_poll_count", 100)

	// WLAN link defaults: access point of the PiKoder radio, 5 polls of 100ms
	v.SetDefault("link.wlan.ap_address", "192.168.4.1")
	v.SetDefault("link.wlan.tx_port", 12001)
	v.SetDefault("link.wlan.rx_port", 12000)
	v.SetDefault("link.wlan.poll_count", 5)
	v.SetDefault("link.wlan.poll_interval", "100ms")

	// Protocol defaults
	v.SetDefault("protocol.get_retries", 5)
	v.SetDefault("protocol.status_retries", 10)
	v.SetDefault("protocol.firmware_retries", 5)
	v.SetDefault("protocol.auto_factory_defaults", false)

	// Heartbeat defaults
	v.SetDefault("heartbeat.enabled", true)
	v.SetDefault("heartbeat.interval", "1s")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "pikoder-service")
	v.SetDefault("mqtt.topic", "pikoder/events")
	v.SetDefault("mqtt.qos", 0)

	// App defaults
	v.SetDefault("app.name", "pikoder-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Link.Serial.BaudRate <= 0 {
		return fmt.Errorf("link.serial.baud_rate must be positive")
	}
	if config.Link.Serial.PollCount <= 0 || config.Link.Serial.PollInterval <= 0 {
		return fmt.Errorf("link.serial poll budget must be positive")
	}
	if config.Link.WLAN.PollCount <= 0 || config.Link.WLAN.PollInterval <= 0 {
		return fmt.Errorf("link.wlan poll budget must be positive")
	}
	if config.Link.WLAN.APAddress == "" {
		return fmt.Errorf("link.wlan.ap_address is required")
	}
	if config.Protocol.GetRetries <= 0 || config.Protocol.StatusRetries <= 0 || config.Protocol.FirmwareRetries <= 0 {
		return fmt.Errorf("protocol retry budgets must be positive")
	}
	if config.MQTT.Enabled && config.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	isValidEnv := false
	for _, env := range validEnvs {
		if config.App.Environment == env {
			isValidEnv = true
			break
		}
	}
	if !isValidEnv {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	isValidLevel := false
	for _, level := range validLevels {
		if config.Logging.Level == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == "development"
}
