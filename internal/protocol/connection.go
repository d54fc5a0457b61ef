// internal/protocol/connection.go
package protocol

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"go.bug.st/serial"

	"pikoder-service/internal/config"
)

// SerialConfig represents serial link configuration
type SerialConfig struct {
	BaudRate      int           `json:"baud_rate"`
	DataBits      int           `json:"data_bits"`
	StopBits      int           `json:"stop_bits"`
	Parity        string        `json:"parity"`
	PollCount     int           `json:"poll_count"`
	PollInterval  time.Duration `json:"poll_interval"`
	FastPollCount int           `json:"fast_poll_count"`
}

// DefaultSerialConfig is the PiKoder line setting: 9600 8N1
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:      9600,
		DataBits:      8,
		StopBits:      1,
		Parity:        "none",
		PollCount:     StandardPoll().Count,
		PollInterval:  StandardPoll().Interval,
		FastPollCount: 100,
	}
}

// SerialConfigFrom converts the loaded link section
func SerialConfigFrom(cfg *config.SerialLinkConfig) SerialConfig {
	sc := DefaultSerialConfig()
	if cfg == nil {
		return sc
	}
	if cfg.BaudRate > 0 {
		sc.BaudRate = cfg.BaudRate
	}
	if cfg.DataBits > 0 {
		sc.DataBits = cfg.DataBits
	}
	if cfg.StopBits > 0 {
		sc.StopBits = cfg.StopBits
	}
	if cfg.Parity != "" {
		sc.Parity = cfg.Parity
	}
	if cfg.PollCount > 0 {
		sc.PollCount = cfg.PollCount
	}
	if cfg.PollInterval > 0 {
		sc.PollInterval = cfg.PollInterval
	}
	if cfg.FastPollCount > 0 {
		sc.FastPollCount = cfg.FastPollCount
	}
	return sc
}

// Mode builds the port mode
func (c SerialConfig) Mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}

	switch c.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", c.StopBits)
	}

	switch c.Parity {
	case "none", "":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity: %s", c.Parity)
	}

	return mode, nil
}

func (c SerialConfig) poll() Poll {
	return Poll{Count: c.PollCount, Interval: c.PollInterval}
}

// WLANConfig represents the UDP bridge configuration
type WLANConfig struct {
	APAddress    string        `json:"ap_address"`
	TxPort       int           `json:"tx_port"`
	RxPort       int           `json:"rx_port"`
	PollCount    int           `json:"poll_count"`
	PollInterval time.Duration `json:"poll_interval"`
}

// DefaultWLANConfig is the PiKoder access point setup
func DefaultWLANConfig() WLANConfig {
	return WLANConfig{
		APAddress:    "192.168.4.1",
		TxPort:       12001,
		RxPort:       12000,
		PollCount:    WLANPoll().Count,
		PollInterval: WLANPoll().Interval,
	}
}

// WLANConfigFrom converts the loaded link section
func WLANConfigFrom(cfg *config.WLANLinkConfig) WLANConfig {
	wc := DefaultWLANConfig()
	if cfg == nil {
		return wc
	}
	if cfg.APAddress != "" {
		wc.APAddress = cfg.APAddress
	}
	if cfg.TxPort > 0 {
		wc.TxPort = cfg.TxPort
	}
	if cfg.RxPort > 0 {
		wc.RxPort = cfg.RxPort
	}
	if cfg.PollCount > 0 {
		wc.PollCount = cfg.PollCount
	}
	if cfg.PollInterval > 0 {
		wc.PollInterval = cfg.PollInterval
	}
	return wc
}

// TxAddress is the device endpoint commands are sent to
func (c WLANConfig) TxAddress() string {
	return net.JoinHostPort(c.APAddress, strconv.Itoa(c.TxPort))
}

// RxAddress is the local endpoint replies arrive on
func (c WLANConfig) RxAddress() string {
	return net.JoinHostPort("", strconv.Itoa(c.RxPort))
}

func (c WLANConfig) poll() Poll {
	return Poll{Count: c.PollCount, Interval: c.PollInterval}
}
