// internal/protocol/factory.go
package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"pikoder-service/internal/config"
	"pikoder-service/internal/model"
)

// NewLink creates a closed link of the given type from configuration
func NewLink(linkType model.LinkType, cfg *config.LinkConfig, logger *zap.Logger) (Transport, error) {
	if cfg == nil {
		cfg = &config.LinkConfig{}
	}
	switch linkType {
	case model.LinkTypeSerial:
		return NewSerialConnection(SerialConfigFrom(&cfg.Serial), logger), nil
	case model.LinkTypeWLAN:
		return NewWLANConnection(WLANConfigFrom(&cfg.WLAN), logger), nil
	default:
		return nil, fmt.Errorf("unsupported link type: %s", linkType)
	}
}
