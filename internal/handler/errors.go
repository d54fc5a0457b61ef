// internal/handler/errors.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pikoder-service/internal/codec"
	"pikoder-service/internal/pikoder"
	"pikoder-service/internal/protocol"
	"pikoder-service/internal/utils"
)

// errorStatus maps a device error to the HTTP status reported to callers
func errorStatus(err error) int {
	var (
		rangeErr       *codec.RangeError
		unsupportedErr *pikoder.UnsupportedFirmwareError
	)
	switch {
	case errors.As(err, &rangeErr):
		return http.StatusBadRequest
	case errors.Is(err, pikoder.ErrNotConnected), errors.Is(err, protocol.ErrNotOpen):
		return http.StatusConflict
	case errors.Is(err, pikoder.ErrNotSupported), errors.Is(err, pikoder.ErrLegacyPPMUnsupported):
		return http.StatusNotImplemented
	case errors.As(err, &unsupportedErr), errors.Is(err, pikoder.ErrUnknownDeviceType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pikoder.ErrTimedOut):
		return http.StatusGatewayTimeout
	case protocol.IsTransportError(err), errors.Is(err, pikoder.ErrUnknownCommand):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// deviceError writes err with the status errorStatus picks
func deviceError(c *gin.Context, message string, err error) {
	utils.ErrorResponse(c, errorStatus(err), message, err)
}

// notAcknowledged reports a write the device did not confirm
func notAcknowledged(c *gin.Context, message string) {
	utils.ErrorResponse(c, http.StatusBadGateway, message, errors.New("device did not acknowledge"))
}
