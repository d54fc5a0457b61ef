// internal/pikoder/errors.go
package pikoder

import (
	"errors"
	"fmt"

	"pikoder-service/internal/model"
	"pikoder-service/internal/protocol"
)

var (
	// ErrTimedOut is returned when the retry budget is spent without a valid reply
	ErrTimedOut = protocol.ErrTimedOut

	ErrNotConnected         = errors.New("no PiKoder connected")
	ErrUnknownDeviceType    = errors.New("unknown PiKoder device type")
	ErrNotSupported         = errors.New("operation not supported by device")
	ErrLegacyPPMUnsupported = errors.New("legacy PPM frames need a binary capable link")
	ErrUnknownCommand       = errors.New("device answered unknown command")
)

// ValidationError is a reply that arrived but failed validation on the last
// attempt. It matches ErrTimedOut so callers treat it as a missing value.
type ValidationError struct {
	Command string
	Reply   string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid reply %q to %q: %v", e.Reply, e.Command, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTimedOut) hold for validation failures
func (e *ValidationError) Is(target error) bool {
	return target == ErrTimedOut
}

// UnsupportedFirmwareError aborts a session
type UnsupportedFirmwareError struct {
	Family  model.Family
	Version string
}

func (e *UnsupportedFirmwareError) Error() string {
	return fmt.Sprintf("%s firmware %s is not supported", e.Family, e.Version)
}
