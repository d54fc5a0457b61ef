// internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"

	"pikoder-service/internal/model"
)

var (
	// ErrTimedOut is returned when no complete frame arrived within the poll budget
	ErrTimedOut = errors.New("timed out")
	// ErrNotOpen is returned by I/O on a closed link
	ErrNotOpen = errors.New("link not open")
)

// TransportError is an open/read/write failure of the physical link.
// The link is closed when one is returned.
type TransportError struct {
	Link model.LinkType
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s link %s failed: %v", e.Link, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err came from the physical link
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
