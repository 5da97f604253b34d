package flower

import (
	"errors"
	"fmt"

	"parrotflower-gateway/internal/utils"
)

var (
	ErrTransport        = errors.New("transport error")
	ErrParse            = errors.New("parse error")
	ErrNoData           = errors.New("no data")
	ErrEmptyRead        = errors.New("empty read")
	ErrUnknownParameter = errors.New("unknown parameter")
)

// TransportError is a connection or read failure at the wireless layer.
// Handle is zero for connection failures.
type TransportError struct {
	Address string
	Handle  uint16
	Err     error
}

func (e *TransportError) Error() string {
	if e.Handle == 0 {
		return fmt.Sprintf("transport %s: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("transport %s handle 0x%s: %v", e.Address, utils.Hex4(e.Handle), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ParseError is a non-empty payload that does not match the expected layout.
type ParseError struct {
	Handle   uint16
	Encoding string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Handle == 0 {
		return fmt.Sprintf("parse %s: %v", e.Encoding, e.Err)
	}
	return fmt.Sprintf("parse %s at handle 0x%s: %v", e.Encoding, utils.Hex4(e.Handle), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// NoDataError reports that no cached values exist for a device. Err holds the
// refresh failure when the same call attempted the refresh.
type NoDataError struct {
	Address string
	Err     error
}

func (e *NoDataError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("could not read data from sensor %s", e.Address)
	}
	return fmt.Sprintf("could not read data from sensor %s: %v", e.Address, e.Err)
}

func (e *NoDataError) Unwrap() error { return e.Err }

func (e *NoDataError) Is(target error) bool { return target == ErrNoData }
