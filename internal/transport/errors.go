package transport

import (
	"errors"
	"fmt"
	"net"

	"github.com/goburrow/modbus"
)

// Kind classifies transport failures.
type Kind int

const (
	// KindConnectionLost covers dial failures and dead sockets.
	KindConnectionLost Kind = iota
	// KindTimeout covers request deadlines.
	KindTimeout
	// KindProtocol covers exception responses and malformed frames.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindConnectionLost:
		return "connection lost"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol error"
	default:
		return "unknown"
	}
}

// Error is the transport error envelope. The wrapped error keeps the driver
// detail; Kind is what the poller dispatches on.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// ProtocolError carries the Modbus exception code from the device.
type ProtocolError struct {
	Function  byte
	Exception byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("modbus exception: function=%d code=%d", e.Function, e.Exception)
}

// ExceptionCode exposes the raw device code.
func (e *ProtocolError) ExceptionCode() byte { return e.Exception }

// IsTransient reports whether the error is a connection-level failure that a
// reconnect may cure, as opposed to a device-level protocol error.
func IsTransient(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == KindConnectionLost || te.Kind == KindTimeout
	}
	return false
}

// classify maps a driver error onto the taxonomy.
func classify(op string, err error) *Error {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return &Error{
			Kind: KindProtocol,
			Op:   op,
			Err:  &ProtocolError{Function: mbErr.FunctionCode, Exception: mbErr.ExceptionCode},
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}

	return &Error{Kind: KindConnectionLost, Op: op, Err: err}
}
