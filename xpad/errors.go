package xpad

import (
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	// ErrNotConnected indicates that the client has no open connection to the server.
	ErrNotConnected = errors.New("xpad: not connected to server")

	// ErrAlreadyConnected indicates that Connect was called on a connected client.
	ErrAlreadyConnected = errors.New("xpad: already connected to server")

	// ErrConnClosed indicates that the server closed the connection.
	ErrConnClosed = errors.New("xpad: connection closed by server")

	// ErrTimeout indicates that a read or write deadline expired.
	ErrTimeout = errors.New("xpad: i/o timeout")
)

var (
	// ErrNoReturnValue indicates that the server sent a prompt before any return value.
	ErrNoReturnValue = errors.New("xpad: no return value from server")

	// ErrUnexpectedResponse indicates that the return value has a different type than expected.
	ErrUnexpectedResponse = errors.New("xpad: unexpected response type")

	// ErrMalformedLine indicates that a return value could not be parsed.
	ErrMalformedLine = errors.New("xpad: malformed response line")

	// ErrNullString indicates that the server returned "(null)" or an empty string.
	ErrNullString = errors.New("xpad: server returned a null string")

	// ErrNaNValue indicates that the server returned NaN as a double value.
	ErrNaNValue = errors.New("xpad: server returned NaN")

	// ErrNegativeReturn indicates that the server returned a negative integer code.
	ErrNegativeReturn = errors.New("xpad: server returned a negative code")
)

var (
	// ErrEndOfStream indicates that the server terminated an inline frame stream.
	ErrEndOfStream = errors.New("xpad: end of frame stream")

	// ErrBufferTooSmall indicates that a frame does not fit in the destination buffer.
	ErrBufferTooSmall = errors.New("xpad: destination buffer too small")

	// ErrInvalidTransferSize indicates a size prefix that is not a whole number of elements
	// or exceeds the configured maximum transfer size.
	ErrInvalidTransferSize = errors.New("xpad: invalid transfer size")

	// ErrDataPortNotReady indicates a data port read before InitDataPort.
	ErrDataPortNotReady = errors.New("xpad: data port is not initialized")
)

// ConnError is a connection fault: socket creation, connect, read or write
// failed, a deadline expired or the server closed the connection.
// The connection is closed when a ConnError is returned from an exchange.
type ConnError struct {
	// Op is the operation that failed, e.g. "dial", "read" or "write".
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("xpad: %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// Timeout reports whether the fault was caused by an expired deadline.
func (e *ConnError) Timeout() bool { return errors.Is(e.Err, ErrTimeout) }

// ProtocolError is a protocol violation for a single command: an unexpected
// response type, a prompt without return value or a malformed line.
// The connection stays usable.
type ProtocolError struct {
	Cmd    string
	Err    error
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("xpad: command %q: %v", e.Cmd, e.Err)
	}

	return fmt.Sprintf("xpad: command %q: %v: %s", e.Cmd, e.Err, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ServerError is an error reported by the server, either as a negative return
// code or as a rejected value, together with the server's error text.
type ServerError struct {
	Cmd     string
	Code    int
	Message string
	Err     error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("xpad: command %q failed (code %d): [ %s ]", e.Cmd, e.Code, e.Message)
}

func (e *ServerError) Unwrap() error { return e.Err }

// IsConnFault reports whether err is a connection fault.
func IsConnFault(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}

// IsProtocolError reports whether err is a protocol violation.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsServerError reports whether err was reported by the server.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// newConnError classifies a network error into a ConnError.
func newConnError(op string, err error) *ConnError {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	case isNetTimeout(err):
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	case isConnClosedError(err):
		err = fmt.Errorf("%w: %w", ErrConnClosed, err)
	}

	return &ConnError{Op: op, Err: err}
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
