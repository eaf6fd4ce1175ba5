package xpad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-xpad/logger"
)

// Value is a typed return value of a command.
type Value struct {
	Kind   ValueKind
	Int    int
	Double float64
	Str    string
	// Null is set when the server returned "(null)".
	Null bool
}

// ProgressFunc receives the progress lines of a long running command.
// It is called from the goroutine performing the exchange and must not call
// back into the Client.
type ProgressFunc func(done int, total int, text string)

// Client is a connection to an XPAD acquisition server.
//
// A Client serializes exchanges: exactly one command is in flight at a time
// and each response is attributed to the command that preceded it.
// Long running commands block the connection; use a second Client for
// status queries and aborts.
type Client struct {
	cfg     *ClientConfig
	logger  logger.Logger
	metrics *ClientMetrics

	state atomicConnState

	// mu serializes exchanges and guards the fields below.
	mu      sync.Mutex
	reader  *lineReader
	prompts int
	dataLn  net.Listener

	// connMu guards conn so Close can interrupt a blocked exchange.
	connMu sync.Mutex
	conn   net.Conn

	msgMu  sync.RWMutex
	errMsg string
	// exchErrMsg is the error text received during the current exchange.
	exchErrMsg string
	debugMsgs  []string
	progress   ProgressFunc
}

// NewClient creates a Client for the given configuration. Call Connect to
// open the connection.
func NewClient(cfg *ClientConfig) *Client {
	return &Client{
		cfg:     cfg,
		logger:  cfg.logger.With("host", cfg.host, "port", cfg.port),
		metrics: newClientMetrics(),
	}
}

// Config returns the client configuration.
func (c *Client) Config() *ClientConfig { return c.cfg }

// Metrics returns the client metrics.
func (c *Client) Metrics() *ClientMetrics { return c.metrics }

// State returns the connection state.
func (c *Client) State() ConnState { return c.state.Get() }

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool { return c.state.IsConnected() }

// Connect opens the TCP connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.ToConnecting() {
		return ErrAlreadyConnected
	}

	dialer := net.Dialer{Timeout: c.cfg.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr())
	if err != nil {
		c.state.ToDisconnected()
		c.metrics.incConnFaultCount()
		c.logger.Error("failed to connect to server", "error", err)

		return newConnError("dial", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.reader = newLineReader(conn, c.cfg.readBufferSize, c.cfg.maxLineLength)
	c.prompts = 0
	if !c.state.ToConnected() {
		// Close was called while dialing
		c.closeLocked()
		return newConnError("dial", net.ErrClosed)
	}
	c.metrics.setConnected(true)
	c.logger.Info("connected to server", "local", conn.LocalAddr().String())

	return nil
}

// Close asks the server to release the session and closes the connection.
//
// An exchange or ExposureStream blocked on the socket is interrupted and
// fails with a ConnError.
func (c *Client) Close() error {
	if !c.state.ToClosing() {
		return nil
	}

	if !c.mu.TryLock() {
		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.SetDeadline(time.Now())
		}
		c.connMu.Unlock()
		c.mu.Lock()
	}
	defer c.mu.Unlock()

	if c.conn != nil {
		// best effort, the server may already be gone
		_ = c.conn.SetDeadline(time.Now().Add(c.cfg.closeTimeout))
		_, _ = io.WriteString(c.conn, "quit\n")
	}

	c.closeLocked()
	c.logger.Info("disconnected from server")

	return nil
}

func (c *Client) closeLocked() {
	c.state.ToClosing()

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil && !isConnClosedError(err) {
			c.logger.Error("failed to close TCP connection", "method", "closeLocked", "error", err)
		}
	}

	c.closeDataPortLocked()
	c.reader = nil
	c.prompts = 0

	c.state.ToDisconnected()
	c.metrics.setConnected(false)
}

// ErrorMessage returns the last error text received from the server.
func (c *Client) ErrorMessage() string {
	c.msgMu.RLock()
	defer c.msgMu.RUnlock()

	return c.errMsg
}

// DebugMessages returns the debug lines received during the last exchange.
func (c *Client) DebugMessages() []string {
	c.msgMu.RLock()
	defer c.msgMu.RUnlock()

	msgs := make([]string, len(c.debugMsgs))
	copy(msgs, c.debugMsgs)

	return msgs
}

// SetProgressHandler installs fn to receive progress lines. A nil fn removes
// the handler and progress lines are only logged.
func (c *Client) SetProgressHandler(fn ProgressFunc) {
	c.msgMu.Lock()
	c.progress = fn
	c.msgMu.Unlock()
}

// SendNoWait sends cmd without waiting for a return value.
func (c *Client) SendNoWait(ctx context.Context, cmd string) error {
	_, err := c.SendAndExpect(ctx, cmd, NoValue)
	return err
}

// SendWait sends cmd and waits for its integer return code. A negative code
// is returned as a ServerError.
func (c *Client) SendWait(ctx context.Context, cmd string) error {
	_, err := c.SendWaitInt(ctx, cmd)
	return err
}

// SendWaitInt sends cmd and returns its integer return value. A negative
// value is returned as a ServerError carrying the server's error text.
func (c *Client) SendWaitInt(ctx context.Context, cmd string) (int, error) {
	val, err := c.SendAndExpect(ctx, cmd, IntValue)
	if err != nil {
		return val.Int, err
	}

	return val.Int, nil
}

// SendWaitDouble sends cmd and returns its floating point return value.
// NaN is reported by the server for failed reads and is returned as a ServerError.
func (c *Client) SendWaitDouble(ctx context.Context, cmd string) (float64, error) {
	val, err := c.SendAndExpect(ctx, cmd, DoubleValue)
	if err != nil {
		return val.Double, err
	}
	if math.IsNaN(val.Double) {
		return val.Double, c.serverError(cmd, -1, ErrNaNValue)
	}

	return val.Double, nil
}

// SendWaitString sends cmd and returns its string return value.
// "(null)" and empty strings are returned as a ServerError.
func (c *Client) SendWaitString(ctx context.Context, cmd string) (string, error) {
	val, err := c.SendAndExpect(ctx, cmd, StringValue)
	if err != nil {
		return val.Str, err
	}
	if val.Null || val.Str == "" {
		return "", c.serverError(cmd, -1, ErrNullString)
	}

	return val.Str, nil
}

// SendAndExpect sends cmd and waits for a return value of the given kind.
//
// Error and debug lines received before the value are recorded, progress
// lines go to the progress handler. Returned errors are a *ConnError when
// the connection failed and was closed, a *ProtocolError when the response
// did not match the expected kind, or a *ServerError when an integer return
// value is negative.
//
// A NaN double, a "(null)" string and an empty string are returned without error.
func (c *Client) SendAndExpect(ctx context.Context, cmd string, expect ValueKind) (Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stop, err := c.beginLocked(ctx, cmd)
	if err != nil {
		return Value{}, err
	}
	defer stop()

	if expect == NoValue {
		return Value{}, nil
	}

	return c.waitResponseLocked(ctx, cmd, expect)
}

// beginLocked waits for the server prompt and writes cmd. The returned stop
// function detaches the context watcher.
func (c *Client) beginLocked(ctx context.Context, cmd string) (func() bool, error) {
	if !c.state.IsConnected() {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := c.watchLocked(ctx)

	if err := c.waitPromptLocked(ctx); err != nil {
		stop()
		return nil, err
	}

	if err := c.writeCommandLocked(ctx, cmd); err != nil {
		stop()
		return nil, err
	}

	return stop, nil
}

// watchLocked interrupts blocking socket calls once ctx is done.
func (c *Client) watchLocked(ctx context.Context) func() bool {
	conn := c.conn

	return context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
}

func (c *Client) waitPromptLocked(ctx context.Context) error {
	if c.prompts > 0 {
		c.prompts--
		return nil
	}

	for {
		line, err := c.readLineLocked(ctx, NoValue)
		if err != nil {
			if errors.Is(err, ErrMalformedLine) {
				continue
			}

			return err
		}
		if line.Kind == PromptLine {
			return nil
		}
		c.dispatchSideLine(line)
	}
}

func (c *Client) writeCommandLocked(ctx context.Context, cmd string) error {
	verb := commandVerb(cmd)
	c.metrics.incCommandCount(verb)

	if c.logger.Level() == logger.DebugLevel {
		c.logger.Debug("send command", "cmd", cmd)
	}

	c.msgMu.Lock()
	c.debugMsgs = c.debugMsgs[:0]
	c.exchErrMsg = ""
	c.msgMu.Unlock()

	return c.writeLocked(ctx, []byte(cmd+"\n"))
}

func (c *Client) writeLocked(ctx context.Context, data []byte) error {
	if !c.state.IsConnected() {
		return c.connFaultLocked(ctx, "write", net.ErrClosed)
	}

	var deadline time.Time
	if c.cfg.writeTimeout > 0 {
		deadline = time.Now().Add(c.cfg.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return c.connFaultLocked(ctx, "write", err)
	}

	if err := writeAll(c.conn, data); err != nil {
		return c.connFaultLocked(ctx, "write", err)
	}

	return nil
}

// readDeadline returns the earlier of the line timeout and the ctx deadline.
func (c *Client) readDeadline(ctx context.Context) time.Time {
	var deadline time.Time
	if c.cfg.lineTimeout > 0 {
		deadline = time.Now().Add(c.cfg.lineTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	return deadline
}

// armReadLocked sets the read deadline for the next line or bulk chunk.
func (c *Client) armReadLocked(ctx context.Context) error {
	if !c.state.IsConnected() {
		return c.connFaultLocked(ctx, "read", net.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return c.connFaultLocked(ctx, "read", err)
	}
	if err := c.conn.SetReadDeadline(c.readDeadline(ctx)); err != nil {
		return c.connFaultLocked(ctx, "read", err)
	}
	// the watcher may have fired before the deadline was replaced
	if err := ctx.Err(); err != nil {
		return c.connFaultLocked(ctx, "read", err)
	}

	return nil
}

// readLineLocked reads the next line. A malformed value line is returned as
// ErrMalformedLine and leaves the connection usable; any other failure closes it.
func (c *Client) readLineLocked(ctx context.Context, expect ValueKind) (ResponseLine, error) {
	if err := c.armReadLocked(ctx); err != nil {
		return ResponseLine{}, err
	}

	line, err := c.reader.next(expect)
	if err != nil {
		if errors.Is(err, ErrMalformedLine) {
			return line, err
		}

		return line, c.connFaultLocked(ctx, "read", err)
	}

	return line, nil
}

func (c *Client) waitResponseLocked(ctx context.Context, cmd string, expect ValueKind) (Value, error) {
	for {
		line, err := c.readLineLocked(ctx, expect)
		if err != nil {
			if errors.Is(err, ErrMalformedLine) {
				return Value{}, c.protocolError(cmd, ErrMalformedLine, err.Error())
			}

			return Value{}, err
		}

		if c.logger.Level() == logger.DebugLevel {
			c.logger.Debug("received line", "cmd", cmd, "kind", line.Kind, "text", line.Text)
		}

		switch line.Kind {
		case PromptLine:
			c.prompts++
			c.setErrorMessage("(warning) No return code from the server.")

			return Value{}, c.protocolError(cmd, ErrNoReturnValue, "")

		case ErrorLine, DebugLine, ProgressLine, UnknownLine:
			c.dispatchSideLine(line)

		case IntLine, DoubleLine, StringLine:
			if line.Kind != expect.lineKind() {
				return Value{}, c.protocolError(cmd, ErrUnexpectedResponse,
					fmt.Sprintf("expected %s, got %s", expect, line.Kind))
			}

			val := Value{
				Kind:   expect,
				Int:    line.Int,
				Double: line.Double,
				Str:    line.Text,
				Null:   line.Null,
			}
			if expect == IntValue && val.Int < 0 {
				return val, c.negativeReturnLocked(ctx, cmd, val.Int)
			}

			return val, nil
		}
	}
}

// negativeReturnLocked builds the ServerError for a negative integer return
// code, reading the server's accompanying error text when enabled.
func (c *Client) negativeReturnLocked(ctx context.Context, cmd string, code int) error {
	if c.cfg.errorTextFollowUp {
		text, err := c.readErrorTextLocked(ctx)
		if err != nil {
			return err
		}
		if text != "" {
			c.setErrorMessage(text)
		}
	}

	return c.serverError(cmd, code, ErrNegativeReturn)
}

// readErrorTextLocked reads the string value following a negative return code.
// A prompt before any string means the server sent no text.
func (c *Client) readErrorTextLocked(ctx context.Context) (string, error) {
	for {
		line, err := c.readLineLocked(ctx, StringValue)
		if err != nil {
			if errors.Is(err, ErrMalformedLine) {
				return "", nil
			}

			return "", err
		}

		switch line.Kind {
		case PromptLine:
			c.prompts++
			return "", nil
		case StringLine:
			return line.Text, nil
		case IntLine, DoubleLine:
			return "", nil
		default:
			c.dispatchSideLine(line)
		}
	}
}

// dispatchSideLine routes error, debug, progress and unknown lines.
func (c *Client) dispatchSideLine(line ResponseLine) {
	switch line.Kind {
	case ErrorLine:
		c.setErrorMessage(line.Text)
		c.logger.Warn("server error message", "text", line.Text)

	case DebugLine:
		c.msgMu.Lock()
		c.debugMsgs = append(c.debugMsgs, line.Text)
		c.msgMu.Unlock()
		c.logger.Debug("server debug message", "text", line.Text)

	case ProgressLine:
		c.metrics.incProgressCount()
		c.msgMu.RLock()
		fn := c.progress
		c.msgMu.RUnlock()
		if fn != nil {
			fn(line.Done, line.Total, line.Text)
		} else {
			c.logger.Debug("server progress", "done", line.Done, "total", line.Total, "text", line.Text)
		}

	case UnknownLine:
		c.metrics.incUnknownLineCount()
		c.setErrorMessage("Unknown string from server: " + line.Text)
		c.logger.Warn("unknown line from server", "text", line.Text)

	default:
	}
}

func (c *Client) setErrorMessage(msg string) {
	c.msgMu.Lock()
	c.errMsg = msg
	c.exchErrMsg = msg
	c.msgMu.Unlock()
}

func (c *Client) serverError(cmd string, code int, err error) *ServerError {
	c.metrics.incServerErrCount()

	c.msgMu.RLock()
	msg := c.exchErrMsg
	c.msgMu.RUnlock()
	c.logger.Warn("command failed on server", "cmd", cmd, "code", code, "message", msg)

	return &ServerError{Cmd: cmd, Code: code, Message: msg, Err: err}
}

func (c *Client) protocolError(cmd string, err error, detail string) *ProtocolError {
	c.metrics.incProtocolErrCount()
	c.logger.Warn("protocol violation", "cmd", cmd, "error", err, "detail", detail)

	return &ProtocolError{Cmd: cmd, Err: err, Detail: detail}
}

// connFaultLocked closes the connection and returns the fault as a ConnError.
func (c *Client) connFaultLocked(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}

	cerr := newConnError(op, err)
	c.metrics.incConnFaultCount()
	c.logger.Error("connection fault, disconnecting", "op", op, "error", err)
	c.closeLocked()

	return cerr
}

// commandVerb returns the first word of cmd.
func commandVerb(cmd string) string {
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		return cmd[:i]
	}

	return cmd
}

// writeAll writes all of data, retrying on short writes.
func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}

	return nil
}

func isConnClosedError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "broken pipe")
}
