// Package xpadtest provides a scripted XPAD acquisition server for tests.
//
// The server speaks the prompt protocol on a loopback socket: it sends "> "
// when a client connects and after every handled command, and dispatches
// each command line to the handler registered for its first word.
package xpadtest

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// HandlerFunc answers one command. args holds the words following the verb.
type HandlerFunc func(s *Session, args []string)

// Server is a fake acquisition server.
type Server struct {
	ln net.Listener

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	fallback HandlerFunc
	commands []string
	conns    map[net.Conn]struct{}
	closed   bool

	wg sync.WaitGroup
}

// NewServer starts a server on 127.0.0.1 and stops it when the test ends.
// Commands without a handler are answered with an error line and -1.
func NewServer(t testing.TB) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("xpadtest: listen: %v", err)
	}

	srv := &Server{
		ln:       ln,
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		fallback: func(s *Session, _ []string) {
			s.Error("Unknown command")
			s.Int(-1)
		},
	}

	srv.wg.Add(1)
	go srv.acceptLoop()
	t.Cleanup(srv.Close)

	return srv
}

// Host returns the listening host.
func (srv *Server) Host() string { return "127.0.0.1" }

// Port returns the listening port.
func (srv *Server) Port() int { return srv.ln.Addr().(*net.TCPAddr).Port } //nolint:forcetypeassert

// Handle registers fn for commands starting with verb.
func (srv *Server) Handle(verb string, fn HandlerFunc) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.handlers[verb] = fn
}

// HandleDefault registers fn for commands without a handler.
func (srv *Server) HandleDefault(fn HandlerFunc) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.fallback = fn
}

// Commands returns the command lines received so far, in order.
func (srv *Server) Commands() []string {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	cmds := make([]string, len(srv.commands))
	copy(cmds, srv.commands)

	return cmds
}

// CommandCount returns how many received commands start with verb.
func (srv *Server) CommandCount(verb string) int {
	n := 0
	for _, cmd := range srv.Commands() {
		if strings.Fields(cmd)[0] == verb {
			n++
		}
	}

	return n
}

// DropConnections closes every client connection.
func (srv *Server) DropConnections() {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	for conn := range srv.conns {
		_ = conn.Close()
	}
}

// Close stops the server.
func (srv *Server) Close() {
	srv.mu.Lock()
	if srv.closed {
		srv.mu.Unlock()
		return
	}
	srv.closed = true
	_ = srv.ln.Close()
	for conn := range srv.conns {
		_ = conn.Close()
	}
	srv.mu.Unlock()

	srv.wg.Wait()
}

func (srv *Server) acceptLoop() {
	defer srv.wg.Done()

	for {
		conn, err := srv.ln.Accept()
		if err != nil {
			return
		}

		srv.mu.Lock()
		if srv.closed {
			srv.mu.Unlock()
			_ = conn.Close()
			return
		}
		srv.conns[conn] = struct{}{}
		srv.mu.Unlock()

		srv.wg.Add(1)
		go srv.serve(conn)
	}
}

func (srv *Server) serve(conn net.Conn) {
	defer srv.wg.Done()
	defer func() {
		srv.mu.Lock()
		delete(srv.conns, conn)
		srv.mu.Unlock()
		_ = conn.Close()
	}()

	sess := &Session{srv: srv, conn: conn, r: bufio.NewReader(conn)}
	sess.Prompt()

	for {
		line, err := sess.r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if line == "quit" {
			return
		}

		srv.mu.Lock()
		srv.commands = append(srv.commands, line)
		fields := strings.Fields(line)
		fn, ok := srv.handlers[fields[0]]
		if !ok {
			fn = srv.fallback
		}
		srv.mu.Unlock()

		fn(sess, fields[1:])
		if sess.skipPrompt {
			sess.skipPrompt = false
			continue
		}
		sess.Prompt()
	}
}

// Session is one client connection seen from the server side.
type Session struct {
	srv        *Server
	conn       net.Conn
	r          *bufio.Reader
	skipPrompt bool
}

// Write sends raw bytes to the client.
func (s *Session) Write(data []byte) {
	_, _ = s.conn.Write(data)
}

// Writef sends formatted text to the client.
func (s *Session) Writef(format string, args ...any) {
	s.Write([]byte(fmt.Sprintf(format, args...)))
}

// Prompt sends a prompt marker.
func (s *Session) Prompt() { s.Write([]byte("> ")) }

// NoPrompt suppresses the prompt after the current handler.
func (s *Session) NoPrompt() { s.skipPrompt = true }

// Int sends an integer return value.
func (s *Session) Int(v int) { s.Writef("* %d\r\n", v) }

// Double sends a floating point return value.
func (s *Session) Double(v float64) {
	if math.IsNaN(v) {
		s.Write([]byte("* nan\r\n"))
		return
	}
	s.Writef("* %s\r\n", strconv.FormatFloat(v, 'f', -1, 64))
}

// Str sends a quoted string return value.
func (s *Session) Str(v string) { s.Writef("* \"%s\"\r\n", v) }

// Null sends the "(null)" string return value.
func (s *Session) Null() { s.Write([]byte("* (null)\r\n")) }

// Error sends an error message line.
func (s *Session) Error(msg string) { s.Writef("! %s\r\n", msg) }

// Debug sends a debug message line.
func (s *Session) Debug(msg string) { s.Writef("# %s\r\n", msg) }

// Progress sends a progress line.
func (s *Session) Progress(done int, total int, text string) {
	s.Writef("@%d %d'%s'\r\n", done, total, text)
}

// Uint32 sends a 4-byte little-endian field.
func (s *Session) Uint32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	s.Write(buf[:])
}

// Frame sends an inline frame of 32-bit samples and waits for the client's
// acknowledgement. rows and cols are sent when geometry is set.
func (s *Session) Frame(samples []uint32, geometry bool, rows int, cols int) bool {
	s.Uint32(uint32(len(samples) * 4)) //nolint:gosec
	if geometry {
		s.Uint32(uint32(rows)) //nolint:gosec
		s.Uint32(uint32(cols)) //nolint:gosec
	}
	s.Write(EncodeSamples32(samples))

	return s.ReadAck()
}

// EndStream sends the zero size prefix that ends an inline frame stream.
func (s *Session) EndStream() { s.Uint32(0) }

// Blob sends a size-prefixed blob and waits for the client's acknowledgement.
func (s *Session) Blob(data []byte) bool {
	s.Uint32(uint32(len(data))) //nolint:gosec
	s.Write(data)

	return s.ReadAck()
}

// ReadAck reads the client's single newline acknowledgement.
func (s *Session) ReadAck() bool {
	_ = s.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	b, err := s.r.ReadByte()

	return err == nil && b == '\n'
}

// ReadBlob reads a size-prefixed blob sent by the client.
func (s *Session) ReadBlob() ([]byte, error) {
	var buf [4]byte
	if _, err := io.ReadFull(s.r, buf[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.LittleEndian.Uint32(buf[:]))
	if _, err := io.ReadFull(s.r, data); err != nil {
		return nil, err
	}

	return data, nil
}

// ConnectBack dials the client's data port and writes data.
func (s *Session) ConnectBack(port int, data []byte) error {
	return DialDataPort(port, data)
}

// Close closes the client connection.
func (s *Session) Close() { _ = s.conn.Close() }

// ReplyInt returns a handler answering with v.
func ReplyInt(v int) HandlerFunc {
	return func(s *Session, _ []string) { s.Int(v) }
}

// ReplyDouble returns a handler answering with v.
func ReplyDouble(v float64) HandlerFunc {
	return func(s *Session, _ []string) { s.Double(v) }
}

// ReplyString returns a handler answering with v.
func ReplyString(v string) HandlerFunc {
	return func(s *Session, _ []string) { s.Str(v) }
}

// ReplyError returns a handler answering with an error line and code.
func ReplyError(msg string, code int) HandlerFunc {
	return func(s *Session, _ []string) {
		s.Error(msg)
		s.Int(code)
	}
}

// EncodeSamples32 encodes samples as little-endian 32-bit values.
func EncodeSamples32(samples []uint32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}

	return buf
}

// EncodeSamples16 encodes samples as little-endian 16-bit values.
func EncodeSamples16(samples []uint16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}

	return buf
}

// DialDataPort connects to a client data port on 127.0.0.1 and writes data.
func DialDataPort(port int, data []byte) error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Write(data)

	return err
}
