package xpad

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// wireSampleSize is the size of one sample in inline frame transfers.
const wireSampleSize = 4

// bulkChunkSize is the number of payload bytes read per deadline.
const bulkChunkSize = 64 << 10

// PixelDepth is the number of bytes per pixel in a frame buffer.
type PixelDepth int

const (
	// Depth16 stores pixels as 16-bit unsigned integers.
	Depth16 PixelDepth = 2
	// Depth32 stores pixels as 32-bit unsigned integers.
	Depth32 PixelDepth = 4
)

func (d PixelDepth) String() string {
	switch d {
	case Depth16:
		return "16-bit"
	case Depth32:
		return "32-bit"
	default:
		return fmt.Sprintf("PixelDepth(%d)", int(d))
	}
}

// Valid reports whether d is a supported depth.
func (d PixelDepth) Valid() bool { return d == Depth16 || d == Depth32 }

// FrameHeader selects the header layout of inline frames.
type FrameHeader uint8

const (
	// SizeOnlyHeader frames carry only the 4-byte payload size.
	SizeOnlyHeader FrameHeader = iota
	// GeometryHeader frames carry the payload size followed by 4-byte rows and columns.
	GeometryHeader
)

// FrameInfo describes a frame read from the server.
type FrameInfo struct {
	// Samples is the number of pixels in the frame.
	Samples int
	// Rows and Cols are set when the frame header carries the geometry.
	Rows int
	Cols int
	// Bytes is the number of bytes written to the destination buffer.
	Bytes int
}

// ExposureStream reads the frames that the server sends inline on the
// command connection after an exposure command.
//
// The stream owns the connection until Finish returns or the connection
// fails; other exchanges on the Client wait.
type ExposureStream struct {
	c       *Client
	cmd     string
	header  FrameHeader
	scratch [4]byte
	chunk   []byte
	ended   bool
	closed  bool
}

// StartExposure sends cmd and returns a stream for the frames that follow.
func (c *Client) StartExposure(ctx context.Context, cmd string, header FrameHeader) (*ExposureStream, error) {
	c.mu.Lock()

	stop, err := c.beginLocked(ctx, cmd)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	stop()

	return &ExposureStream{c: c, cmd: cmd, header: header}, nil
}

func (s *ExposureStream) release() {
	if !s.closed {
		s.closed = true
		s.c.mu.Unlock()
	}
}

// ReadFrame reads the next frame into dst, converting the 32-bit wire samples
// to depth, and acknowledges it to the server.
//
// ErrEndOfStream is returned when the server ends the stream. A frame larger
// than dst is discarded and ErrBufferTooSmall is returned; the stream stays usable.
func (s *ExposureStream) ReadFrame(ctx context.Context, dst []byte, depth PixelDepth) (FrameInfo, error) {
	if s.closed {
		return FrameInfo{}, ErrNotConnected
	}
	if s.ended {
		return FrameInfo{}, ErrEndOfStream
	}
	if !depth.Valid() {
		return FrameInfo{}, fmt.Errorf("xpad: unsupported pixel depth %d", int(depth))
	}

	c := s.c
	if !c.state.IsConnected() {
		s.release()
		return FrameInfo{}, ErrNotConnected
	}

	stop := c.watchLocked(ctx)
	defer stop()

	info, err := s.readFrameLocked(ctx, dst, depth)
	if IsConnFault(err) {
		s.release()
	}

	return info, err
}

func (s *ExposureStream) readFrameLocked(ctx context.Context, dst []byte, depth PixelDepth) (FrameInfo, error) {
	c := s.c

	size, err := c.readUint32Locked(ctx, s.scratch[:])
	if err != nil {
		return FrameInfo{}, err
	}
	if size == 0 {
		s.ended = true
		return FrameInfo{}, ErrEndOfStream
	}

	info := FrameInfo{}
	if s.header == GeometryHeader {
		rows, err := c.readUint32Locked(ctx, s.scratch[:])
		if err != nil {
			return FrameInfo{}, err
		}
		cols, err := c.readUint32Locked(ctx, s.scratch[:])
		if err != nil {
			return FrameInfo{}, err
		}
		info.Rows, info.Cols = int(rows), int(cols)
	}

	if int64(size) > int64(c.cfg.maxTransferSize) || size%wireSampleSize != 0 {
		// the stream cannot be resynchronized
		perr := c.protocolError(s.cmd, ErrInvalidTransferSize, fmt.Sprintf("frame size %d", size))

		return FrameInfo{}, c.connFaultLocked(ctx, "read", perr)
	}

	info.Samples = int(size) / wireSampleSize
	info.Bytes = info.Samples * int(depth)

	if info.Bytes > len(dst) {
		if err := c.discardLocked(ctx, int(size)); err != nil {
			return FrameInfo{}, err
		}
		if err := c.writeLocked(ctx, []byte{lf}); err != nil {
			return FrameInfo{}, err
		}

		return info, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, info.Bytes, len(dst))
	}

	if s.chunk == nil {
		s.chunk = make([]byte, bulkChunkSize)
	}

	out := dst[:info.Bytes]
	remain := int(size)
	for remain > 0 {
		n := min(remain, len(s.chunk))
		if err := c.readFullLocked(ctx, s.chunk[:n]); err != nil {
			return FrameInfo{}, err
		}

		if depth == Depth16 {
			out = out[narrow32To16(out, s.chunk[:n]):]
		} else {
			out = out[copy(out, s.chunk[:n]):]
		}
		remain -= n
	}

	if err := c.writeLocked(ctx, []byte{lf}); err != nil {
		return FrameInfo{}, err
	}

	c.metrics.addBulkBytesRecv(int(size))
	c.metrics.incFrameRecvCount()

	return info, nil
}

// Finish discards any frames left in the stream, reads the command's integer
// return value and releases the connection.
func (s *ExposureStream) Finish(ctx context.Context) (int, error) {
	c := s.c
	if s.closed {
		return 0, ErrNotConnected
	}
	defer s.release()

	if !c.state.IsConnected() {
		return 0, ErrNotConnected
	}

	stop := c.watchLocked(ctx)
	defer stop()

	for !s.ended {
		size, err := c.readUint32Locked(ctx, s.scratch[:])
		if err != nil {
			return 0, err
		}
		if size == 0 {
			s.ended = true
			break
		}
		if int64(size) > int64(c.cfg.maxTransferSize) {
			perr := c.protocolError(s.cmd, ErrInvalidTransferSize, fmt.Sprintf("frame size %d", size))

			return 0, c.connFaultLocked(ctx, "read", perr)
		}
		skip := int(size)
		if s.header == GeometryHeader {
			skip += 8
		}
		if err := c.discardLocked(ctx, skip); err != nil {
			return 0, err
		}
		if err := c.writeLocked(ctx, []byte{lf}); err != nil {
			return 0, err
		}
	}

	val, err := c.waitResponseLocked(ctx, s.cmd, IntValue)

	return val.Int, err
}

// SendFile sends a configuration blob after cmd: a 4-byte little-endian size
// followed by data. The server answers with an integer return code.
func (c *Client) SendFile(ctx context.Context, cmd string, data []byte) error {
	if len(data) > c.cfg.maxTransferSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidTransferSize, len(data))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stop, err := c.beginLocked(ctx, cmd)
	if err != nil {
		return err
	}
	defer stop()

	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf, uint32(len(data))) //nolint:gosec
	copy(buf[4:], data)
	if err := c.writeLocked(ctx, buf); err != nil {
		return err
	}
	c.metrics.addBulkBytesSent(len(data))

	_, err = c.waitResponseLocked(ctx, cmd, IntValue)

	return err
}

// ReceiveFile sends cmd and copies the size-prefixed blob the server returns
// to w, then waits for the integer return code. It returns the blob size.
func (c *Client) ReceiveFile(ctx context.Context, cmd string, w io.Writer) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stop, err := c.beginLocked(ctx, cmd)
	if err != nil {
		return 0, err
	}
	defer stop()

	var scratch [4]byte
	size, err := c.readUint32Locked(ctx, scratch[:])
	if err != nil {
		return 0, err
	}
	if int64(size) > int64(c.cfg.maxTransferSize) {
		perr := c.protocolError(cmd, ErrInvalidTransferSize, fmt.Sprintf("file size %d", size))

		return 0, c.connFaultLocked(ctx, "read", perr)
	}

	chunk := make([]byte, min(int(size), bulkChunkSize))
	var werr error
	for remain := int(size); remain > 0; {
		n := min(remain, len(chunk))
		if err := c.readFullLocked(ctx, chunk[:n]); err != nil {
			return 0, err
		}
		// keep reading after a write failure so the stream stays in sync
		if werr == nil {
			_, werr = w.Write(chunk[:n])
		}
		remain -= n
	}

	if err := c.writeLocked(ctx, []byte{lf}); err != nil {
		return 0, err
	}
	c.metrics.addBulkBytesRecv(int(size))

	if _, err := c.waitResponseLocked(ctx, cmd, IntValue); err != nil {
		return int(size), err
	}
	if werr != nil {
		return int(size), fmt.Errorf("xpad: write received file: %w", werr)
	}

	return int(size), nil
}

// readUint32Locked reads a 4-byte little-endian field.
func (c *Client) readUint32Locked(ctx context.Context, scratch []byte) (uint32, error) {
	if err := c.armReadLocked(ctx); err != nil {
		return 0, err
	}

	v, err := c.reader.readUint32(scratch)
	if err != nil {
		return 0, c.connFaultLocked(ctx, "read", err)
	}

	return v, nil
}

// readFullLocked reads exactly len(buf) bytes.
func (c *Client) readFullLocked(ctx context.Context, buf []byte) error {
	if err := c.armReadLocked(ctx); err != nil {
		return err
	}
	if err := c.reader.readFull(buf); err != nil {
		return c.connFaultLocked(ctx, "read", err)
	}

	return nil
}

// discardLocked skips n payload bytes.
func (c *Client) discardLocked(ctx context.Context, n int) error {
	for n > 0 {
		if err := c.armReadLocked(ctx); err != nil {
			return err
		}
		step := min(n, bulkChunkSize)
		if _, err := c.reader.r.Discard(step); err != nil {
			return c.connFaultLocked(ctx, "read", err)
		}
		n -= step
	}

	return nil
}

// narrow32To16 converts little-endian 32-bit samples in src to 16-bit samples
// in dst by keeping the low 16 bits of each. It returns the bytes written.
func narrow32To16(dst []byte, src []byte) int {
	n := len(src) / 4
	for i := range n {
		v := binary.LittleEndian.Uint32(src[i*4:])
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(v)) //nolint:gosec
	}

	return n * 2
}
