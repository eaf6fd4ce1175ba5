package xpad

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// InitDataPort opens a listening socket on an ephemeral port and announces
// it to the server with "Port <n>". The server connects to it for every
// frame read with ReadDataPortFrame. It returns the port number.
func (c *Client) InitDataPort(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsConnected() {
		return 0, ErrNotConnected
	}

	c.closeDataPortLocked()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", ":0")
	if err != nil {
		return 0, newConnError("listen", err)
	}

	port := ln.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert
	cmd := "Port " + strconv.Itoa(port)

	stop, err := c.beginLocked(ctx, cmd)
	if err != nil {
		_ = ln.Close()
		return 0, err
	}
	defer stop()

	if _, err := c.waitResponseLocked(ctx, cmd, IntValue); err != nil {
		_ = ln.Close()
		return 0, err
	}

	c.dataLn = ln
	c.logger.Debug("data port initialized", "dataPort", port)

	return port, nil
}

// DataPort returns the announced data port, or 0 when none is open.
func (c *Client) DataPort() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dataLn == nil {
		return 0
	}

	return c.dataLn.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert
}

// ReadDataPortFrame waits for the server to connect to the data port and
// reads exactly samples values of sampleSize bytes (2 or 4) into dst.
//
// It does not hold the command connection, so the caller may poll status
// on the Client while the server prepares the frame.
func (c *Client) ReadDataPortFrame(ctx context.Context, dst []byte, samples int, sampleSize PixelDepth) (int, error) {
	if !sampleSize.Valid() {
		return 0, fmt.Errorf("xpad: unsupported sample size %d", int(sampleSize))
	}
	total := samples * int(sampleSize)
	if total > len(dst) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, total, len(dst))
	}

	c.mu.Lock()
	ln, ok := c.dataLn.(*net.TCPListener)
	c.mu.Unlock()
	if !ok || ln == nil {
		return 0, ErrDataPortNotReady
	}

	deadline := time.Now().Add(c.cfg.dataPortAcceptTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ln.SetDeadline(deadline); err != nil {
		return 0, newConnError("accept", err)
	}

	stopAccept := context.AfterFunc(ctx, func() { _ = ln.SetDeadline(time.Now()) })
	conn, err := ln.Accept()
	stopAccept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		c.metrics.incConnFaultCount()
		c.logger.Error("server could not connect to data port", "error", err)

		return 0, newConnError("accept", err)
	}
	defer conn.Close()

	stopRead := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stopRead()

	out := dst[:total]
	for read := 0; read < total; {
		if c.cfg.lineTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.lineTimeout))
		}
		n, err := conn.Read(out[read:])
		read += n
		if err != nil {
			if err == io.EOF && read == total {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			c.metrics.incConnFaultCount()

			return read, newConnError("read", err)
		}
	}

	c.metrics.addBulkBytesRecv(total)
	c.metrics.incFrameRecvCount()

	return total, nil
}

func (c *Client) closeDataPortLocked() {
	if c.dataLn == nil {
		return
	}
	if err := c.dataLn.Close(); err != nil && !isConnClosedError(err) {
		c.logger.Warn("failed to close data port", "error", err)
	}
	c.dataLn = nil
}
