package xpad

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-xpad/internal/xpadtest"
	"github.com/stretchr/testify/require"
)

func TestNarrow32To16(t *testing.T) {
	require := require.New(t)

	src := []uint32{0, 1, 0xFFFF, 0x10000, 0x12345678, 0xFFFFFFFF, 70000}
	dst := make([]byte, len(src)*2)

	n := narrow32To16(dst, xpadtest.EncodeSamples32(src))
	require.Equal(len(src)*2, n)

	for i, v := range src {
		require.Equal(uint16(v&0xFFFF), binary.LittleEndian.Uint16(dst[i*2:])) //nolint:gosec
	}
}

func TestPixelDepth(t *testing.T) {
	require := require.New(t)

	require.True(Depth16.Valid())
	require.True(Depth32.Valid())
	require.False(PixelDepth(3).Valid())
	require.Equal("16-bit", Depth16.String())
	require.Equal("PixelDepth(3)", PixelDepth(3).String())
}

func exposureHandler(frames [][]uint32, geometry bool, acks *atomic.Int32) xpadtest.HandlerFunc {
	return func(s *xpadtest.Session, _ []string) {
		for _, f := range frames {
			if !s.Frame(f, geometry, 120, len(f)/120) {
				return
			}
			acks.Add(1)
		}
		s.EndStream()
		s.Int(0)
	}
}

func TestExposureStream_Narrowing(t *testing.T) {
	require := require.New(t)

	frame := make([]uint32, 240)
	for i := range frame {
		frame[i] = uint32(i)*0x10001 + 0x7FFF0000 //nolint:gosec
	}

	var acks atomic.Int32
	srv := xpadtest.NewServer(t)
	srv.Handle("StartExposure", exposureHandler([][]uint32{frame, frame}, true, &acks))
	srv.Handle("AskReady", xpadtest.ReplyInt(0))

	c := newTestClient(t, srv)
	ctx := context.Background()

	stream, err := c.StartExposure(ctx, "StartExposure", GeometryHeader)
	require.NoError(err)

	dst := make([]byte, len(frame)*2)
	for range 2 {
		info, err := stream.ReadFrame(ctx, dst, Depth16)
		require.NoError(err)
		require.Equal(FrameInfo{Samples: 240, Rows: 120, Cols: 2, Bytes: 480}, info)
		for i, v := range frame {
			require.Equal(uint16(v), binary.LittleEndian.Uint16(dst[i*2:])) //nolint:gosec
		}
	}

	_, err = stream.ReadFrame(ctx, dst, Depth16)
	require.ErrorIs(err, ErrEndOfStream)

	rc, err := stream.Finish(ctx)
	require.NoError(err)
	require.Equal(0, rc)
	require.Equal(int32(2), acks.Load())

	require.NoError(c.SendWait(ctx, "AskReady"))
	require.Equal(uint64(2), c.Metrics().FrameRecvCount.Load())
	require.Equal(uint64(2*240*4), c.Metrics().BulkBytesRecv.Load())
}

func TestExposureStream_32Bit(t *testing.T) {
	require := require.New(t)

	frame := []uint32{1, 0x10000, 0xFFFFFFFF, 42}

	var acks atomic.Int32
	srv := xpadtest.NewServer(t)
	srv.Handle("StartExposure", exposureHandler([][]uint32{frame}, false, &acks))

	c := newTestClient(t, srv)
	ctx := context.Background()

	stream, err := c.StartExposure(ctx, "StartExposure", SizeOnlyHeader)
	require.NoError(err)

	dst := make([]byte, 16)
	info, err := stream.ReadFrame(ctx, dst, Depth32)
	require.NoError(err)
	require.Equal(4, info.Samples)
	require.Equal(xpadtest.EncodeSamples32(frame), dst)

	_, err = stream.Finish(ctx)
	require.NoError(err)
}

func TestExposureStream_BufferTooSmall(t *testing.T) {
	require := require.New(t)

	small := []uint32{1, 2}
	big := []uint32{1, 2, 3, 4, 5, 6, 7, 8}

	var acks atomic.Int32
	srv := xpadtest.NewServer(t)
	srv.Handle("StartExposure", exposureHandler([][]uint32{big, small}, false, &acks))

	c := newTestClient(t, srv)
	ctx := context.Background()

	stream, err := c.StartExposure(ctx, "StartExposure", SizeOnlyHeader)
	require.NoError(err)

	dst := make([]byte, 4)
	_, err = stream.ReadFrame(ctx, dst, Depth16)
	require.ErrorIs(err, ErrBufferTooSmall)

	info, err := stream.ReadFrame(ctx, dst, Depth16)
	require.NoError(err)
	require.Equal(2, info.Samples)
	require.Equal(xpadtest.EncodeSamples16([]uint16{1, 2}), dst)

	_, err = stream.Finish(ctx)
	require.NoError(err)
	require.Equal(int32(2), acks.Load())
}

func TestExposureStream_FinishDrainsFrames(t *testing.T) {
	require := require.New(t)

	frame := []uint32{5, 6, 7}

	var acks atomic.Int32
	srv := xpadtest.NewServer(t)
	srv.Handle("StartExposure", exposureHandler([][]uint32{frame, frame, frame}, true, &acks))
	srv.Handle("AskReady", xpadtest.ReplyInt(0))

	c := newTestClient(t, srv)
	ctx := context.Background()

	stream, err := c.StartExposure(ctx, "StartExposure", GeometryHeader)
	require.NoError(err)

	dst := make([]byte, 6)
	_, err = stream.ReadFrame(ctx, dst, Depth16)
	require.NoError(err)

	rc, err := stream.Finish(ctx)
	require.NoError(err)
	require.Equal(0, rc)
	require.Equal(int32(3), acks.Load())

	_, err = stream.Finish(ctx)
	require.ErrorIs(err, ErrNotConnected)

	require.NoError(c.SendWait(ctx, "AskReady"))
}

func TestExposureStream_InvalidSize(t *testing.T) {
	require := require.New(t)

	srv := xpadtest.NewServer(t)
	srv.Handle("StartExposure", func(s *xpadtest.Session, _ []string) {
		s.Uint32(7)
		s.Write([]byte{1, 2, 3, 4, 5, 6, 7})
	})

	c := newTestClient(t, srv)
	ctx := context.Background()

	stream, err := c.StartExposure(ctx, "StartExposure", SizeOnlyHeader)
	require.NoError(err)

	_, err = stream.ReadFrame(ctx, make([]byte, 64), Depth16)
	require.ErrorIs(err, ErrInvalidTransferSize)
	require.True(IsConnFault(err))
	require.False(c.IsConnected())

	_, err = stream.Finish(ctx)
	require.ErrorIs(err, ErrNotConnected)
}

func TestExposureStream_BlocksOtherExchanges(t *testing.T) {
	require := require.New(t)

	var acks atomic.Int32
	srv := xpadtest.NewServer(t)
	srv.Handle("StartExposure", exposureHandler([][]uint32{{1}}, false, &acks))
	srv.Handle("AskReady", xpadtest.ReplyInt(0))

	c := newTestClient(t, srv)
	ctx := context.Background()

	stream, err := c.StartExposure(ctx, "StartExposure", SizeOnlyHeader)
	require.NoError(err)

	done := make(chan error, 1)
	go func() { done <- c.SendWait(ctx, "AskReady") }()

	select {
	case <-done:
		t.Fatal("exchange ran while the exposure stream owned the connection")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = stream.Finish(ctx)
	require.NoError(err)
	require.NoError(<-done)
}

func TestClient_SendFile(t *testing.T) {
	require := require.New(t)

	blob := bytes.Repeat([]byte("0 1 2 3\n"), 100)
	received := make(chan []byte, 1)

	srv := xpadtest.NewServer(t)
	srv.Handle("LoadConfigGFromFile", func(s *xpadtest.Session, _ []string) {
		data, err := s.ReadBlob()
		if err != nil {
			s.Int(-1)
			return
		}
		received <- data
		s.Int(0)
	})

	c := newTestClient(t, srv)
	require.NoError(c.SendFile(context.Background(), "LoadConfigGFromFile", blob))
	require.Equal(blob, <-received)
	require.Equal(uint64(len(blob)), c.Metrics().BulkBytesSent.Load())
}

func TestClient_SendFileTooLarge(t *testing.T) {
	require := require.New(t)

	srv := xpadtest.NewServer(t)
	c := newTestClient(t, srv, WithMaxTransferSize(16))

	err := c.SendFile(context.Background(), "LoadConfigLFromFile", make([]byte, 17))
	require.ErrorIs(err, ErrInvalidTransferSize)
	require.Empty(srv.Commands())
}

func TestClient_ReceiveFile(t *testing.T) {
	require := require.New(t)

	blob := bytes.Repeat([]byte{0xAB, 0xCD, 0x00, 0x11}, 50000)
	acked := make(chan bool, 1)

	srv := xpadtest.NewServer(t)
	srv.Handle("ReadConfigL", func(s *xpadtest.Session, _ []string) {
		acked <- s.Blob(blob)
		s.Int(0)
	})

	c := newTestClient(t, srv)

	var buf bytes.Buffer
	n, err := c.ReceiveFile(context.Background(), "ReadConfigL", &buf)
	require.NoError(err)
	require.Equal(len(blob), n)
	require.Equal(blob, buf.Bytes())
	require.True(<-acked)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestClient_ReceiveFileWriterError(t *testing.T) {
	require := require.New(t)

	srv := xpadtest.NewServer(t)
	srv.Handle("ReadConfigL", func(s *xpadtest.Session, _ []string) {
		s.Blob([]byte("abcdef"))
		s.Int(0)
	})
	srv.Handle("AskReady", xpadtest.ReplyInt(0))

	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.ReceiveFile(ctx, "ReadConfigL", failingWriter{})
	require.ErrorContains(err, "disk full")
	require.True(c.IsConnected())
	require.NoError(c.SendWait(ctx, "AskReady"))
}

func TestClient_DataPort(t *testing.T) {
	require := require.New(t)

	samples := []uint16{1, 2, 3, 65535}
	portCh := make(chan int, 1)

	srv := xpadtest.NewServer(t)
	srv.Handle("Port", func(s *xpadtest.Session, args []string) {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			s.Int(-1)
			return
		}
		portCh <- port
		s.Int(0)
	})

	c := newTestClient(t, srv, WithDataPortAcceptTimeout(2*time.Second))
	ctx := context.Background()

	dst := make([]byte, 8)
	_, err := c.ReadDataPortFrame(ctx, dst, 4, Depth16)
	require.ErrorIs(err, ErrDataPortNotReady)

	port, err := c.InitDataPort(ctx)
	require.NoError(err)
	require.Equal(port, <-portCh)
	require.Equal(port, c.DataPort())

	go func() { _ = xpadtest.DialDataPort(port, xpadtest.EncodeSamples16(samples)) }()

	n, err := c.ReadDataPortFrame(ctx, dst, len(samples), Depth16)
	require.NoError(err)
	require.Equal(8, n)
	require.Equal(xpadtest.EncodeSamples16(samples), dst)

	require.NoError(c.Close())
	require.Equal(0, c.DataPort())
}

func TestClient_DataPortAcceptTimeout(t *testing.T) {
	require := require.New(t)

	srv := xpadtest.NewServer(t)
	srv.Handle("Port", xpadtest.ReplyInt(0))

	c := newTestClient(t, srv, WithDataPortAcceptTimeout(50*time.Millisecond))
	ctx := context.Background()

	_, err := c.InitDataPort(ctx)
	require.NoError(err)

	_, err = c.ReadDataPortFrame(ctx, make([]byte, 8), 4, Depth16)
	var cerr *ConnError
	require.ErrorAs(err, &cerr)
	require.True(cerr.Timeout())

	// the command connection is not affected
	require.True(c.IsConnected())
}
