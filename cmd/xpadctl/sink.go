package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arloliu/go-xpad/camera"
)

// fileSink is a BufferManager writing every frame to <dir>/frame_NNNNN.raw.
// The capture stops at the first write error.
type fileSink struct {
	mu       sync.Mutex
	dir      string
	slot     []byte
	writeErr error
}

var _ camera.BufferManager = (*fileSink)(nil)

func newFileSink() *fileSink {
	return &fileSink{dir: "."}
}

func (s *fileSink) setFrameSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slot = make([]byte, size)
}

func (s *fileSink) setDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dir = dir
	s.writeErr = nil
}

func (s *fileSink) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeErr
}

func (s *fileSink) FrameBuffer(_ int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.slot
}

func (s *fileSink) NewFrameReady(info camera.FrameInfo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("frame_%05d.raw", info.FrameNumber))
	if err := os.WriteFile(path, s.slot[:info.Size], 0o644); err != nil { //nolint:gosec
		s.writeErr = fmt.Errorf("write frame %d: %w", info.FrameNumber, err)
		return false
	}

	return true
}
