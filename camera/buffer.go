package camera

import (
	"sync"

	"github.com/google/uuid"
)

// FrameInfo describes a frame handed to the buffer manager.
type FrameInfo struct {
	// FrameNumber is the zero based index of the frame in the acquisition.
	FrameNumber int
	// RunID identifies the capture job that produced the frame.
	RunID  uuid.UUID
	Width  int
	Height int
	Type   ImageType
	// Size is the number of bytes written to the frame buffer.
	Size int
}

// BufferManager owns frame storage. The camera writes each frame into the
// slot returned by FrameBuffer and reports it with NewFrameReady.
type BufferManager interface {
	// FrameBuffer returns the slot for frame n. The slot must hold a full frame.
	FrameBuffer(n int) []byte
	// NewFrameReady reports a completed frame. Returning false stops the capture.
	NewFrameReady(info FrameInfo) bool
}

// MemoryBuffer is a BufferManager backed by a ring of in-memory slots.
type MemoryBuffer struct {
	mu       sync.Mutex
	slots    [][]byte
	infos    []FrameInfo
	onFrame  func(FrameInfo) bool
	maxInfos int
}

// NewMemoryBuffer returns a buffer of count slots of frameSize bytes.
func NewMemoryBuffer(count int, frameSize int) *MemoryBuffer {
	count = max(count, 1)
	slots := make([][]byte, count)
	for i := range slots {
		slots[i] = make([]byte, frameSize)
	}

	return &MemoryBuffer{slots: slots, maxInfos: 1 << 16}
}

// OnFrame registers fn, called for every completed frame. The capture stops
// when fn returns false.
func (b *MemoryBuffer) OnFrame(fn func(FrameInfo) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.onFrame = fn
}

// FrameBuffer implements BufferManager.
func (b *MemoryBuffer) FrameBuffer(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.slots[n%len(b.slots)]
}

// NewFrameReady implements BufferManager.
func (b *MemoryBuffer) NewFrameReady(info FrameInfo) bool {
	b.mu.Lock()
	if len(b.infos) < b.maxInfos {
		b.infos = append(b.infos, info)
	}
	fn := b.onFrame
	b.mu.Unlock()

	if fn != nil {
		return fn(info)
	}

	return true
}

// Frames returns the frames reported so far.
func (b *MemoryBuffer) Frames() []FrameInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]FrameInfo, len(b.infos))
	copy(out, b.infos)

	return out
}

// Frame returns a copy of the slot holding frame n.
func (b *MemoryBuffer) Frame(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot := b.slots[n%len(b.slots)]
	out := make([]byte, len(slot))
	copy(out, slot)

	return out
}

// Reset forgets the reported frames.
func (b *MemoryBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.infos = b.infos[:0]
}
