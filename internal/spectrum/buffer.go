package spectrum

import "sync"

// DefaultBufferCapacity is the number of recent frames kept for scan requests.
const DefaultBufferCapacity = 5

// Buffer is a fixed-capacity FIFO of recent frames. The oldest frame is
// evicted when a new one arrives at capacity. Frames are copied on the way in
// and on the way out, so neither the producer nor a reader can change a stored
// frame.
type Buffer struct {
	mu       sync.RWMutex
	frames   []Frame
	capacity int
}

// NewBuffer creates a buffer. A non-positive capacity falls back to
// DefaultBufferCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		frames:   make([]Frame, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a frame, evicting the oldest when full.
func (b *Buffer) Push(f Frame) {
	f = f.Clone()
	b.mu.Lock()
	if len(b.frames) == b.capacity {
		copy(b.frames, b.frames[1:])
		b.frames[len(b.frames)-1] = f
	} else {
		b.frames = append(b.frames, f)
	}
	b.mu.Unlock()
}

// Latest returns a snapshot of the newest frame.
func (b *Buffer) Latest() (Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.frames) == 0 {
		return Frame{}, false
	}
	return b.frames[len(b.frames)-1].Clone(), true
}

// Frames returns snapshots of all buffered frames, oldest first.
func (b *Buffer) Frames() []Frame {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Frame, len(b.frames))
	for i, f := range b.frames {
		out[i] = f.Clone()
	}
	return out
}

// Len reports how many frames are buffered.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames)
}

// Cap reports the buffer capacity.
func (b *Buffer) Cap() int { return b.capacity }

// Reset drops every buffered frame.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.frames = b.frames[:0]
	b.mu.Unlock()
}
