package audiocapture

import "sync"

// Buffer accumulates PCM frames in arrival order. Append runs on the audio
// driver thread, so the lock is held only for the slice append.
type Buffer struct {
	mu      sync.Mutex
	chunks  [][]int16
	samples int
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{chunks: make([][]int16, 0, 256)}
}

// Append stores a copy of frame. Drivers reuse their frame memory between
// callbacks, so the caller's slice is never retained.
func (b *Buffer) Append(frame []int16) {
	if len(frame) == 0 {
		return
	}
	chunk := make([]int16, len(frame))
	copy(chunk, frame)

	b.mu.Lock()
	b.chunks = append(b.chunks, chunk)
	b.samples += len(chunk)
	b.mu.Unlock()
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

// Chunks returns the number of frames appended so far.
func (b *Buffer) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Drain takes ownership of all buffered frames, leaving the buffer empty,
// and returns them concatenated in arrival order. It returns nil when
// nothing was buffered.
func (b *Buffer) Drain() []int16 {
	b.mu.Lock()
	chunks, total := b.chunks, b.samples
	b.chunks, b.samples = nil, 0
	b.mu.Unlock()

	if total == 0 {
		return nil
	}

	out := make([]int16, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
