package utils

import "sync"

// TailBuffer is an io.Writer that keeps only the last Max bytes written.
// It is safe for concurrent writers.
type TailBuffer struct {
	Max int

	mu      sync.Mutex
	buf     []byte
	dropped int
}

func (b *TailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Max <= 0 {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}
	if len(p) >= b.Max {
		b.dropped += len(b.buf) + len(p) - b.Max
		b.buf = append(b.buf[:0], p[len(p)-b.Max:]...)
		return len(p), nil
	}
	if over := len(b.buf) + len(p) - b.Max; over > 0 {
		b.dropped += over
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *TailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Dropped is the number of bytes discarded from the front.
func (b *TailBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
