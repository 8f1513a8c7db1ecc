package logging

import (
	"os"
	"sync"
)

// RingBuffer retains the last len(buf) bytes written. SIGUSR1 dumps it as
// a crash-dump file next to the log.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []byte
	total int // bytes ever written; total % len(buf) is the write position
}

// NewRingBuffer holds at most size bytes (4MB when size is not positive).
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 4 << 20
	}
	return &RingBuffer{buf: make([]byte, size)}
}

// Write never fails and never blocks on the reader.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if skip := n - len(rb.buf); skip > 0 {
		rb.total += skip
		p = p[skip:]
	}
	for len(p) > 0 {
		c := copy(rb.buf[rb.total%len(rb.buf):], p)
		p = p[c:]
		rb.total += c
	}
	return n, nil
}

// Len reports how many bytes are currently retained.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return min(rb.total, len(rb.buf))
}

// Bytes returns a copy of the retained bytes, oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.total <= len(rb.buf) {
		return append([]byte(nil), rb.buf[:rb.total]...)
	}
	split := rb.total % len(rb.buf)
	out := make([]byte, 0, len(rb.buf))
	return append(append(out, rb.buf[split:]...), rb.buf[:split]...)
}

func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
