package runner

import (
	"sync"
)

const defaultStdoutTailBytes = 1024 * 1024 // 1MB kept in memory per subset process

// tailBuffer keeps only the last N bytes written to it so we can attach a
// representative snippet of output without retaining the entire log in memory.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultStdoutTailBytes
	}
	return &tailBuffer{maxBytes: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.contents)
}

func (b *tailBuffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}

// snippet returns the buffered output, prefixed with a marker when older bytes were dropped
func (b *tailBuffer) snippet() string {
	s := b.String()
	if b.Truncated() {
		return "... (output truncated)\n" + s
	}
	return s
}
