package pipeline

import "sync"

const DefaultTailBytes = 8 * 1024

// TailBuffer is an io.Writer that keeps only the last max bytes written to it.
type TailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func NewTailBuffer(max int) *TailBuffer {
	if max <= 0 {
		max = DefaultTailBytes
	}
	return &TailBuffer{max: max}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	if n >= t.max {
		t.buf = append(t.buf[:0], p[n-t.max:]...)
		t.truncated = true
		return n, nil
	}
	if over := len(t.buf) + n - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

// String returns the retained tail, prefixed with "..." when older output was dropped.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.truncated {
		return "..." + string(t.buf)
	}
	return string(t.buf)
}

func (t *TailBuffer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}
