package monitor

// ringBuffer is a fixed-capacity float64 ring used for trend windows.
type ringBuffer struct {
	buf  []float64
	head int
	n    int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]float64, capacity)}
}

func (r *ringBuffer) push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

func (r *ringBuffer) len() int { return r.n }

// lastN returns the most recent n values, oldest first. It returns nil when
// fewer than n values are held.
func (r *ringBuffer) lastN(n int) []float64 {
	if n <= 0 || r.n < n {
		return nil
	}
	out := make([]float64, n)
	start := (r.head - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
