package monitor

// History is a fixed-capacity FIFO of float samples. Appending beyond capacity
// evicts the oldest value.
type History struct {
	buf   []float64
	start int
	n     int
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]float64, capacity)}
}

func (h *History) Append(v float64) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = v
		h.n++
		return
	}
	h.buf[h.start] = v
	h.start = (h.start + 1) % len(h.buf)
}

func (h *History) Len() int { return h.n }

// Values returns a copy of the buffer, oldest first.
func (h *History) Values() []float64 {
	return h.Tail(h.n)
}

// Tail returns a copy of the newest k values, oldest first.
func (h *History) Tail(k int) []float64 {
	if k > h.n {
		k = h.n
	}
	if k < 0 {
		k = 0
	}
	out := make([]float64, k)
	first := h.start + h.n - k
	for i := range out {
		out[i] = h.buf[(first+i)%len(h.buf)]
	}
	return out
}

func (h *History) Reset() {
	h.start = 0
	h.n = 0
}
