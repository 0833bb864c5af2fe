package logic

// window is a fixed-capacity FIFO of distance samples. When full, a push
// overwrites the oldest sample.
// Not safe for concurrent use; the caller synchronizes.
type window struct {
	buf      []float64
	capacity int
	head     int // next write position
	count    int
}

func newWindow(capacity int) *window {
	if capacity < 1 {
		capacity = 1
	}
	return &window{
		buf:      make([]float64, capacity),
		capacity: capacity,
	}
}

func (w *window) push(v float64) {
	// Overwrite oldest when full: head is already pointing at it
	if w.count < w.capacity {
		w.count++
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % w.capacity
}

// mean returns the arithmetic mean of the samples, or 0 when empty.
func (w *window) mean() float64 {
	if w.count == 0 {
		return 0
	}
	var s float64
	for _, v := range w.values() {
		s += v
	}
	return s / float64(w.count)
}

// values returns samples oldest first.
func (w *window) values() []float64 {
	out := make([]float64, w.count)
	start := (w.head - w.count + w.capacity) % w.capacity
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(start+i)%w.capacity]
	}
	return out
}

func (w *window) len() int {
	return w.count
}
