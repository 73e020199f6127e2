package pacing

// Window collects wall timestamps of emitted frames and yields one fps
// measurement per full window. Windows do not overlap: a full window is
// replaced by an empty one.
type Window struct {
	size   int
	stamps []float64
}

// NewWindow returns an empty window. Sizes below 2 are raised to 2.
func NewWindow(size int) Window {
	if size < 2 {
		size = 2
	}
	return Window{size: size, stamps: make([]float64, 0, size)}
}

// Len is the number of timestamps in the current window.
func (w *Window) Len() int { return len(w.stamps) }

// Add records t (seconds). When the window fills it returns the measured
// rate and starts a new window.
func (w *Window) Add(t float64) (float64, bool) {
	if w.size == 0 {
		*w = NewWindow(0)
	}
	w.stamps = append(w.stamps, t)
	if len(w.stamps) < w.size {
		return 0, false
	}
	first, last := w.stamps[0], w.stamps[len(w.stamps)-1]
	n := len(w.stamps)
	*w = NewWindow(w.size)
	span := last - first
	if span <= 0 {
		return 0, false
	}
	return float64(n-1) / span, true
}
