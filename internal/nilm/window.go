package nilm

// SpectrumWindow is a ring buffer of 3W spectra. Logical index 0 is the most
// recent frame; the buffer is split into three W-frame regions:
//
//	[0, W)    classification
//	[W, 2W)   signal
//	[2W, 3W)  background
type SpectrumWindow struct {
	size   int // W
	bins   int
	frames [][]float64
	head   int // physical slot of logical index 0
	count  int
}

// NewSpectrumWindow allocates a zeroed window of 3*size frames with bins values each.
func NewSpectrumWindow(size, bins int) *SpectrumWindow {
	frames := make([][]float64, 3*size)
	for i := range frames {
		frames[i] = make([]float64, bins)
	}
	return &SpectrumWindow{size: size, bins: bins, frames: frames}
}

// Push evicts the oldest frame and stores spectrum as the newest one.
// The fill counter grows only while it is below capacity.
func (w *SpectrumWindow) Push(spectrum []float64) {
	n := len(w.frames)
	w.head = (w.head - 1 + n) % n
	copy(w.frames[w.head], spectrum)

	if w.count < n {
		w.count++
	}
}

// At returns the frame at logical index i (0 is newest). The slice is owned by the window.
func (w *SpectrumWindow) At(i int) []float64 {
	return w.frames[(w.head+i)%len(w.frames)]
}

// Len is the fixed capacity 3W.
func (w *SpectrumWindow) Len() int { return len(w.frames) }

// Count is the fill counter.
func (w *SpectrumWindow) Count() int { return w.count }

// Full reports whether enough frames have been seen to classify.
func (w *SpectrumWindow) Full() bool { return w.count >= len(w.frames) }

// Pause moves the fill counter back by step frames without touching the
// buffered spectra.
func (w *SpectrumWindow) Pause(step int) {
	w.count -= step
	if w.count < 0 {
		w.count = 0
	}
}

// Clear zeroes every frame and the fill counter.
func (w *SpectrumWindow) Clear() {
	for _, f := range w.frames {
		for j := range f {
			f[j] = 0
		}
	}
	w.head = 0
	w.count = 0
}

// Mean writes the bin-wise mean of logical frames [from, to) into dst.
func (w *SpectrumWindow) Mean(from, to int, dst []float64) []float64 {
	for j := range dst {
		dst[j] = 0
	}
	for i := from; i < to; i++ {
		for j, v := range w.At(i) {
			dst[j] += v
		}
	}
	n := float64(to - from)
	for j := range dst {
		dst[j] /= n
	}
	return dst
}

func (w *SpectrumWindow) ClassificationMean(dst []float64) []float64 {
	return w.Mean(0, w.size, dst)
}

func (w *SpectrumWindow) SignalMean(dst []float64) []float64 {
	return w.Mean(w.size, 2*w.size, dst)
}

func (w *SpectrumWindow) BackgroundMean(dst []float64) []float64 {
	return w.Mean(2*w.size, 3*w.size, dst)
}
