package nilm

// PowerHistory keeps the last 5W apparent power readings, newest first.
type PowerHistory struct {
	values []float64
	head   int
	count  int
}

func NewPowerHistory(capacity int) *PowerHistory {
	return &PowerHistory{values: make([]float64, capacity)}
}

// Push stores the newest reading, evicting the oldest.
func (h *PowerHistory) Push(v float64) {
	n := len(h.values)
	h.head = (h.head - 1 + n) % n
	h.values[h.head] = v
	if h.count < n {
		h.count++
	}
}

// At returns the reading at logical index i, 0 being the newest.
func (h *PowerHistory) At(i int) float64 {
	return h.values[(h.head+i)%len(h.values)]
}

func (h *PowerHistory) Count() int { return h.count }

// Newest returns the latest reading, or 0 when empty.
func (h *PowerHistory) Newest() float64 {
	if h.count == 0 {
		return 0
	}
	return h.At(0)
}

// Oldest returns the oldest reading that has been filled, or 0 when empty.
func (h *PowerHistory) Oldest() float64 {
	if h.count == 0 {
		return 0
	}
	return h.At(h.count - 1)
}

// MeanNewest averages the newest min(n, Count) readings.
func (h *PowerHistory) MeanNewest(n int) float64 {
	if n > h.count {
		n = h.count
	}
	return h.mean(0, n)
}

// MeanOldest averages the oldest min(n, Count) filled readings.
func (h *PowerHistory) MeanOldest(n int) float64 {
	from := h.count - n
	if from < 0 {
		from = 0
	}
	return h.mean(from, h.count)
}

func (h *PowerHistory) mean(from, to int) float64 {
	if to <= from {
		return 0
	}
	var sum float64
	for i := from; i < to; i++ {
		sum += h.At(i)
	}
	return sum / float64(to-from)
}

func (h *PowerHistory) Clear() {
	for i := range h.values {
		h.values[i] = 0
	}
	h.head = 0
	h.count = 0
}
