package nilm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpectrumWindowNewestFirst(t *testing.T) {
	w := NewSpectrumWindow(2, 1)
	require.Equal(t, 6, w.Len())

	for i := 1; i <= 7; i++ {
		w.Push([]float64{float64(i)})
	}
	assert.Equal(t, 6, w.Count())
	assert.True(t, w.Full())
	for i := 0; i < 6; i++ {
		assert.Equal(t, float64(7-i), w.At(i)[0])
	}
}

func TestSpectrumWindowPushCopies(t *testing.T) {
	w := NewSpectrumWindow(1, 2)
	in := []float64{1, 2}
	w.Push(in)
	in[0] = 99
	assert.Equal(t, []float64{1, 2}, w.At(0))
}

func TestSpectrumWindowShiftsBeforeFull(t *testing.T) {
	w := NewSpectrumWindow(2, 1)
	w.Push([]float64{1})
	w.Push([]float64{2})
	assert.Equal(t, 2, w.Count())
	assert.False(t, w.Full())
	assert.Equal(t, 2.0, w.At(0)[0])
	assert.Equal(t, 1.0, w.At(1)[0])
	assert.Equal(t, 0.0, w.At(5)[0])
}

func TestSpectrumWindowRegionMeans(t *testing.T) {
	w := NewSpectrumWindow(2, 2)
	// Oldest first: background 1,2  signal 3,4  classification 5,6
	for i := 1; i <= 6; i++ {
		w.Push([]float64{float64(i), float64(10 * i)})
	}
	dst := make([]float64, 2)
	assert.Equal(t, []float64{5.5, 55}, w.ClassificationMean(dst))
	assert.Equal(t, []float64{3.5, 35}, w.SignalMean(dst))
	assert.Equal(t, []float64{1.5, 15}, w.BackgroundMean(dst))
}

func TestSpectrumWindowMeanPropagatesInfinity(t *testing.T) {
	w := NewSpectrumWindow(1, 1)
	w.Push([]float64{math.Inf(-1)})
	w.Push([]float64{1})
	dst := make([]float64, 1)
	assert.True(t, math.IsInf(w.SignalMean(dst)[0], -1))
}

func TestSpectrumWindowPauseAndClear(t *testing.T) {
	w := NewSpectrumWindow(2, 1)
	for i := 0; i < 6; i++ {
		w.Push([]float64{3})
	}
	w.Pause(1)
	assert.Equal(t, 5, w.Count())
	assert.False(t, w.Full())
	assert.Equal(t, 3.0, w.At(5)[0], "pausing keeps the buffered frames")

	w.Pause(10)
	assert.Equal(t, 0, w.Count())

	w.Push([]float64{3})
	w.Clear()
	assert.Equal(t, 0, w.Count())
	for i := 0; i < w.Len(); i++ {
		assert.Equal(t, 0.0, w.At(i)[0])
	}
}

func TestPowerHistory(t *testing.T) {
	h := NewPowerHistory(5)
	assert.Equal(t, 0.0, h.Newest())
	assert.Equal(t, 0.0, h.Oldest())
	assert.Equal(t, 0.0, h.MeanNewest(2))

	for i := 1; i <= 3; i++ {
		h.Push(float64(i))
	}
	assert.Equal(t, 3, h.Count())
	assert.Equal(t, 3.0, h.Newest())
	assert.Equal(t, 1.0, h.Oldest())
	assert.Equal(t, 2.5, h.MeanNewest(2))
	assert.Equal(t, 1.5, h.MeanOldest(2))
	assert.Equal(t, 2.0, h.MeanOldest(10))

	for i := 4; i <= 8; i++ {
		h.Push(float64(i))
	}
	assert.Equal(t, 5, h.Count())
	assert.Equal(t, 4.0, h.Oldest())
	assert.Equal(t, 4.5, h.MeanOldest(2))
	assert.Equal(t, 7.5, h.MeanNewest(2))

	h.Clear()
	assert.Equal(t, 0, h.Count())
}
