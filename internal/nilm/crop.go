package nilm

import (
	"fmt"
	"math"
)

// Cropper extracts the classified spectrum and the total apparent power from a data point.
type Cropper struct {
	Type   SpectrumType
	Length int
}

// Crop returns the selected spectrum converted to dBm and the apparent power
// reading, which is the second to last value of the data point.
func (c Cropper) Crop(values []float64) ([]float64, float64, error) {
	if want := 3*c.Length + 4; len(values) != want {
		return nil, 0, fmt.Errorf("data point has %d values, expected %d", len(values), want)
	}

	start := int(c.Type) * c.Length
	spectrum := ToDBm(make([]float64, c.Length), values[start:start+c.Length])

	return spectrum, values[len(values)-2], nil
}

// ToDBm converts linear magnitudes in src to dBm, writing into dst.
// Formula: dBm = 10 * log10(value) + 30
func ToDBm(dst, src []float64) []float64 {
	for i, v := range src {
		dst[i] = 10*math.Log10(v) + 30
	}
	return dst
}
