package nilm

import (
	"math"
	"sort"
)

// FeatureExtractor turns a cleaned spectrum (classification mean minus the
// pre-switch baseline) into a feature vector of 3*maxPeaks values.
type FeatureExtractor func(cleaned []float64, maxPeaks, spectrumLength, sampleRate int) []float64

type spectralPeak struct {
	bin       int
	magnitude float64
	width     int // bins above half magnitude
}

// PeakFeatures describes the strongest positive peaks of the cleaned spectrum,
// ordered by frequency, as (frequency Hz, magnitude dB, width Hz) triples.
// Missing peaks are zero. A spectrum containing NaN yields an all-NaN vector.
func PeakFeatures(cleaned []float64, maxPeaks, spectrumLength, sampleRate int) []float64 {
	features := make([]float64, 3*maxPeaks)

	for _, v := range cleaned {
		if math.IsNaN(v) {
			for i := range features {
				features[i] = math.NaN()
			}
			return features
		}
	}

	// Bin spacing of a real spectrum covering [0, sampleRate/2)
	resolution := float64(sampleRate) / float64(2*spectrumLength)

	peaks := findPeaks(cleaned)
	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].magnitude > peaks[j].magnitude
	})
	if len(peaks) > maxPeaks {
		peaks = peaks[:maxPeaks]
	}
	sort.Slice(peaks, func(i, j int) bool {
		return peaks[i].bin < peaks[j].bin
	})

	for i, p := range peaks {
		features[3*i] = float64(p.bin) * resolution
		features[3*i+1] = p.magnitude
		features[3*i+2] = float64(p.width) * resolution
	}
	return features
}

// findPeaks returns local maxima with a positive magnitude.
func findPeaks(spectrum []float64) []spectralPeak {
	var peaks []spectralPeak
	for i, v := range spectrum {
		if v <= 0 || math.IsInf(v, 0) {
			continue
		}
		if i > 0 && spectrum[i-1] >= v {
			continue
		}
		if i < len(spectrum)-1 && spectrum[i+1] > v {
			continue
		}
		peaks = append(peaks, spectralPeak{bin: i, magnitude: v, width: peakWidth(spectrum, i)})
	}
	return peaks
}

func peakWidth(spectrum []float64, bin int) int {
	half := spectrum[bin] / 2
	left, right := bin, bin
	for left > 0 && spectrum[left-1] > half {
		left--
	}
	for right < len(spectrum)-1 && spectrum[right+1] > half {
		right++
	}
	return right - left + 1
}
