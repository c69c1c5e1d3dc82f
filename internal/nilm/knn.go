package nilm

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNaNDistance is returned when a nearest neighbour distance is NaN, which
// happens for degenerate feature vectors. The classification must be ignored.
var ErrNaNDistance = errors.New("nan distance among nearest neighbours")

// Classifier is a distance weighted k-nearest-neighbour vote over a fixed
// training set. It is immutable after construction and safe for concurrent use.
type Classifier struct {
	samples   [][]float64 // scaled training features
	labels    []int       // class index per sample
	scale     []float64
	k         int
	threshold float64
	classes   int
}

// Classification is the outcome of one Classify call.
type Classification struct {
	Distances []float64 // the k smallest distances, ascending
	Neighbors []int     // training sample index per distance
	Class     int
}

// OneHot expands the class index into a vector of the given width.
func (c Classification) OneHot(width int) []float64 {
	v := make([]float64, width)
	if c.Class >= 0 && c.Class < width {
		v[c.Class] = 1
	}
	return v
}

// NewClassifier validates the training set and precomputes the per-feature
// scale (maximum absolute value) and the scaled training features.
// Labels must be one-hot rows of width 2*appliances+1.
func NewClassifier(set TrainingSet, k int, threshold float64, appliances int) (*Classifier, error) {
	if len(set.Features) == 0 {
		return nil, errors.New("training set is empty")
	}
	if len(set.Labels) != len(set.Features) {
		return nil, fmt.Errorf("training set has %d feature rows but %d label rows", len(set.Features), len(set.Labels))
	}
	if k <= 0 || k > len(set.Features) {
		return nil, fmt.Errorf("k must be in [1, %d], got %d", len(set.Features), k)
	}

	width := len(set.Features[0])
	if width == 0 {
		return nil, errors.New("training samples have no features")
	}
	classes := 2*appliances + 1

	scale := make([]float64, width)
	labels := make([]int, len(set.Labels))
	for i, row := range set.Features {
		if len(row) != width {
			return nil, fmt.Errorf("training sample %d has %d features, expected %d", i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("training sample %d feature %d is not finite: %v", i, j, v)
			}
			scale[j] = math.Max(scale[j], math.Abs(v))
		}

		class, err := oneHotIndex(set.Labels[i], classes)
		if err != nil {
			return nil, fmt.Errorf("training label %d: %w", i, err)
		}
		labels[i] = class
	}

	samples := make([][]float64, len(set.Features))
	for i, row := range set.Features {
		samples[i] = scaleFeatures(row, scale)
	}

	return &Classifier{
		samples:   samples,
		labels:    labels,
		scale:     scale,
		k:         k,
		threshold: threshold,
		classes:   classes,
	}, nil
}

func oneHotIndex(row []float64, width int) (int, error) {
	if len(row) != width {
		return -1, fmt.Errorf("has width %d, expected %d", len(row), width)
	}
	class := -1
	for i, v := range row {
		switch v {
		case 0:
		case 1:
			if class >= 0 {
				return -1, errors.New("is not one-hot")
			}
			class = i
		default:
			return -1, fmt.Errorf("has value %v at %d, expected 0 or 1", v, i)
		}
	}
	if class < 0 {
		return -1, errors.New("has no class set")
	}
	return class, nil
}

// scaleFeatures divides by scale, yielding 0 where the scale is 0.
func scaleFeatures(features, scale []float64) []float64 {
	out := make([]float64, len(features))
	for i, v := range features {
		if scale[i] == 0 {
			continue
		}
		out[i] = v / scale[i]
	}
	return out
}

// Scale returns a copy of the per-feature scaling vector.
func (c *Classifier) Scale() []float64 {
	out := make([]float64, len(c.scale))
	copy(out, c.scale)
	return out
}

// Classes is the width of the class vector, 2N+1.
func (c *Classifier) Classes() int { return c.classes }

// Other is the reserved class index for events of no known appliance.
func (c *Classifier) Other() int { return c.classes - 1 }

// Classify finds the k nearest training samples of features.
//
// A zero nearest distance selects that sample's label alone; otherwise labels
// are weighted by inverse distance and the heaviest class wins, lowest index
// first on ties. A nearest distance above the threshold yields Other. Ties in
// distance keep training order, and NaN distances rank first so they always
// surface as ErrNaNDistance.
func (c *Classifier) Classify(features []float64) (Classification, error) {
	if len(features) != len(c.scale) {
		return Classification{}, fmt.Errorf("feature vector has %d values, expected %d", len(features), len(c.scale))
	}

	scaled := scaleFeatures(features, c.scale)
	distances := make([]float64, len(c.samples))
	order := make([]int, len(c.samples))
	for i, sample := range c.samples {
		distances[i] = euclidean(scaled, sample)
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		da, db := distances[order[a]], distances[order[b]]
		if math.IsNaN(da) {
			return !math.IsNaN(db)
		}
		if math.IsNaN(db) {
			return false
		}
		return da < db
	})

	result := Classification{
		Distances: make([]float64, c.k),
		Neighbors: order[:c.k],
		Class:     c.Other(),
	}
	for i, idx := range result.Neighbors {
		result.Distances[i] = distances[idx]
		if math.IsNaN(distances[idx]) {
			return result, ErrNaNDistance
		}
	}

	nearest := result.Distances[0]
	if nearest == 0 {
		result.Class = c.labels[result.Neighbors[0]]
	} else {
		votes := make([]float64, c.classes)
		for i, idx := range result.Neighbors {
			votes[c.labels[idx]] += 1 / result.Distances[i]
		}
		result.Class = argmax(votes)
	}

	if nearest > c.threshold {
		result.Class = c.Other()
	}
	return result, nil
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
