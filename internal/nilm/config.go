package nilm

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid detector configuration")

// SpectrumType selects which of the three spectra in a data point is classified.
type SpectrumType int

const (
	SpectrumVoltage SpectrumType = iota
	SpectrumCurrent
	SpectrumApparentPower
)

func (t SpectrumType) String() string {
	switch t {
	case SpectrumVoltage:
		return "voltage"
	case SpectrumCurrent:
		return "current"
	case SpectrumApparentPower:
		return "apparent_power"
	default:
		return fmt.Sprintf("spectrum(%d)", int(t))
	}
}

// ParseSpectrumType is the inverse of SpectrumType.String.
func ParseSpectrumType(s string) (SpectrumType, error) {
	for _, t := range []SpectrumType{SpectrumVoltage, SpectrumCurrent, SpectrumApparentPower} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown spectrum type %q: %w", s, ErrInvalidConfig)
}

// Appliance is one entry of the appliance catalog.
type Appliance struct {
	Name          string
	ApparentPower float64 // nominal draw in VA

	// SettlingFrames overrides the physical validation countdown.
	// Zero selects the default (10W for appliance 0, 5W otherwise).
	SettlingFrames int
}

// TrainingSet is the immutable reference set of the nearest-neighbour classifier.
// Features are unscaled; Labels are one-hot rows of width 2N+1.
type TrainingSet struct {
	Features [][]float64
	Labels   [][]float64
}

// Config holds everything a Detector needs. It must not be modified after
// NewDetector has been called with it.
type Config struct {
	// Rolling window
	WindowSize      int     // W, frames per window region
	StepSize        int     // fill counter decrement per transient frame
	SwitchThreshold float64 // dB

	// Data point layout
	SpectrumLength int // F, bins per spectrum
	SampleRate     int
	SpectrumType   SpectrumType
	MaxPeaks       int

	// Classification
	Appliances        []Appliance
	Training          TrainingSet
	Neighbors         int
	DistanceThreshold float64

	// Physical validation
	PhysicalValidation bool
	ToleranceRatio     float64
	NoiseRules         NoiseRules

	Verbose bool

	// Collaborators; nil selects ThresholdSwitchDetector and PeakFeatures.
	SwitchDetector   SwitchDetector
	FeatureExtractor FeatureExtractor
}

// DefaultConfig returns the parameters used by the pulsed power measurement
// setup. Appliances and Training still need to be supplied.
func DefaultConfig() Config {
	return Config{
		WindowSize:        10,
		StepSize:          1,
		SwitchThreshold:   55,
		SpectrumLength:    1 << 16,
		SampleRate:        2_000_000,
		SpectrumType:      SpectrumApparentPower,
		MaxPeaks:          9,
		Neighbors:         3,
		DistanceThreshold: 10,
		ToleranceRatio:    0.1,
	}
}

// DataPointSize is the number of values in one data point: three spectra and
// four trailing scalars.
func (c Config) DataPointSize() int {
	return 3*c.SpectrumLength + 4
}

// FeatureCount is the length of a feature vector, three values per peak.
func (c Config) FeatureCount() int {
	return 3 * c.MaxPeaks
}

// Classes is the width of a one-hot class vector: on and off per appliance plus "other".
func (c Config) Classes() int {
	return 2*len(c.Appliances) + 1
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %d: %w", c.WindowSize, ErrInvalidConfig)
	}
	if c.StepSize <= 0 || c.StepSize > 3*c.WindowSize {
		return fmt.Errorf("step size must be in [1, %d], got %d: %w", 3*c.WindowSize, c.StepSize, ErrInvalidConfig)
	}
	if c.SpectrumLength <= 0 {
		return fmt.Errorf("spectrum length must be positive, got %d: %w", c.SpectrumLength, ErrInvalidConfig)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d: %w", c.SampleRate, ErrInvalidConfig)
	}
	if c.SpectrumType < SpectrumVoltage || c.SpectrumType > SpectrumApparentPower {
		return fmt.Errorf("unknown spectrum type %d: %w", int(c.SpectrumType), ErrInvalidConfig)
	}
	if c.MaxPeaks <= 0 {
		return fmt.Errorf("max peaks must be positive, got %d: %w", c.MaxPeaks, ErrInvalidConfig)
	}
	if len(c.Appliances) == 0 {
		return fmt.Errorf("appliance catalog is empty: %w", ErrInvalidConfig)
	}
	for i, a := range c.Appliances {
		if a.ApparentPower < 0 {
			return fmt.Errorf("appliance %d (%s) has negative apparent power %.2f: %w", i, a.Name, a.ApparentPower, ErrInvalidConfig)
		}
		if a.SettlingFrames < 0 {
			return fmt.Errorf("appliance %d (%s) has negative settling frames: %w", i, a.Name, ErrInvalidConfig)
		}
	}
	if c.Neighbors <= 0 {
		return fmt.Errorf("neighbour count must be positive, got %d: %w", c.Neighbors, ErrInvalidConfig)
	}
	if c.ToleranceRatio < 0 {
		return fmt.Errorf("tolerance ratio must not be negative, got %.3f: %w", c.ToleranceRatio, ErrInvalidConfig)
	}
	for i, f := range c.Training.Features {
		if len(f) != c.FeatureCount() {
			return fmt.Errorf("training sample %d has %d features, expected %d: %w", i, len(f), c.FeatureCount(), ErrInvalidConfig)
		}
	}
	for i, r := range c.NoiseRules {
		if r.Event.Kind == EventOther || r.Event.Appliance < 0 || r.Event.Appliance >= len(c.Appliances) {
			return fmt.Errorf("noise rule %d targets %s, which is not a known switch: %w", i, r.Event, ErrInvalidConfig)
		}
	}
	return nil
}
