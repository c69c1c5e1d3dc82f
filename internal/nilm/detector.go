package nilm

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
)

// Frame describes what one Step did.
type Frame struct {
	State         []float64 // N+1 values, last slot unknown power
	ApparentPower float64
	Reset         bool

	// WindowFull is set when the window held 3W frames and the switch
	// detector was consulted.
	WindowFull bool
	// Transient is set while a switching event is in progress.
	Transient bool

	// Classification is set when a finished transient was classified.
	Classification *Classification
	Event          *Event // decoded classification, nil if aborted
	Applied        bool   // Event changed the state vector

	Suppressed *NoiseRule // event discarded as noise
	Rejected   error      // validation refused the event
	Verdict    *Verdict   // validation check resolved on this frame
}

// Detector is the streaming switch detector and classifier for one sensing
// point. It is not safe for concurrent use; each stream needs its own.
type Detector struct {
	cfg        Config
	cropper    Cropper
	window     *SpectrumWindow
	history    *PowerHistory
	state      *StateVector
	validator  *Validator
	classifier *Classifier
	detect     SwitchDetector
	extract    FeatureExtractor
	logger     *log.Entry

	transient bool
	base      []float64

	background []float64
	signal     []float64
	diff       []float64
	cleaned    []float64
}

// NewDetector validates cfg and builds a detector with empty state.
// A nil logger logs through the standard logrus logger.
func NewDetector(cfg Config, logger *log.Entry) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	classifier, err := NewClassifier(cfg.Training, cfg.Neighbors, cfg.DistanceThreshold, len(cfg.Appliances))
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %v: %w", err, ErrInvalidConfig)
	}

	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	d := &Detector{
		cfg:        cfg,
		cropper:    Cropper{Type: cfg.SpectrumType, Length: cfg.SpectrumLength},
		window:     NewSpectrumWindow(cfg.WindowSize, cfg.SpectrumLength),
		history:    NewPowerHistory(5 * cfg.WindowSize),
		state:      NewStateVector(len(cfg.Appliances)),
		validator:  NewValidator(cfg.WindowSize, cfg.ToleranceRatio, cfg.Appliances),
		classifier: classifier,
		detect:     cfg.SwitchDetector,
		extract:    cfg.FeatureExtractor,
		logger:     logger,
		base:       make([]float64, cfg.SpectrumLength),
		background: make([]float64, cfg.SpectrumLength),
		signal:     make([]float64, cfg.SpectrumLength),
		diff:       make([]float64, cfg.SpectrumLength),
		cleaned:    make([]float64, cfg.SpectrumLength),
	}
	if d.detect == nil {
		d.detect = ThresholdSwitchDetector
	}
	if d.extract == nil {
		d.extract = PeakFeatures
	}
	return d, nil
}

// Config returns the configuration the detector was built with.
func (d *Detector) Config() Config { return d.cfg }

// State returns a copy of the current state vector.
func (d *Detector) State() []float64 { return d.state.Values() }

// Process runs one raw data point through the detector and returns the state
// vector. An all -1 data point resets the detector.
func (d *Detector) Process(values []float64) ([]float64, error) {
	frame, err := d.Step(ParseInput(values))
	if err != nil {
		return nil, err
	}
	return frame.State, nil
}

// Step consumes one input. The only error is a sample of the wrong length,
// which leaves the detector untouched.
func (d *Detector) Step(in Input) (Frame, error) {
	if in.Kind == InputReset {
		d.Reset()
		return Frame{State: d.state.Values(), Reset: true}, nil
	}

	spectrum, power, err := d.cropper.Crop(in.Values)
	if err != nil {
		return Frame{}, err
	}
	frame := Frame{ApparentPower: power}

	if d.cfg.PhysicalValidation {
		d.history.Push(power)
		if verdict := d.validator.Tick(d.state, d.history, power); verdict != nil {
			frame.Verdict = verdict
			d.logVerdict(verdict)
		}
	}

	if d.cfg.Verbose {
		d.logSpectrum(spectrum)
	}

	d.window.Push(spectrum)
	if !d.window.Full() {
		return d.emit(frame, power), nil
	}
	frame.WindowFull = true

	d.window.BackgroundMean(d.background)
	d.window.SignalMean(d.signal)
	for i := range d.diff {
		d.diff[i] = d.signal[i] - d.background[i]
	}

	switched := d.detect(d.diff, d.cfg.SwitchThreshold)
	if !switched && !d.transient {
		return d.emit(frame, power), nil
	}

	if switched {
		if !d.transient {
			d.transient = true
			copy(d.base, d.background)
			d.logger.Debug("Detector: switching event started")
		}
		d.window.Pause(d.cfg.StepSize)
		frame.Transient = true
		return d.emit(frame, power), nil
	}

	d.classify(&frame)

	d.transient = false
	for i := range d.base {
		d.base[i] = 0
	}
	return d.emit(frame, power), nil
}

func (d *Detector) emit(frame Frame, power float64) Frame {
	d.state.RecomputeUnknown(power)
	frame.State = d.state.Values()
	return frame
}

// classify handles the end of a transient: the classification mean minus
// the latched baseline is classified and the result applied.
func (d *Detector) classify(frame *Frame) {
	d.window.ClassificationMean(d.cleaned)
	for i := range d.cleaned {
		d.cleaned[i] -= d.base[i]
	}

	features := d.extract(d.cleaned, d.cfg.MaxPeaks, d.cfg.SpectrumLength, d.cfg.SampleRate)
	result, err := d.classifier.Classify(features)
	frame.Classification = &result
	if err != nil {
		d.logger.WithError(err).Warn("Detector: classification skipped")
		return
	}

	event := DecodeEvent(result.Class, len(d.cfg.Appliances))
	frame.Event = &event

	if d.cfg.Verbose {
		d.logger.WithFields(log.Fields{
			"features":  features,
			"distances": result.Distances,
			"event":     event.String(),
		}).Info("Detector: classified switching event")
	}

	if event.Kind == EventOther {
		return
	}

	if d.cfg.PhysicalValidation {
		if rule, ok := d.cfg.NoiseRules.Match(event, d.history); ok {
			frame.Suppressed = &rule
			d.logger.Infof("Detector: ignoring %s as noise (%s)", event, rule)
			return
		}
		if err := d.validator.Begin(event, d.state, d.history); err != nil {
			frame.Rejected = err
			d.logger.WithError(err).Warnf("Detector: %s rejected", event)
			return
		}
	}

	frame.Applied = d.state.Apply(event, d.cfg.Appliances)
}

// Reset clears the window, state vector, power history, pending validation
// and any transient in progress.
func (d *Detector) Reset() {
	d.window.Clear()
	d.state.Reset()
	d.history.Clear()
	d.validator.Clear()
	d.transient = false
	for i := range d.base {
		d.base[i] = 0
	}
	d.logger.Info("Detector: state reset")
}

func (d *Detector) logVerdict(v *Verdict) {
	entry := d.logger.WithFields(log.Fields{
		"event":        v.Event.String(),
		"power_before": v.PowerBefore,
		"power_after":  v.PowerAfter,
		"delta":        v.Delta,
		"expected":     v.Expected,
	})
	if v.Accepted {
		entry.Info("Detector: power difference in allowed range")
		return
	}
	entry.Warn("Detector: power difference out of range, rolled back")
}

func (d *Detector) logSpectrum(spectrum []float64) {
	lowest, peak, peakBin := math.Inf(1), math.Inf(-1), 0
	var sum float64
	for i, v := range spectrum {
		sum += v
		lowest = math.Min(lowest, v)
		if v > peak {
			peak, peakBin = v, i
		}
	}
	d.logger.WithFields(log.Fields{
		"peak_bin":  peakBin,
		"peak_dbm":  peak,
		"min_dbm":   lowest,
		"mean_dbm":  sum / float64(len(spectrum)),
		"in_window": d.window.Count(),
		"transient": d.transient,
	}).Info("Detector: frame")
}
