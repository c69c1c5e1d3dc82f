package nilm

// InputKind discriminates the two kinds of detector input.
type InputKind int

const (
	InputSample InputKind = iota
	InputReset
)

// Input is what a Detector consumes per step: either a data point sample or
// an explicit reset.
type Input struct {
	Kind   InputKind
	Values []float64
}

// Sample wraps one data point.
func Sample(values []float64) Input {
	return Input{Kind: InputSample, Values: values}
}

// ResetSignal returns the control input that clears all detector state.
func ResetSignal() Input {
	return Input{Kind: InputReset}
}

// IsResetSentinel reports whether every value equals exactly -1, the legacy
// in-band reset marker used by the acquisition chain.
func IsResetSentinel(values []float64) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if v != -1 {
			return false
		}
	}
	return true
}

// ParseInput turns raw values from the wire into an Input, mapping the
// sentinel data point to a reset.
func ParseInput(values []float64) Input {
	if IsResetSentinel(values) {
		return ResetSignal()
	}
	return Sample(values)
}
