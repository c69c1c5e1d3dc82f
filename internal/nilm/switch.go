package nilm

import "math"

// SwitchDetector decides from a difference spectrum (signal mean minus
// background mean, in dB) whether an appliance is switching.
type SwitchDetector func(diff []float64, threshold float64) bool

// ThresholdSwitchDetector reports a switch when any bin changed by more than threshold dB.
func ThresholdSwitchDetector(diff []float64, threshold float64) bool {
	for _, v := range diff {
		if math.Abs(v) > threshold {
			return true
		}
	}
	return false
}
