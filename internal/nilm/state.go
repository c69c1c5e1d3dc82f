package nilm

// StateVector holds the estimated power per known appliance followed by one
// slot for power no known appliance explains.
type StateVector struct {
	values []float64
}

// NewStateVector returns an all-zero vector for n known appliances.
func NewStateVector(n int) *StateVector {
	return &StateVector{values: make([]float64, n+1)}
}

// Values returns a copy of the N+1 values.
func (s *StateVector) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

func (s *StateVector) Appliances() int { return len(s.values) - 1 }

func (s *StateVector) Known(i int) float64 { return s.values[i] }

func (s *StateVector) Set(i int, v float64) { s.values[i] = v }

// IsOn reports whether appliance i currently has a non-zero power estimate.
func (s *StateVector) IsOn(i int) bool { return s.values[i] != 0 }

func (s *StateVector) Unknown() float64 { return s.values[len(s.values)-1] }

// Apply writes the effect of e: the nominal power on switch-on, zero on
// switch-off. Other and out-of-range events leave the vector untouched.
// It reports whether the event was applied.
func (s *StateVector) Apply(e Event, appliances []Appliance) bool {
	if e.Appliance < 0 || e.Appliance >= s.Appliances() {
		return false
	}
	switch e.Kind {
	case EventSwitchOn:
		s.values[e.Appliance] = appliances[e.Appliance].ApparentPower
	case EventSwitchOff:
		s.values[e.Appliance] = 0
	default:
		return false
	}
	return true
}

// RecomputeUnknown sets the last slot to max(0, total - sum of known slots).
func (s *StateVector) RecomputeUnknown(total float64) {
	var known float64
	for _, v := range s.values[:len(s.values)-1] {
		known += v
	}
	unknown := total - known
	if !(unknown > 0) {
		unknown = 0
	}
	s.values[len(s.values)-1] = unknown
}

func (s *StateVector) Reset() {
	for i := range s.values {
		s.values[i] = 0
	}
}
