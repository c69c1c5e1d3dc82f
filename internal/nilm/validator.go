package nilm

import (
	"errors"
	"fmt"
)

// Reasons a physical validation check is refused.
var (
	ErrApplianceIndex = errors.New("appliance index out of range")
	ErrAlreadyOn      = errors.New("appliance is already on")
	ErrAlreadyOff     = errors.New("appliance is already off")
	ErrCheckPending   = errors.New("a validation check is already pending")
	ErrNotSwitch      = errors.New("event is not a switch of a known appliance")
)

// Verdict is the resolved outcome of a validation check.
type Verdict struct {
	Event       Event
	PowerBefore float64
	PowerAfter  float64
	Delta       float64
	Expected    float64
	Accepted    bool
}

type pendingCheck struct {
	event       Event
	powerBefore float64
	countdown   int
	elapsed     int
}

// Validator checks, some frames after a switch was applied, that the measured
// apparent power changed by about the appliance's nominal draw. At most one
// check is pending at a time.
type Validator struct {
	windowSize int
	tolerance  float64
	appliances []Appliance
	pending    *pendingCheck
}

func NewValidator(windowSize int, tolerance float64, appliances []Appliance) *Validator {
	return &Validator{
		windowSize: windowSize,
		tolerance:  tolerance,
		appliances: appliances,
	}
}

// Pending reports whether a check is in progress.
func (v *Validator) Pending() bool { return v.pending != nil }

// SettlingFrames is the number of frames waited before measuring the power
// after a switch of appliance i.
func (v *Validator) SettlingFrames(i int) int {
	if n := v.appliances[i].SettlingFrames; n > 0 {
		return n
	}
	if i == 0 {
		return 10 * v.windowSize
	}
	return 5 * v.windowSize
}

// Begin starts a check for e. The caller applies e to the state vector only
// when Begin returns nil.
func (v *Validator) Begin(e Event, state *StateVector, history *PowerHistory) error {
	if e.Kind != EventSwitchOn && e.Kind != EventSwitchOff {
		return ErrNotSwitch
	}
	if e.Appliance < 0 || e.Appliance >= len(v.appliances) {
		return fmt.Errorf("appliance %d: %w", e.Appliance, ErrApplianceIndex)
	}
	if e.Kind == EventSwitchOn && state.IsOn(e.Appliance) {
		return fmt.Errorf("appliance %d: %w", e.Appliance, ErrAlreadyOn)
	}
	if e.Kind == EventSwitchOff && !state.IsOn(e.Appliance) {
		return fmt.Errorf("appliance %d: %w", e.Appliance, ErrAlreadyOff)
	}
	if v.pending != nil {
		return fmt.Errorf("appliance %d while checking %s: %w", e.Appliance, v.pending.event, ErrCheckPending)
	}

	v.pending = &pendingCheck{
		event:       e,
		powerBefore: history.MeanOldest(v.windowSize),
		countdown:   v.SettlingFrames(e.Appliance),
	}
	return nil
}

// Tick advances a pending check by one frame. When the countdown expires it
// measures the power after the switch, rolls the state vector back if the
// delta is implausible, and returns the verdict. Otherwise it returns nil.
func (v *Validator) Tick(state *StateVector, history *PowerHistory, total float64) *Verdict {
	if v.pending == nil {
		return nil
	}
	v.pending.elapsed++
	if v.pending.elapsed < v.pending.countdown {
		return nil
	}

	p := v.pending
	v.pending = nil

	nominal := v.appliances[p.event.Appliance].ApparentPower
	after := history.MeanNewest(v.windowSize)
	delta := after - p.powerBefore
	if p.event.Kind == EventSwitchOff {
		delta = p.powerBefore - after
	}

	verdict := &Verdict{
		Event:       p.event,
		PowerBefore: p.powerBefore,
		PowerAfter:  after,
		Delta:       delta,
		Expected:    nominal,
		Accepted:    v.inRange(delta, nominal),
	}
	if !verdict.Accepted {
		if p.event.Kind == EventSwitchOn {
			state.Set(p.event.Appliance, 0)
		} else {
			state.Set(p.event.Appliance, nominal)
		}
		state.RecomputeUnknown(total)
	}
	return verdict
}

func (v *Validator) inRange(delta, nominal float64) bool {
	margin := nominal * v.tolerance
	return delta >= nominal-margin && delta <= nominal+margin
}

// Clear drops any pending check.
func (v *Validator) Clear() {
	v.pending = nil
}
