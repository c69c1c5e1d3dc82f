package models

import "time"

// UnknownApplianceName labels the residual power slot of a state vector
const UnknownApplianceName = "Unknown"

// PowerUsage is the published view of a sensor's state: current power per
// appliance and the energy used in the current day, week and month (kWh).
// Field names follow the payload consumed by the NILM dashboard.
type PowerUsage struct {
	SensorID   string    `json:"sensor_id"`
	Names      []string  `json:"names"`
	Values     []float64 `json:"values"`
	Timestamp  int64     `json:"timestamp"` // Unix milliseconds
	DayUsage   []float64 `json:"day_usage"`
	WeekUsage  []float64 `json:"week_usage"`
	MonthUsage []float64 `json:"month_usage"`
}

// Time returns the snapshot timestamp as time.Time
func (p *PowerUsage) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// SwitchEvent records one classified switching event
type SwitchEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	SensorID      string    `json:"sensor_id"`
	Kind          string    `json:"kind"` // on, off, other
	ApplianceID   int       `json:"appliance_id"`
	ApplianceName string    `json:"appliance_name"`
	Distances     []float64 `json:"distances"`
	Outcome       string    `json:"outcome"` // applied, suppressed, rejected, ignored
	Reason        string    `json:"reason,omitempty"`
	ApparentPower float64   `json:"apparent_power"`
}

// Event outcomes
const (
	OutcomeApplied    = "applied"
	OutcomeSuppressed = "suppressed"
	OutcomeRejected   = "rejected"
	OutcomeIgnored    = "ignored"
)

// ValidationRecord records the resolution of a physical plausibility check
type ValidationRecord struct {
	ValidationID  string    `json:"validation_id"`
	Timestamp     time.Time `json:"timestamp"`
	SensorID      string    `json:"sensor_id"`
	Kind          string    `json:"kind"`
	ApplianceID   int       `json:"appliance_id"`
	ApplianceName string    `json:"appliance_name"`
	PowerBefore   float64   `json:"power_before"`
	PowerAfter    float64   `json:"power_after"`
	Delta         float64   `json:"delta"`
	Expected      float64   `json:"expected"`
	Accepted      bool      `json:"accepted"`
}
