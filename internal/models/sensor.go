package models

import "time"

// Sensor represents one sensing point feeding data points into the system
type Sensor struct {
	SensorID     string    `json:"sensor_id"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
	Frames       uint64    `json:"frames"`
}

// DataPoint is one acquisition frame received for a sensor.
// Reset marks a control message that clears the sensor's detector state.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	SensorID  string    `json:"sensor_id"`
	Values    []float64 `json:"values"`
	Reset     bool      `json:"reset,omitempty"`
}

// DataPointPayload is the JSON form of a data point on the wire
type DataPointPayload struct {
	Values []float64 `json:"values"`
}
