package aggregator

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// UsageConfig holds configuration for energy usage integration
type UsageConfig struct {
	MaxGap   time.Duration  // Intervals longer than this are not integrated
	Location *time.Location // Time zone for day/week/month boundaries
}

// DefaultUsageConfig returns default usage configuration
func DefaultUsageConfig() UsageConfig {
	return UsageConfig{
		MaxGap:   30 * time.Second,
		Location: time.Local,
	}
}

// Usage is energy per state vector slot in kWh
type Usage struct {
	Day   []float64
	Week  []float64
	Month []float64
}

// sensorUsage holds the running totals of one sensor
type sensorUsage struct {
	last       time.Time
	lastValues []float64
	day        []float64
	week       []float64
	month      []float64
	dayKey     int
	weekKey    int
	monthKey   int
}

// UsageAggregator integrates state vectors over time into per-appliance
// energy for the current day, ISO week and month of each sensor
type UsageAggregator struct {
	config  UsageConfig
	sensors map[string]*sensorUsage
	mu      sync.RWMutex
}

// NewUsageAggregator creates a new usage aggregator
func NewUsageAggregator(config UsageConfig) *UsageAggregator {
	if config.Location == nil {
		config.Location = time.Local
	}
	return &UsageAggregator{
		config:  config,
		sensors: make(map[string]*sensorUsage),
	}
}

// Update records a state vector (power per slot, VA) observed at ts. The
// power of the previous update is held until ts, so each call adds
// previous power × elapsed hours to the totals. Returns the updated usage.
func (ua *UsageAggregator) Update(sensorID string, ts time.Time, values []float64) Usage {
	ua.mu.Lock()
	defer ua.mu.Unlock()

	s, exists := ua.sensors[sensorID]
	if !exists || len(s.lastValues) != len(values) {
		if exists {
			log.Printf("Usage: slot count for %s changed from %d to %d, restarting totals",
				sensorID, len(s.lastValues), len(values))
		}
		s = &sensorUsage{
			day:   make([]float64, len(values)),
			week:  make([]float64, len(values)),
			month: make([]float64, len(values)),
		}
		ua.sensors[sensorID] = s
		ua.rollover(s, ts)
		s.last = ts
		s.lastValues = append([]float64(nil), values...)
		return s.snapshot()
	}

	ua.rollover(s, ts)

	elapsed := ts.Sub(s.last)
	if elapsed > 0 && elapsed <= ua.config.MaxGap {
		hours := elapsed.Hours()
		for i, p := range s.lastValues {
			kwh := p * hours / 1000
			s.day[i] += kwh
			s.week[i] += kwh
			s.month[i] += kwh
		}
	}

	if ts.After(s.last) {
		s.last = ts
	}
	copy(s.lastValues, values)
	return s.snapshot()
}

// rollover clears any bucket whose period differs from the one containing ts
func (ua *UsageAggregator) rollover(s *sensorUsage, ts time.Time) {
	local := ts.In(ua.config.Location)
	year, week := local.ISOWeek()

	dayKey := local.Year()*1000 + local.YearDay()
	weekKey := year*100 + week
	monthKey := local.Year()*100 + int(local.Month())

	if dayKey != s.dayKey {
		clear(s.day)
		s.dayKey = dayKey
	}
	if weekKey != s.weekKey {
		clear(s.week)
		s.weekKey = weekKey
	}
	if monthKey != s.monthKey {
		clear(s.month)
		s.monthKey = monthKey
	}
}

func (s *sensorUsage) snapshot() Usage {
	return Usage{
		Day:   append([]float64(nil), s.day...),
		Week:  append([]float64(nil), s.week...),
		Month: append([]float64(nil), s.month...),
	}
}

// GetUsage returns the current totals of a sensor
func (ua *UsageAggregator) GetUsage(sensorID string) (Usage, bool) {
	ua.mu.RLock()
	defer ua.mu.RUnlock()

	s, exists := ua.sensors[sensorID]
	if !exists {
		return Usage{}, false
	}
	return s.snapshot(), true
}

// GetAllSensors returns all sensor IDs with usage, sorted
func (ua *UsageAggregator) GetAllSensors() []string {
	ua.mu.RLock()
	defer ua.mu.RUnlock()

	sensors := make([]string, 0, len(ua.sensors))
	for sensorID := range ua.sensors {
		sensors = append(sensors, sensorID)
	}
	sort.Strings(sensors)
	return sensors
}
