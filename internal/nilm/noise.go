package nilm

import (
	"fmt"
	"strings"
)

// PowerProbe selects which power history reading a noise rule looks at.
type PowerProbe int

const (
	ProbeNewest PowerProbe = iota
	ProbeOldest
)

func (p PowerProbe) String() string {
	if p == ProbeOldest {
		return "oldest"
	}
	return "newest"
}

func ParsePowerProbe(s string) (PowerProbe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "newest":
		return ProbeNewest, nil
	case "oldest":
		return ProbeOldest, nil
	}
	return ProbeNewest, fmt.Errorf("unknown power probe %q", s)
}

// NoiseRule discards a classified event when the probed apparent power is
// above a limit. A typical use is an appliance that must read near zero
// before it switches on, or right after it switches off.
type NoiseRule struct {
	Event Event
	Probe PowerProbe
	Above float64
}

func (r NoiseRule) probe(h *PowerHistory) float64 {
	if r.Probe == ProbeOldest {
		return h.Oldest()
	}
	return h.Newest()
}

// Suppresses reports whether the rule discards e given the power history.
func (r NoiseRule) Suppresses(e Event, h *PowerHistory) bool {
	return r.Event == e && r.probe(h) > r.Above
}

func (r NoiseRule) String() string {
	return fmt.Sprintf("%s when %s power > %.2f", r.Event, r.Probe, r.Above)
}

type NoiseRules []NoiseRule

// Match returns the first rule that suppresses e.
func (rs NoiseRules) Match(e Event, h *PowerHistory) (NoiseRule, bool) {
	for _, r := range rs {
		if r.Suppresses(e, h) {
			return r, true
		}
	}
	return NoiseRule{}, false
}
