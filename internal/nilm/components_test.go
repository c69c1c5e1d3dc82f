package nilm

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropperSelectsSpectrumAndPower(t *testing.T) {
	const bins = 3
	values := make([]float64, 3*bins+4)
	for i := 0; i < bins; i++ {
		values[i] = 1          // voltage
		values[bins+i] = 10    // current
		values[2*bins+i] = 100 // apparent power
	}
	values[3*bins+2] = 230.5

	for typ, want := range map[SpectrumType]float64{
		SpectrumVoltage:       30,
		SpectrumCurrent:       40,
		SpectrumApparentPower: 50,
	} {
		spectrum, power, err := Cropper{Type: typ, Length: bins}.Crop(values)
		require.NoError(t, err, typ.String())
		assert.Equal(t, 230.5, power)
		for _, v := range spectrum {
			assert.InDelta(t, want, v, 1e-9, typ.String())
		}
	}

	_, _, err := Cropper{Type: SpectrumVoltage, Length: bins}.Crop(values[:5])
	assert.Error(t, err)
}

func TestToDBm(t *testing.T) {
	out := ToDBm(make([]float64, 3), []float64{1e-3, 1, 0})
	assert.InDelta(t, 0, out[0], 1e-9)
	assert.InDelta(t, 30, out[1], 1e-9)
	assert.True(t, math.IsInf(out[2], -1))
}

func TestParseInput(t *testing.T) {
	assert.Equal(t, InputReset, ParseInput([]float64{-1, -1, -1}).Kind)
	assert.Equal(t, InputSample, ParseInput([]float64{-1, -1, 0}).Kind)
	assert.Equal(t, InputSample, ParseInput(nil).Kind)
	assert.False(t, IsResetSentinel([]float64{-1.0001}))
}

func TestThresholdSwitchDetector(t *testing.T) {
	assert.False(t, ThresholdSwitchDetector([]float64{1, -2, 55}, 55))
	assert.True(t, ThresholdSwitchDetector([]float64{1, -55.5, 3}, 55))
	assert.False(t, ThresholdSwitchDetector([]float64{math.NaN()}, 55))
}

func TestDecodeEvent(t *testing.T) {
	const n = 10
	assert.Equal(t, Event{Kind: EventSwitchOn, Appliance: 0}, DecodeEvent(0, n))
	assert.Equal(t, Event{Kind: EventSwitchOn, Appliance: 9}, DecodeEvent(9, n))
	assert.Equal(t, Event{Kind: EventSwitchOff, Appliance: 0}, DecodeEvent(10, n))
	assert.Equal(t, Event{Kind: EventSwitchOff, Appliance: 4}, DecodeEvent(14, n))
	assert.Equal(t, EventOther, DecodeEvent(20, n).Kind)
	assert.Equal(t, EventOther, DecodeEvent(-1, n).Kind)

	for class := 0; class <= 2*n; class++ {
		assert.Equal(t, class, DecodeEvent(class, n).Class(n))
	}
	assert.Equal(t, "off(4)", DecodeEvent(14, n).String())
}

func TestParseEventKind(t *testing.T) {
	k, err := ParseEventKind("OFF")
	require.NoError(t, err)
	assert.Equal(t, EventSwitchOff, k)
	_, err = ParseEventKind("toggle")
	assert.Error(t, err)
}

func TestStateVectorApply(t *testing.T) {
	appliances := []Appliance{{Name: "a", ApparentPower: 100}, {Name: "b", ApparentPower: 50}}
	s := NewStateVector(2)

	assert.True(t, s.Apply(Event{Kind: EventSwitchOn, Appliance: 1}, appliances))
	assert.True(t, s.IsOn(1))
	assert.False(t, s.Apply(Event{Kind: EventOther, Appliance: -1}, appliances))
	assert.False(t, s.Apply(Event{Kind: EventSwitchOn, Appliance: 2}, appliances))

	s.RecomputeUnknown(170)
	assert.Equal(t, []float64{0, 50, 120}, s.Values())
	s.RecomputeUnknown(20)
	assert.Equal(t, 0.0, s.Unknown())

	assert.True(t, s.Apply(Event{Kind: EventSwitchOff, Appliance: 1}, appliances))
	s.Reset()
	assert.Equal(t, []float64{0, 0, 0}, s.Values())
}

func TestValidatorBeginPreconditions(t *testing.T) {
	appliances := []Appliance{{ApparentPower: 100}, {ApparentPower: 50}}
	v := NewValidator(2, 0.1, appliances)
	s := NewStateVector(2)
	h := NewPowerHistory(10)

	err := v.Begin(Event{Kind: EventSwitchOn, Appliance: 2}, s, h)
	assert.True(t, errors.Is(err, ErrApplianceIndex))
	err = v.Begin(Event{Kind: EventSwitchOff, Appliance: 0}, s, h)
	assert.True(t, errors.Is(err, ErrAlreadyOff))
	err = v.Begin(Event{Kind: EventOther}, s, h)
	assert.True(t, errors.Is(err, ErrNotSwitch))

	s.Set(1, 50)
	err = v.Begin(Event{Kind: EventSwitchOn, Appliance: 1}, s, h)
	assert.True(t, errors.Is(err, ErrAlreadyOn))

	require.NoError(t, v.Begin(Event{Kind: EventSwitchOn, Appliance: 0}, s, h))
	assert.True(t, v.Pending())
	err = v.Begin(Event{Kind: EventSwitchOff, Appliance: 1}, s, h)
	assert.True(t, errors.Is(err, ErrCheckPending))

	v.Clear()
	assert.False(t, v.Pending())
}

func TestValidatorSettlingFrames(t *testing.T) {
	v := NewValidator(10, 0.1, []Appliance{{}, {}, {SettlingFrames: 7}})
	assert.Equal(t, 100, v.SettlingFrames(0))
	assert.Equal(t, 50, v.SettlingFrames(1))
	assert.Equal(t, 7, v.SettlingFrames(2))
}

func TestValidatorToleranceBounds(t *testing.T) {
	v := NewValidator(1, 0.1, []Appliance{{ApparentPower: 100}})
	assert.True(t, v.inRange(90, 100))
	assert.True(t, v.inRange(110, 100))
	assert.False(t, v.inRange(89.9, 100))
	assert.False(t, v.inRange(110.1, 100))
	assert.False(t, v.inRange(math.NaN(), 100))
}

func TestNoiseRules(t *testing.T) {
	h := NewPowerHistory(5)
	h.Push(0.5)
	h.Push(6)

	rules := NoiseRules{
		{Event: Event{Kind: EventSwitchOff, Appliance: 4}, Probe: ProbeNewest, Above: 4},
		{Event: Event{Kind: EventSwitchOn, Appliance: 6}, Probe: ProbeOldest, Above: 1},
	}

	r, ok := rules.Match(Event{Kind: EventSwitchOff, Appliance: 4}, h)
	assert.True(t, ok)
	assert.Equal(t, ProbeNewest, r.Probe)

	_, ok = rules.Match(Event{Kind: EventSwitchOn, Appliance: 6}, h)
	assert.False(t, ok, "oldest reading 0.5 is below the limit")

	_, ok = rules.Match(Event{Kind: EventSwitchOn, Appliance: 4}, h)
	assert.False(t, ok)

	p, err := ParsePowerProbe("Oldest")
	require.NoError(t, err)
	assert.Equal(t, ProbeOldest, p)
	_, err = ParsePowerProbe("middle")
	assert.Error(t, err)
}

func TestPeakFeatures(t *testing.T) {
	spectrum := []float64{0, 2, 10, 2, 0, 12, 20, 12, -5, 1}
	// 1000 Hz sample rate over 10 bins gives 50 Hz per bin.
	f := PeakFeatures(spectrum, 3, len(spectrum), 1000)
	require.Len(t, f, 9)

	assert.Equal(t, []float64{
		100, 10, 50,
		300, 20, 150,
		450, 1, 50,
	}, f)

	f = PeakFeatures(spectrum, 1, len(spectrum), 1000)
	assert.Equal(t, []float64{300, 20, 150}, f, "only the strongest peak is kept")

	f = PeakFeatures([]float64{-1, -2, -3}, 2, 3, 1000)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0}, f)

	f = PeakFeatures([]float64{1, math.NaN(), 1}, 1, 3, 1000)
	for _, v := range f {
		assert.True(t, math.IsNaN(v))
	}
}

func TestParseSpectrumType(t *testing.T) {
	for _, typ := range []SpectrumType{SpectrumVoltage, SpectrumCurrent, SpectrumApparentPower} {
		parsed, err := ParseSpectrumType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
	_, err := ParseSpectrumType("phase")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
