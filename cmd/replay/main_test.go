package main

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwangde/pulsed-power-ml/internal/ml"
	"github.com/zwangde/pulsed-power-ml/internal/models"
	"github.com/zwangde/pulsed-power-ml/internal/nilm"
)

const bins = 4

func testModel() *ml.Model {
	return &ml.Model{
		Version:    "test",
		Appliances: []ml.ApplianceSpec{{Name: "Kettle", ApparentPower: 1800}, {Name: "Lamp", ApparentPower: 60}},
		Features:   [][]float64{{50, 12, 3}, {150, 8, 1}, {50, -12, 3}},
		Classes:    []int{0, 1, 2},
		NoiseRules: []ml.NoiseRuleSpec{{Event: "off", Appliance: 1, Probe: "newest", Above: 4}},
	}
}

func testConfig(t *testing.T) nilm.Config {
	t.Helper()
	cfg := nilm.DefaultConfig()
	cfg.WindowSize = 2
	cfg.SpectrumLength = bins
	cfg.SampleRate = 1000
	require.NoError(t, testModel().Apply(&cfg))
	return cfg
}

func quiet(power float64) []float64 {
	values := make([]float64, 3*bins+4)
	for i := 0; i < 3*bins; i++ {
		values[i] = 1
	}
	values[3*bins+2] = power
	return values
}

func recording(frames ...[]float64) io.Reader {
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(models.EncodeDataPoint(f))
	}
	return &buf
}

func sentinel() []float64 {
	values := make([]float64, 3*bins+4)
	for i := range values {
		values[i] = -1
	}
	return values
}

func TestReplayCSV(t *testing.T) {
	var out bytes.Buffer
	stats, err := replay(&out, recording(quiet(10), quiet(12), sentinel(), quiet(5)),
		testConfig(t), testModel().Names(), replayOptions{format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.frames)
	assert.Zero(t, stats.events)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "frame,Kettle,Lamp,Unknown,apparent_power,event,outcome", lines[0])
	assert.Equal(t, "0,0,0,10,10,,", lines[1])
	assert.Equal(t, "2,0,0,0,0,,", lines[3])
	assert.Equal(t, "3,0,0,5,5,,", lines[4])
}

func TestReplayJSONLines(t *testing.T) {
	var out bytes.Buffer
	_, err := replay(&out, recording(quiet(10), sentinel()),
		testConfig(t), testModel().Names(), replayOptions{format: "jsonl"})
	require.NoError(t, err)

	dec := json.NewDecoder(&out)
	var first, second jsonFrame
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, []float64{0, 0, 10}, first.Values)
	assert.False(t, first.Reset)
	assert.Equal(t, 1, second.Frame)
	assert.True(t, second.Reset)
}

func TestReplayEventsOnlyQuietStream(t *testing.T) {
	frames := make([][]float64, 10)
	for i := range frames {
		frames[i] = quiet(10)
	}

	var out bytes.Buffer
	stats, err := replay(&out, recording(frames...), testConfig(t), testModel().Names(),
		replayOptions{format: "jsonl", eventsOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 10, stats.frames)
	assert.Empty(t, out.String())
}

func TestReplayErrors(t *testing.T) {
	_, err := replay(io.Discard, recording(quiet(1)), testConfig(t), testModel().Names(), replayOptions{format: "xml"})
	assert.Error(t, err)

	truncated := bytes.NewReader(models.EncodeDataPoint(quiet(1))[:20])
	_, err = replay(io.Discard, truncated, testConfig(t), testModel().Names(), replayOptions{format: "csv"})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	cfg := testConfig(t)
	cfg.WindowSize = 0
	_, err = replay(io.Discard, recording(), cfg, testModel().Names(), replayOptions{format: "csv"})
	assert.ErrorIs(t, err, nilm.ErrInvalidConfig)
}

func TestInspect(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, inspect(&out, testModel()))

	text := out.String()
	assert.Contains(t, text, `model "test": 3 training samples, 3 features (1 peaks)`)
	assert.Contains(t, text, "Kettle")
	assert.Contains(t, text, "samples on=1 off=1")
	assert.Contains(t, text, "noise rule: off(1) when newest power > 4")
}

func TestRootCommandRequiresFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"run"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}
