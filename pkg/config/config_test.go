package config

import (
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwangde/pulsed-power-ml/internal/ml"
	"github.com/zwangde/pulsed-power-ml/internal/nilm"
)

func testModel() *ml.Model {
	return &ml.Model{
		Appliances: []ml.ApplianceSpec{{Name: "Kettle", ApparentPower: 1800}},
		Features:   [][]float64{{50, 12, 3}, {50, -12, 3}},
		Classes:    []int{0, 1},
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "nilm/+/datapoint", cfg.MQTTTopicDataPoint)
	assert.Equal(t, "nilm/{sensor_id}/state", cfg.MQTTTopicState)
	assert.Equal(t, 10, cfg.WindowSize)
	assert.Equal(t, "apparent_power", cfg.SpectrumType)
	assert.Equal(t, 10*time.Second, cfg.SnapshotInterval)
	assert.False(t, cfg.PhysicalValidation)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("NILM_WINDOW_SIZE", "4")
	t.Setenv("NILM_SWITCH_THRESHOLD", "40.5")
	t.Setenv("NILM_PHYSICAL_VALIDATION", "true")
	t.Setenv("NILM_SPECTRUM_TYPE", "current")
	t.Setenv("NILM_STEP_SIZE", "two")
	t.Setenv("SNAPSHOT_INTERVAL_SECONDS", "3")

	cfg := Load()
	assert.Equal(t, 4, cfg.WindowSize)
	assert.Equal(t, 40.5, cfg.SwitchThreshold)
	assert.True(t, cfg.PhysicalValidation)
	assert.Equal(t, 1, cfg.StepSize, "unparsable values fall back to the default")
	assert.Equal(t, 3*time.Second, cfg.SnapshotInterval)

	detector, err := cfg.DetectorConfig(testModel())
	require.NoError(t, err)
	assert.Equal(t, 4, detector.WindowSize)
	assert.True(t, detector.PhysicalValidation)
	assert.Equal(t, nilm.SpectrumCurrent, detector.SpectrumType)
	assert.Equal(t, 1, detector.MaxPeaks)
	require.Len(t, detector.Appliances, 1)
	assert.Equal(t, 1800.0, detector.Appliances[0].ApparentPower)
}

func TestDetectorConfigErrors(t *testing.T) {
	cfg := Load()
	cfg.SpectrumType = "phase"
	_, err := cfg.DetectorConfig(testModel())
	assert.True(t, errors.Is(err, nilm.ErrInvalidConfig))

	cfg = Load()
	cfg.StepSize = 100
	_, err = cfg.DetectorConfig(testModel())
	assert.True(t, errors.Is(err, nilm.ErrInvalidConfig))
}

func TestConfigureLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	defer log.SetFormatter(log.StandardLogger().Formatter)

	cfg := Load()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	require.NoError(t, cfg.ConfigureLogging())
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	cfg.LogFormat = "xml"
	assert.Error(t, cfg.ConfigureLogging())

	cfg.LogLevel = "loud"
	assert.Error(t, cfg.ConfigureLogging())
}

func TestLocation(t *testing.T) {
	cfg := Load()
	cfg.UsageTimezone = "UTC"
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	cfg.UsageTimezone = "Mars/Olympus"
	_, err = cfg.Location()
	assert.Error(t, err)
}
