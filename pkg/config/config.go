package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/zwangde/pulsed-power-ml/internal/ml"
	"github.com/zwangde/pulsed-power-ml/internal/nilm"
)

type Config struct {
	// MQTT Configuration
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	MQTTTopicDataPoint string
	MQTTTopicReset     string
	MQTTTopicState     string
	MQTTRetainState    bool

	// ClickHouse Configuration
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string

	// HTTP API
	HTTPAddr string

	// Reference model (appliance catalog and training set)
	ModelPath string

	// Detector parameters
	WindowSize         int
	StepSize           int
	SwitchThreshold    float64
	SpectrumLength     int
	SampleRate         int
	SpectrumType       string
	Neighbors          int
	DistanceThreshold  float64
	PhysicalValidation bool
	ToleranceRatio     float64
	Verbose            bool

	// Service
	SnapshotInterval time.Duration
	UsageMaxGap      time.Duration
	UsageTimezone    string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	defaults := nilm.DefaultConfig()

	return &Config{
		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "nilm-backend"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		MQTTTopicDataPoint: getEnv("MQTT_TOPIC_DATAPOINT", "nilm/+/datapoint"),
		MQTTTopicReset:     getEnv("MQTT_TOPIC_RESET", "nilm/+/reset"),
		MQTTTopicState:     getEnv("MQTT_TOPIC_STATE", "nilm/{sensor_id}/state"),
		MQTTRetainState:    getEnvBool("MQTT_RETAIN_STATE", true),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "nilm"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		ModelPath: getEnv("MODEL_PATH", "./model/appliances.yaml"),

		WindowSize:         getEnvInt("NILM_WINDOW_SIZE", defaults.WindowSize),
		StepSize:           getEnvInt("NILM_STEP_SIZE", defaults.StepSize),
		SwitchThreshold:    getEnvFloat("NILM_SWITCH_THRESHOLD", defaults.SwitchThreshold),
		SpectrumLength:     getEnvInt("NILM_SPECTRUM_LENGTH", defaults.SpectrumLength),
		SampleRate:         getEnvInt("NILM_SAMPLE_RATE", defaults.SampleRate),
		SpectrumType:       getEnv("NILM_SPECTRUM_TYPE", defaults.SpectrumType.String()),
		Neighbors:          getEnvInt("NILM_NEIGHBORS", defaults.Neighbors),
		DistanceThreshold:  getEnvFloat("NILM_DISTANCE_THRESHOLD", defaults.DistanceThreshold),
		PhysicalValidation: getEnvBool("NILM_PHYSICAL_VALIDATION", false),
		ToleranceRatio:     getEnvFloat("NILM_TOLERANCE_RATIO", defaults.ToleranceRatio),
		Verbose:            getEnvBool("NILM_VERBOSE", false),

		SnapshotInterval: time.Duration(getEnvInt("SNAPSHOT_INTERVAL_SECONDS", 10)) * time.Second,
		UsageMaxGap:      time.Duration(getEnvInt("USAGE_MAX_GAP_SECONDS", 30)) * time.Second,
		UsageTimezone:    getEnv("USAGE_TIMEZONE", "Local"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// DetectorConfig builds the detector configuration from the environment
// parameters and the reference model
func (c *Config) DetectorConfig(model *ml.Model) (nilm.Config, error) {
	spectrumType, err := nilm.ParseSpectrumType(c.SpectrumType)
	if err != nil {
		return nilm.Config{}, err
	}

	cfg := nilm.DefaultConfig()
	cfg.WindowSize = c.WindowSize
	cfg.StepSize = c.StepSize
	cfg.SwitchThreshold = c.SwitchThreshold
	cfg.SpectrumLength = c.SpectrumLength
	cfg.SampleRate = c.SampleRate
	cfg.SpectrumType = spectrumType
	cfg.Neighbors = c.Neighbors
	cfg.DistanceThreshold = c.DistanceThreshold
	cfg.PhysicalValidation = c.PhysicalValidation
	cfg.ToleranceRatio = c.ToleranceRatio
	cfg.Verbose = c.Verbose

	if err := model.Apply(&cfg); err != nil {
		return nilm.Config{}, fmt.Errorf("failed to apply model: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nilm.Config{}, err
	}
	return cfg, nil
}

// Location resolves UsageTimezone for the usage aggregator
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.UsageTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.UsageTimezone, err)
	}
	return loc, nil
}

// ConfigureLogging applies LogLevel and LogFormat to the standard logger
func (c *Config) ConfigureLogging() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	switch c.LogFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q, expected text or json", c.LogFormat)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Warnf("Failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warnf("Failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return floatValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Warnf("Failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}
