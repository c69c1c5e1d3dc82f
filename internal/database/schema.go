package database

// SQL schemas for all ClickHouse tables

const (
	// SensorRegistryTableSQL creates the sensor_registry table
	SensorRegistryTableSQL = `
		CREATE TABLE IF NOT EXISTS sensor_registry (
			sensor_id String,
			registered_at DateTime64(3),
			last_seen DateTime64(3),
			frames UInt64
		) ENGINE = ReplacingMergeTree(last_seen)
		ORDER BY sensor_id
	`

	// StateSnapshotsTableSQL creates the nilm_state table
	StateSnapshotsTableSQL = `
		CREATE TABLE IF NOT EXISTS nilm_state (
			timestamp DateTime64(3),
			sensor_id String,
			names Array(String),
			power Array(Float64),
			day_usage Array(Float64),
			week_usage Array(Float64),
			month_usage Array(Float64)
		) ENGINE = MergeTree()
		ORDER BY (sensor_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// SwitchEventsTableSQL creates the nilm_switch_events table
	SwitchEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS nilm_switch_events (
			timestamp DateTime64(3),
			event_id String,
			sensor_id String,
			kind LowCardinality(String),
			appliance_id Int32,
			appliance_name String,
			distances Array(Float64),
			outcome LowCardinality(String),
			reason String,
			apparent_power Float64
		) ENGINE = MergeTree()
		ORDER BY (sensor_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// ValidationsTableSQL creates the nilm_validations table
	ValidationsTableSQL = `
		CREATE TABLE IF NOT EXISTS nilm_validations (
			timestamp DateTime64(3),
			validation_id String,
			sensor_id String,
			kind LowCardinality(String),
			appliance_id Int32,
			appliance_name String,
			power_before Float64,
			power_after Float64,
			delta Float64,
			expected Float64,
			accepted Bool
		) ENGINE = MergeTree()
		ORDER BY (sensor_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		SensorRegistryTableSQL,
		StateSnapshotsTableSQL,
		SwitchEventsTableSQL,
		ValidationsTableSQL,
	}
}
