package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"

	"github.com/zwangde/pulsed-power-ml/internal/models"
)

// MaxEventLimit caps the number of rows RecentSwitchEvents returns
const MaxEventLimit = 1000

type ClickHouseDB struct {
	conn driver.Conn
}

// Options holds the ClickHouse connection settings
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(ctx context.Context, opts Options) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", opts.Addr)

	db := &ClickHouseDB{conn: conn}
	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// UpsertSensor inserts or updates a sensor in the registry
func (db *ClickHouseDB) UpsertSensor(ctx context.Context, sensor *models.Sensor) error {
	query := `
		INSERT INTO sensor_registry (sensor_id, registered_at, last_seen, frames)
		VALUES (?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		sensor.SensorID,
		sensor.RegisteredAt,
		sensor.LastSeen,
		sensor.Frames,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sensor: %w", err)
	}

	return nil
}

// SaveStateSnapshot saves a state vector with its usage totals
func (db *ClickHouseDB) SaveStateSnapshot(ctx context.Context, usage *models.PowerUsage) error {
	query := `
		INSERT INTO nilm_state (timestamp, sensor_id, names, power, day_usage, week_usage, month_usage)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		usage.Time(),
		usage.SensorID,
		usage.Names,
		usage.Values,
		usage.DayUsage,
		usage.WeekUsage,
		usage.MonthUsage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert state snapshot: %w", err)
	}

	return nil
}

// SaveSwitchEvent saves a classified switching event
func (db *ClickHouseDB) SaveSwitchEvent(ctx context.Context, event *models.SwitchEvent) error {
	query := `
		INSERT INTO nilm_switch_events (timestamp, event_id, sensor_id, kind, appliance_id, appliance_name, distances, outcome, reason, apparent_power)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		event.Timestamp,
		event.EventID,
		event.SensorID,
		event.Kind,
		int32(event.ApplianceID),
		event.ApplianceName,
		event.Distances,
		event.Outcome,
		event.Reason,
		event.ApparentPower,
	)
	if err != nil {
		return fmt.Errorf("failed to insert switch event: %w", err)
	}

	log.WithField("sensor", event.SensorID).Debugf("Saved %s event for %s (%s)",
		event.Kind, event.ApplianceName, event.Outcome)
	return nil
}

// SaveValidation saves the outcome of a physical plausibility check
func (db *ClickHouseDB) SaveValidation(ctx context.Context, record *models.ValidationRecord) error {
	query := `
		INSERT INTO nilm_validations (timestamp, validation_id, sensor_id, kind, appliance_id, appliance_name, power_before, power_after, delta, expected, accepted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		record.Timestamp,
		record.ValidationID,
		record.SensorID,
		record.Kind,
		int32(record.ApplianceID),
		record.ApplianceName,
		record.PowerBefore,
		record.PowerAfter,
		record.Delta,
		record.Expected,
		record.Accepted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert validation: %w", err)
	}

	return nil
}

// RecentSwitchEvents returns the newest switch events of a sensor, newest first
func (db *ClickHouseDB) RecentSwitchEvents(ctx context.Context, sensorID string, limit int) ([]models.SwitchEvent, error) {
	if limit <= 0 || limit > MaxEventLimit {
		limit = MaxEventLimit
	}

	query := `
		SELECT timestamp, event_id, sensor_id, kind, appliance_id, appliance_name, distances, outcome, reason, apparent_power
		FROM nilm_switch_events
		WHERE sensor_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := db.conn.Query(ctx, query, sensorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query switch events: %w", err)
	}
	defer rows.Close()

	events := make([]models.SwitchEvent, 0, limit)
	for rows.Next() {
		var (
			event       models.SwitchEvent
			applianceID int32
		)
		if err := rows.Scan(
			&event.Timestamp,
			&event.EventID,
			&event.SensorID,
			&event.Kind,
			&applianceID,
			&event.ApplianceName,
			&event.Distances,
			&event.Outcome,
			&event.Reason,
			&event.ApparentPower,
		); err != nil {
			return nil, fmt.Errorf("failed to scan switch event: %w", err)
		}
		event.ApplianceID = int(applianceID)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read switch events: %w", err)
	}

	return events, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		log.Println("ClickHouse connection closed")
	}
	return nil
}
