package database

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var tableName = regexp.MustCompile(`CREATE TABLE IF NOT EXISTS (\w+)`)

func TestAllTables(t *testing.T) {
	var names []string
	for _, sql := range AllTables() {
		m := tableName.FindStringSubmatch(sql)
		if assert.Len(t, m, 2, sql) {
			names = append(names, m[1])
		}
	}
	assert.Equal(t, []string{"sensor_registry", "nilm_state", "nilm_switch_events", "nilm_validations"}, names)

	for _, sql := range []string{StateSnapshotsTableSQL, SwitchEventsTableSQL, ValidationsTableSQL} {
		assert.Contains(t, sql, "ORDER BY (sensor_id, timestamp)")
		assert.Contains(t, sql, "PARTITION BY toYYYYMM(timestamp)")
	}
	assert.Contains(t, SensorRegistryTableSQL, "ReplacingMergeTree(last_seen)")
}
