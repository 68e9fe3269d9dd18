package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.SLABudget)
	assert.Equal(t, 15*time.Minute, cfg.AssignmentWindow)
	assert.Equal(t, 30, cfg.AssignmentDurationMinutes)
	assert.Equal(t, 7*24*time.Hour, cfg.RecurrenceWindow)
	assert.Equal(t, 30.0, cfg.CriticalDaysThreshold)
	assert.Equal(t, 100, cfg.PredictionLimit)
	assert.True(t, cfg.EscalationProcessPredictions)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SLA_BUDGET", "20m")
	t.Setenv("ESCALATION_INTERVAL", "30s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("CAMPUS_TIMEZONE", "Europe/Berlin")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, cfg.SLABudget)
	assert.Equal(t, 30*time.Second, cfg.EscalationInterval)
	assert.Equal(t, 30*time.Second, cfg.EscalationTickTimeout, "tick timeout follows the interval")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Config{CampusTimezone: "Not/AZone"}.Location())
}
