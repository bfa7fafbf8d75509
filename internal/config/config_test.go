package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for k := range defaults {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.ReservationTimeout)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 200, cfg.SweepBatchSize)
	assert.False(t, cfg.MigrateOnStart)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("RESERVATION_TIMEOUT", "45s")
	t.Setenv("SWEEP_INTERVAL", "5s")
	t.Setenv("SWEEP_BATCH_SIZE", "10")
	t.Setenv("MIGRATE_ON_START", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 45*time.Second, cfg.ReservationTimeout)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 10, cfg.SweepBatchSize)
	assert.True(t, cfg.MigrateOnStart)
}

func TestLoad_RejectsNonPositiveDurations(t *testing.T) {
	t.Setenv("RESERVATION_TIMEOUT", "0s")
	t.Setenv("SWEEP_INTERVAL", "-1m")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "RESERVATION_TIMEOUT")
	assert.ErrorContains(t, err, "SWEEP_INTERVAL")
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitCSV([]string{"a,b", " c "}))
	assert.Empty(t, splitCSV([]string{"", " , "}))
}
