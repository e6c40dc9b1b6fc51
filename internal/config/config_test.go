package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journeyd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_PG_DSN", "postgres://journeyd@localhost/journeys")

	cfg, err := Load(writeConfig(t, `
postgres:
  dsn: "${TEST_PG_DSN}"
server:
  http_port: 9090
`))
	require.NoError(t, err)
	assert.Equal(t, "postgres://journeyd@localhost/journeys", cfg.Postgres.DSN)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "journeytrack.events.raw", cfg.Kafka.Topic)
	assert.Equal(t, "journeytrack-sink", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.Batch.Size)
	assert.Equal(t, 5*time.Second, cfg.Batch.FlushInterval)
	assert.Equal(t, 10, cfg.ClickHouse.MaxOpenConns)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/journeyd.yaml")
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "kafka: ["))
	assert.Error(t, err)
}
