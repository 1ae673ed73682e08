package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	// GIVEN: An empty directory and no LEAVE_* variables
	cfg, err := config.Load(t.TempDir())

	// THEN: Defaults apply
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, config.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "leave.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	// GIVEN: A leave.yml selecting postgres and an env override for the port
	dir := t.TempDir()
	yml := `
http:
  port: 9000
database:
  driver: postgres
  dsn: postgres://localhost/leave
kafka:
  brokers: ["k1:9092", "k2:9092"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leave.yml"), []byte(yml), 0o600))
	t.Setenv("LEAVE_HTTP_PORT", "9090")
	t.Setenv("LEAVE_LOG_LEVEL", "debug")

	// WHEN: Loading
	cfg, err := config.Load(dir)

	// THEN: The environment wins over the file
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/leave", cfg.Database.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "leave.requests", cfg.Kafka.Topic)
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: memory\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DriverMemory, cfg.Database.Driver)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"LEAVE_DATABASE_DRIVER": "mysql"}},
		{"bad port", map[string]string{"LEAVE_HTTP_PORT": "70000"}},
		{"bad level", map[string]string{"LEAVE_LOG_LEVEL": "verbose"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load(t.TempDir())
			assert.Error(t, err)
		})
	}
}
