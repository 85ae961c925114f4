package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
name: "TestPipeline"
host: "127.0.0.1"
port: 8000
log_level: "INFO"
storage:
  db_type: "sqlite"
  db_path: "./test.db"
data_source:
  sources:
    - name: "cg"
      type: "crypto"
      url: "https://example.com"
      symbols: ["BTC"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// -----------------------------------------------------------------------------

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "TestPipeline", cfg.Name)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, 0.5, cfg.Resilience.Breaker.FailureRateThreshold)
	assert.Equal(t, 3, cfg.Resilience.Retry.MaxAttempts)
	assert.Equal(t, 1000, cfg.Broadcast.MaxConnections)
	assert.Equal(t, 5.0, cfg.Processor.SignificantChangeThreshold)
	assert.Equal(t, 30, cfg.DataSource.CryptoIntervalSeconds)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestNewConfigInvalidYAML(t *testing.T) {
	_, err := NewConfig(writeConfig(t, "name: [unclosed"))
	assert.Error(t, err)
}

func TestValidateRejectsBadPort(t *testing.T) {
	bad := `
name: "TestPipeline"
host: "127.0.0.1"
port: 80
log_level: "INFO"
storage:
  db_type: "sqlite"
  db_path: "./test.db"
data_source:
  sources:
    - name: "cg"
      type: "crypto"
      symbols: ["BTC"]
`
	_, err := NewConfig(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestValidateRejectsUnknownSourceType(t *testing.T) {
	bad := `
name: "TestPipeline"
host: "127.0.0.1"
port: 8000
storage:
  db_type: "sqlite"
  db_path: "./test.db"
data_source:
  sources:
    - name: "cg"
      type: "forex"
      symbols: ["EURUSD"]
`
	_, err := NewConfig(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestValidateRejectsMarketWithoutTimezone(t *testing.T) {
	bad := minimalYAML + `
markets:
  nyse:
    open: "09:30"
    close: "16:00"
`
	_, err := NewConfig(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(path))

	reloaded, err := NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, reloaded.Name)
	assert.Equal(t, cfg.Cache.MaxEntries, reloaded.Cache.MaxEntries)
}
