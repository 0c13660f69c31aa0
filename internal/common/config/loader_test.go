package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  sqlite:
    path: /tmp/sessions.db
workers:
  resolve-question:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/sessions.db", cfg.Database.SQLite.Path)
	assert.Equal(t, ProviderGeminiHTTP, cfg.Model.Provider)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model.Model)
	assert.Equal(t, 4, cfg.Model.MaxAttempts)
	assert.Equal(t, 100, cfg.Query.RowCap)
	assert.Equal(t, 1000, cfg.Query.MaxRows)
	assert.Equal(t, 10, cfg.Query.DefaultWindow)
	assert.Equal(t, 14, cfg.Plan.Days)

	w := cfg.Workers["resolve-question"]
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)
	assert.Equal(t, 500*time.Millisecond, GetDuration(cfg.Model.BackoffBaseMs))
}

func TestLoadFromFile_EnvironmentOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "secret-key")
	t.Setenv("LLM_MODEL", "gemini-2.5-flash")
	t.Setenv("SQLITE_PATH", "/data/from-env.db")

	path := writeConfig(t, `
database:
  driver: sqlite
  sqlite:
    path: ${SQLITE_PATH}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Model.APIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model.Model)
	assert.Equal(t, "/data/from-env.db", cfg.Database.SQLite.Path)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "postgres requires host",
			body:    "database:\n  driver: postgres\n",
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "unknown driver",
			body:    "database:\n  driver: mysql\n",
			wantErr: "database.driver must be",
		},
		{
			name:    "unknown provider",
			body:    "database:\n  driver: sqlite\nmodel:\n  provider: openai\n",
			wantErr: "model.provider must be",
		},
		{
			name:    "row cap above max rows",
			body:    "database:\n  driver: sqlite\nquery:\n  row_cap: 5000\n  max_rows: 10\n",
			wantErr: "query.row_cap",
		},
		{
			name:    "cache needs redis",
			body:    "database:\n  driver: sqlite\nsynthesis_cache:\n  enabled: true\n",
			wantErr: "database.redis.address is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_IndependentInstances(t *testing.T) {
	a, err := LoadFromFile(writeConfig(t, "database:\n  driver: sqlite\nquery:\n  row_cap: 50\n"))
	require.NoError(t, err)
	b, err := LoadFromFile(writeConfig(t, "database:\n  driver: sqlite\n"))
	require.NoError(t, err)

	assert.Equal(t, 50, a.Query.RowCap)
	assert.Equal(t, 100, b.Query.RowCap)
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"route-question": {Enabled: false}}}

	assert.False(t, IsWorkerEnabled(cfg, "route-question"))
	assert.True(t, IsWorkerEnabled(cfg, "unknown"))
	assert.Equal(t, 3, GetWorkerConfig(cfg, "unknown").MaxRetries)
}
