package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and
// applies environment overrides. Each call uses its own viper instance.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return build(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return build(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)
	return v
}

// bindEnvAliases maps the conventional variable names onto config keys.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string][]string{
		"model.api_key":              {"MODEL_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"model.model":                {"MODEL_MODEL", "LLM_MODEL"},
		"model.max_attempts":         {"MODEL_MAX_ATTEMPTS", "LLM_RETRIES"},
		"database.postgres.user":     {"DATABASE_POSTGRES_USER", "DB_USER"},
		"database.postgres.password": {"DATABASE_POSTGRES_PASSWORD", "DB_PASSWORD"},
		"database.driver":            {"DATABASE_DRIVER", "DB_DRIVER"},
	}
	for key, envs := range aliases {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}
}

func build(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "session-insights"
	}
	if cfg.App.Persona == "" {
		cfg.App.Persona = "You are a friendly movement coach for a smart-insole app. " +
			"Keep answers short, practical and encouraging. Never give medical diagnoses."
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "sessions.db"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.Model.Provider == "" {
		cfg.Model.Provider = ProviderGeminiHTTP
	}
	if cfg.Model.BaseURL == "" {
		cfg.Model.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model.Model == "" {
		cfg.Model.Model = "gemini-2.0-flash"
	}
	if cfg.Model.MaxAttempts == 0 {
		cfg.Model.MaxAttempts = 4
	}
	if cfg.Model.BackoffBaseMs == 0 {
		cfg.Model.BackoffBaseMs = 500
	}
	if cfg.Model.BackoffMaxMs == 0 {
		cfg.Model.BackoffMaxMs = 8000
	}
	if cfg.Model.TimeoutMs == 0 {
		cfg.Model.TimeoutMs = 30000
	}

	if cfg.Query.RowCap == 0 {
		cfg.Query.RowCap = 100
	}
	if cfg.Query.MaxRows == 0 {
		cfg.Query.MaxRows = 1000
	}
	if cfg.Query.DefaultWindow == 0 {
		cfg.Query.DefaultWindow = 10
	}
	if cfg.Query.MaxWindow == 0 {
		cfg.Query.MaxWindow = 100
	}
	if cfg.Query.TimeoutMs == 0 {
		cfg.Query.TimeoutMs = 10000
	}
	if cfg.Query.SchemaPath == "" {
		cfg.Query.SchemaPath = "configs/schema.yaml"
	}

	if cfg.SynthesisCache.TTLMs == 0 {
		cfg.SynthesisCache.TTLMs = 3600000
	}
	if cfg.Knowledge.Index == "" {
		cfg.Knowledge.Index = "help-articles"
	}
	if cfg.Knowledge.TopK == 0 {
		cfg.Knowledge.TopK = 4
	}
	if cfg.Plan.Days == 0 {
		cfg.Plan.Days = 14
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "configs/activity-registry.json"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":8080"
	}

	if cfg.Workers == nil {
		cfg.Workers = make(map[string]WorkerConfig)
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case DriverSQLite:
		if cfg.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, cfg.Database.Driver)
	}

	switch cfg.Model.Provider {
	case ProviderGeminiHTTP, ProviderGenAI:
	default:
		return fmt.Errorf("model.provider must be %q or %q, got %q", ProviderGeminiHTTP, ProviderGenAI, cfg.Model.Provider)
	}
	if cfg.Model.MaxAttempts < 1 {
		return fmt.Errorf("model.max_attempts must be at least 1")
	}

	if cfg.Query.RowCap > cfg.Query.MaxRows {
		return fmt.Errorf("query.row_cap (%d) must not exceed query.max_rows (%d)", cfg.Query.RowCap, cfg.Query.MaxRows)
	}
	if cfg.Query.DefaultWindow > cfg.Query.MaxWindow {
		return fmt.Errorf("query.default_window (%d) must not exceed query.max_window (%d)", cfg.Query.DefaultWindow, cfg.Query.MaxWindow)
	}

	if cfg.SynthesisCache.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when synthesis_cache is enabled")
	}
	return nil
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
