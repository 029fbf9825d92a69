// Package config provides configuration management for causeway.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 38800

	// DefaultWindowHours is the default incident search window (hours
	// before and after the incident time).
	DefaultWindowHours = 2

	// DefaultMaxHypotheses caps the ranked hypothesis list.
	DefaultMaxHypotheses = 5

	// DefaultKnowledgeLimit is the default knowledge retrieval limit.
	DefaultKnowledgeLimit = 5

	// DefaultCaseLimit is the default historical case retrieval limit.
	DefaultCaseLimit = 3
)

// CaseSimilarityThreshold is the minimum lexical similarity for a
// historical case to count as a precedent. Cases below it are excluded.
const CaseSimilarityThreshold = 0.1

// Config holds the application configuration.
type Config struct {
	// Worker settings
	WorkerPort int `json:"worker_port"`

	// Core database: a PostgreSQL DSN, or a file path for the embedded
	// SQLite fallback when no DSN is configured.
	DatabaseDSN string `json:"database_dsn"`
	DBPath      string `json:"db_path"`
	MaxConns    int    `json:"max_conns"`

	// Operational snapshot database (read-only SQLite replica).
	OpsDBPath string `json:"ops_db_path"`

	// Analysis settings
	WindowHours       int     `json:"window_hours"`
	MaxHypotheses     int     `json:"max_hypotheses"`
	KnowledgeLimit    int     `json:"knowledge_limit"`
	CaseLimit         int     `json:"case_limit"`
	CaseMinSimilarity float64 `json:"case_min_similarity"`

	// Assist (optional OpenAI-compatible API) settings. Empty APIKey
	// disables the assist path entirely; lexical fallbacks still apply.
	AssistAPIKey         string `json:"assist_api_key"`
	AssistBaseURL        string `json:"assist_base_url"`
	AssistModel          string `json:"assist_model"`
	AssistEmbeddingModel string `json:"assist_embedding_model"`
	AssistTimeoutSeconds int    `json:"assist_timeout_seconds"`

	// Maintenance settings. Retention of zero disables pruning.
	MaintenanceEnabled       bool `json:"maintenance_enabled"`
	MaintenanceIntervalHours int  `json:"maintenance_interval_hours"`
	AnalysisRetentionDays    int  `json:"analysis_retention_days"`
	FeedbackRetentionDays    int  `json:"feedback_retention_days"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.causeway).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".causeway")
}

// DBPath returns the default core database file path.
func DBPath() string {
	return filepath.Join(DataDir(), "causeway.db")
}

// OpsDBPath returns the default operational snapshot database path.
func OpsDBPath() string {
	return filepath.Join(DataDir(), "operations.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkerPort:           DefaultWorkerPort,
		DBPath:               DBPath(),
		OpsDBPath:            OpsDBPath(),
		MaxConns:             10,
		WindowHours:          DefaultWindowHours,
		MaxHypotheses:        DefaultMaxHypotheses,
		KnowledgeLimit:       DefaultKnowledgeLimit,
		CaseLimit:            DefaultCaseLimit,
		CaseMinSimilarity:    CaseSimilarityThreshold,
		AssistModel:          "gpt-4o-mini",
		AssistEmbeddingModel: "text-embedding-3-small",
		AssistTimeoutSeconds: 10,

		MaintenanceEnabled:       true,
		MaintenanceIntervalHours: 24,
		AnalysisRetentionDays:    180,
		FeedbackRetentionDays:    365,
	}
}

// Load loads configuration from the settings file, merging with defaults.
// Environment variables override file settings for deployment knobs.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		var settings map[string]any
		if err := json.Unmarshal(data, &settings); err == nil {
			applySettings(cfg, settings)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applySettings(cfg *Config, settings map[string]any) {
	if v, ok := settings["CAUSEWAY_WORKER_PORT"].(float64); ok && v > 0 {
		cfg.WorkerPort = int(v)
	}
	if v, ok := settings["CAUSEWAY_DATABASE_DSN"].(string); ok {
		cfg.DatabaseDSN = v
	}
	if v, ok := settings["CAUSEWAY_DB_PATH"].(string); ok && v != "" {
		cfg.DBPath = v
	}
	if v, ok := settings["CAUSEWAY_OPS_DB_PATH"].(string); ok && v != "" {
		cfg.OpsDBPath = v
	}
	if v, ok := settings["CAUSEWAY_MAX_CONNS"].(float64); ok && v > 0 {
		cfg.MaxConns = int(v)
	}
	if v, ok := settings["CAUSEWAY_WINDOW_HOURS"].(float64); ok && v > 0 {
		cfg.WindowHours = int(v)
	}
	if v, ok := settings["CAUSEWAY_MAX_HYPOTHESES"].(float64); ok && v > 0 {
		cfg.MaxHypotheses = int(v)
	}
	if v, ok := settings["CAUSEWAY_KNOWLEDGE_LIMIT"].(float64); ok && v > 0 {
		cfg.KnowledgeLimit = int(v)
	}
	if v, ok := settings["CAUSEWAY_CASE_LIMIT"].(float64); ok && v > 0 {
		cfg.CaseLimit = int(v)
	}
	if v, ok := settings["CAUSEWAY_CASE_MIN_SIMILARITY"].(float64); ok && v >= 0 && v <= 1 {
		cfg.CaseMinSimilarity = v
	}
	if v, ok := settings["CAUSEWAY_ASSIST_API_KEY"].(string); ok {
		cfg.AssistAPIKey = v
	}
	if v, ok := settings["CAUSEWAY_ASSIST_BASE_URL"].(string); ok {
		cfg.AssistBaseURL = v
	}
	if v, ok := settings["CAUSEWAY_ASSIST_MODEL"].(string); ok && v != "" {
		cfg.AssistModel = v
	}
	if v, ok := settings["CAUSEWAY_ASSIST_EMBEDDING_MODEL"].(string); ok && v != "" {
		cfg.AssistEmbeddingModel = v
	}
	if v, ok := settings["CAUSEWAY_ASSIST_TIMEOUT_SECONDS"].(float64); ok && v > 0 {
		cfg.AssistTimeoutSeconds = int(v)
	}
	if v, ok := settings["CAUSEWAY_MAINTENANCE_ENABLED"].(bool); ok {
		cfg.MaintenanceEnabled = v
	}
	if v, ok := settings["CAUSEWAY_MAINTENANCE_INTERVAL_HOURS"].(float64); ok && v > 0 {
		cfg.MaintenanceIntervalHours = int(v)
	}
	if v, ok := settings["CAUSEWAY_ANALYSIS_RETENTION_DAYS"].(float64); ok && v >= 0 {
		cfg.AnalysisRetentionDays = int(v)
	}
	if v, ok := settings["CAUSEWAY_FEEDBACK_RETENTION_DAYS"].(float64); ok && v >= 0 {
		cfg.FeedbackRetentionDays = int(v)
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CAUSEWAY_WORKER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.WorkerPort = p
		}
	}
	if v := os.Getenv("CAUSEWAY_DATABASE_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("CAUSEWAY_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CAUSEWAY_OPS_DB_PATH"); v != "" {
		cfg.OpsDBPath = v
	}
	if v := os.Getenv("CAUSEWAY_ASSIST_API_KEY"); v != "" {
		cfg.AssistAPIKey = v
	}
	if v := os.Getenv("CAUSEWAY_ASSIST_BASE_URL"); v != "" {
		cfg.AssistBaseURL = v
	}
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
		}
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
