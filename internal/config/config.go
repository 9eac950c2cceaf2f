// Package config provides configuration management for the memory layer.
// Settings load from environment variables with the MNEMO_ prefix, with
// sensible defaults for every option. An optional YAML file (MNEMO_CONFIG)
// is applied on top of the defaults before the environment is read, so the
// precedence is: defaults < YAML file < environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the mnemo daemon.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	LLM           LLMConfig           `yaml:"llm"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Association   AssociationConfig   `yaml:"association"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Quality       QualityConfig       `yaml:"quality"`
}

// StorageConfig contains database backend configuration.
type StorageConfig struct {
	// Engine selects the backend: sqlite or postgres (default: sqlite).
	Engine string `yaml:"engine"`

	// SQLitePath is the database file path for the sqlite engine.
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresDSN is the connection string for the postgres engine.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LLMConfig contains provider configuration for the evaluator and embedder.
type LLMConfig struct {
	Provider       string `yaml:"provider"`        // ollama or openai (default: ollama)
	OllamaURL      string `yaml:"ollama_url"`      // default: http://localhost:11434
	OllamaModel    string `yaml:"ollama_model"`    // default: qwen2.5:7b
	EmbeddingModel string `yaml:"embedding_model"` // default: nomic-embed-text
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIModel    string `yaml:"openai_model"` // default: gpt-4o-mini
}

// RetrievalConfig contains the relevance scoring weights and limits.
// The four weights are normalized at load time so they always sum to 1.
type RetrievalConfig struct {
	VectorWeight      float64 `yaml:"vector_weight"`      // default: 0.40
	TemporalWeight    float64 `yaml:"temporal_weight"`    // default: 0.25
	AccessWeight      float64 `yaml:"access_weight"`      // default: 0.20
	AssociationWeight float64 `yaml:"association_weight"` // default: 0.15

	// CandidatePool is how many vector-search candidates the scorer ranks.
	CandidatePool int `yaml:"candidate_pool"` // default: 100

	// TopK is the default result count when the caller passes no limit.
	TopK int `yaml:"top_k"` // default: 10
}

// AssociationConfig contains the association graph tuning knobs.
type AssociationConfig struct {
	DecayRate          float64 `yaml:"decay_rate"`           // default: 0.005
	WeakFloor          float64 `yaml:"weak_floor"`           // default: 0.3
	AutoLinkThreshold  float64 `yaml:"auto_link_threshold"`  // default: 0.7
	CoAccessWindowSecs int     `yaml:"co_access_window"`     // default: 300
	CoAccessInitial    float64 `yaml:"co_access_initial"`    // default: 0.6
	CoAccessIncrement  float64 `yaml:"co_access_increment"`  // default: 0.1
	MaxHops            int     `yaml:"max_hops"`             // default: 3
	MinPathStrength    float64 `yaml:"min_path_strength"`    // default: 0.4
	MinHopStrength     float64 `yaml:"min_hop_strength"`     // default: 0.3
	ClusterThreshold   float64 `yaml:"cluster_threshold"`    // default: 0.5
	ClusterMinSize     int     `yaml:"cluster_min_size"`     // default: 3
	OptimizeThreshold  float64 `yaml:"optimize_threshold"`   // default: 0.6
}

// CoAccessWindow returns the co-access window as a duration.
func (c AssociationConfig) CoAccessWindow() time.Duration {
	return time.Duration(c.CoAccessWindowSecs) * time.Second
}

// ConsolidationConfig contains maintenance scheduling and pruning criteria.
type ConsolidationConfig struct {
	Interval            time.Duration `yaml:"interval"`              // default: 1h
	BatchSize           int           `yaml:"batch_size"`            // default: 100
	StrengthenThreshold int           `yaml:"strengthen_threshold"`  // default: 5
	PruneAge            time.Duration `yaml:"prune_age"`             // default: 2160h (~3 months)
	PruneMaxAccess      int           `yaml:"prune_max_access"`      // default: 2
	PruneMaxConfidence  float64       `yaml:"prune_max_confidence"`  // default: 0.3
}

// QualityConfig contains the response quality pipeline settings.
type QualityConfig struct {
	Interval     time.Duration `yaml:"interval"`      // default: 30m
	StartupDelay time.Duration `yaml:"startup_delay"` // default: 30m
	ErrorBackoff time.Duration `yaml:"error_backoff"` // default: 60s
	BatchSize    int           `yaml:"batch_size"`    // default: 20

	// EvaluatorRate is the max evaluator calls per second.
	EvaluatorRate float64 `yaml:"evaluator_rate"` // default: 2

	// CacheSize is the in-process LRU front for the persistent score cache.
	CacheSize int `yaml:"cache_size"` // default: 1024

	// HumanWeight is the multiplier applied to human feedback when fusing
	// the final score: (rt + weight*ht) / (1 + weight).
	HumanWeight float64 `yaml:"human_weight"` // default: 1.5
}

// Load builds the configuration from defaults, the optional YAML file named
// by MNEMO_CONFIG, and MNEMO_-prefixed environment variables, in that order.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("MNEMO_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:     "sqlite",
			SQLitePath: "./data/mnemo.db",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "qwen2.5:7b",
			EmbeddingModel: "nomic-embed-text",
			OpenAIModel:    "gpt-4o-mini",
		},
		Retrieval: RetrievalConfig{
			VectorWeight:      0.40,
			TemporalWeight:    0.25,
			AccessWeight:      0.20,
			AssociationWeight: 0.15,
			CandidatePool:     100,
			TopK:              10,
		},
		Association: AssociationConfig{
			DecayRate:          0.005,
			WeakFloor:          0.3,
			AutoLinkThreshold:  0.7,
			CoAccessWindowSecs: 300,
			CoAccessInitial:    0.6,
			CoAccessIncrement:  0.1,
			MaxHops:            3,
			MinPathStrength:    0.4,
			MinHopStrength:     0.3,
			ClusterThreshold:   0.5,
			ClusterMinSize:     3,
			OptimizeThreshold:  0.6,
		},
		Consolidation: ConsolidationConfig{
			Interval:            time.Hour,
			BatchSize:           100,
			StrengthenThreshold: 5,
			PruneAge:            90 * 24 * time.Hour,
			PruneMaxAccess:      2,
			PruneMaxConfidence:  0.3,
		},
		Quality: QualityConfig{
			Interval:      30 * time.Minute,
			StartupDelay:  30 * time.Minute,
			ErrorBackoff:  60 * time.Second,
			BatchSize:     20,
			EvaluatorRate: 2,
			CacheSize:     1024,
			HumanWeight:   1.5,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("MNEMO_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.SQLitePath = getEnv("MNEMO_SQLITE_PATH", cfg.Storage.SQLitePath)
	cfg.Storage.PostgresDSN = getEnv("MNEMO_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.LLM.Provider = getEnv("MNEMO_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("MNEMO_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.OllamaModel = getEnv("MNEMO_OLLAMA_MODEL", cfg.LLM.OllamaModel)
	cfg.LLM.EmbeddingModel = getEnv("MNEMO_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.OpenAIAPIKey = getEnv("MNEMO_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIModel = getEnv("MNEMO_OPENAI_MODEL", cfg.LLM.OpenAIModel)

	cfg.Retrieval.VectorWeight = getEnvFloat("MNEMO_VECTOR_WEIGHT", cfg.Retrieval.VectorWeight)
	cfg.Retrieval.TemporalWeight = getEnvFloat("MNEMO_TEMPORAL_WEIGHT", cfg.Retrieval.TemporalWeight)
	cfg.Retrieval.AccessWeight = getEnvFloat("MNEMO_ACCESS_WEIGHT", cfg.Retrieval.AccessWeight)
	cfg.Retrieval.AssociationWeight = getEnvFloat("MNEMO_ASSOCIATION_WEIGHT", cfg.Retrieval.AssociationWeight)
	cfg.Retrieval.CandidatePool = getEnvInt("MNEMO_CANDIDATE_POOL", cfg.Retrieval.CandidatePool)
	cfg.Retrieval.TopK = getEnvInt("MNEMO_TOP_K", cfg.Retrieval.TopK)

	cfg.Association.DecayRate = getEnvFloat("MNEMO_DECAY_RATE", cfg.Association.DecayRate)
	cfg.Association.WeakFloor = getEnvFloat("MNEMO_WEAK_FLOOR", cfg.Association.WeakFloor)
	cfg.Association.AutoLinkThreshold = getEnvFloat("MNEMO_AUTO_LINK_THRESHOLD", cfg.Association.AutoLinkThreshold)
	cfg.Association.CoAccessWindowSecs = getEnvInt("MNEMO_CO_ACCESS_WINDOW", cfg.Association.CoAccessWindowSecs)

	cfg.Consolidation.Interval = getEnvDuration("MNEMO_CONSOLIDATION_INTERVAL", cfg.Consolidation.Interval)
	cfg.Consolidation.BatchSize = getEnvInt("MNEMO_CONSOLIDATION_BATCH", cfg.Consolidation.BatchSize)

	cfg.Quality.Interval = getEnvDuration("MNEMO_QUALITY_INTERVAL", cfg.Quality.Interval)
	cfg.Quality.StartupDelay = getEnvDuration("MNEMO_QUALITY_STARTUP_DELAY", cfg.Quality.StartupDelay)
	cfg.Quality.ErrorBackoff = getEnvDuration("MNEMO_QUALITY_ERROR_BACKOFF", cfg.Quality.ErrorBackoff)
	cfg.Quality.BatchSize = getEnvInt("MNEMO_QUALITY_BATCH", cfg.Quality.BatchSize)
	cfg.Quality.HumanWeight = getEnvFloat("MNEMO_QUALITY_HUMAN_WEIGHT", cfg.Quality.HumanWeight)
}

// normalize validates the loaded config and renormalizes the retrieval
// weights so they sum to 1.
func (c *Config) normalize() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.Engine)
	}

	sum := c.Retrieval.VectorWeight + c.Retrieval.TemporalWeight +
		c.Retrieval.AccessWeight + c.Retrieval.AssociationWeight
	if sum <= 0 {
		return fmt.Errorf("config: retrieval weights must sum to a positive value")
	}
	c.Retrieval.VectorWeight /= sum
	c.Retrieval.TemporalWeight /= sum
	c.Retrieval.AccessWeight /= sum
	c.Retrieval.AssociationWeight /= sum

	if c.Quality.HumanWeight < 0 {
		return fmt.Errorf("config: human feedback weight must be non-negative")
	}

	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "30m") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
