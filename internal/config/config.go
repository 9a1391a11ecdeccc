// Package config provides configuration for Engram. Settings load from an
// optional YAML file, then environment variables with the ENGRAM_ prefix
// override, with sensible defaults for everything.
//
// The consolidation thresholds and evidence decay tuning live here on
// purpose: how much evidence promotes an observation is a deployment choice,
// not a constant.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Engram memory engine.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	LLM           LLMConfig           `yaml:"llm"`
	Engine        EngineConfig        `yaml:"engine"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Evidence      EvidenceConfig      `yaml:"evidence"`
	Vector        VectorConfig        `yaml:"vector"`
}

// StorageConfig locates the persisted documents and the conversation log.
type StorageConfig struct {
	// DataPath is the directory holding graph.json, vector.json,
	// skills.json and history.db (default ./data).
	DataPath string `yaml:"data_path"`
}

// LLMConfig configures the external language-model client.
type LLMConfig struct {
	OllamaURL         string  `yaml:"ollama_url"`          // default http://localhost:11434
	Model             string  `yaml:"model"`               // completion model, default qwen2.5:7b
	EmbeddingModel    string  `yaml:"embedding_model"`     // default nomic-embed-text
	TimeoutSeconds    int     `yaml:"timeout_seconds"`     // per-request timeout, default 10
	RequestsPerSecond float64 `yaml:"requests_per_second"` // outbound throttle, default 5
	EmbedCacheSize    int     `yaml:"embed_cache_size"`    // LRU entries, default 512
}

// EngineConfig holds the per-agent construction parameters.
type EngineConfig struct {
	OwnerName           string `yaml:"owner_name"`            // default "user"
	RecentWindowSize    int    `yaml:"recent_window_size"`    // conversation turns, default 10
	RelevantMemoryLimit int    `yaml:"relevant_memory_limit"` // top-K per source, default 5
	ContextBudget       int    `yaml:"context_budget"`        // characters, default 8000
}

// ConsolidationConfig holds the trigger and promotion tuning.
type ConsolidationConfig struct {
	MutationThreshold int `yaml:"mutation_threshold"` // pass after N mutations, default 25
	IntervalMinutes   int `yaml:"interval_minutes"`   // pass after M minutes, default 60
	ReinforceAt       int `yaml:"reinforce_at"`       // evidence to reach reinforced, default 3
	EstablishAt       int `yaml:"establish_at"`       // evidence to reach established, default 6
	StaleAfterDays    int `yaml:"stale_after_days"`   // silence before stale flag, default 30
}

// EvidenceConfig tunes the confidence/weight decay model.
type EvidenceConfig struct {
	HalfLifeDays     int     `yaml:"half_life_days"`    // default 30
	Saturation       float64 `yaml:"saturation"`        // default 1.5
	WeightSaturation float64 `yaml:"weight_saturation"` // default 1.2
}

// VectorConfig selects the recall backend.
type VectorConfig struct {
	// Backend is "document" (default) or "pgvector".
	Backend string `yaml:"backend"`

	// PostgresDSN is required when Backend is pgvector.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDim is the vector width of the embedding model, required by
	// the pgvector schema (default 768, the nomic-embed-text width).
	EmbeddingDim int `yaml:"embedding_dim"`
}

// Load reads configuration: defaults, then the YAML file at path when it
// exists, then ENGRAM_ environment variables. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Optional file.
		default:
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{DataPath: "./data"},
		LLM: LLMConfig{
			OllamaURL:         "http://localhost:11434",
			Model:             "qwen2.5:7b",
			EmbeddingModel:    "nomic-embed-text",
			TimeoutSeconds:    10,
			RequestsPerSecond: 5,
			EmbedCacheSize:    512,
		},
		Engine: EngineConfig{
			OwnerName:           "user",
			RecentWindowSize:    10,
			RelevantMemoryLimit: 5,
			ContextBudget:       8000,
		},
		Consolidation: ConsolidationConfig{
			MutationThreshold: 25,
			IntervalMinutes:   60,
			ReinforceAt:       3,
			EstablishAt:       6,
			StaleAfterDays:    30,
		},
		Evidence: EvidenceConfig{
			HalfLifeDays:     30,
			Saturation:       1.5,
			WeightSaturation: 1.2,
		},
		Vector: VectorConfig{
			Backend:      "document",
			EmbeddingDim: 768,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Storage.DataPath, "ENGRAM_DATA_PATH")
	setString(&cfg.LLM.OllamaURL, "ENGRAM_OLLAMA_URL")
	setString(&cfg.LLM.Model, "ENGRAM_MODEL")
	setString(&cfg.LLM.EmbeddingModel, "ENGRAM_EMBEDDING_MODEL")
	setInt(&cfg.LLM.TimeoutSeconds, "ENGRAM_LLM_TIMEOUT_SECONDS")
	setFloat(&cfg.LLM.RequestsPerSecond, "ENGRAM_LLM_REQUESTS_PER_SECOND")
	setInt(&cfg.LLM.EmbedCacheSize, "ENGRAM_EMBED_CACHE_SIZE")
	setString(&cfg.Engine.OwnerName, "ENGRAM_OWNER_NAME")
	setInt(&cfg.Engine.RecentWindowSize, "ENGRAM_RECENT_WINDOW_SIZE")
	setInt(&cfg.Engine.RelevantMemoryLimit, "ENGRAM_RELEVANT_MEMORY_LIMIT")
	setInt(&cfg.Engine.ContextBudget, "ENGRAM_CONTEXT_BUDGET")
	setInt(&cfg.Consolidation.MutationThreshold, "ENGRAM_CONSOLIDATION_MUTATIONS")
	setInt(&cfg.Consolidation.IntervalMinutes, "ENGRAM_CONSOLIDATION_INTERVAL_MINUTES")
	setInt(&cfg.Consolidation.ReinforceAt, "ENGRAM_REINFORCE_AT")
	setInt(&cfg.Consolidation.EstablishAt, "ENGRAM_ESTABLISH_AT")
	setInt(&cfg.Consolidation.StaleAfterDays, "ENGRAM_STALE_AFTER_DAYS")
	setInt(&cfg.Evidence.HalfLifeDays, "ENGRAM_EVIDENCE_HALF_LIFE_DAYS")
	setFloat(&cfg.Evidence.Saturation, "ENGRAM_EVIDENCE_SATURATION")
	setFloat(&cfg.Evidence.WeightSaturation, "ENGRAM_EVIDENCE_WEIGHT_SATURATION")
	setString(&cfg.Vector.Backend, "ENGRAM_VECTOR_BACKEND")
	setString(&cfg.Vector.PostgresDSN, "ENGRAM_POSTGRES_DSN")
	setInt(&cfg.Vector.EmbeddingDim, "ENGRAM_EMBEDDING_DIM")
}

func setString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setFloat(target *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}
