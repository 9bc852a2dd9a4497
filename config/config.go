// Package config loads opsbrief's process-wide configuration from a YAML
// file, with environment-variable overrides for container deployments. The
// zero value of every knob falls back to the defaults enumerated in the
// system design, so an empty file (or no file at all) yields a working
// configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ActionEngine holds the Action Prioritization Engine thresholds.
type ActionEngine struct {
	TargetOEEPercentage      float64 `yaml:"target_oee_percentage"`
	FinancialLossThreshold   float64 `yaml:"financial_loss_threshold"`
	OEEHighGapThreshold      float64 `yaml:"oee_high_gap_threshold"`
	OEEMediumGapThreshold    float64 `yaml:"oee_medium_gap_threshold"`
	FinancialHighThreshold   float64 `yaml:"financial_high_threshold"`
	FinancialMediumThreshold float64 `yaml:"financial_medium_threshold"`
}

// Cache holds tool response cache knobs. TTLs are expressed in seconds in
// the file ("live_ttl: 60") to match the operational runbooks.
type Cache struct {
	Enabled   *bool `yaml:"enabled"`
	MaxSize   int   `yaml:"max_size"`
	LiveTTL   int   `yaml:"live_ttl"`
	DailyTTL  int   `yaml:"daily_ttl"`
	StaticTTL int   `yaml:"static_ttl"`
}

// Orchestrator holds briefing fan-out budgets, in seconds.
type Orchestrator struct {
	TotalTimeoutSeconds   float64 `yaml:"total_timeout_seconds"`
	PerToolTimeoutSeconds float64 `yaml:"per_tool_timeout_seconds"`
	AreaTimeoutSeconds    float64 `yaml:"area_timeout_seconds"`
	HandoffTimeoutSeconds float64 `yaml:"handoff_timeout_seconds"`
	HandoffPerToolSeconds float64 `yaml:"handoff_per_tool_seconds"`
}

// Grounding holds the validator's confidence bands.
type Grounding struct {
	ThresholdMin  float64 `yaml:"grounding_threshold_min"`
	ThresholdHigh float64 `yaml:"grounding_threshold_high"`
	ThresholdLow  float64 `yaml:"grounding_threshold_low"`
}

// Recommendation holds the recommendation engine's pattern knobs.
type Recommendation struct {
	MinimumDataPoints  int     `yaml:"minimum_data_points"`
	ConfidenceHigh     float64 `yaml:"confidence_high"`
	ConfidenceMedium   float64 `yaml:"confidence_medium"`
	MaxRecommendations int     `yaml:"max_recommendations"`
}

// Config is the full process configuration.
type Config struct {
	ActionEngine   ActionEngine   `yaml:"action_engine"`
	Cache          Cache          `yaml:"cache"`
	Orchestrator   Orchestrator   `yaml:"orchestrator"`
	Grounding      Grounding      `yaml:"grounding"`
	Recommendation Recommendation `yaml:"recommendation"`

	// MongoURI selects the Mongo-backed gateway when set; empty runs against
	// the in-memory fixture gateway.
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`
	// RedisAddr selects the Redis-backed tool response cache when set.
	RedisAddr string `yaml:"redis_addr"`
	// AnthropicModel / OpenAIModel / BedrockModel pick the LLM adapter for
	// narrative generation and claim extraction; all empty disables LLM use
	// (the grounding validator falls back to its heuristic extractor).
	AnthropicModel string `yaml:"anthropic_model"`
	OpenAIModel    string `yaml:"openai_model"`
	BedrockModel   string `yaml:"bedrock_model"`

	// TemporalHostPort enables the recurring-briefing worker (-briefing serve);
	// empty leaves the durable scheduling surface off.
	TemporalHostPort  string `yaml:"temporal_host_port"`
	TemporalNamespace string `yaml:"temporal_namespace"`
	TemporalTaskQueue string `yaml:"temporal_task_queue"`
}

// Default returns the configuration with every knob at its documented
// default.
func Default() Config {
	return Config{
		ActionEngine: ActionEngine{
			TargetOEEPercentage:      85,
			FinancialLossThreshold:   1000,
			OEEHighGapThreshold:      20,
			OEEMediumGapThreshold:    10,
			FinancialHighThreshold:   5000,
			FinancialMediumThreshold: 1000,
		},
		Cache: Cache{
			MaxSize:   1000,
			LiveTTL:   60,
			DailyTTL:  900,
			StaticTTL: 3600,
		},
		Orchestrator: Orchestrator{
			TotalTimeoutSeconds:   30,
			PerToolTimeoutSeconds: 10,
			AreaTimeoutSeconds:    4,
			HandoffTimeoutSeconds: 15,
			HandoffPerToolSeconds: 10,
		},
		Grounding: Grounding{
			ThresholdMin:  0.6,
			ThresholdHigh: 0.8,
			ThresholdLow:  0.3,
		},
		Recommendation: Recommendation{
			MinimumDataPoints:  10,
			ConfidenceHigh:     0.80,
			ConfidenceMedium:   0.60,
			MaxRecommendations: 3,
		},
		TemporalNamespace: "default",
		TemporalTaskQueue: "opsbrief-briefings",
	}
}

// Load reads path as YAML over the defaults. A missing file is not an
// error: the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv applies OPSBRIEF_* environment overrides on top of cfg. Only
// the knobs operators actually flip per deployment are exposed as variables;
// everything else stays file-managed.
func LoadFromEnv(cfg Config) Config {
	if v := os.Getenv("OPSBRIEF_MONGO_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("OPSBRIEF_MONGO_DB"); v != "" {
		cfg.MongoDB = v
	}
	if v := os.Getenv("OPSBRIEF_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("OPSBRIEF_ANTHROPIC_MODEL"); v != "" {
		cfg.AnthropicModel = v
	}
	if v := os.Getenv("OPSBRIEF_OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv("OPSBRIEF_BEDROCK_MODEL"); v != "" {
		cfg.BedrockModel = v
	}
	if v := os.Getenv("OPSBRIEF_TEMPORAL_HOST_PORT"); v != "" {
		cfg.TemporalHostPort = v
	}
	if v := os.Getenv("OPSBRIEF_TEMPORAL_NAMESPACE"); v != "" {
		cfg.TemporalNamespace = v
	}
	if v := os.Getenv("OPSBRIEF_TEMPORAL_TASK_QUEUE"); v != "" {
		cfg.TemporalTaskQueue = v
	}
	if v := os.Getenv("OPSBRIEF_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = &b
		}
	}
	if v := os.Getenv("OPSBRIEF_TARGET_OEE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ActionEngine.TargetOEEPercentage = f
		}
	}
	if v := os.Getenv("OPSBRIEF_TOTAL_TIMEOUT_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Orchestrator.TotalTimeoutSeconds = f
		}
	}
	return cfg
}

// CacheEnabled resolves the tri-state Enabled flag; unset means enabled.
func (c Cache) CacheEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// TotalTimeout returns the plant/EOD briefing budget as a duration.
func (o Orchestrator) TotalTimeout() time.Duration {
	return time.Duration(o.TotalTimeoutSeconds * float64(time.Second))
}

// PerToolTimeout returns the per-tool budget as a duration.
func (o Orchestrator) PerToolTimeout() time.Duration {
	return time.Duration(o.PerToolTimeoutSeconds * float64(time.Second))
}

// HandoffTimeout returns the shift handoff budget as a duration.
func (o Orchestrator) HandoffTimeout() time.Duration {
	return time.Duration(o.HandoffTimeoutSeconds * float64(time.Second))
}
