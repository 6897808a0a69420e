package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "STREAMPULSE_CONFIG"
	databaseDSNEnv = "DATABASE_DSN"
	natsURLEnv     = "NATS_URL"
	llmAPIKeyEnv   = "LLM_API_KEY"
	llmModelEnv    = "LLM_MODEL"
	listenAddrEnv  = "LISTEN_ADDR"
)

// Duration wraps time.Duration so YAML can carry values like "90s".
type Duration time.Duration

// UnmarshalYAML parses Go duration strings.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds high-level settings required across the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Alerts    AlertConfig     `yaml:"alerts"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Guard     GuardConfig     `yaml:"guard"`
	LLM       LLMConfig       `yaml:"llm"`
	Sources   []SourceSite    `yaml:"sources"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects
// the in-memory store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig wires the optional external event mirror.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// LoggingConfig selects the slog level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig maps client tokens to owner ids. Session issuance itself is an
// external collaborator; the core only validates presented tokens.
type AuthConfig struct {
	Tokens map[string]string `yaml:"tokens"`
}

// SchedulerConfig tunes the tick loop and the backoff state machine.
type SchedulerConfig struct {
	TickInterval Duration `yaml:"tickInterval"`
	Workers      int      `yaml:"workers"`
	BackoffBase  Duration `yaml:"backoffBase"`
	// BackoffCap bounds the 2^failures multiplier.
	BackoffCap  int `yaml:"backoffCap"`
	MaxFailures int `yaml:"maxFailures"`
}

// PipelineConfig tunes stage execution and confidence scoring.
type PipelineConfig struct {
	StageTimeout Duration `yaml:"stageTimeout"`
	// StageRetries is the in-execution retry budget for discovery and
	// analysis (attempts = retries + 1). A pointer so an explicit
	// "stageRetries: 0" in YAML is distinguishable from unset.
	StageRetries      *int    `yaml:"stageRetries"`
	TargetSources     int     `yaml:"targetSources"`
	CountWeight       float64 `yaml:"countWeight"`
	CredibilityWeight float64 `yaml:"credibilityWeight"`
}

// AlertConfig tunes the news alert filter.
type AlertConfig struct {
	DedupWindow       Duration `yaml:"dedupWindow"`
	SimilarityCutoff  float64  `yaml:"similarityCutoff"`
	DefaultThreshold  int      `yaml:"defaultThreshold"`
	DefaultMaxPerHour int      `yaml:"defaultMaxPerHour"`
}

// DeliveryConfig tunes per-session outbound buffering.
type DeliveryConfig struct {
	SessionBuffer int `yaml:"sessionBuffer"`
}

// GuardConfig bounds the per-stream execution lease.
type GuardConfig struct {
	LeaseTTL Duration `yaml:"leaseTTL"`
}

// LLMConfig defines how to contact the OpenAI-compatible API. An empty API
// key selects the deterministic heuristic analyst.
type LLMConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// SourceSite describes one page the discovery scanner crawls.
type SourceSite struct {
	Name            string  `yaml:"name"`
	URL             string  `yaml:"url"`
	Scanner         string  `yaml:"scanner"`
	ItemSelector    string  `yaml:"itemSelector"`
	TitleSelector   string  `yaml:"titleSelector"`
	LinkSelector    string  `yaml:"linkSelector"`
	SnippetSelector string  `yaml:"snippetSelector"`
	Credibility     float64 `yaml:"credibility"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(natsURLEnv); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(listenAddrEnv); v != "" {
		c.Server.Addr = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Server.Addr != "" {
		base.Server = override.Server
	}
	if override.Database.DSN != "" {
		base.Database = override.Database
	}
	if override.NATS.URL != "" {
		base.NATS.URL = override.NATS.URL
	}
	if override.NATS.SubjectPrefix != "" {
		base.NATS.SubjectPrefix = override.NATS.SubjectPrefix
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}
	if len(override.Auth.Tokens) > 0 {
		base.Auth = override.Auth
	}

	if override.Scheduler.TickInterval != 0 {
		base.Scheduler.TickInterval = override.Scheduler.TickInterval
	}
	if override.Scheduler.Workers != 0 {
		base.Scheduler.Workers = override.Scheduler.Workers
	}
	if override.Scheduler.BackoffBase != 0 {
		base.Scheduler.BackoffBase = override.Scheduler.BackoffBase
	}
	if override.Scheduler.BackoffCap != 0 {
		base.Scheduler.BackoffCap = override.Scheduler.BackoffCap
	}
	if override.Scheduler.MaxFailures != 0 {
		base.Scheduler.MaxFailures = override.Scheduler.MaxFailures
	}

	if override.Pipeline.StageTimeout != 0 {
		base.Pipeline.StageTimeout = override.Pipeline.StageTimeout
	}
	// Remaining numeric tunables treat zero as unset; stageRetries is a
	// pointer because zero retries is a legitimate policy choice.
	if override.Pipeline.StageRetries != nil {
		base.Pipeline.StageRetries = override.Pipeline.StageRetries
	}
	if override.Pipeline.TargetSources != 0 {
		base.Pipeline.TargetSources = override.Pipeline.TargetSources
	}
	if override.Pipeline.CountWeight != 0 {
		base.Pipeline.CountWeight = override.Pipeline.CountWeight
	}
	if override.Pipeline.CredibilityWeight != 0 {
		base.Pipeline.CredibilityWeight = override.Pipeline.CredibilityWeight
	}

	if override.Alerts.DedupWindow != 0 {
		base.Alerts.DedupWindow = override.Alerts.DedupWindow
	}
	if override.Alerts.SimilarityCutoff != 0 {
		base.Alerts.SimilarityCutoff = override.Alerts.SimilarityCutoff
	}
	if override.Alerts.DefaultThreshold != 0 {
		base.Alerts.DefaultThreshold = override.Alerts.DefaultThreshold
	}
	if override.Alerts.DefaultMaxPerHour != 0 {
		base.Alerts.DefaultMaxPerHour = override.Alerts.DefaultMaxPerHour
	}

	if override.Delivery.SessionBuffer != 0 {
		base.Delivery = override.Delivery
	}
	if override.Guard.LeaseTTL != 0 {
		base.Guard = override.Guard
	}

	if override.LLM.Endpoint != "" {
		base.LLM.Endpoint = override.LLM.Endpoint
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.SystemPrompt != "" {
		base.LLM.SystemPrompt = override.LLM.SystemPrompt
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	stageRetries := 2
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{DSN: ""},
		NATS:     NATSConfig{URL: "", SubjectPrefix: "streampulse.messages"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Auth:     AuthConfig{Tokens: map[string]string{}},
		Scheduler: SchedulerConfig{
			TickInterval: Duration(15 * time.Second),
			Workers:      4,
			BackoffBase:  Duration(time.Minute),
			BackoffCap:   64,
			MaxFailures:  5,
		},
		Pipeline: PipelineConfig{
			StageTimeout:      Duration(90 * time.Second),
			StageRetries:      &stageRetries,
			TargetSources:     10,
			CountWeight:       0.4,
			CredibilityWeight: 0.6,
		},
		Alerts: AlertConfig{
			DedupWindow:       Duration(24 * time.Hour),
			SimilarityCutoff:  0.82,
			DefaultThreshold:  5,
			DefaultMaxPerHour: 6,
		},
		Delivery: DeliveryConfig{SessionBuffer: 64},
		Guard:    GuardConfig{LeaseTTL: Duration(9 * time.Minute)},
		LLM: LLMConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			APIKey:       "",
			SystemPrompt: "You analyze news sources and compose research newsletters.",
		},
		Sources: []SourceSite{
			{
				Name:          "hn-front",
				URL:           "https://news.ycombinator.com/",
				Scanner:       "headline",
				ItemSelector:  "tr.athing",
				TitleSelector: "span.titleline > a",
				LinkSelector:  "span.titleline > a",
				Credibility:   0.6,
			},
		},
	}
}
