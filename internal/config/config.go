// File: internal/config/config.go
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Engine() EngineConfig
	LLM() LLMConfig
	Reasoning() ReasoningConfig
	Scoring() ScoringConfig
	Uncertainty() UncertaintyConfig
	Arbiter() ArbiterConfig
	Orchestrator() OrchestratorConfig
	Events() EventsConfig
	Delegates() DelegatesConfig

	SetEngineWorkerConcurrency(int)
	SetReasoningBackend(string)
	SetEventsFile(string)
}

// Config is the root configuration for the application.
type Config struct {
	LoggerCfg       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg     DatabaseConfig     `mapstructure:"database" yaml:"database"`
	EngineCfg       EngineConfig       `mapstructure:"engine" yaml:"engine"`
	LLMCfg          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	ReasoningCfg    ReasoningConfig    `mapstructure:"reasoning" yaml:"reasoning"`
	ScoringCfg      ScoringConfig      `mapstructure:"scoring" yaml:"scoring"`
	UncertaintyCfg  UncertaintyConfig  `mapstructure:"uncertainty" yaml:"uncertainty"`
	ArbiterCfg      ArbiterConfig      `mapstructure:"arbiter" yaml:"arbiter"`
	OrchestratorCfg OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	EventsCfg       EventsConfig       `mapstructure:"events" yaml:"events"`
	DelegatesCfg    DelegatesConfig    `mapstructure:"delegates" yaml:"delegates"`
}

func (c *Config) Logger() LoggerConfig             { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig         { return c.DatabaseCfg }
func (c *Config) Engine() EngineConfig             { return c.EngineCfg }
func (c *Config) LLM() LLMConfig                   { return c.LLMCfg }
func (c *Config) Reasoning() ReasoningConfig       { return c.ReasoningCfg }
func (c *Config) Scoring() ScoringConfig           { return c.ScoringCfg }
func (c *Config) Uncertainty() UncertaintyConfig   { return c.UncertaintyCfg }
func (c *Config) Arbiter() ArbiterConfig           { return c.ArbiterCfg }
func (c *Config) Orchestrator() OrchestratorConfig { return c.OrchestratorCfg }
func (c *Config) Events() EventsConfig             { return c.EventsCfg }
func (c *Config) Delegates() DelegatesConfig       { return c.DelegatesCfg }

func (c *Config) SetEngineWorkerConcurrency(w int) { c.EngineCfg.WorkerConcurrency = w }
func (c *Config) SetReasoningBackend(b string)     { c.ReasoningCfg.Backend = b }
func (c *Config) SetEventsFile(path string)        { c.EventsCfg.File = path }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

// EngineConfig configures the evaluation cycle runner.
type EngineConfig struct {
	WorkerConcurrency int           `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	CycleTimeout      time.Duration `mapstructure:"cycle_timeout" yaml:"cycle_timeout"`
}

// LLMProvider names a supported model backend.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMModelConfig configures one model endpoint.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// LLMConfig lists the configured models and which serves each tier.
type LLMConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// Reasoning backends.
const (
	ReasoningTemplate = "template"
	ReasoningLLM      = "llm"
)

// ReasoningConfig selects and tunes the language-reasoning strategy.
type ReasoningConfig struct {
	Backend           string        `mapstructure:"backend" yaml:"backend"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	CacheCleanup      time.Duration `mapstructure:"cache_cleanup" yaml:"cache_cleanup"`
}

// DomainConfig tunes one domain scorer.
type DomainConfig struct {
	Weight              float64 `mapstructure:"weight" yaml:"weight"`
	Saturation          float64 `mapstructure:"saturation" yaml:"saturation"`
	FrequencyWeight     float64 `mapstructure:"frequency_weight" yaml:"frequency_weight"`
	SeverityWeight      float64 `mapstructure:"severity_weight" yaml:"severity_weight"`
	HeuristicConfidence float64 `mapstructure:"heuristic_confidence" yaml:"heuristic_confidence"`
	NoSignalConfidence  float64 `mapstructure:"no_signal_confidence" yaml:"no_signal_confidence"`
	// ModelPath points at a logistic coefficient file. Empty uses the heuristic.
	ModelPath string `mapstructure:"model_path" yaml:"model_path"`
}

// ScoringConfig holds per-domain scorer settings.
type ScoringConfig struct {
	Domains     map[string]DomainConfig `mapstructure:"domains" yaml:"domains"`
	RoleScorers bool                    `mapstructure:"role_scorers" yaml:"role_scorers"`
	RoleWeight  float64                 `mapstructure:"role_weight" yaml:"role_weight"`

	// ClusterWindowDays is the gap under which two events count as clustered.
	ClusterWindowDays int `mapstructure:"cluster_window_days" yaml:"cluster_window_days"`
}

// UncertaintyConfig holds the flag thresholds of the uncertainty scorer.
type UncertaintyConfig struct {
	SparseFlagThreshold   float64 `mapstructure:"sparse_flag_threshold" yaml:"sparse_flag_threshold"`
	StaleFlagThreshold    float64 `mapstructure:"stale_flag_threshold" yaml:"stale_flag_threshold"`
	ConflictFlagThreshold float64 `mapstructure:"conflict_flag_threshold" yaml:"conflict_flag_threshold"`
}

// ArbiterConfig holds the posture thresholds and minority-opinion rules.
type ArbiterConfig struct {
	EscalateThreshold          float64 `mapstructure:"escalate_threshold" yaml:"escalate_threshold"`
	OutreachThreshold          float64 `mapstructure:"outreach_threshold" yaml:"outreach_threshold"`
	WatchThreshold             float64 `mapstructure:"watch_threshold" yaml:"watch_threshold"`
	HighUncertainty            float64 `mapstructure:"high_uncertainty" yaml:"high_uncertainty"`
	UncertainEscalateThreshold float64 `mapstructure:"uncertain_escalate_threshold" yaml:"uncertain_escalate_threshold"`
	UncertainWatchThreshold    float64 `mapstructure:"uncertain_watch_threshold" yaml:"uncertain_watch_threshold"`
	MinorityMinAssessments     int     `mapstructure:"minority_min_assessments" yaml:"minority_min_assessments"`
	MinorityDeviation          float64 `mapstructure:"minority_deviation" yaml:"minority_deviation"`
}

// OrchestratorConfig tunes the intervention state machine.
type OrchestratorConfig struct {
	ObservationWindow    time.Duration `mapstructure:"observation_window" yaml:"observation_window"`
	RiskThreshold        float64       `mapstructure:"risk_threshold" yaml:"risk_threshold"`
	TargetRiskFactor     float64       `mapstructure:"target_risk_factor" yaml:"target_risk_factor"`
	GoalHorizon          time.Duration `mapstructure:"goal_horizon" yaml:"goal_horizon"`
	RequireApproval      bool          `mapstructure:"require_approval" yaml:"require_approval"`
	MaxRetries           int           `mapstructure:"max_retries" yaml:"max_retries"`
	ActionStagger        time.Duration `mapstructure:"action_stagger" yaml:"action_stagger"`
	EscalationGrace      time.Duration `mapstructure:"escalation_grace" yaml:"escalation_grace"`
	TrendHistory         int           `mapstructure:"trend_history" yaml:"trend_history"`
	RiskReductionTarget  float64       `mapstructure:"risk_reduction_target" yaml:"risk_reduction_target"`
	ResponseWithinDays   int           `mapstructure:"response_within_days" yaml:"response_within_days"`
	PlanBThreshold       float64       `mapstructure:"plan_b_threshold" yaml:"plan_b_threshold"`
	EscalationRisk       float64       `mapstructure:"escalation_risk" yaml:"escalation_risk"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval" yaml:"retry_max_interval"`
}

// EventsConfig configures the file-backed event source used without a database.
type EventsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// ScholarshipConfig is one entry of the scholarship catalogue.
type ScholarshipConfig struct {
	Name     string  `mapstructure:"name" yaml:"name"`
	Amount   float64 `mapstructure:"amount" yaml:"amount"`
	Deadline string  `mapstructure:"deadline" yaml:"deadline"`
}

// DelegatesConfig configures the built-in action delegates.
type DelegatesConfig struct {
	EscalationContact string              `mapstructure:"escalation_contact" yaml:"escalation_contact"`
	CounselorPool     []string            `mapstructure:"counselor_pool" yaml:"counselor_pool"`
	PeerMentors       []string            `mapstructure:"peer_mentors" yaml:"peer_mentors"`
	Scholarships      []ScholarshipConfig `mapstructure:"scholarships" yaml:"scholarships"`
	Timeout           time.Duration       `mapstructure:"timeout" yaml:"timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "tracepoint")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)

	// -- Engine --
	v.SetDefault("engine.worker_concurrency", 8)
	v.SetDefault("engine.cycle_timeout", "2m")

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("llm.models", map[string]any{
		"gemini-2.5-flash": map[string]any{
			"provider":    "gemini",
			"model":       "gemini-2.5-flash",
			"api_timeout": "60s",
			"temperature": 0.3,
			"top_p":       0.95,
			"top_k":       40,
			"max_tokens":  1024,
		},
		"gemini-2.5-pro": map[string]any{
			"provider":    "gemini",
			"model":       "gemini-2.5-pro",
			"api_timeout": "120s",
			"temperature": 0.1,
			"top_p":       0.95,
			"top_k":       40,
			"max_tokens":  2048,
		},
	})

	// -- Reasoning --
	v.SetDefault("reasoning.backend", ReasoningTemplate)
	v.SetDefault("reasoning.requests_per_second", 2.0)
	v.SetDefault("reasoning.burst", 4)
	v.SetDefault("reasoning.timeout", "30s")
	v.SetDefault("reasoning.cache_ttl", "1h")
	v.SetDefault("reasoning.cache_cleanup", "10m")

	// -- Scoring --
	v.SetDefault("scoring.domains", map[string]any{
		"financial":   domainDefaults(0.25, 5, 0.4, 0.6, 0.9),
		"academic":    domainDefaults(0.20, 5, 0.4, 0.6, 0.9),
		"residential": domainDefaults(0.20, 4, 0.4, 0.6, 0.8),
		"language":    domainDefaults(0.15, 4, 0.5, 0.5, 0.9),
	})
	v.SetDefault("scoring.role_scorers", false)
	v.SetDefault("scoring.role_weight", 0.10)
	v.SetDefault("scoring.cluster_window_days", 14)

	// -- Uncertainty --
	v.SetDefault("uncertainty.sparse_flag_threshold", 0.6)
	v.SetDefault("uncertainty.stale_flag_threshold", 0.6)
	v.SetDefault("uncertainty.conflict_flag_threshold", 0.5)

	// -- Arbiter --
	v.SetDefault("arbiter.escalate_threshold", 0.65)
	v.SetDefault("arbiter.outreach_threshold", 0.45)
	v.SetDefault("arbiter.watch_threshold", 0.25)
	v.SetDefault("arbiter.high_uncertainty", 0.7)
	v.SetDefault("arbiter.uncertain_escalate_threshold", 0.5)
	v.SetDefault("arbiter.uncertain_watch_threshold", 0.3)
	v.SetDefault("arbiter.minority_min_assessments", 3)
	v.SetDefault("arbiter.minority_deviation", 0.3)

	// -- Orchestrator --
	v.SetDefault("orchestrator.observation_window", "336h")
	v.SetDefault("orchestrator.risk_threshold", 0.6)
	v.SetDefault("orchestrator.target_risk_factor", 0.7)
	v.SetDefault("orchestrator.goal_horizon", "168h")
	v.SetDefault("orchestrator.require_approval", true)
	v.SetDefault("orchestrator.max_retries", 3)
	v.SetDefault("orchestrator.action_stagger", "2h")
	v.SetDefault("orchestrator.escalation_grace", "48h")
	v.SetDefault("orchestrator.trend_history", 6)
	v.SetDefault("orchestrator.risk_reduction_target", 0.3)
	v.SetDefault("orchestrator.response_within_days", 3)
	v.SetDefault("orchestrator.plan_b_threshold", 0.5)
	v.SetDefault("orchestrator.escalation_risk", 0.7)
	v.SetDefault("orchestrator.retry_initial_interval", "15m")
	v.SetDefault("orchestrator.retry_max_interval", "6h")

	// -- Events --
	v.SetDefault("events.file", "")

	// -- Delegates --
	v.SetDefault("delegates.escalation_contact", "student-welfare-office")
	v.SetDefault("delegates.counselor_pool", []string{"counselor-on-duty"})
	v.SetDefault("delegates.peer_mentors", []string{})
	v.SetDefault("delegates.scholarships", []map[string]any{})
	v.SetDefault("delegates.timeout", "30s")
}

func domainDefaults(weight, saturation, freq, sev, noSignal float64) map[string]any {
	return map[string]any{
		"weight":               weight,
		"saturation":           saturation,
		"frequency_weight":     freq,
		"severity_weight":      sev,
		"heuristic_confidence": 0.6,
		"no_signal_confidence": noSignal,
		"model_path":           "",
	}
}

// NewConfigFromViper unmarshals and validates configuration from a populated viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("database.url", "TRACEPOINT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Model keys come from the environment rather than config files.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		for name, m := range cfg.LLMCfg.Models {
			if m.APIKey == "" {
				m.APIKey = key
				cfg.LLMCfg.Models[name] = m
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineCfg.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	switch c.ReasoningCfg.Backend {
	case ReasoningTemplate, ReasoningLLM:
	default:
		return fmt.Errorf("reasoning.backend must be %q or %q, got %q", ReasoningTemplate, ReasoningLLM, c.ReasoningCfg.Backend)
	}
	if c.ReasoningCfg.Backend == ReasoningLLM {
		if err := c.LLMCfg.Validate(); err != nil {
			return fmt.Errorf("llm configuration invalid: %w", err)
		}
	}
	if len(c.ScoringCfg.Domains) == 0 {
		return fmt.Errorf("scoring.domains must configure at least one domain")
	}
	for name, d := range c.ScoringCfg.Domains {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("scoring.domains.%s invalid: %w", name, err)
		}
	}
	if err := c.ArbiterCfg.Validate(); err != nil {
		return fmt.Errorf("arbiter configuration invalid: %w", err)
	}
	if err := c.OrchestratorCfg.Validate(); err != nil {
		return fmt.Errorf("orchestrator configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the domain scorer settings.
func (d DomainConfig) Validate() error {
	if d.Weight < 0 {
		return fmt.Errorf("weight must not be negative")
	}
	if d.Saturation <= 0 {
		return fmt.Errorf("saturation must be positive")
	}
	if math.Abs(d.FrequencyWeight+d.SeverityWeight-1.0) > 1e-9 {
		return fmt.Errorf("frequency_weight and severity_weight must sum to 1.0")
	}
	if d.NoSignalConfidence < 0.7 || d.NoSignalConfidence > 1.0 {
		return fmt.Errorf("no_signal_confidence must be between 0.7 and 1.0")
	}
	if d.HeuristicConfidence < 0 || d.HeuristicConfidence > 1.0 {
		return fmt.Errorf("heuristic_confidence must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks that the posture thresholds are ordered.
func (a ArbiterConfig) Validate() error {
	if !(a.WatchThreshold < a.OutreachThreshold && a.OutreachThreshold < a.EscalateThreshold) {
		return fmt.Errorf("thresholds must satisfy watch < outreach < escalate")
	}
	if !(a.UncertainWatchThreshold < a.UncertainEscalateThreshold) {
		return fmt.Errorf("uncertain thresholds must satisfy watch < escalate")
	}
	if a.MinorityMinAssessments < 2 {
		return fmt.Errorf("minority_min_assessments must be at least 2")
	}
	return nil
}

// Validate checks the orchestrator settings.
func (o OrchestratorConfig) Validate() error {
	if o.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if o.ObservationWindow <= 0 {
		return fmt.Errorf("observation_window must be positive")
	}
	if o.RiskThreshold <= 0 || o.RiskThreshold > 1 {
		return fmt.Errorf("risk_threshold must be in (0, 1]")
	}
	return nil
}

// Validate checks that the default tiers resolve to configured models.
func (l LLMConfig) Validate() error {
	for _, name := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		m, ok := l.Models[name]
		if !ok {
			return fmt.Errorf("model %q is not configured", name)
		}
		if m.APIKey == "" {
			return fmt.Errorf("model %q has no api_key (set GEMINI_API_KEY)", name)
		}
	}
	return nil
}
