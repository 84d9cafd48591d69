package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flowtitan/flowtitan/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config holds all flowtitan runtime configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Autonomy  AutonomyConfig  `yaml:"autonomy"`
	Exec      ExecConfig      `yaml:"exec"`
	Queues    QueueConfig     `yaml:"queues"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Cognition CognitionConfig `yaml:"cognition"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AutonomyConfig holds the decision-policy defaults consumed by
// internal/autonomy.DecisionPolicy. Mode is the config-level
// fallback; a running session's context store value takes precedence.
type AutonomyConfig struct {
	Mode                  string  `yaml:"mode"` // full | hybrid | ask_first
	HighConfidenceThresh  float64 `yaml:"high_confidence_threshold"`
	MediumConfidenceThresh float64 `yaml:"medium_confidence_threshold"`
	LowRiskAutoConfidence float64 `yaml:"low_risk_auto_confidence"`
}

// ExecConfig sizes the worker pool and orchestrator.
type ExecConfig struct {
	MaxWorkers            int    `yaml:"max_workers"`
	ThreadWorkers         int    `yaml:"thread_workers"`
	DefaultNodeTimeout    string `yaml:"default_node_timeout"`
	DefaultRetryBackoff   string `yaml:"default_retry_backoff"`
	MaxLoopIterations     int    `yaml:"max_loop_iterations"`
}

// QueueConfig sizes the bounded queues used by the event bus, autonomy
// engine, and session writer.
type QueueConfig struct {
	EventBusSize             int `yaml:"event_bus_size"`
	EventBusHandlerWorkers   int `yaml:"event_bus_handler_workers"`
	AutonomyEventQueueSize   int `yaml:"autonomy_event_queue_size"`
	AutonomyEventConcurrency int `yaml:"autonomy_event_concurrency"`
	SessionWriteQueueSize    int `yaml:"session_write_queue_size"`
}

// TimeoutConfig is the "detail floor" timeout set named in §5: every
// external or blocking call gets an explicit budget.
type TimeoutConfig struct {
	PlanExecution     string `yaml:"plan_execution"`
	NodeDispatch      string `yaml:"node_dispatch"`
	PlannerGeneration string `yaml:"planner_generation"`
	IntentClassify    string `yaml:"intent_classify"`
	PolicyCheck       string `yaml:"policy_check"`
	ReflectionRun     string `yaml:"reflection_run"`
	MemoryConsolidate string `yaml:"memory_consolidate"`
	ServiceWatchdog   string `yaml:"service_watchdog"`
}

// CognitionConfig holds load-balancer thresholds and decay constants.
type CognitionConfig struct {
	WarnThreshold float64 `yaml:"warn_threshold"`
	HighThreshold float64 `yaml:"high_threshold"`
	SoftCapacity  float64 `yaml:"soft_capacity"`
	DecaySpread   float64 `yaml:"decay_spread_seconds"`
}

// SchedulerConfig configures the temporal scheduler's persistence.
type SchedulerConfig struct {
	PersistencePath string `yaml:"persistence_path"`
}

// StoreConfig configures the sqlite-backed session/job store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	SessionTTL   string `yaml:"session_ttl"`
	SlidingTTL   bool   `yaml:"sliding_ttl"`
}

// LoggingConfig selects the zap log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the zero-value-free default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "flowtitan",
		Version: "0.1.0",

		Autonomy: AutonomyConfig{
			Mode:                   "hybrid",
			HighConfidenceThresh:   0.85,
			MediumConfidenceThresh: 0.65,
			LowRiskAutoConfidence:  0.5,
		},

		Exec: ExecConfig{
			MaxWorkers:          8,
			ThreadWorkers:       4,
			DefaultNodeTimeout:  "30s",
			DefaultRetryBackoff: "1s",
			MaxLoopIterations:   1000,
		},

		Queues: QueueConfig{
			EventBusSize:             1024,
			EventBusHandlerWorkers:   8,
			AutonomyEventQueueSize:   256,
			AutonomyEventConcurrency: 4,
			SessionWriteQueueSize:    256,
		},

		Timeouts: TimeoutConfig{
			PlanExecution:     "5m",
			NodeDispatch:      "30s",
			PlannerGeneration: "20s",
			IntentClassify:    "10s",
			PolicyCheck:       "2s",
			ReflectionRun:     "15s",
			MemoryConsolidate: "15s",
			ServiceWatchdog:   "10s",
		},

		Cognition: CognitionConfig{
			WarnThreshold: 0.6,
			HighThreshold: 0.85,
			SoftCapacity:  10.0,
			DecaySpread:   30.0,
		},

		Scheduler: SchedulerConfig{
			PersistencePath: "data/scheduler.db",
		},

		Store: StoreConfig{
			DatabasePath: "data/flowtitan.db",
			SessionTTL:   "24h",
			SlidingTTL:   true,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.CoreDebug("loading config from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Core("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.Get(logging.CategoryCore).Error("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.Get(logging.CategoryCore).Error("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Core("config loaded: autonomy_mode=%s max_workers=%d", cfg.Autonomy.Mode, cfg.Exec.MaxWorkers)
	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if mode := os.Getenv("FLOWTITAN_AUTONOMY_MODE"); mode != "" {
		c.Autonomy.Mode = mode
	}
	if db := os.Getenv("FLOWTITAN_DB"); db != "" {
		c.Store.DatabasePath = db
	}
	if lvl := os.Getenv("FLOWTITAN_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

func (c *Config) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Store.SessionTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

func (c *Config) GetDefaultNodeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Exec.DefaultNodeTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func (c *Config) GetDefaultRetryBackoff() time.Duration {
	d, err := time.ParseDuration(c.Exec.DefaultRetryBackoff)
	if err != nil {
		return time.Second
	}
	return d
}

func (c *Config) GetPlanExecutionTimeout() time.Duration {
	return parseOr(c.Timeouts.PlanExecution, 5*time.Minute)
}

func (c *Config) GetNodeDispatchTimeout() time.Duration {
	return parseOr(c.Timeouts.NodeDispatch, 30*time.Second)
}

func (c *Config) GetPlannerGenerationTimeout() time.Duration {
	return parseOr(c.Timeouts.PlannerGeneration, 20*time.Second)
}

func (c *Config) GetIntentClassifyTimeout() time.Duration {
	return parseOr(c.Timeouts.IntentClassify, 10*time.Second)
}

func (c *Config) GetPolicyCheckTimeout() time.Duration {
	return parseOr(c.Timeouts.PolicyCheck, 2*time.Second)
}

func (c *Config) GetServiceWatchdogTimeout() time.Duration {
	return parseOr(c.Timeouts.ServiceWatchdog, 10*time.Second)
}

func parseOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate checks invariants that would otherwise surface as confusing
// runtime errors deep in the worker pool or autonomy engine.
func (c *Config) Validate() error {
	switch c.Autonomy.Mode {
	case "full", "hybrid", "ask_first":
	default:
		return fmt.Errorf("invalid autonomy mode: %s (valid: full, hybrid, ask_first)", c.Autonomy.Mode)
	}
	if c.Exec.MaxWorkers < 1 {
		return fmt.Errorf("exec.max_workers must be >= 1")
	}
	if c.Cognition.WarnThreshold >= c.Cognition.HighThreshold {
		return fmt.Errorf("cognition.warn_threshold must be < cognition.high_threshold")
	}
	return nil
}
