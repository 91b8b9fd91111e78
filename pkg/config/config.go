package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full orchestrator configuration. Zero values are filled
// with working defaults, so an empty file (or no file at all) yields a
// runnable single-node setup against a local broker.
type Config struct {
	// Broker is the MQTT connection.
	Broker BrokerConfig `yaml:"broker"`

	// Scheduler tunes task admission and execution.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Monitor tunes the stale sweep.
	Monitor MonitorConfig `yaml:"monitor"`

	// Recovery tunes automatic restarts.
	Recovery RecoveryConfig `yaml:"recovery"`

	// DataDir holds the BoltDB state file. Empty disables persistence.
	DataDir string `yaml:"data_dir"`

	// ListenAddr is the HTTP API bind address.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// CatalogFile is an optional YAML service catalog loaded at startup.
	CatalogFile string `yaml:"catalog_file"`

	// GroupsFile is an optional YAML group file loaded at startup.
	GroupsFile string `yaml:"groups_file"`
}

type BrokerConfig struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SchedulerConfig struct {
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks"`
	TaskTimeout        time.Duration `yaml:"task_timeout"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	SettleDelay        time.Duration `yaml:"settle_delay"`
}

type MonitorConfig struct {
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	StaleThreshold time.Duration `yaml:"stale_threshold"`
}

type RecoveryConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ScanInterval time.Duration `yaml:"scan_interval"`
	Cooldown     time.Duration `yaml:"cooldown"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:      "tcp://127.0.0.1:1883",
			ClientID: "conductor",
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentTasks: 4,
			TaskTimeout:        60 * time.Second,
			PollInterval:       250 * time.Millisecond,
			SettleDelay:        time.Second,
		},
		Monitor: MonitorConfig{
			SweepInterval:  30 * time.Second,
			StaleThreshold: 90 * time.Second,
		},
		Recovery: RecoveryConfig{
			Enabled:      true,
			ScanInterval: 15 * time.Second,
			Cooldown:     time.Minute,
			MaxAttempts:  0, // unlimited
		},
		DataDir:    "./conductor-data",
		ListenAddr: "127.0.0.1:8080",
		LogLevel:   "info",
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from CONDUCTOR_* variables. Only settings an
// operator plausibly injects per deployment get one; everything else
// stays file-only.
func (c *Config) applyEnv() {
	envString(&c.Broker.URL, "CONDUCTOR_BROKER_URL")
	envString(&c.Broker.ClientID, "CONDUCTOR_BROKER_CLIENT_ID")
	envString(&c.Broker.Username, "CONDUCTOR_BROKER_USERNAME")
	envString(&c.Broker.Password, "CONDUCTOR_BROKER_PASSWORD")
	envString(&c.DataDir, "CONDUCTOR_DATA_DIR")
	envString(&c.ListenAddr, "CONDUCTOR_LISTEN_ADDR")
	envString(&c.LogLevel, "CONDUCTOR_LOG_LEVEL")
	envInt(&c.Scheduler.MaxConcurrentTasks, "CONDUCTOR_MAX_CONCURRENT_TASKS")
	envDuration(&c.Scheduler.TaskTimeout, "CONDUCTOR_TASK_TIMEOUT")
	envDuration(&c.Monitor.StaleThreshold, "CONDUCTOR_STALE_THRESHOLD")
	envBool(&c.Recovery.Enabled, "CONDUCTOR_RECOVERY_ENABLED")
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Broker.URL == "" {
		return fmt.Errorf("broker.url must be set")
	}
	if c.Scheduler.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_tasks must be positive, got %d", c.Scheduler.MaxConcurrentTasks)
	}
	if c.Scheduler.TaskTimeout <= 0 {
		return fmt.Errorf("scheduler.task_timeout must be positive, got %s", c.Scheduler.TaskTimeout)
	}
	if c.Monitor.StaleThreshold <= c.Monitor.SweepInterval/2 {
		return fmt.Errorf("monitor.stale_threshold %s is too aggressive for sweep_interval %s",
			c.Monitor.StaleThreshold, c.Monitor.SweepInterval)
	}
	if c.Recovery.MaxAttempts < 0 {
		return fmt.Errorf("recovery.max_attempts must be >= 0, got %d", c.Recovery.MaxAttempts)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
