// Package config loads the ambient, deployment-facing settings named in
// spec.md §6: database URL, pub/sub URL, artifact storage path, LLM-config
// file path, monitoring flags, channel names, and heartbeat interval.
//
// Full agent/chain/provider configuration is an external collaborator (out
// of scope per spec.md §1); this package only owns what the core itself
// reads at startup.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MonitorConfig controls the Monitoring Event Bus (§4.A).
type MonitorConfig struct {
	Enabled              bool   `yaml:"enabled"`
	EventsChannel        string `yaml:"events_channel"`
	StatsChannel         string `yaml:"stats_channel"`
	ProjectChannelPrefix string `yaml:"project_channel_prefix"`
	MaxEventSizeBytes    int    `yaml:"max_event_size_bytes"`
}

// QueueConfig controls the Work Queue's key layout and crash-recovery
// thresholds (§4.D).
type QueueConfig struct {
	HighPriorityKey    string        `yaml:"high_priority_key"`
	NormalPriorityKey  string        `yaml:"normal_priority_key"`
	LowPriorityKey     string        `yaml:"low_priority_key"`
	ProcessingKeyPrefix string       `yaml:"processing_key_prefix"`
	HeartbeatKeyPrefix string        `yaml:"heartbeat_key_prefix"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTTL       time.Duration `yaml:"heartbeat_ttl"`
	MaxRetries         int           `yaml:"max_retries"`
	DeadLetterKey      string        `yaml:"dead_letter_key"`
	DelayedKey         string        `yaml:"delayed_key"`
}

// WorkerConfig controls a Worker process (§4.E).
type WorkerConfig struct {
	PopTimeout       time.Duration `yaml:"pop_timeout"`
	StageDeadline    time.Duration `yaml:"stage_deadline"`
	ShutdownGrace    time.Duration `yaml:"shutdown_grace"`
}

// Config is the top-level settings tree, loaded from YAML with
// environment-variable expansion and overridden by direct environment
// variables for the handful of settings an operator must be able to set
// without editing a file.
type Config struct {
	DatabaseURL     string        `yaml:"database_url"`
	RedisURL        string        `yaml:"redis_url"`
	StoragePath     string        `yaml:"storage_path"`
	LLMConfigPath   string        `yaml:"llm_config_path"`
	Monitor         MonitorConfig `yaml:"monitor"`
	Queue           QueueConfig   `yaml:"queue"`
	Worker          WorkerConfig  `yaml:"worker"`
}

// Load reads YAML from path (if it exists), expands environment variables
// in it, unmarshals over the built-in defaults, and finally applies
// well-known environment-variable overrides. A missing path is not an
// error: defaults plus env overrides are a valid configuration.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			expanded := ExpandEnv(data)
			if err := yaml.Unmarshal(expanded, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEXUS_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("NEXUS_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("NEXUS_STORAGE_PATH"); v != "" {
		cfg.StoragePath = v
	}
	if v := os.Getenv("NEXUS_LLM_CONFIG"); v != "" {
		cfg.LLMConfigPath = v
	}
	if v := os.Getenv("NEXUS_MONITORING_ENABLED"); v != "" {
		cfg.Monitor.Enabled = v != "false" && v != "0"
	}
}
