package config

import "time"

// Defaults returns the built-in configuration, matching the literal key
// names and thresholds named in spec.md §6 and §4.D.
func Defaults() *Config {
	return &Config{
		DatabaseURL:   "postgres://localhost:5432/nexus?sslmode=disable",
		RedisURL:      "redis://localhost:6379/0",
		StoragePath:   "data/artifacts",
		LLMConfigPath: "config/llm_config.yaml",
		Monitor: MonitorConfig{
			Enabled:              true,
			EventsChannel:        "nexus:events",
			StatsChannel:         "nexus:events:stats",
			ProjectChannelPrefix: "nexus:events:project:",
			MaxEventSizeBytes:    8192,
		},
		Queue: QueueConfig{
			HighPriorityKey:     "nexus:tasks:high_priority",
			NormalPriorityKey:   "nexus:tasks:normal_priority",
			LowPriorityKey:      "nexus:tasks:low_priority",
			ProcessingKeyPrefix: "nexus:processing:",
			HeartbeatKeyPrefix:  "nexus:worker:heartbeat:",
			HeartbeatInterval:   10 * time.Second,
			HeartbeatTTL:        30 * time.Second,
			MaxRetries:          5,
			DeadLetterKey:       "nexus:tasks:dead_letter",
			DelayedKey:          "nexus:tasks:delayed",
		},
		Worker: WorkerConfig{
			PopTimeout:    5 * time.Second,
			StageDeadline: 5 * time.Minute,
			ShutdownGrace: 5 * time.Minute,
		},
	}
}
