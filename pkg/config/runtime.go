package config

import "time"

// RuntimeConfig holds the tunables shared by every AgentRuntime's three
// tasks, mirroring the teacher's QueueConfig in shape: defaults live
// alongside the struct and are merged with operator overrides via mergo.
type RuntimeConfig struct {
	// BatchSize (N) bounds how many additional Pending messages the
	// processor drains as Peek-only context after a successful Claim.
	BatchSize int `yaml:"batch_size"`

	// HistorySize (K) bounds how many previous Completed messages are
	// fetched as conversation history for each handler invocation.
	HistorySize int `yaml:"history_size"`

	// IdlePollInterval is how long the processor sleeps after an empty
	// Claim before trying again.
	IdlePollInterval time.Duration `yaml:"idle_poll_interval"`

	// PausedPollInterval bounds how stale a KillSwitch/PauseState
	// observation may be (spec requires <= 2s).
	PausedPollInterval time.Duration `yaml:"paused_poll_interval"`

	// HeartbeatInterval is how often the heartbeat task pings the bus. 0
	// disables heartbeats.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// HeartbeatFailureThreshold is the number of consecutive Ping failures
	// before the runtime reconnects its BusClient.
	HeartbeatFailureThreshold int `yaml:"heartbeat_failure_threshold"`

	// MaxSendAttempts is loaded and defaulted here but no code reads it;
	// BusClient's attempt bound is the bus.MaxRetries constant.
	MaxSendAttempts int `yaml:"max_send_attempts"`

	// StartupGrace bounds how long Supervisor.Start waits for a runtime's
	// ready signal.
	StartupGrace time.Duration `yaml:"startup_grace"`

	// StopGrace bounds how long Supervisor.Stop waits for cooperative
	// shutdown before forcible termination.
	StopGrace time.Duration `yaml:"stop_grace"`

	// HandlerTimeout bounds how long a runtime may show no store progress
	// before the Supervisor's health watchdog kills it.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`

	// DonePauseDuration is the PauseState duration applied by the #done
	// command.
	DonePauseDuration time.Duration `yaml:"done_pause_duration"`

	// StaleClaimMaxAge is the RecoverStale threshold applied at process
	// start.
	StaleClaimMaxAge time.Duration `yaml:"stale_claim_max_age"`

	// ResetBacklogMaxIterations bounds ResetBacklog's remote-drain loop.
	ResetBacklogMaxIterations int `yaml:"reset_backlog_max_iterations"`

	// RetentionSweepSchedule is a cron expression for the MessageStore
	// tombstone sweep.
	RetentionSweepSchedule string `yaml:"retention_sweep_schedule"`

	// HealthWatchdogSchedule is a cron expression for the Supervisor's
	// handler-timeout scan.
	HealthWatchdogSchedule string `yaml:"health_watchdog_schedule"`

	// BusRateLimitPerMinute bounds BusClient/ResetBacklog request pacing.
	BusRateLimitPerMinute int `yaml:"bus_rate_limit_per_minute"`
}

// DefaultRuntimeConfig returns the built-in runtime defaults, exactly the
// values spec.md calls out by name.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		BatchSize:                 10,
		HistorySize:               25,
		IdlePollInterval:          100 * time.Millisecond,
		PausedPollInterval:        2 * time.Second,
		HeartbeatInterval:         240 * time.Second,
		HeartbeatFailureThreshold: 3,
		MaxSendAttempts:           5,
		StartupGrace:              30 * time.Second,
		StopGrace:                 10 * time.Second,
		HandlerTimeout:            10 * time.Minute,
		DonePauseDuration:         60 * time.Second,
		StaleClaimMaxAge:          5 * time.Minute,
		ResetBacklogMaxIterations: 200,
		RetentionSweepSchedule:    "@every 1h",
		HealthWatchdogSchedule:    "@every 30s",
		BusRateLimitPerMinute:     85,
	}
}
