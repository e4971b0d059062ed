package config

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "console"

	// Retry counts and delays below are empirically tuned; see protocol docs.
	defaultLockAttempts         = 5
	defaultLockDelayMS          = 100
	defaultRemovalAttempts      = 3
	defaultRemovalDelayMS       = 500
	defaultSettleMS             = 500
	defaultDisplayWindowSeconds = 3
	defaultDismountTool         = "fsutil"

	defaultSamplerIntervalSeconds = 2
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Eject: Eject{
			LockAttempts:         defaultLockAttempts,
			LockDelayMS:          defaultLockDelayMS,
			RemovalAttempts:      defaultRemovalAttempts,
			RemovalDelayMS:       defaultRemovalDelayMS,
			SettleMS:             defaultSettleMS,
			DisplayWindowSeconds: defaultDisplayWindowSeconds,
			DismountTool:         defaultDismountTool,
		},
		Sampler: Sampler{
			IntervalSeconds: defaultSamplerIntervalSeconds,
		},
	}
}
