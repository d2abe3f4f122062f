package config

const (
	defaultDataDir            = "~/.local/share/milltrack"
	defaultLogDir             = "~/.local/share/milltrack/logs"
	defaultMinFreeSpaceGiB    = 1
	defaultLockStaleSeconds   = 300
	defaultLogLevel           = "info"
	defaultLogFormat          = "console"
	defaultNotifyTimeoutSecs  = 10
	defaultNotifyBatchEvents  = true
	defaultNotifyDisposal     = true
	defaultRequireSplitBal    = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			LogDir:        defaultLogDir,
			MinFreeSpace:  defaultMinFreeSpaceGiB,
			LockStaleSecs: defaultLockStaleSeconds,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeoutSecs,
			BatchEvents:    defaultNotifyBatchEvents,
			DisposalEvents: defaultNotifyDisposal,
		},
		Identity: Identity{
			Producers: map[string]string{},
			Handlers:  map[string]string{},
		},
		Processing: Processing{
			RequireSplitBalance: defaultRequireSplitBal,
		},
	}
}
