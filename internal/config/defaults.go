package config

const (
	defaultWorkDir               = "~/.local/share/oea/work"
	defaultLogDir                = "~/.local/share/oea/logs"
	defaultDumpBinary            = "ovStoreDump"
	defaultDetectionBinary       = "findErrors"
	defaultAdjustmentBinary      = "correctOverlaps"
	defaultCommitBinary          = "loadErates"
	defaultMarkerName            = "evalues"
	defaultMemoryGiB             = 16
	defaultWindowSize            = 100000
	defaultMaxReadLength         = 2097151
	defaultErrorRate             = 0.045
	defaultMinOverlapLength      = 500
	defaultMaxAttempts           = 2
	defaultPollInterval          = 30
	defaultConcurrency           = 4
	defaultStagingBackend        = "local"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	stagingBackendLocal          = "local"
	stagingBackendGCS            = "gcs"
	configPathEnv                = "OEA_CONFIG"
	gcsCredentialsEnv            = "OEA_GCS_CREDENTIALS"
	googleApplicationCredentials = "GOOGLE_APPLICATION_CREDENTIALS"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Catalog: Catalog{
			DumpBinary: defaultDumpBinary,
		},
		Detection: Detection{
			Enabled:          true,
			Binary:           defaultDetectionBinary,
			MemoryGiB:        defaultMemoryGiB,
			WindowSize:       defaultWindowSize,
			ErrorRate:        defaultErrorRate,
			MinOverlapLength: defaultMinOverlapLength,
		},
		Adjustment: Adjustment{
			Enabled:          true,
			Binary:           defaultAdjustmentBinary,
			MemoryGiB:        defaultMemoryGiB,
			MaxReadLength:    defaultMaxReadLength,
			ErrorRate:        defaultErrorRate,
			MinOverlapLength: defaultMinOverlapLength,
		},
		Commit: Commit{
			Binary:     defaultCommitBinary,
			MarkerName: defaultMarkerName,
		},
		Workflow: Workflow{
			MaxAttempts:  defaultMaxAttempts,
			PollInterval: defaultPollInterval,
			Concurrency:  defaultConcurrency,
		},
		Staging: Staging{
			Backend: defaultStagingBackend,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
