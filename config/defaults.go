// =============================================================================
// bundlekit default configuration
// =============================================================================
package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Project:   DefaultProjectConfig(),
		State:     DefaultStateConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
		History:   DefaultHistoryConfig(),
		Watch:     DefaultWatchConfig(),
	}
}

// DefaultProjectConfig returns the default project configuration.
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Root:            ".",
		VendorDir:       "vendor",
		Environment:     "dev",
		ScanConcurrency: 8,
	}
}

// DefaultStateConfig returns the default state configuration.
func DefaultStateConfig() StateConfig {
	return StateConfig{
		BaseDir: "var/bundles",
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "bundlekit",
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "bundlekit",
		SampleRate:   1.0,
	}
}

// DefaultHistoryConfig returns the default history configuration.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		Enabled: false,
		Path:    "history.db",
	}
}

// DefaultWatchConfig returns the default watch configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Interval: time.Second,
		Debounce: 200 * time.Millisecond,
	}
}
