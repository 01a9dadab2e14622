// =============================================================================
// bundlekit configuration loader
// =============================================================================
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("bundlekit.yaml").
//	    WithEnvPrefix("BUNDLEKIT").
//	    Load()
//
// Priority: defaults -> YAML file -> environment
// =============================================================================
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix prefixes every environment variable.
const DefaultEnvPrefix = "BUNDLEKIT"

// =============================================================================
// Configuration structure
// =============================================================================

// Config is the complete bundlekit configuration.
type Config struct {
	Project   ProjectConfig   `yaml:"project" env:"PROJECT"`
	State     StateConfig     `yaml:"state" env:"STATE"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	History   HistoryConfig   `yaml:"history" env:"HISTORY"`
	Watch     WatchConfig     `yaml:"watch" env:"WATCH"`
}

// ProjectConfig locates the project and selects the environment.
type ProjectConfig struct {
	// Root of the project.
	Root string `yaml:"root" env:"ROOT"`
	// VendorDir holds the package manager output, relative to Root.
	VendorDir string `yaml:"vendor_dir" env:"VENDOR_DIR"`
	// Environment to activate plugins for.
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	// StandardRoots restrict scanned package paths; empty admits all.
	StandardRoots []string `yaml:"standard_roots" env:"STANDARD_ROOTS"`
	// ExtraRoots are searched outside the package map.
	ExtraRoots []string `yaml:"extra_roots" env:"EXTRA_ROOTS"`
	// ScanConcurrency bounds concurrent package probes.
	ScanConcurrency int `yaml:"scan_concurrency" env:"SCAN_CONCURRENCY"`
}

// StateConfig locates the persisted installed state.
type StateConfig struct {
	// BaseDir is relative to the project root unless absolute.
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
}

// LogConfig configures zap.
type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// json or console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig configures Prometheus export.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// TextfilePath receives the metrics after a one-shot sync, in the
	// node_exporter textfile format. Empty disables.
	TextfilePath string `yaml:"textfile_path" env:"TEXTFILE_PATH"`
	// ListenAddr serves /metrics while watching. Empty disables.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// HistoryConfig configures the transition ledger.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Path of the sqlite database, relative to the state directory unless
	// absolute.
	Path string `yaml:"path" env:"PATH"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	Debounce time.Duration `yaml:"debounce" env:"DEBOUNCE"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads configuration (builder style).
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file. A missing file keeps the defaults.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validator run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks struct fields by their env tags.
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// Comma separated string lists.
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// MustLoad loads path or panics.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// StateDir returns the state base directory resolved against the project
// root.
func (c *Config) StateDir() string {
	return c.resolve(c.Project.Root, c.State.BaseDir)
}

// HistoryPath returns the history database path.
func (c *Config) HistoryPath() string {
	return c.resolve(c.StateDir(), c.History.Path)
}

// VendorPath returns the vendor directory resolved against the project
// root.
func (c *Config) VendorPath() string {
	return c.resolve(c.Project.Root, c.Project.VendorDir)
}

func (c *Config) resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Project.Root == "" {
		errs = append(errs, "project.root is required")
	}
	if c.Project.VendorDir == "" {
		errs = append(errs, "project.vendor_dir is required")
	}
	if c.Project.Environment == "" {
		errs = append(errs, "project.environment is required")
	}
	if c.Project.ScanConcurrency < 0 {
		errs = append(errs, "project.scan_concurrency must not be negative")
	}
	if c.State.BaseDir == "" {
		errs = append(errs, "state.base_dir is required")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}
	if c.Watch.Interval <= 0 {
		errs = append(errs, "watch.interval must be positive")
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, "watch.debounce must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
