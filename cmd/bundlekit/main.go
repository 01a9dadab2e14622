package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/bundlekit"
	"github.com/BaSui01/bundlekit/config"
	"github.com/BaSui01/bundlekit/internal/history"
	"github.com/BaSui01/bundlekit/internal/metrics"
	"github.com/BaSui01/bundlekit/internal/telemetry"
)

// Set at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "sync":
		err = runSync(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// Shared setup
// =============================================================================

// commonFlags are accepted by every command that touches a project.
type commonFlags struct {
	configPath *string
	root       *string
	env        *string
}

func registerCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", "", "Path to config file"),
		root:       fs.String("root", "", "Project root (overrides project.root)"),
		env:        fs.String("env", "", "Environment (overrides project.environment)"),
	}
}

func (f commonFlags) load() (*config.Config, error) {
	loader := config.NewLoader()
	if *f.configPath != "" {
		loader = loader.WithConfigPath(*f.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if *f.root != "" {
		cfg.Project.Root = *f.root
	}
	if *f.env != "" {
		cfg.Project.Environment = *f.env
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runtime holds the ambient services of one command invocation.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	providers *telemetry.Providers
	registry  *prometheus.Registry
	collector *metrics.Collector
	recorder  *history.Recorder
}

func newRuntime(cfg *config.Config) *runtime {
	logger := initLogger(cfg.Log)
	rt := &runtime{cfg: cfg, logger: logger}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	rt.providers = providers

	if cfg.Metrics.Enabled {
		rt.registry = prometheus.NewRegistry()
		rt.collector = metrics.NewCollector(cfg.Metrics.Namespace, rt.registry, logger)
	}

	if cfg.History.Enabled {
		rec, err := history.Open(cfg.HistoryPath(), logger)
		if err != nil {
			logger.Warn("history ledger not available", zap.Error(err))
		} else {
			rt.recorder = rec
		}
	}
	return rt
}

// kernel builds a fresh Kernel wired to the runtime services.
func (rt *runtime) kernel() (*bundlekit.Kernel, error) {
	opts := []bundlekit.Option{bundlekit.WithLogger(rt.logger)}
	if rt.providers != nil && rt.providers.Enabled() {
		opts = append(opts, bundlekit.WithTracer(rt.providers.Tracer("github.com/BaSui01/bundlekit/reconcile")))
	}
	if rt.collector != nil {
		opts = append(opts, bundlekit.WithMetrics(rt.collector))
	}
	if rt.recorder != nil {
		opts = append(opts, bundlekit.WithObserver(rt.recorder))
	}
	return bundlekit.New(*rt.cfg, opts...)
}

func (rt *runtime) close() {
	if rt.recorder != nil {
		if err := rt.recorder.Close(); err != nil {
			rt.logger.Warn("failed to close history ledger", zap.Error(err))
		}
	}
	if rt.providers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.providers.Shutdown(ctx); err != nil {
			rt.logger.Warn("failed to shut down telemetry", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}

// =============================================================================
// Version and help
// =============================================================================

func printVersion() {
	fmt.Printf("bundlekit %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`bundlekit - plugin discovery and lifecycle reconciliation

Usage:
  bundlekit <command> [options]

Commands:
  sync      Run one reconciliation pass and print the active plugins
  status    Show installed packages and recent passes
  watch     Re-run a pass whenever the package map or an extra root changes
  version   Show version information
  help      Show this help message

Options for 'sync', 'status' and 'watch':
  --config <path>   Path to configuration file (YAML)
  --root <dir>      Project root
  --env <name>      Current environment

Options for 'status':
  --limit <n>       Number of recent passes to show (default 10)

Examples:
  bundlekit sync --env prod
  bundlekit status --config /etc/bundlekit/config.yaml
  bundlekit watch --root /srv/app`)
}

// =============================================================================
// Logging
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
