package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/bundlekit/internal/ctxkeys"
	"github.com/BaSui01/bundlekit/lifecycle"
	"github.com/BaSui01/bundlekit/manifest"
	"github.com/BaSui01/bundlekit/registry"
	"github.com/BaSui01/bundlekit/scanner"
	"github.com/BaSui01/bundlekit/state"
)

const tracerName = "github.com/BaSui01/bundlekit/reconcile"

// Pass statuses reported to Metrics.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// LifecycleExecutor runs staged lifecycle actions. Each method is called
// exactly once per pass.
type LifecycleExecutor interface {
	ExecuteInstall(ctx context.Context, actions map[string]manifest.LifecycleAction) error
	ExecuteUninstall(ctx context.Context, actions map[string]manifest.LifecycleAction) error
}

// Store is the installed state the engine reconciles against.
type Store interface {
	LoadInstalled() (map[string]*manifest.Manifest, error)
	Persist(m *manifest.Manifest) (existed bool, err error)
	Remove(id string) error
	CacheLifecycleArtifact(id, src string) (string, error)
	CachedArtifactPath(id, name string) (string, bool)
	LoadCachedArtifacts(reg registry.TypeRegistry, build state.FactoryBuilder) []string
	PruneCache(id string) error
}

// SourceIndexer makes the sources of a package directory resolvable.
type SourceIndexer interface {
	IndexDir(dir string) []string
}

// Observer is told about every finished pass. res is nil when err is set.
type Observer interface {
	PassCompleted(ctx context.Context, passID string, res *Result, err error)
}

// Metrics receives pass measurements.
type Metrics interface {
	RecordPass(status string, duration time.Duration)
	RecordTransitions(installed, uninstalled int)
	RecordActivation(active, instantiated int)
}

// Config describes the project a pass reconciles.
type Config struct {
	// ProjectRoot holds the vendor directory.
	ProjectRoot string
	// VendorDir is relative to ProjectRoot unless absolute.
	VendorDir string
	// Environment is the current environment name.
	Environment string
	// StandardRoots restrict which mapped package paths are scanned.
	StandardRoots []string
	// ExtraRoots are searched in addition to the package map.
	ExtraRoots []string
	// ScanConcurrency bounds concurrent package probes.
	ScanConcurrency int
	// Preloaded maps class names to instances the caller already owns.
	// Those classes are never constructed and never returned.
	Preloaded map[string]any
}

// Engine runs reconciliation passes.
type Engine struct {
	cfg       Config
	store     Store
	scanner   *scanner.Scanner
	reg       registry.TypeRegistry
	executor  LifecycleExecutor
	indexer   SourceIndexer
	build     state.FactoryBuilder
	metrics   Metrics
	observers []Observer
	tracer    trace.Tracer
	logger    *zap.Logger

	indexerSet bool
	scriptOpts []lifecycle.ScriptOption
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the type registry. Defaults to an empty registry.Map.
func WithRegistry(reg registry.TypeRegistry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.reg = reg
		}
	}
}

// WithExecutor sets the lifecycle executor. Defaults to a
// lifecycle.Dispatcher over the registry.
func WithExecutor(x LifecycleExecutor) Option {
	return func(e *Engine) {
		if x != nil {
			e.executor = x
		}
	}
}

// WithIndexer sets the source indexer run on every discovered package. nil
// disables indexing. Defaults to a Lua lifecycle.Indexer.
func WithIndexer(ix SourceIndexer) Option {
	return func(e *Engine) {
		e.indexer = ix
		e.indexerSet = true
	}
}

// WithScriptOptions sets the options of Lua scripts created by the default
// indexer and by cached artifact reloads.
func WithScriptOptions(opts ...lifecycle.ScriptOption) Option {
	return func(e *Engine) {
		e.scriptOpts = append(e.scriptOpts, opts...)
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithObserver adds a pass observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine reconciling cfg against store.
func New(cfg Config, store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("reconcile: store is required")
	}
	if cfg.ProjectRoot == "" {
		return nil, errors.New("reconcile: project root is required")
	}
	if cfg.Environment == "" {
		cfg.Environment = manifest.EnvAll
	}

	e := &Engine{
		cfg:     cfg,
		store:   store,
		metrics: nopMetrics{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "reconcile"))

	if e.reg == nil {
		e.reg = registry.NewMap(e.logger)
	}
	if e.executor == nil {
		e.executor = lifecycle.NewDispatcher(e.reg, e.logger)
	}
	if !e.indexerSet {
		e.indexer = lifecycle.NewIndexer(e.reg,
			lifecycle.WithScriptOptions(e.scriptOpts...),
			lifecycle.WithIndexLogger(e.logger))
	}
	e.build = lifecycle.ScriptFactory(e.scriptOpts...)
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}

	scanOpts := []scanner.Option{
		scanner.WithStandardRoots(cfg.StandardRoots...),
		scanner.WithExtraRoots(cfg.ExtraRoots...),
		scanner.WithLogger(e.logger),
	}
	if cfg.ScanConcurrency > 0 {
		scanOpts = append(scanOpts, scanner.WithConcurrency(cfg.ScanConcurrency))
	}
	e.scanner = scanner.New(scanOpts...)

	return e, nil
}

// Registry returns the type registry used by the engine.
func (e *Engine) Registry() registry.TypeRegistry { return e.reg }

// Environment returns the environment being reconciled.
func (e *Engine) Environment() string { return e.cfg.Environment }

// Run executes one pass. On failure it returns a nil result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	passID := uuid.NewString()
	ctx = ctxkeys.WithPassID(ctx, passID)
	ctx = ctxkeys.WithEnvironment(ctx, e.cfg.Environment)

	ctx, span := e.tracer.Start(ctx, "reconcile.pass", trace.WithAttributes(
		attribute.String("bundlekit.pass_id", passID),
		attribute.String("bundlekit.environment", e.cfg.Environment),
	))
	defer span.End()

	logger := e.logger.With(zap.String("pass_id", passID), zap.String("environment", e.cfg.Environment))
	logger.Info("reconciliation pass started")

	start := time.Now()
	p := newPass(e, passID, logger)
	res, err := p.run(ctx)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.RecordPass(StatusFailed, duration)
		logger.Error("reconciliation pass failed", zap.Error(err), zap.Duration("duration", duration))
		e.notify(ctx, passID, nil, err)
		return nil, err
	}

	res.Duration = duration
	span.SetAttributes(
		attribute.Int("bundlekit.active", res.Active.Len()),
		attribute.Int("bundlekit.installed", len(res.Installed)),
		attribute.Int("bundlekit.uninstalled", len(res.Uninstalled)),
	)
	e.metrics.RecordPass(StatusSuccess, duration)
	e.metrics.RecordTransitions(len(res.Installed), len(res.Uninstalled))
	e.metrics.RecordActivation(res.Active.Len(), res.Instantiated)

	logger.Info("reconciliation pass completed",
		zap.Int("discovered", len(res.Discovered)),
		zap.Int("installed", len(res.Installed)),
		zap.Int("uninstalled", len(res.Uninstalled)),
		zap.Int("active", res.Active.Len()),
		zap.Duration("duration", duration))
	e.notify(ctx, passID, res, nil)
	return res, nil
}

func (e *Engine) notify(ctx context.Context, passID string, res *Result, err error) {
	for _, o := range e.observers {
		o.PassCompleted(ctx, passID, res, err)
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordPass(string, time.Duration) {}
func (nopMetrics) RecordTransitions(int, int)       {}
func (nopMetrics) RecordActivation(int, int)        {}
