// Package bundlekit discovers the plugins contributed by installed packages,
// keeps the persisted installed state in sync with them and exposes the
// ordered set of active plugins for the current environment.
//
// Usage:
//
//	cfg, _ := config.NewLoader().WithConfigPath("bundlekit.yaml").Load()
//	k, err := bundlekit.New(*cfg, bundlekit.WithRegistry(reg))
//	plugins, err := k.ActivePlugins(ctx)
//
// A Kernel runs one reconciliation pass in its lifetime. Later calls return
// the memoized set, or the memoized error, even if the disk changes.
package bundlekit

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/bundlekit/config"
	"github.com/BaSui01/bundlekit/lifecycle"
	"github.com/BaSui01/bundlekit/reconcile"
	"github.com/BaSui01/bundlekit/registry"
	"github.com/BaSui01/bundlekit/state"
)

// ActiveSet is the ordered set of active plugins.
type ActiveSet = reconcile.ActiveSet

// Entry is one active plugin.
type Entry = reconcile.Entry

// Kernel owns the active plugin set of a process.
type Kernel struct {
	cfg    config.Config
	store  *state.Store
	engine *reconcile.Engine
	logger *zap.Logger

	once         sync.Once
	bootstrapped atomic.Bool
	res          *reconcile.Result
	err          error
}

type options struct {
	preloaded     map[string]any
	standardRoots []string
	standardSet   bool
	extraRoots    []string
	engineOpts    []reconcile.Option
	logger        *zap.Logger
}

// Option configures a Kernel.
type Option func(*options)

// WithPreloaded marks classes the caller has already instantiated. They are
// never constructed and are left out of the active set.
func WithPreloaded(instances map[string]any) Option {
	return func(o *options) {
		if o.preloaded == nil {
			o.preloaded = make(map[string]any, len(instances))
		}
		for class, inst := range instances {
			o.preloaded[class] = inst
		}
	}
}

// WithStandardRoots replaces the configured standard package roots.
func WithStandardRoots(roots ...string) Option {
	return func(o *options) {
		o.standardRoots = roots
		o.standardSet = true
	}
}

// WithExtraRoots adds search roots to the configured ones.
func WithExtraRoots(roots ...string) Option {
	return func(o *options) {
		o.extraRoots = append(o.extraRoots, roots...)
	}
}

// WithRegistry sets the type registry plugin and action classes resolve in.
func WithRegistry(reg registry.TypeRegistry) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, reconcile.WithRegistry(reg))
	}
}

// WithExecutor sets the lifecycle executor.
func WithExecutor(x reconcile.LifecycleExecutor) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, reconcile.WithExecutor(x))
	}
}

// WithScriptOptions configures Lua plugin and action scripts.
func WithScriptOptions(opts ...lifecycle.ScriptOption) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, reconcile.WithScriptOptions(opts...))
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m reconcile.Metrics) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, reconcile.WithMetrics(m))
	}
}

// WithObserver adds a pass observer.
func WithObserver(obs reconcile.Observer) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, reconcile.WithObserver(obs))
	}
}

// WithTracer sets the tracer used for pass spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, reconcile.WithTracer(t))
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a Kernel for cfg. The state directory is created eagerly.
func New(cfg config.Config, opts ...Option) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	store, err := state.NewStore(cfg.StateDir(), state.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	standard := cfg.Project.StandardRoots
	if o.standardSet {
		standard = o.standardRoots
	}
	extra := append(append([]string(nil), cfg.Project.ExtraRoots...), o.extraRoots...)

	engine, err := reconcile.New(reconcile.Config{
		ProjectRoot:     cfg.Project.Root,
		VendorDir:       cfg.Project.VendorDir,
		Environment:     cfg.Project.Environment,
		StandardRoots:   resolveAll(cfg.Project.Root, standard),
		ExtraRoots:      resolveAll(cfg.Project.Root, extra),
		ScanConcurrency: cfg.Project.ScanConcurrency,
		Preloaded:       o.preloaded,
	}, store, append(o.engineOpts, reconcile.WithLogger(o.logger))...)
	if err != nil {
		return nil, fmt.Errorf("create reconciliation engine: %w", err)
	}

	return &Kernel{
		cfg:    cfg,
		store:  store,
		engine: engine,
		logger: o.logger.With(zap.String("component", "kernel")),
	}, nil
}

// ActivePlugins runs the reconciliation pass on the first call and returns
// its active set. Every later call returns the same set or the same error.
func (k *Kernel) ActivePlugins(ctx context.Context) (*ActiveSet, error) {
	k.once.Do(func() {
		k.res, k.err = k.engine.Run(ctx)
		k.bootstrapped.Store(true)
		if k.err != nil {
			k.logger.Error("bootstrap failed", zap.Error(k.err))
		}
	})
	if k.err != nil {
		return nil, k.err
	}
	return k.res.Active, nil
}

// Result returns the full pass result once bootstrapping succeeded.
func (k *Kernel) Result() (*reconcile.Result, bool) {
	if !k.Bootstrapped() || k.res == nil {
		return nil, false
	}
	return k.res, true
}

// ResourceFiles returns the persisted config files of the current
// environment and the routing files of the packages contributing active
// plugins, in activation order. It bootstraps the kernel if needed.
func (k *Kernel) ResourceFiles(ctx context.Context) (configFiles, routingFiles []string, err error) {
	set, err := k.ActivePlugins(ctx)
	if err != nil {
		return nil, nil, err
	}
	var ids []string
	seen := make(map[string]struct{})
	for _, e := range set.Entries() {
		if _, ok := seen[e.Package]; ok {
			continue
		}
		seen[e.Package] = struct{}{}
		ids = append(ids, e.Package)
	}
	configFiles, routingFiles = k.store.ResourceFiles(ids, k.engine.Environment())
	return configFiles, routingFiles, nil
}

// Bootstrapped reports whether the pass has run.
func (k *Kernel) Bootstrapped() bool { return k.bootstrapped.Load() }

// Store returns the installed state store.
func (k *Kernel) Store() *state.Store { return k.store }

// Registry returns the registry classes resolve in.
func (k *Kernel) Registry() registry.TypeRegistry { return k.engine.Registry() }

// Config returns the kernel configuration.
func (k *Kernel) Config() config.Config { return k.cfg }

func resolveAll(base string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}
