package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/bundlekit/lifecycle"
	"github.com/BaSui01/bundlekit/manifest"
	"github.com/BaSui01/bundlekit/registry"
	"github.com/BaSui01/bundlekit/scanner"
	"github.com/BaSui01/bundlekit/types"
)

// record is one plugin declaration seen during a pass.
type record struct {
	manifest.Declaration
	identifier string
	pkg        string
}

// pass holds the transient state of one Run.
type pass struct {
	e      *Engine
	id     string
	logger *zap.Logger

	installed map[string]*manifest.Manifest
	stale     map[string]struct{}
	records   []record

	active       *ActiveSet
	constructed  map[string]struct{}
	instantiated int
	scores       *orderedmap.OrderedMap[string, int]

	res *Result
}

func newPass(e *Engine, id string, logger *zap.Logger) *pass {
	return &pass{
		e:           e,
		id:          id,
		logger:      logger,
		stale:       make(map[string]struct{}),
		active:      newActiveSet(),
		constructed: make(map[string]struct{}),
		scores:      orderedmap.New[string, int](),
		res: &Result{
			PassID:      id,
			Environment: e.cfg.Environment,
			Installed:   make(map[string]manifest.LifecycleAction),
			Uninstalled: make(map[string]manifest.LifecycleAction),
		},
	}
}

func (p *pass) run(ctx context.Context) (*Result, error) {
	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"install", p.install},
		{"uninstall", p.uninstall},
		{"arrange", p.arrange},
		{"order", p.order},
	}
	for _, ph := range phases {
		if err := p.phase(ctx, ph.name, ph.fn); err != nil {
			return nil, err
		}
	}
	p.res.Active = p.active
	p.res.Instantiated = p.instantiated
	return p.res, nil
}

func (p *pass) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.e.tracer.Start(ctx, "reconcile."+name, trace.WithAttributes(
		attribute.String("bundlekit.pass_id", p.id),
	))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// =============================================================================
// Phase 1: install
// =============================================================================

func (p *pass) install(ctx context.Context) error {
	cfg := p.e.cfg
	pm, err := scanner.LoadPackageMap(cfg.ProjectRoot, cfg.VendorDir)
	if err != nil {
		return err
	}

	installed, err := p.e.store.LoadInstalled()
	if err != nil {
		return err
	}
	p.installed = installed
	for id := range installed {
		p.stale[id] = struct{}{}
	}

	found, err := p.e.scanner.Scan(ctx, pm)
	if err != nil {
		return err
	}

	for _, f := range found {
		p.installPackage(f.Manifest)
	}

	if err := p.e.executor.ExecuteInstall(ctx, p.res.Installed); err != nil {
		return lifecycleError(lifecycle.PhaseInstall, err)
	}
	return nil
}

func (p *pass) installPackage(m *manifest.Manifest) {
	id := m.Identifier()
	p.res.Discovered = append(p.res.Discovered, id)

	if p.e.indexer != nil {
		if names := p.e.indexer.IndexDir(m.Dir()); len(names) > 0 {
			p.logger.Debug("package sources indexed", zap.String("package", id), zap.Strings("types", names))
		}
	}

	existed, err := p.e.store.Persist(m)
	if err != nil {
		p.logger.Warn("failed to persist manifest", zap.String("package", id), zap.Error(err))
	}

	for _, d := range m.Declarations() {
		p.records = append(p.records, record{Declaration: d, identifier: d.Identifier(), pkg: id})
	}

	if class, ok := m.LifecycleActionClass(p.e.reg); ok {
		prev := p.installed[id]
		if prev == nil || prev.ActionClassName() != class {
			action := *m.Action()
			p.res.Installed[id] = action
			if _, err := p.e.store.CacheLifecycleArtifact(id, action.SourcePath); err != nil {
				p.logger.Warn("failed to cache lifecycle artifact",
					zap.String("package", id), zap.String("source", action.SourcePath), zap.Error(err))
			}
		}
	}

	delete(p.stale, id)
	p.logger.Debug("package discovered", zap.String("package", id), zap.Bool("previously_persisted", existed))
}

// =============================================================================
// Phase 2: uninstall
// =============================================================================

func (p *pass) uninstall(ctx context.Context) error {
	ids := make([]string, 0, len(p.stale))
	for id := range p.stale {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if prev := p.installed[id]; prev != nil {
			if action := prev.Action(); action != nil {
				if cached, ok := p.e.store.CachedArtifactPath(id, action.SourcePath); ok {
					action.SourcePath = cached
				}
				p.res.Uninstalled[id] = *action
			}
		}
		if err := p.e.store.Remove(id); err != nil {
			p.logger.Warn("failed to remove persisted state", zap.String("package", id), zap.Error(err))
		}
		p.res.Removed = append(p.res.Removed, id)
	}

	if names := p.e.store.LoadCachedArtifacts(p.e.reg, p.e.build); len(names) > 0 {
		p.logger.Debug("cached artifacts loaded", zap.Strings("types", names))
	}

	if err := p.e.executor.ExecuteUninstall(ctx, p.res.Uninstalled); err != nil {
		return lifecycleError(lifecycle.PhaseUninstall, err)
	}

	for _, id := range ids {
		if err := p.e.store.PruneCache(id); err != nil {
			p.logger.Warn("failed to prune artifact cache", zap.String("package", id), zap.Error(err))
		}
	}
	return nil
}

// =============================================================================
// Phase 3: arrange
// =============================================================================

func (p *pass) arrange(ctx context.Context) error {
	env := p.e.cfg.Environment

	// Classes claimed by any named environment leave "all".
	named := make(map[string]struct{})
	for _, r := range p.records {
		for _, e := range r.Environments {
			if e != manifest.EnvAll {
				named[r.ClassName] = struct{}{}
			}
		}
	}

	for _, r := range p.records {
		if !r.InEnvironment(manifest.EnvAll) {
			continue
		}
		if _, ok := named[r.ClassName]; ok {
			continue
		}
		if err := p.activate(r); err != nil {
			return err
		}
	}

	if env == manifest.EnvAll {
		return nil
	}
	for _, r := range p.records {
		if !r.InEnvironment(env) {
			continue
		}
		if err := p.activate(r); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) activate(r record) error {
	if _, ok := p.constructed[r.ClassName]; ok {
		return nil
	}
	// The caller owns preloaded instances; they satisfy the class and are
	// not part of the returned set.
	if _, ok := p.e.cfg.Preloaded[r.ClassName]; ok {
		p.constructed[r.ClassName] = struct{}{}
		p.logger.Debug("plugin already instantiated by caller, skipped",
			zap.String("identifier", r.identifier), zap.String("class", r.ClassName))
		return nil
	}

	inst, err := p.instantiate(r.ClassName)
	if err != nil {
		return err
	}
	p.instantiated++
	p.constructed[r.ClassName] = struct{}{}

	entry := Entry{Identifier: r.identifier, ClassName: r.ClassName, Package: r.pkg, Instance: inst}
	if p.active.put(entry) {
		p.logger.Warn("plugin identifier reused by another class",
			zap.String("identifier", r.identifier), zap.String("class", r.ClassName))
	}
	p.logger.Debug("plugin activated",
		zap.String("identifier", r.identifier),
		zap.String("class", r.ClassName))

	if len(r.Overrides) > 0 {
		if _, ok := p.scores.Get(r.identifier); !ok {
			p.scores.Set(r.identifier, 0)
		}
		for _, o := range r.Overrides {
			v, _ := p.scores.Get(o)
			p.scores.Set(o, v+1)
		}
	}
	return nil
}

func (p *pass) instantiate(class string) (any, error) {
	if !p.e.reg.Has(class) {
		return nil, types.NewUnresolvableClassError(class)
	}
	inst, err := p.e.reg.Instantiate(class)
	if err != nil {
		if errors.Is(err, registry.ErrTypeNotFound) {
			return nil, types.NewUnresolvableClassError(class)
		}
		return nil, types.NewInstantiationError(class, err)
	}
	return inst, nil
}

// =============================================================================
// Phase 4: order
// =============================================================================

func (p *pass) order(ctx context.Context) error {
	scores := make([]Score, 0, p.scores.Len())
	for pair := p.scores.Oldest(); pair != nil; pair = pair.Next() {
		scores = append(scores, Score{Identifier: pair.Key, Value: pair.Value})
	}

	// Overriders before what they override; ties keep insertion order.
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Value < scores[j].Value
	})

	for _, s := range scores {
		p.active.moveToEnd(s.Identifier)
	}
	p.res.Scores = scores
	return nil
}

func lifecycleError(phase string, err error) error {
	if types.IsErrorCode(err, types.ErrCodeLifecycle) {
		return err
	}
	return types.NewLifecycleError(phase, fmt.Errorf("executor: %w", err))
}
