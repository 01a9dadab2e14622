package lifecycle

import (
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/bundlekit/registry"
	"github.com/BaSui01/bundlekit/sniff"
)

// SourceExt is the extension of indexed sources.
const SourceExt = ".lua"

// ScriptFactory returns a factory builder for Lua sources. The source is
// compiled when the type is defined, so instances stay usable after the
// file is gone. Each instantiation returns a new Script. A source that does
// not compile yields a nil factory and is never defined.
func ScriptFactory(opts ...ScriptOption) func(decl sniff.Declaration, path string) registry.Factory {
	return func(decl sniff.Declaration, path string) registry.Factory {
		compiled, err := LoadScript(decl.FQCN(), path, opts...)
		if err != nil {
			return nil
		}
		return func() (any, error) {
			s := *compiled
			return &s, nil
		}
	}
}

// Indexer defines registry types for the Lua sources of package
// directories.
type Indexer struct {
	reg     registry.TypeRegistry
	sniffer sniff.Sniffer
	build   func(decl sniff.Declaration, path string) registry.Factory
	logger  *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithSniffer replaces the default sniffer.
func WithSniffer(s sniff.Sniffer) IndexerOption {
	return func(ix *Indexer) {
		if s != nil {
			ix.sniffer = s
		}
	}
}

// WithScriptOptions sets the options applied to every loaded Script.
func WithScriptOptions(opts ...ScriptOption) IndexerOption {
	return func(ix *Indexer) {
		ix.build = ScriptFactory(opts...)
	}
}

// WithIndexLogger sets the logger.
func WithIndexLogger(logger *zap.Logger) IndexerOption {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// NewIndexer creates an Indexer defining types in reg.
func NewIndexer(reg registry.TypeRegistry, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		reg:     reg,
		sniffer: sniff.Regexp{},
		build:   ScriptFactory(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.With(zap.String("component", "lifecycle_indexer"))
	return ix
}

// IndexDir sniffs the depth-0 sources of dir and defines every type the
// registry does not know yet. It returns the names defined.
func (ix *Indexer) IndexDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		ix.logger.Debug("package directory not readable", zap.String("dir", dir), zap.Error(err))
		return nil
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != SourceExt {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return IndexSources(ix.reg, ix.sniffer, ix.build, ix.logger, paths...)
}

// IndexSources sniffs each path and defines its declared type in reg
// unless already present. Unreadable or unrecognised sources are skipped.
func IndexSources(reg registry.TypeRegistry, sniffer sniff.Sniffer, build func(decl sniff.Declaration, path string) registry.Factory, logger *zap.Logger, paths ...string) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	var defined []string
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			logger.Debug("source not readable, skipped", zap.String("path", path), zap.Error(err))
			continue
		}
		decl, err := sniffer.Sniff(src)
		if err != nil {
			logger.Debug("source has no declaration, skipped", zap.String("path", path))
			continue
		}
		name := decl.FQCN()
		if reg.Has(name) {
			continue
		}
		factory := build(decl, path)
		if factory == nil {
			logger.Warn("source does not load, skipped", zap.String("type", name), zap.String("path", path))
			continue
		}
		if reg.Define(name, factory) {
			defined = append(defined, name)
		}
	}
	return defined
}
