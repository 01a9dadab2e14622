package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/bundlekit/manifest"
	"github.com/BaSui01/bundlekit/registry"
	"github.com/BaSui01/bundlekit/sniff"
)

// Subdirectories of the base directory.
const (
	AutoloadersDir = "autoloaders"
	ConfigDir      = "config"
	RoutingDir     = "routing"
	CacheDir       = "cache"

	resourceExt = ".yml"
)

// FactoryBuilder turns a cached source into a registry factory. A nil
// factory means the source cannot be loaded.
type FactoryBuilder func(decl sniff.Declaration, path string) registry.Factory

// Store is the file-backed installed state.
type Store struct {
	base    string
	sniffer sniff.Sniffer
	logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSniffer replaces the default regexp sniffer.
func WithSniffer(s sniff.Sniffer) Option {
	return func(st *Store) {
		if s != nil {
			st.sniffer = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(st *Store) {
		if logger != nil {
			st.logger = logger
		}
	}
}

// NewStore creates the base directory and its four subdirectories.
func NewStore(base string, opts ...Option) (*Store, error) {
	s := &Store{
		base:    base,
		sniffer: sniff.Regexp{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "state_store"))

	for _, dir := range []string{base, s.dir(AutoloadersDir), s.dir(ConfigDir), s.dir(RoutingDir), s.dir(CacheDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return s, nil
}

// BaseDir returns the base directory.
func (s *Store) BaseDir() string { return s.base }

func (s *Store) dir(parts ...string) string {
	return filepath.Join(append([]string{s.base}, parts...)...)
}

func (s *Store) manifestPath(id string) string {
	return s.dir(AutoloadersDir, id+manifest.Extension)
}

func (s *Store) routingPath(id string) string {
	return s.dir(RoutingDir, id+resourceExt)
}

func (s *Store) configPath(env, id string) string {
	return s.dir(ConfigDir, env, id+resourceExt)
}

// LoadInstalled reads every persisted manifest. A missing or empty
// directory yields an empty map.
func (s *Store) LoadInstalled() (map[string]*manifest.Manifest, error) {
	installed := make(map[string]*manifest.Manifest)

	entries, err := os.ReadDir(s.dir(AutoloadersDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return installed, nil
		}
		return nil, fmt.Errorf("read installed state: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != manifest.Extension {
			continue
		}
		id := strings.TrimSuffix(e.Name(), manifest.Extension)
		m, err := manifest.Load(id, filepath.Join(s.dir(AutoloadersDir), e.Name()))
		if err != nil {
			return nil, err
		}
		installed[m.Identifier()] = m
	}
	return installed, nil
}

// Persist copies the manifest and its declared config and routing
// resources into the layout. The copy always happens; existed reports
// whether a persisted manifest was already present.
func (s *Store) Persist(m *manifest.Manifest) (existed bool, err error) {
	id := m.Identifier()
	target := s.manifestPath(id)

	if _, statErr := os.Stat(target); statErr == nil {
		existed = true
	}

	if err := copyFile(m.Path(), target); err != nil {
		return existed, fmt.Errorf("persist manifest %s: %w", id, err)
	}

	// Resources dropped by an updated package must not linger.
	if err := s.removeResources(id); err != nil {
		s.logger.Warn("failed to clear previous resources", zap.String("identifier", id), zap.Error(err))
	}

	for _, r := range m.ConfigResources() {
		s.persistResource(id, r.Path, s.configPath(r.Environment, id))
	}
	if routing := m.RoutingResource(); routing != "" {
		s.persistResource(id, routing, s.routingPath(id))
	}
	return existed, nil
}

// persistResource copies a YAML resource after checking it parses.
// Unreadable or invalid resources are skipped.
func (s *Store) persistResource(id, src, dst string) {
	data, err := os.ReadFile(src)
	if err != nil {
		s.logger.Warn("resource not readable, skipped",
			zap.String("identifier", id), zap.String("path", src), zap.Error(err))
		return
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("resource is not valid YAML, skipped",
			zap.String("identifier", id), zap.String("path", src), zap.Error(err))
		return
	}
	if err := writeAtomic(dst, data); err != nil {
		s.logger.Warn("failed to persist resource",
			zap.String("identifier", id), zap.String("path", dst), zap.Error(err))
	}
}

// Remove deletes the persisted manifest and resources of id. Files that
// are already gone are not an error.
func (s *Store) Remove(id string) error {
	var errs []error
	if err := removeIfExists(s.manifestPath(id)); err != nil {
		errs = append(errs, err)
	}
	if err := s.removeResources(id); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Store) removeResources(id string) error {
	var errs []error
	if err := removeIfExists(s.routingPath(id)); err != nil {
		errs = append(errs, err)
	}
	matches, err := filepath.Glob(s.configPath("*", id))
	if err != nil {
		errs = append(errs, err)
	}
	for _, p := range matches {
		if err := removeIfExists(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CacheLifecycleArtifact copies src into cache/<id>/ and returns the
// cached path.
func (s *Store) CacheLifecycleArtifact(id, src string) (string, error) {
	dst := s.dir(CacheDir, id, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("cache lifecycle artifact for %s: %w", id, err)
	}
	return dst, nil
}

// CachedArtifactPath returns the cached copy of a source named name.
func (s *Store) CachedArtifactPath(id, name string) (string, bool) {
	p := s.dir(CacheDir, id, filepath.Base(name))
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return p, true
}

// PruneCache deletes every cached artifact of id.
func (s *Store) PruneCache(id string) error {
	if id == "" {
		return nil
	}
	return os.RemoveAll(s.dir(CacheDir, id))
}

// LoadCachedArtifacts sniffs every cached source and defines the types the
// registry does not know yet, using build to create their factories.
// Unreadable or unrecognisable files are skipped. It returns the names
// defined.
func (s *Store) LoadCachedArtifacts(reg registry.TypeRegistry, build FactoryBuilder) []string {
	files, err := filepath.Glob(s.dir(CacheDir, "*", "*"))
	if err != nil {
		s.logger.Warn("failed to list cached artifacts", zap.Error(err))
		return nil
	}
	sort.Strings(files)

	var defined []string
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		src, err := os.ReadFile(path)
		if err != nil {
			s.logger.Debug("cached artifact unreadable, skipped", zap.String("path", path), zap.Error(err))
			continue
		}
		decl, err := s.sniffer.Sniff(src)
		if err != nil {
			s.logger.Debug("cached artifact not recognised, skipped", zap.String("path", path), zap.Error(err))
			continue
		}
		name := decl.FQCN()
		if reg.Has(name) {
			continue
		}
		factory := build(decl, path)
		if factory == nil {
			s.logger.Warn("cached artifact does not load, skipped", zap.String("type", name), zap.String("path", path))
			continue
		}
		if reg.Define(name, factory) {
			defined = append(defined, name)
			s.logger.Debug("cached artifact loaded", zap.String("type", name), zap.String("path", path))
		}
	}
	return defined
}

// ResourceFiles returns the persisted config files for env (after those of
// "all") and routing files of ids, both in the order of ids.
func (s *Store) ResourceFiles(ids []string, env string) (config, routing []string) {
	envs := []string{manifest.EnvAll}
	if env != "" && env != manifest.EnvAll {
		envs = append(envs, env)
	}
	for _, id := range ids {
		for _, e := range envs {
			if fileExists(s.configPath(e, id)) {
				config = append(config, s.configPath(e, id))
			}
		}
		if fileExists(s.routingPath(id)) {
			routing = append(routing, s.routingPath(id))
		}
	}
	return config, routing
}
