// Package scanner locates packages that carry a plugin manifest.
//
// A package qualifies when its directory holds, at depth 0, a class file
// following the *Plugin naming convention and a bundles.json manifest.
// Anything else is a normal negative result and never an error.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/bundlekit/manifest"
)

// PackageRef is one namespace entry of the package map.
type PackageRef struct {
	Namespace string
	Path      string
}

// Found is a package that carries a manifest.
type Found struct {
	Ref       PackageRef
	ClassFile string
	Manifest  *manifest.Manifest
}

// Scanner probes candidate package directories.
type Scanner struct {
	standardRoots []string
	extraRoots    []string
	concurrency   int
	logger        *zap.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithStandardRoots sets the allow-list of roots mapped packages must live
// under. An empty list admits every mapped path.
func WithStandardRoots(roots ...string) Option {
	return func(s *Scanner) {
		s.standardRoots = cleanAll(roots)
	}
}

// WithExtraRoots adds search roots outside the package map. Each root and
// each of its immediate subdirectories is a candidate.
func WithExtraRoots(roots ...string) Option {
	return func(s *Scanner) {
		s.extraRoots = append(s.extraRoots, cleanAll(roots)...)
	}
}

// WithConcurrency bounds how many directories are probed at once.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		concurrency: 8,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "package_scanner"))
	return s
}

// Candidates returns the directories Scan will probe, in probe order:
// admitted mapped paths sorted by namespace then path, followed by the
// extra roots in the order given. Each directory appears once.
func (s *Scanner) Candidates(pm PackageMap) []PackageRef {
	seen := make(map[string]struct{})
	var refs []PackageRef

	add := func(ref PackageRef) {
		ref.Path = filepath.Clean(ref.Path)
		if _, ok := seen[ref.Path]; ok {
			return
		}
		seen[ref.Path] = struct{}{}
		refs = append(refs, ref)
	}

	for _, ns := range pm.Namespaces() {
		paths := append([]string(nil), pm[ns]...)
		sort.Strings(paths)
		for _, p := range paths {
			if !s.admitted(p) {
				s.logger.Debug("path outside standard roots", zap.String("namespace", ns), zap.String("path", p))
				continue
			}
			add(PackageRef{Namespace: ns, Path: p})
		}
	}

	for _, root := range s.extraRoots {
		add(PackageRef{Path: root})
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				add(PackageRef{Path: filepath.Join(root, e.Name())})
			}
		}
	}
	return refs
}

func (s *Scanner) admitted(p string) bool {
	if len(s.standardRoots) == 0 {
		return true
	}
	p = filepath.Clean(p)
	for _, root := range s.standardRoots {
		if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Scan probes every candidate and returns the packages carrying a manifest
// in candidate order. When two packages share an identifier the first one
// wins. A malformed manifest aborts the scan.
func (s *Scanner) Scan(ctx context.Context, pm PackageMap) ([]Found, error) {
	candidates := s.Candidates(pm)
	results := make([]*Found, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, ref := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found, err := probe(ref)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Found, 0, len(results))
	byID := make(map[string]string)
	for _, f := range results {
		if f == nil {
			continue
		}
		id := f.Manifest.Identifier()
		if prev, dup := byID[id]; dup {
			s.logger.Warn("duplicate package identifier ignored",
				zap.String("identifier", id),
				zap.String("kept", prev),
				zap.String("ignored", f.Ref.Path))
			continue
		}
		byID[id] = f.Ref.Path
		out = append(out, *f)
	}

	s.logger.Debug("scan complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("packages", len(out)))
	return out, nil
}

// probe inspects one directory. It returns nil, nil when the directory is
// not a plugin package.
func probe(ref PackageRef) (*Found, error) {
	entries, err := os.ReadDir(ref.Path)
	if err != nil {
		// Missing or unreadable directories are negative results.
		return nil, nil
	}

	classFile := ""
	for _, e := range entries {
		if !e.IsDir() && manifest.IsClassFile(e.Name()) {
			classFile = filepath.Join(ref.Path, e.Name())
			break
		}
	}
	if classFile == "" {
		return nil, nil
	}

	manifestPath := filepath.Join(ref.Path, manifest.FileName)
	info, err := os.Stat(manifestPath)
	if err != nil || info.IsDir() {
		return nil, nil
	}

	m, err := manifest.Load(manifest.PackageIdentifier(classFile), manifestPath)
	if err != nil {
		return nil, err
	}
	return &Found{Ref: ref, ClassFile: classFile, Manifest: m}, nil
}

func cleanAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}
