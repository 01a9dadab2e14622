package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// Context helpers
// =============================================================================

// TestContext returns a context cancelled when the test ends.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext returns an already cancelled context.
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// Project fixture
// =============================================================================

// VendorDir is the vendor directory name used by Project.
const VendorDir = "vendor"

// mapFileName matches scanner.MapFileName; duplicated to keep testutil free
// of module imports.
const mapFileName = "autoload_namespaces.json"

// Package describes a package written by Project.AddPackage.
type Package struct {
	// ClassFile is the depth-0 plugin class file name, e.g. "BlogPlugin.lua".
	// Empty means no class file.
	ClassFile string
	// Manifest is the raw bundles.json body. Empty means no manifest.
	Manifest string
	// Files are extra files relative to the package directory.
	Files map[string]string
}

// Project is a temporary project managed by a fake package manager.
type Project struct {
	t          *testing.T
	Root       string
	Vendor     string
	namespaces map[string][]string
}

// NewProject creates a project root with an empty namespace map.
func NewProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()
	p := &Project{
		t:          t,
		Root:       root,
		Vendor:     filepath.Join(root, VendorDir),
		namespaces: make(map[string][]string),
	}
	require.NoError(t, os.MkdirAll(p.Vendor, 0o755))
	p.writeMap()
	return p
}

// StateDir returns a state directory inside the project.
func (p *Project) StateDir() string {
	return filepath.Join(p.Root, "var", "bundles")
}

// AddPackage writes pkg under vendor/<rel> and maps namespace to it.
// It returns the package directory.
func (p *Project) AddPackage(namespace, rel string, pkg Package) string {
	p.t.Helper()
	dir := filepath.Join(p.Vendor, rel)
	require.NoError(p.t, os.MkdirAll(dir, 0o755))
	if pkg.ClassFile != "" {
		WriteFile(p.t, filepath.Join(dir, pkg.ClassFile), "-- plugin class\n")
	}
	if pkg.Manifest != "" {
		WriteFile(p.t, filepath.Join(dir, "bundles.json"), pkg.Manifest)
	}
	for name, body := range pkg.Files {
		WriteFile(p.t, filepath.Join(dir, name), body)
	}
	p.namespaces[namespace] = append(p.namespaces[namespace], dir)
	p.writeMap()
	return dir
}

// RemovePackage deletes every directory mapped to namespace and unmaps it.
func (p *Project) RemovePackage(namespace string) {
	p.t.Helper()
	for _, dir := range p.namespaces[namespace] {
		require.NoError(p.t, os.RemoveAll(dir))
	}
	delete(p.namespaces, namespace)
	p.writeMap()
}

func (p *Project) writeMap() {
	data, err := json.MarshalIndent(p.namespaces, "", "  ")
	require.NoError(p.t, err)
	WriteFile(p.t, filepath.Join(p.Vendor, mapFileName), string(data))
}

// WriteFile writes body to path, creating parent directories.
func WriteFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}
