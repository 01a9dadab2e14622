package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/bundlekit/testutil"
	"github.com/BaSui01/bundlekit/testutil/fixtures"
	"github.com/BaSui01/bundlekit/types"
)

func TestLoadPackageMap(t *testing.T) {
	p := testutil.NewProject(t)
	dir := p.AddPackage("Acme.Blog", "acme/blog", testutil.Package{})

	pm, err := LoadPackageMap(p.Root, testutil.VendorDir)
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, pm["Acme.Blog"])
	assert.Equal(t, []string{"Acme.Blog"}, pm.Namespaces())
}

func TestLoadPackageMap_SingleAndRelativePaths(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "vendor", MapFileName),
		`{"A": "vendor/a", "B": ["/abs/b", "vendor/b"]}`)

	pm, err := LoadPackageMap(root, "vendor")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "vendor", "a")}, pm["A"])
	assert.Equal(t, []string{"/abs/b", filepath.Join(root, "vendor", "b")}, pm["B"])
}

func TestLoadPackageMap_NotManaged(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, root string)
	}{
		{name: "no vendor dir", setup: func(t *testing.T, root string) {}},
		{name: "vendor is a file", setup: func(t *testing.T, root string) {
			testutil.WriteFile(t, filepath.Join(root, "vendor"), "x")
		}},
		{name: "no map file", setup: func(t *testing.T, root string) {
			require.NoError(t, os.MkdirAll(filepath.Join(root, "vendor"), 0o755))
		}},
		{name: "unparsable map", setup: func(t *testing.T, root string) {
			testutil.WriteFile(t, filepath.Join(root, "vendor", MapFileName), "{")
		}},
		{name: "bad path value", setup: func(t *testing.T, root string) {
			testutil.WriteFile(t, filepath.Join(root, "vendor", MapFileName), `{"A": 1}`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			tt.setup(t, root)
			_, err := LoadPackageMap(root, "vendor")
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrProjectNotManaged)
			assert.Contains(t, err.Error(), root)
		})
	}
}

func TestScanner_Scan(t *testing.T) {
	p := testutil.NewProject(t)
	p.AddPackage("Acme.Blog", "acme/blog", testutil.Package{
		ClassFile: "BlogPlugin.lua",
		Manifest:  fixtures.ManifestAll("Acme.Blog.BlogPlugin"),
	})
	// class file but no manifest
	p.AddPackage("Acme.Bare", "acme/bare", testutil.Package{ClassFile: "BarePlugin.lua"})
	// manifest but no class file
	p.AddPackage("Acme.Orphan", "acme/orphan", testutil.Package{
		Manifest: fixtures.ManifestAll("Acme.Orphan.OrphanPlugin"),
	})
	p.AddPackage("Acme.Shop", "acme/shop", testutil.Package{
		ClassFile: "ShopPlugin.lua",
		Manifest:  fixtures.ManifestAll("Acme.Shop.ShopPlugin"),
	})

	pm, err := LoadPackageMap(p.Root, testutil.VendorDir)
	require.NoError(t, err)

	found, err := New().Scan(testutil.TestContext(t), pm)
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.Equal(t, "blogplugin", found[0].Manifest.Identifier())
	assert.Equal(t, "Acme.Blog", found[0].Ref.Namespace)
	assert.Equal(t, filepath.Join(p.Vendor, "acme", "blog", "BlogPlugin.lua"), found[0].ClassFile)
	assert.Equal(t, "shopplugin", found[1].Manifest.Identifier())
}

func TestScanner_StandardRootsAllowList(t *testing.T) {
	p := testutil.NewProject(t)
	p.AddPackage("Acme.Blog", "acme/blog", testutil.Package{
		ClassFile: "BlogPlugin.lua",
		Manifest:  fixtures.ManifestAll("Acme.Blog.BlogPlugin"),
	})
	pm, err := LoadPackageMap(p.Root, testutil.VendorDir)
	require.NoError(t, err)

	// outside the allow-list
	found, err := New(WithStandardRoots(filepath.Join(p.Root, "elsewhere"))).Scan(testutil.TestContext(t), pm)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = New(WithStandardRoots(p.Vendor)).Scan(testutil.TestContext(t), pm)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestScanner_ExtraRootsWiden(t *testing.T) {
	p := testutil.NewProject(t)
	local := filepath.Join(p.Root, "plugins")
	testutil.WriteFile(t, filepath.Join(local, "forum", "ForumPlugin.lua"), "")
	testutil.WriteFile(t, filepath.Join(local, "forum", "bundles.json"), fixtures.ManifestAll("Local.ForumPlugin"))

	pm, err := LoadPackageMap(p.Root, testutil.VendorDir)
	require.NoError(t, err)

	found, err := New(WithStandardRoots(p.Vendor), WithExtraRoots(local)).Scan(testutil.TestContext(t), pm)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "forumplugin", found[0].Manifest.Identifier())
	assert.Equal(t, "", found[0].Ref.Namespace)
}

func TestScanner_CandidatesDeduplicated(t *testing.T) {
	p := testutil.NewProject(t)
	dir := p.AddPackage("Acme.Blog", "acme/blog", testutil.Package{})
	pm := PackageMap{"Acme.Blog": {dir}, "Acme.Blog.Alias": {dir + string(filepath.Separator)}}

	refs := New(WithExtraRoots(dir)).Candidates(pm)
	require.Len(t, refs, 1)
	assert.Equal(t, "Acme.Blog", refs[0].Namespace)
}

func TestScanner_MalformedManifestIsFatal(t *testing.T) {
	p := testutil.NewProject(t)
	p.AddPackage("Acme.Broken", "acme/broken", testutil.Package{
		ClassFile: "BrokenPlugin.lua",
		Manifest:  `{"bundles": [}`,
	})
	pm, err := LoadPackageMap(p.Root, testutil.VendorDir)
	require.NoError(t, err)

	_, err = New().Scan(testutil.TestContext(t), pm)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrMalformedManifest)
}

func TestScanner_DuplicateIdentifierFirstWins(t *testing.T) {
	p := testutil.NewProject(t)
	p.AddPackage("A", "a/blog", testutil.Package{
		ClassFile: "BlogPlugin.lua",
		Manifest:  fixtures.ManifestAll("A.BlogPlugin"),
	})
	p.AddPackage("B", "b/blog", testutil.Package{
		ClassFile: "BlogPlugin.lua",
		Manifest:  fixtures.ManifestAll("B.BlogPlugin"),
	})
	pm, err := LoadPackageMap(p.Root, testutil.VendorDir)
	require.NoError(t, err)

	found, err := New(WithConcurrency(1)).Scan(testutil.TestContext(t), pm)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "A.BlogPlugin", found[0].Manifest.Declarations()[0].ClassName)
}

func TestScanner_CancelledContext(t *testing.T) {
	p := testutil.NewProject(t)
	p.AddPackage("Acme.Blog", "acme/blog", testutil.Package{
		ClassFile: "BlogPlugin.lua",
		Manifest:  fixtures.ManifestAll("Acme.Blog.BlogPlugin"),
	})
	pm, err := LoadPackageMap(p.Root, testutil.VendorDir)
	require.NoError(t, err)

	_, err = New().Scan(testutil.CancelledContext(), pm)
	assert.Error(t, err)
}
