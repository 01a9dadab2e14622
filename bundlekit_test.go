package bundlekit

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/bundlekit/config"
	"github.com/BaSui01/bundlekit/testutil"
	"github.com/BaSui01/bundlekit/testutil/fixtures"
	"github.com/BaSui01/bundlekit/testutil/mocks"
	"github.com/BaSui01/bundlekit/types"
)

func projectConfig(p *testutil.Project, env string) config.Config {
	cfg := *config.DefaultConfig()
	cfg.Project.Root = p.Root
	cfg.Project.VendorDir = testutil.VendorDir
	cfg.Project.Environment = env
	return cfg
}

func addPlugin(p *testutil.Project, namespace, name string, classes ...string) {
	p.AddPackage(namespace, name, testutil.Package{
		ClassFile: name + "Plugin.lua",
		Manifest:  fixtures.ManifestAll(classes...),
	})
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := *config.DefaultConfig()
	cfg.Project.Root = ""

	k, err := New(cfg)
	assert.Error(t, err)
	assert.Nil(t, k)
}

func TestNew_CreatesStateDir(t *testing.T) {
	p := testutil.NewProject(t)
	k, err := New(projectConfig(p, "dev"))
	require.NoError(t, err)

	assert.DirExists(t, p.StateDir())
	assert.Equal(t, p.StateDir(), k.Store().BaseDir())
	assert.False(t, k.Bootstrapped())
	_, ok := k.Result()
	assert.False(t, ok)
}

func TestActivePlugins_Memoized(t *testing.T) {
	p := testutil.NewProject(t)
	reg := mocks.NewCountingRegistry("Acme.Blog.BlogPlugin", "Acme.Shop.ShopPlugin")
	exec := mocks.NewRecordingExecutor()
	addPlugin(p, "Acme.Blog", "Blog", "Acme.Blog.BlogPlugin")

	k, err := New(projectConfig(p, "dev"), WithRegistry(reg), WithExecutor(exec))
	require.NoError(t, err)
	ctx := testutil.TestContext(t)

	first, err := k.ActivePlugins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BlogPlugin"}, first.Identifiers())

	addPlugin(p, "Acme.Shop", "Shop", "Acme.Shop.ShopPlugin")

	second, err := k.ActivePlugins(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, []string{"BlogPlugin"}, second.Identifiers())
	assert.Equal(t, 1, exec.Calls("install"))
	assert.Equal(t, 1, reg.Count("Acme.Blog.BlogPlugin"))
	assert.Zero(t, reg.Count("Acme.Shop.ShopPlugin"))

	res, ok := k.Result()
	require.True(t, ok)
	assert.Equal(t, "dev", res.Environment)
	assert.True(t, k.Bootstrapped())
}

func TestActivePlugins_Concurrent(t *testing.T) {
	p := testutil.NewProject(t)
	reg := mocks.NewCountingRegistry("Acme.Blog.BlogPlugin")
	exec := mocks.NewRecordingExecutor()
	addPlugin(p, "Acme.Blog", "Blog", "Acme.Blog.BlogPlugin")

	k, err := New(projectConfig(p, "dev"), WithRegistry(reg), WithExecutor(exec))
	require.NoError(t, err)
	ctx := testutil.TestContext(t)

	var wg sync.WaitGroup
	sets := make([]*ActiveSet, 8)
	for i := range sets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set, err := k.ActivePlugins(ctx)
			assert.NoError(t, err)
			sets[i] = set
		}(i)
	}
	wg.Wait()

	for _, s := range sets {
		assert.Same(t, sets[0], s)
	}
	assert.Equal(t, 1, exec.Calls("install"))
	assert.Equal(t, 1, reg.Count("Acme.Blog.BlogPlugin"))
}

func TestActivePlugins_ErrorMemoized(t *testing.T) {
	p := testutil.NewProject(t)
	require.NoError(t, os.RemoveAll(p.Vendor))

	k, err := New(projectConfig(p, "dev"), WithExecutor(mocks.NewRecordingExecutor()))
	require.NoError(t, err)
	ctx := testutil.TestContext(t)

	_, err = k.ActivePlugins(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProjectNotManaged)

	// The project becomes managed, but the kernel keeps its first outcome.
	require.NoError(t, os.MkdirAll(p.Vendor, 0o755))
	addPlugin(p, "Acme.Blog", "Blog", "Acme.Blog.BlogPlugin")

	set, err2 := k.ActivePlugins(ctx)
	assert.Nil(t, set)
	assert.Equal(t, err, err2)
	assert.True(t, k.Bootstrapped())
	_, ok := k.Result()
	assert.False(t, ok)
}

func TestWithPreloaded(t *testing.T) {
	p := testutil.NewProject(t)
	reg := mocks.NewCountingRegistry("Acme.Blog.BlogPlugin")
	addPlugin(p, "Acme.Blog", "Blog", "Acme.Blog.BlogPlugin")

	pre := &mocks.Instance{Class: "Acme.Blog.BlogPlugin"}
	k, err := New(projectConfig(p, "dev"),
		WithRegistry(reg),
		WithExecutor(mocks.NewRecordingExecutor()),
		WithPreloaded(map[string]any{"Acme.Blog.BlogPlugin": pre}))
	require.NoError(t, err)

	set, err := k.ActivePlugins(testutil.TestContext(t))
	require.NoError(t, err)

	assert.False(t, set.Has("BlogPlugin"))
	assert.Zero(t, set.Len())
	assert.Zero(t, reg.Count("Acme.Blog.BlogPlugin"))
}

func TestWithStandardRoots(t *testing.T) {
	p := testutil.NewProject(t)
	reg := mocks.NewCountingRegistry("Acme.Blog.BlogPlugin")
	addPlugin(p, "Acme.Blog", "Blog", "Acme.Blog.BlogPlugin")

	t.Run("outside the allow-list", func(t *testing.T) {
		k, err := New(projectConfig(p, "dev"),
			WithRegistry(reg),
			WithExecutor(mocks.NewRecordingExecutor()),
			WithStandardRoots("packages"))
		require.NoError(t, err)

		set, err := k.ActivePlugins(testutil.TestContext(t))
		require.NoError(t, err)
		assert.Zero(t, set.Len())
	})

	t.Run("relative root resolved against the project", func(t *testing.T) {
		k, err := New(projectConfig(p, "dev"),
			WithRegistry(reg),
			WithExecutor(mocks.NewRecordingExecutor()),
			WithStandardRoots(testutil.VendorDir))
		require.NoError(t, err)

		set, err := k.ActivePlugins(testutil.TestContext(t))
		require.NoError(t, err)
		assert.True(t, set.Has("BlogPlugin"))
	})
}

func TestResolveAll(t *testing.T) {
	got := resolveAll("/srv/app", []string{"plugins", "", "/opt/extra/", "a/../b"})
	assert.Equal(t, []string{"/srv/app/plugins", "/opt/extra", "/srv/app/b"}, got)
}
