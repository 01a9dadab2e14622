package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/BaSui01/bundlekit/manifest"
	"github.com/BaSui01/bundlekit/registry"
	"github.com/BaSui01/bundlekit/sniff"
	"github.com/BaSui01/bundlekit/testutil"
	"github.com/BaSui01/bundlekit/testutil/fixtures"
	"github.com/BaSui01/bundlekit/types"
)

// recorder collects the strings passed to the Lua `record` binding.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) bindings() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"record": func(L *lua.LState) int {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.calls = append(r.calls, L.CheckString(1))
			return 0
		},
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestScript_Hooks(t *testing.T) {
	rec := &recorder{}
	s, err := CompileScript("Acme.Blog.BlogActions", "BlogActions.lua",
		fixtures.ActionScript("Acme.Blog", "BlogActions"), WithBindings(rec.bindings()))
	require.NoError(t, err)
	assert.Equal(t, "Acme.Blog.BlogActions", s.Class())

	ctx := testutil.TestContext(t)
	require.NoError(t, s.Install(ctx, "blog"))
	require.NoError(t, s.Uninstall(ctx, "blog"))
	assert.Equal(t, []string{"install:blog", "uninstall:blog"}, rec.get())
}

func TestScript_MissingFunctionIsNoop(t *testing.T) {
	s, err := CompileScript("X", "x.lua", `name = "x"`)
	require.NoError(t, err)
	assert.NoError(t, s.Install(context.Background(), "x"))
	assert.NoError(t, s.Uninstall(context.Background(), "x"))

	name, err := s.Global(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, "x", name)
}

func TestScript_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"runtime error", `function install(pkg) error("boom") end`},
		{"not a function", `install = 42`},
		{"sandboxed loader", `function install(pkg) dofile("/etc/passwd") end`},
		{"load time error", `error("at load")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := CompileScript("X", "x.lua", tt.src)
			require.NoError(t, err)
			assert.Error(t, s.Install(context.Background(), "x"))
		})
	}

	_, err := CompileScript("X", "x.lua", `function (`)
	assert.Error(t, err)

	_, err = LoadScript("X", filepath.Join(t.TempDir(), "missing.lua"))
	assert.Error(t, err)
}

func TestScript_CancelledContext(t *testing.T) {
	s, err := CompileScript("X", "x.lua", `function install(pkg) while true do end end`)
	require.NoError(t, err)
	assert.Error(t, s.Install(testutil.CancelledContext(), "x"))
}

type goHook struct {
	installs, uninstalls []string
	err                  error
}

func (h *goHook) Install(ctx context.Context, pkg string) error {
	h.installs = append(h.installs, pkg)
	return h.err
}

func (h *goHook) Uninstall(ctx context.Context, pkg string) error {
	h.uninstalls = append(h.uninstalls, pkg)
	return h.err
}

func TestDispatcher(t *testing.T) {
	hook := &goHook{}
	reg := registry.NewMap(nil)
	reg.MustDefine("Acme.Hooks", func() (any, error) { return hook, nil })
	reg.MustDefine("Acme.NotAHook", func() (any, error) { return struct{}{}, nil })

	d := NewDispatcher(reg, nil)
	ctx := testutil.TestContext(t)

	actions := map[string]manifest.LifecycleAction{
		"shop": {ClassName: "Acme.Hooks"},
		"blog": {ClassName: "Acme.Hooks"},
	}
	require.NoError(t, d.ExecuteInstall(ctx, actions))
	assert.Equal(t, []string{"blog", "shop"}, hook.installs)

	require.NoError(t, d.ExecuteUninstall(ctx, map[string]manifest.LifecycleAction{"blog": {ClassName: "Acme.Hooks"}}))
	assert.Equal(t, []string{"blog"}, hook.uninstalls)

	require.NoError(t, d.ExecuteInstall(ctx, nil))

	t.Run("unknown class", func(t *testing.T) {
		err := d.ExecuteInstall(ctx, map[string]manifest.LifecycleAction{"x": {ClassName: "Missing"}})
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrCodeLifecycle))
		assert.ErrorIs(t, err, registry.ErrTypeNotFound)
	})

	t.Run("not a hook", func(t *testing.T) {
		err := d.ExecuteUninstall(ctx, map[string]manifest.LifecycleAction{"x": {ClassName: "Acme.NotAHook"}})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrLifecycle)
	})

	t.Run("hook failure", func(t *testing.T) {
		boom := errors.New("boom")
		failing := &goHook{err: boom}
		r := registry.NewMap(nil)
		r.MustDefine("Fail", func() (any, error) { return failing, nil })
		err := NewDispatcher(r, nil).ExecuteInstall(ctx, map[string]manifest.LifecycleAction{"x": {ClassName: "Fail"}})
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, types.ErrLifecycle)
	})
}

func TestIndexer_IndexDir(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "BlogPlugin.lua"), fixtures.PluginScript("Acme.Blog", "BlogPlugin"))
	testutil.WriteFile(t, filepath.Join(dir, "BlogActions.lua"), fixtures.ActionScript("Acme.Blog", "BlogActions"))
	testutil.WriteFile(t, filepath.Join(dir, "notes.lua"), "-- nothing declared")
	testutil.WriteFile(t, filepath.Join(dir, "README.md"), "namespace Foo; class Bar")

	rec := &recorder{}
	reg := registry.NewMap(nil)
	ix := NewIndexer(reg, WithScriptOptions(WithBindings(rec.bindings())))

	defined := ix.IndexDir(dir)
	assert.Equal(t, []string{"Acme.Blog.BlogActions", "Acme.Blog.BlogPlugin"}, defined)
	assert.False(t, reg.Has("Foo.Bar"))

	// Already known types are left alone.
	assert.Empty(t, ix.IndexDir(dir))
	assert.Empty(t, ix.IndexDir(filepath.Join(dir, "missing")))

	plugin, err := reg.Instantiate("Acme.Blog.BlogPlugin")
	require.NoError(t, err)
	name, err := plugin.(*Script).Global(context.Background(), "name")
	require.NoError(t, err)
	assert.Equal(t, "BlogPlugin", name)

	d := NewDispatcher(reg, nil)
	require.NoError(t, d.ExecuteInstall(testutil.TestContext(t),
		map[string]manifest.LifecycleAction{"blog": {ClassName: "Acme.Blog.BlogActions"}}))
	assert.Equal(t, []string{"install:blog"}, rec.get())
}

func TestIndexSources_BackslashNamespace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ShopActions.lua")
	testutil.WriteFile(t, path, fixtures.ActionScript(`Acme\Shop`, "ShopActions"))

	reg := registry.NewMap(nil)
	defined := IndexSources(reg, sniff.Regexp{}, ScriptFactory(), nil, path)
	assert.Equal(t, []string{`Acme\Shop\ShopActions`}, defined)
}

func TestIndexSources_SkipsSourcesThatDoNotCompile(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "BlogActions.lua")
	testutil.WriteFile(t, broken, "-- namespace Acme.Blog;\n-- class BlogActions\nfunction install(pkg\n")
	good := filepath.Join(dir, "BlogPlugin.lua")
	testutil.WriteFile(t, good, fixtures.PluginScript("Acme.Blog", "BlogPlugin"))

	build := ScriptFactory()
	assert.Nil(t, build(sniff.Declaration{Namespace: "Acme.Blog", Name: "BlogActions"}, broken))

	reg := registry.NewMap(nil)
	defined := IndexSources(reg, sniff.Regexp{}, build, nil, broken, good)
	assert.Equal(t, []string{"Acme.Blog.BlogPlugin"}, defined)
	assert.False(t, reg.Has("Acme.Blog.BlogActions"))
}
