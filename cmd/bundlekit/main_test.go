package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/bundlekit/config"
	"github.com/BaSui01/bundlekit/internal/history"
	"github.com/BaSui01/bundlekit/manifest"
	"github.com/BaSui01/bundlekit/reconcile"
	"github.com/BaSui01/bundlekit/testutil"
	"github.com/BaSui01/bundlekit/testutil/fixtures"
)

func TestCommonFlags_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundlekit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project:\n  environment: staging\n"), 0o644))

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--root", dir, "--env", "prod"}))

	cfg, err := common.load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Project.Root)
	assert.Equal(t, "prod", cfg.Project.Environment)
}

func TestCommonFlags_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundlekit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))

	_, err := common.load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestRuntime_SyncRecordsHistory(t *testing.T) {
	body := `{"bundles": {"Acme.Blog.BlogPlugin": {"environments": ["all"]}},
		"config": {"all": "all.yml", "dev": "dev.yml"}, "routing": "routing.yml"}`
	p := testutil.NewProject(t)
	p.AddPackage("Acme.Blog", "Blog", testutil.Package{
		ClassFile: "BlogPlugin.lua",
		Manifest:  body,
		Files: map[string]string{
			"all.yml":     "debug: false\n",
			"dev.yml":     "debug: true\n",
			"routing.yml": "blog:\n  path: /blog\n",
		},
	})
	// The class file doubles as the script the default registry indexes.
	testutil.WriteFile(t, filepath.Join(p.Vendor, "Blog", "BlogPlugin.lua"),
		fixtures.PluginScript("Acme.Blog", "BlogPlugin"))

	cfg := config.DefaultConfig()
	cfg.Project.Root = p.Root
	cfg.Project.Environment = "dev"
	cfg.Log.OutputPaths = []string{filepath.Join(t.TempDir(), "log")}
	cfg.History.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.TextfilePath = filepath.Join(t.TempDir(), "bundlekit.prom")

	rt := newRuntime(cfg)
	t.Cleanup(rt.close)
	out, err := rt.sync(testutil.TestContext(t))
	require.NoError(t, err)
	res := out.res
	assert.Equal(t, []string{"BlogPlugin"}, res.Active.Identifiers())

	state := cfg.StateDir()
	assert.Equal(t, []string{
		filepath.Join(state, "config", "all", "blogplugin.yml"),
		filepath.Join(state, "config", "dev", "blogplugin.yml"),
	}, out.config)
	assert.Equal(t, []string{filepath.Join(state, "routing", "blogplugin.yml")}, out.routing)

	var buf bytes.Buffer
	printOutcome(&buf, out)
	assert.Contains(t, buf.String(), "Routing files:")

	rt.writeTextfile()
	data, err := os.ReadFile(cfg.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bundlekit_passes_total")

	passes, err := rt.recorder.Recent(testutil.TestContext(t), 5)
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, res.PassID, passes[0].PassID)
}

func TestPrintResult(t *testing.T) {
	res := &reconcile.Result{
		PassID:      "p-1",
		Environment: "dev",
		Active:      &reconcile.ActiveSet{},
		Installed: map[string]manifest.LifecycleAction{
			"blogplugin": {ClassName: "Acme.Blog.BlogAction"},
		},
		Removed:  []string{"oldplugin"},
		Duration: 3 * time.Millisecond,
	}

	var buf bytes.Buffer
	printResult(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "Environment: dev (pass p-1, 3ms)")
	assert.Contains(t, out, "PLUGIN")
	assert.Contains(t, out, "blogplugin -> Acme.Blog.BlogAction")
	assert.Contains(t, out, "Removed: [oldplugin]")
	assert.NotContains(t, out, "Uninstalled")
}

func TestPrintPasses(t *testing.T) {
	var buf bytes.Buffer
	printPasses(&buf, []history.PassRecord{{
		Environment: "prod",
		Status:      "failed",
		Error:       "boom",
		DurationMS:  12,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Contains(t, out, "failed: boom")
	assert.Contains(t, out, "12ms")
}

func TestWatchPaths(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Project.Root = "/srv/app"
	cfg.Project.ExtraRoots = []string{"plugins", "/opt/bundles"}

	got := watchPaths(&runtime{cfg: cfg})
	assert.Equal(t, []string{
		"/srv/app/vendor/autoload_namespaces.json",
		"/srv/app/plugins",
		"/opt/bundles",
	}, got)
}
