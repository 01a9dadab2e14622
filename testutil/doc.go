/*
Package testutil provides shared test tooling for bundlekit.

# Overview

Tests across the module build throw-away projects on disk, run
reconciliation passes against them and inspect what the lifecycle executor
and the type registry saw. testutil keeps that plumbing in one place.

# Capabilities

  - Context helpers: TestContext / CancelledContext, cleaned up with t.Cleanup
  - Project: a temporary project root with a vendor directory and a
    namespace map; AddPackage / RemovePackage keep the map in sync
  - WriteFile: create a file and its parents in one call

# Subpackages

  - testutil/mocks: RecordingExecutor (captures install/uninstall batches)
    and CountingRegistry (counts instantiations per class)
  - testutil/fixtures: manifest bodies and Lua sources used by several
    packages' tests

# Example

	p := testutil.NewProject(t)
	p.AddPackage("Acme.Blog", "acme/blog", testutil.Package{
	    ClassFile: "BlogPlugin.lua",
	    Manifest:  fixtures.ManifestAll("Acme.Blog.BlogPlugin"),
	})
	pm, err := scanner.LoadPackageMap(p.Root, testutil.VendorDir)
*/
package testutil
