// Copyright (c) bundlekit Authors.
// Licensed under the MIT License.

/*
Package reconcile computes the active plugin set of a project and brings the
persisted installed state in line with what is on disk.

A pass runs four phases in order:

  - install: scan packages, persist their manifests, register their plugin
    declarations and run the install actions of packages whose action is new
  - uninstall: run the uninstall actions of packages that disappeared,
    resolving action sources from the artifact cache
  - arrange: activate plugins declared under "all" (unless a named
    environment claims them) and then those of the current environment,
    instantiating each class at most once
  - order: move overridden plugins after the plugins that override them

The lifecycle executor is called exactly once per phase, even with an empty
batch. A failed pass returns no active set.
*/
package reconcile
