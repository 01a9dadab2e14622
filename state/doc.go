// Package state persists what the last reconciliation pass installed.
//
// Layout under the base directory, created eagerly by NewStore:
//
//	<base>/autoloaders/<id>.json        persisted manifest copies
//	<base>/config/<env>/<id>.yml        per-environment config resources
//	<base>/routing/<id>.yml             routing resources
//	<base>/cache/<id>/<source file>     cached lifecycle-action sources
//
// The cache outlives the originating package so that uninstall actions can
// still be resolved after the package directory is gone.
package state
