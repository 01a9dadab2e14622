// Command bundlekit reconciles the plugins of a project against its
// installed state.
//
// Usage:
//
//	bundlekit sync                       # run one pass and print the active plugins
//	bundlekit sync --config bundlekit.yaml --env prod
//	bundlekit status                     # show installed packages and recent passes
//	bundlekit watch                      # re-run a pass whenever the package map changes
//	bundlekit version                    # show version information
//
// Configuration is read from the YAML file given with --config and from
// BUNDLEKIT_* environment variables.
package main
