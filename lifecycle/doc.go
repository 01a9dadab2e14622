// Package lifecycle runs install and uninstall hooks of packages.
//
// Dispatcher is the executor the reconciliation engine calls once per
// phase. It instantiates each staged action class through the type
// registry and calls its Hook methods. Script adapts a Lua source to Hook
// (and doubles as a plugin instance), and Indexer makes Lua sources found
// in package directories resolvable by their declared class name.
package lifecycle
