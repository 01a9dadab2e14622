// Package manifest parses the declarative plugin manifest a package carries.
//
// A manifest lists the plugin classes a package contributes, the
// environments that activate each of them, the plugin identifiers each one
// overrides, and an optional lifecycle-action class run on install and
// uninstall:
//
//	{
//	  "bundles": {
//	    "Acme.Blog.BlogPlugin": {"environments": ["all"], "overrides": ["CorePlugin"]},
//	    "Acme.Blog.DebugPlugin": ""
//	  },
//	  "actionManager": "Acme.Blog.BlogActions",
//	  "config": {"all": "config/all.yml"},
//	  "routing": "config/routing.yml"
//	}
//
// Declaration order is the order of the JSON object. An empty string entry
// declares a plugin that belongs to no environment; it is never activated on
// its own but can still be named by overrides.
package manifest
