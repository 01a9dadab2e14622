// Package registry provides the instantiate-by-name capability used to turn
// declared plugin and lifecycle-action class names into live objects.
//
// TypeRegistry is the interface the reconciliation engine depends on.
// Map is the default thread-safe implementation; types are defined with a
// Factory and instantiated on demand.
//
// Usage:
//
//	reg := registry.NewMap(logger)
//	reg.Define("Acme.Blog.BlogPlugin", func() (any, error) { return &BlogPlugin{}, nil })
//	obj, err := reg.Instantiate("Acme.Blog.BlogPlugin")
package registry
