package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrTypeNotFound is returned when a class name has no factory.
var ErrTypeNotFound = errors.New("type not found")

// Factory constructs one instance of a registered type.
type Factory func() (any, error)

// TypeRegistry resolves class names to instances.
type TypeRegistry interface {
	// Has reports whether name is resolvable.
	Has(name string) bool
	// Instantiate constructs a new instance of name. It returns an error
	// wrapping ErrTypeNotFound when name is unknown.
	Instantiate(name string) (any, error)
	// Define registers f under name unless name is already present.
	// It reports whether the definition was added.
	Define(name string, f Factory) bool
}

// Map is a thread-safe in-memory implementation of TypeRegistry.
type Map struct {
	factories map[string]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// Compile-time interface compliance check.
var _ TypeRegistry = (*Map)(nil)

// NewMap creates an empty Map.
func NewMap(logger *zap.Logger) *Map {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Map{
		factories: make(map[string]Factory),
		logger:    logger.With(zap.String("component", "type_registry")),
	}
}

// Has reports whether name has a factory.
func (m *Map) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.factories[name]
	return ok
}

// Define registers f under name. Existing definitions are never replaced.
func (m *Map) Define(name string, f Factory) bool {
	if name == "" || f == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.factories[name]; exists {
		return false
	}
	m.factories[name] = f
	m.logger.Debug("type defined", zap.String("name", name))
	return true
}

// MustDefine is Define that panics on a duplicate, for static wiring.
func (m *Map) MustDefine(name string, f Factory) {
	if !m.Define(name, f) {
		panic(fmt.Sprintf("registry: type %q already defined", name))
	}
}

// Instantiate runs the factory registered under name.
func (m *Map) Instantiate(name string) (any, error) {
	m.mu.RLock()
	f, ok := m.factories[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}

	obj, err := f()
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", name, err)
	}
	return obj, nil
}

// Names returns all defined names sorted.
func (m *Map) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
