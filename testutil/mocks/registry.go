package mocks

import (
	"sync"

	"github.com/BaSui01/bundlekit/registry"
)

// Instance is what CountingRegistry factories return.
type Instance struct {
	Class string
	Seq   int
}

// CountingRegistry wraps registry.Map and counts instantiations per class.
type CountingRegistry struct {
	*registry.Map

	mu     sync.Mutex
	counts map[string]int
}

// NewCountingRegistry defines each class with a factory returning *Instance.
func NewCountingRegistry(classes ...string) *CountingRegistry {
	c := &CountingRegistry{
		Map:    registry.NewMap(nil),
		counts: make(map[string]int),
	}
	for _, class := range classes {
		c.Add(class)
	}
	return c
}

// Add defines class.
func (c *CountingRegistry) Add(class string) {
	c.Map.Define(class, func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.counts[class]++
		return &Instance{Class: class, Seq: c.counts[class]}, nil
	})
}

// Count returns how many times class was instantiated.
func (c *CountingRegistry) Count(class string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[class]
}

// Total returns the number of instantiations across all classes.
func (c *CountingRegistry) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.counts {
		n += v
	}
	return n
}
