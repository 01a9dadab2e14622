package reconcile

// Entry is one active plugin.
type Entry struct {
	Identifier string
	ClassName  string
	// Package is the identifier of the package that declared the plugin.
	Package  string
	Instance any
}

// ActiveSet is the ordered set of active plugins, keyed by identifier.
type ActiveSet struct {
	entries []Entry
	index   map[string]int
}

func newActiveSet() *ActiveSet {
	return &ActiveSet{index: make(map[string]int)}
}

// Len returns the number of active plugins.
func (s *ActiveSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Entries returns the active plugins in activation order.
func (s *ActiveSet) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Identifiers returns the plugin identifiers in activation order.
func (s *ActiveSet) Identifiers() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Identifier
	}
	return out
}

// Get returns the entry for identifier.
func (s *ActiveSet) Get(identifier string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	i, ok := s.index[identifier]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Has reports whether identifier is active.
func (s *ActiveSet) Has(identifier string) bool {
	_, ok := s.Get(identifier)
	return ok
}

// Instance returns the plugin instance for identifier.
func (s *ActiveSet) Instance(identifier string) (any, bool) {
	e, ok := s.Get(identifier)
	return e.Instance, ok
}

// put adds e at the end, or replaces the entry with the same identifier in
// place. It reports whether an entry was replaced.
func (s *ActiveSet) put(e Entry) bool {
	if i, ok := s.index[e.Identifier]; ok {
		s.entries[i] = e
		return true
	}
	s.index[e.Identifier] = len(s.entries)
	s.entries = append(s.entries, e)
	return false
}

// moveToEnd moves identifier to the end of the order.
func (s *ActiveSet) moveToEnd(identifier string) {
	i, ok := s.index[identifier]
	if !ok || i == len(s.entries)-1 {
		return
	}
	e := s.entries[i]
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.entries = append(s.entries, e)
	for j := i; j < len(s.entries); j++ {
		s.index[s.entries[j].Identifier] = j
	}
}
