package store

import "sort"

// Registry holds the collections of an application by name.
type Registry struct {
	collections map[string]*Collection
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		collections: make(map[string]*Collection),
	}
}

// Register adds a collection to the registry, replacing any collection with
// the same name. Registration is meant for setup, before operations are served.
func (r *Registry) Register(c *Collection) {
	r.collections[c.Name()] = c
}

// Get returns the named collection.
func (r *Registry) Get(name string) (*Collection, bool) {
	c, ok := r.collections[name]
	return c, ok
}

// Names returns the registered collection names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered collections.
func (r *Registry) Len() int {
	return len(r.collections)
}
