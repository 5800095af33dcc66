package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]Schema)
	registryMu sync.RWMutex
)

// Register adds an entity schema to the registry.
// Panics if a schema with the same entity key is already registered, or if
// a field is declared twice.
func Register(s Schema) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[s.Entity]; exists {
		panic(fmt.Sprintf("schema already registered: %s", s.Entity))
	}

	seen := make(map[Field]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == Ignore || seen[f.Name] {
			panic(fmt.Sprintf("schema %s: invalid field %q", s.Entity, f.Name))
		}
		seen[f.Name] = true
	}

	if s.Label == "" {
		s.Label = s.Entity
	}
	registry[s.Entity] = s
}

// Get returns a schema by entity key.
// Returns false if not found.
func Get(entity string) (Schema, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	s, ok := registry[entity]
	return s, ok
}

// All returns all registered schemas sorted by entity key.
func All() []Schema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Schema, 0, len(registry))
	for _, s := range registry {
		result = append(result, s)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Entity < result[j].Entity
	})

	return result
}

// SchemaCount returns the number of registered schemas.
func SchemaCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered schemas.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Schema)
}
