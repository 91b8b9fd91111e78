package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/homebus/conductor/pkg/graph"
	"github.com/homebus/conductor/pkg/log"
	"github.com/homebus/conductor/pkg/storage"
	"github.com/homebus/conductor/pkg/types"
)

// Registry is the static catalog of service definitions. Registration is the
// only write path; it re-runs cycle detection over the whole candidate set
// and rejects the batch atomically if a cycle appears. The registry rebuilds
// the dependency graph on every change so readers always see a graph
// consistent with the catalog.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]*types.ServiceDefinition
	graph *graph.Graph
	store storage.Store
}

// New creates a registry backed by the given store, loading any previously
// persisted definitions.
func New(store storage.Store) (*Registry, error) {
	r := &Registry{
		defs:  make(map[string]*types.ServiceDefinition),
		store: store,
	}

	if store != nil {
		defs, err := store.ListDefinitions()
		if err != nil {
			return nil, fmt.Errorf("failed to load definitions: %w", err)
		}
		for _, def := range defs {
			r.defs[def.Name] = def
		}
	}

	r.rebuild()
	return r, nil
}

// Register adds or replaces definitions. The whole batch is validated
// against the existing catalog; if the combined graph contains a cycle the
// batch is rejected and the catalog is unchanged.
func (r *Registry) Register(defs ...*types.ServiceDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("service definition missing name")
		}
	}

	// Validate the candidate catalog before touching anything.
	candidate := make(map[string]*types.ServiceDefinition, len(r.defs)+len(defs))
	for name, def := range r.defs {
		candidate[name] = def
	}
	for _, def := range defs {
		candidate[def.Name] = def
	}

	g := graph.Build(flatten(candidate))
	if _, err := g.TopologicalOrder(); err != nil {
		return fmt.Errorf("registration rejected: %w", err)
	}

	now := time.Now()
	for _, def := range defs {
		if def.RegisteredAt.IsZero() {
			def.RegisteredAt = now
		}
	}

	// Persist the whole batch before mutating the catalog so a store
	// failure leaves the in-memory catalog and graph untouched.
	if r.store != nil {
		for _, def := range defs {
			if err := r.store.PutDefinition(def); err != nil {
				return fmt.Errorf("failed to persist definition %s: %w", def.Name, err)
			}
		}
	}

	logger := log.WithComponent("registry")
	for _, def := range defs {
		r.defs[def.Name] = def
		logger.Info().
			Str("service", def.Name).
			Strs("depends_on", def.DependsOn).
			Msg("service registered")
	}

	r.graph = g
	return nil
}

// Deregister removes a definition. Removal is rejected while another
// registered service declares it as a hard dependency.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[name]; !ok {
		return fmt.Errorf("service not registered: %s", name)
	}

	if dependents := r.graph.Dependents(name); len(dependents) > 0 {
		return fmt.Errorf("service %s is required by: %v", name, dependents)
	}

	if r.store != nil {
		if err := r.store.DeleteDefinition(name); err != nil {
			return fmt.Errorf("failed to delete definition %s: %w", name, err)
		}
	}

	delete(r.defs, name)
	r.rebuild()
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (*types.ServiceDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// List returns all definitions sorted by name.
func (r *Registry) List() []*types.ServiceDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return flatten(r.defs)
}

// Graph returns the dependency graph for the current catalog. The returned
// graph is immutable; a later Register swaps in a new one.
func (r *Registry) Graph() *graph.Graph {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.graph
}

func (r *Registry) rebuild() {
	r.graph = graph.Build(flatten(r.defs))
}

func flatten(m map[string]*types.ServiceDefinition) []*types.ServiceDefinition {
	out := make([]*types.ServiceDefinition, 0, len(m))
	for _, def := range m {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// catalogFile is the YAML shape of a definitions file.
type catalogFile struct {
	Services []*types.ServiceDefinition `yaml:"services"`
}

// LoadFile registers every definition from a YAML catalog file as one
// atomic batch.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	if len(file.Services) == 0 {
		return fmt.Errorf("catalog file %s defines no services", path)
	}

	return r.Register(file.Services...)
}
