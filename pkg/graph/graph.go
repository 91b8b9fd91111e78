package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/homebus/conductor/pkg/types"
)

// InstanceSource answers whether a service currently has a running instance.
// Implemented by the instance tracker.
type InstanceSource interface {
	HasRunning(service string) bool
}

// CycleError reports a dependency cycle found during topological ordering.
// Members holds the services on the cycle in walk order.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Members, " -> "))
}

// DependencyView is the derived inverse view of one node in the graph.
type DependencyView struct {
	Service      string   `json:"service"`
	DependsOn    []string `json:"depends_on"`
	RequiredBy   []string `json:"required_by"`
	OptionalDeps []string `json:"optional_deps"`
}

// Graph is a directed dependency graph over service names. An edge A -> B
// means A depends on B: B must be Running before A may start. The graph is
// rebuilt whenever the registry changes and holds no runtime instance state.
type Graph struct {
	nodes    []string
	edges    map[string][]string // service -> its dependencies
	reverse  map[string][]string // service -> services that depend on it
	optional map[string][]string
}

// Build constructs a graph from a set of service definitions. Dependencies
// naming services without a definition of their own still become nodes, so
// ordering and satisfaction checks see them.
func Build(defs []*types.ServiceDefinition) *Graph {
	g := &Graph{
		edges:    make(map[string][]string),
		reverse:  make(map[string][]string),
		optional: make(map[string][]string),
	}

	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			g.nodes = append(g.nodes, name)
		}
	}

	for _, def := range defs {
		add(def.Name)
		for _, dep := range def.DependsOn {
			add(dep)
			g.edges[def.Name] = append(g.edges[def.Name], dep)
			g.reverse[dep] = append(g.reverse[dep], def.Name)
		}
		g.optional[def.Name] = append([]string(nil), def.OptionalDeps...)
	}

	// Deterministic iteration order for ordering and views.
	sort.Strings(g.nodes)
	for _, deps := range g.edges {
		sort.Strings(deps)
	}
	for _, deps := range g.reverse {
		sort.Strings(deps)
	}

	return g
}

// Nodes returns all service names in the graph.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// DependsOn returns the declared hard dependencies of a service.
func (g *Graph) DependsOn(service string) []string {
	return append([]string(nil), g.edges[service]...)
}

// Dependents returns the reverse-edge set of a service: every service that
// declares it as a hard dependency. Used to decide cascade-stop ordering.
func (g *Graph) Dependents(service string) []string {
	return append([]string(nil), g.reverse[service]...)
}

// View returns the derived inverse view for one service.
func (g *Graph) View(service string) DependencyView {
	return DependencyView{
		Service:      service,
		DependsOn:    g.DependsOn(service),
		RequiredBy:   g.Dependents(service),
		OptionalDeps: append([]string(nil), g.optional[service]...),
	}
}

// Views returns the derived inverse view of every service in the graph,
// ordered by name.
func (g *Graph) Views() []DependencyView {
	views := make([]DependencyView, 0, len(g.nodes))
	for _, name := range g.nodes {
		views = append(views, g.View(name))
	}
	return views
}

// DependencySatisfied reports whether every hard dependency of the service
// has at least one Running instance. Optional dependencies are ignored.
func (g *Graph) DependencySatisfied(service string, src InstanceSource) bool {
	for _, dep := range g.edges[service] {
		if !src.HasRunning(dep) {
			return false
		}
	}
	return true
}

// DFS colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // fully explored
)

// TopologicalOrder returns a linear ordering of all services such that every
// service appears after all of its dependencies. If the graph contains a
// cycle it returns a *CycleError naming the cycle members.
func (g *Graph) TopologicalOrder() ([]string, error) {
	color := make(map[string]int, len(g.nodes))
	path := make([]string, 0, len(g.nodes))
	order := make([]string, 0, len(g.nodes))

	var visit func(name string) *CycleError
	visit = func(name string) *CycleError {
		color[name] = gray
		path = append(path, name)

		for _, dep := range g.edges[name] {
			switch color[dep] {
			case gray:
				// Back edge: the cycle is the path segment from dep onward.
				for i, on := range path {
					if on == dep {
						return &CycleError{Members: append([]string(nil), path[i:]...)}
					}
				}
				return &CycleError{Members: []string{dep, name}}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		color[name] = black
		path = path[:len(path)-1]
		order = append(order, name)
		return nil
	}

	for _, name := range g.nodes {
		if color[name] == white {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}

	return order, nil
}

// OrderSubset returns the topological order restricted to the given members,
// preserving the full-graph order. Unknown members are appended at the end
// so group operations never silently drop a name.
func (g *Graph) OrderSubset(members []string) ([]string, error) {
	full, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(members))
	for _, m := range members {
		want[m] = true
	}

	ordered := make([]string, 0, len(members))
	for _, name := range full {
		if want[name] {
			ordered = append(ordered, name)
			delete(want, name)
		}
	}
	for _, m := range members {
		if want[m] {
			ordered = append(ordered, m)
			delete(want, m)
		}
	}
	return ordered, nil
}
