// Package graph implements the dependency graph used to order named
// components. It provides cycle detection and deterministic topological
// sorting with a caller-supplied tie-break.
package graph

import (
	"fmt"
	"sync"
)

// DependencyGraph manages dependency relationships between named components.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string][]string // adjacency list: node -> nodes it depends on
	seq   int
}

// Node represents a single named component in the graph.
type Node struct {
	Name string
	Seq  int // registration order, used for stable tie-breaking

	// Graph metadata
	InDegree  int // number of dependents
	OutDegree int // number of dependencies

	Dependencies []string // nodes this node depends on
	Dependents   []string // nodes that depend on this node
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*Node),
		edges: make(map[string][]string),
	}
}

// Add inserts a node with the given name. Adding an existing name is a no-op;
// the original registration order is preserved.
func (g *DependencyGraph) Add(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.add(name)
}

func (g *DependencyGraph) add(name string) *Node {
	if node, ok := g.nodes[name]; ok {
		return node
	}

	node := &Node{Name: name, Seq: g.seq}
	g.seq++
	g.nodes[name] = node
	return node
}

// AddEdge records that from depends on to. Both nodes must already exist.
func (g *DependencyGraph) AddEdge(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("graph: unknown node %q", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("graph: unknown node %q", to)
	}

	for _, existing := range g.edges[from] {
		if existing == to {
			return nil
		}
	}

	g.edges[from] = append(g.edges[from], to)
	g.updateDegrees()
	return nil
}

// Remove deletes a node and every edge that references it.
func (g *DependencyGraph) Remove(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[name]; !ok {
		return
	}

	delete(g.nodes, name)
	delete(g.edges, name)

	for from, tos := range g.edges {
		filtered := tos[:0]
		for _, to := range tos {
			if to != name {
				filtered = append(filtered, to)
			}
		}
		g.edges[from] = filtered
	}

	g.updateDegrees()
}

// Has reports whether the node exists in the graph.
func (g *DependencyGraph) Has(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.nodes[name]
	return ok
}

// Len returns the number of nodes in the graph.
func (g *DependencyGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.nodes)
}

// Clear removes all nodes and edges.
func (g *DependencyGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*Node)
	g.edges = make(map[string][]string)
	g.seq = 0
}

// Dependencies returns the direct dependencies of a node.
func (g *DependencyGraph) Dependencies(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if node, ok := g.nodes[name]; ok {
		result := make([]string, len(node.Dependencies))
		copy(result, node.Dependencies)
		return result
	}

	return nil
}

// Dependents returns the nodes that depend on the given node.
func (g *DependencyGraph) Dependents(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if node, ok := g.nodes[name]; ok {
		result := make([]string, len(node.Dependents))
		copy(result, node.Dependents)
		return result
	}

	return nil
}

// updateDegrees recalculates degrees and dependency lists from the edge set.
// Callers must hold the write lock.
func (g *DependencyGraph) updateDegrees() {
	for _, node := range g.nodes {
		node.InDegree = 0
		node.OutDegree = 0
		node.Dependencies = node.Dependencies[:0]
		node.Dependents = node.Dependents[:0]
	}

	for from, tos := range g.edges {
		fromNode := g.nodes[from]
		if fromNode == nil {
			continue
		}

		fromNode.OutDegree = len(tos)
		fromNode.Dependencies = append(fromNode.Dependencies, tos...)

		for _, to := range tos {
			if toNode := g.nodes[to]; toNode != nil {
				toNode.InDegree++
				toNode.Dependents = append(toNode.Dependents, from)
			}
		}
	}
}

// Sort returns the node names ordered so that every node appears after all of
// its dependencies. When several nodes are ready at the same time the
// caller-supplied less function decides which one comes first, making the
// order fully deterministic. A nil less falls back to registration order.
func (g *DependencyGraph) Sort(less func(a, b *Node) bool) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if less == nil {
		less = func(a, b *Node) bool { return a.Seq < b.Seq }
	}

	// Kahn's algorithm over out-degrees: a node becomes ready once all of
	// the nodes it depends on have been emitted.
	remaining := make(map[string]int, len(g.nodes))
	for name, node := range g.nodes {
		remaining[name] = node.OutDegree
	}

	result := make([]string, 0, len(g.nodes))
	emitted := make(map[string]bool, len(g.nodes))

	for len(result) < len(g.nodes) {
		// Pick the best ready node according to less.
		var best *Node
		for name, degree := range remaining {
			if degree != 0 || emitted[name] {
				continue
			}
			node := g.nodes[name]
			if best == nil || less(node, best) {
				best = node
			}
		}

		if best == nil {
			// No ready node left: the remainder forms at least one cycle.
			return nil, g.cycleError(emitted)
		}

		result = append(result, best.Name)
		emitted[best.Name] = true

		for _, dependent := range best.Dependents {
			remaining[dependent]--
		}
	}

	return result, nil
}

// DetectCycle checks the graph for cycles without producing an order.
func (g *DependencyGraph) DetectCycle() error {
	_, err := g.Sort(nil)
	return err
}

// cycleError builds a CircularDependencyError describing one of the cycles
// among the nodes that could not be sorted. Callers must hold at least the
// read lock.
func (g *DependencyGraph) cycleError(emitted map[string]bool) error {
	const (
		white = iota // unvisited
		grey         // on the active DFS path
		black        // fully explored
	)

	color := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		color[name] = grey
		path = append(path, name)

		for _, dep := range g.edges[name] {
			if emitted[dep] {
				continue
			}

			switch color[dep] {
			case grey:
				// Found the cycle: slice the path from the first occurrence.
				for i, n := range path {
					if n == dep {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						return cycle
					}
				}
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}

		color[name] = black
		path = path[:len(path)-1]
		return nil
	}

	for name := range g.nodes {
		if emitted[name] || color[name] != white {
			continue
		}

		path = path[:0]
		if cycle := visit(name); cycle != nil {
			return &CircularDependencyError{Node: cycle[0], Path: cycle}
		}
	}

	return &CircularDependencyError{}
}
