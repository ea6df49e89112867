// Package graph implements the task dependency graph: a directed acyclic
// graph of node names with cycle detection and a deterministic topological
// walk. Adapted from specialistvlad-burstgridgo's internal/dag.Graph
// (AddNode/AddEdge plus a colored depth-first cycle search), generalized
// from HCL-step nodes to bare task names and extended with an
// order-preserving topological walk.
package graph

import (
	"sort"
	"sync"

	"github.com/vk/pake/internal/pakeerr"
)

type node struct {
	id         string
	deps       map[string]*node
	dependents map[string]*node
}

// Graph is a concurrency-safe directed graph of task names, edges running
// from a dependent task to the tasks it depends on.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode registers id if it is not already present. Idempotent, so
// dependency references that arrive before their own registration just
// create a bare placeholder node — definition-order independence.
func (g *Graph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(id)
}

func (g *Graph) addNodeLocked(id string) *node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := &node{id: id, deps: make(map[string]*node), dependents: make(map[string]*node)}
	g.nodes[id] = n
	return n
}

// AddEdge records that "from" depends on "to", creating either endpoint as
// a bare node if it does not exist yet.
func (g *Graph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fromNode := g.addNodeLocked(from)
	toNode := g.addNodeLocked(to)
	fromNode.deps[to] = toNode
	toNode.dependents[from] = fromNode
}

// Has reports whether id has been registered (by AddNode or as an edge
// endpoint).
func (g *Graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Dependencies returns the declared dependency ids of id, unordered; callers
// that need declaration order should track it separately (the registry
// does, via Task.Dependencies).
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.deps))
	for dep := range n.deps {
		out = append(out, dep)
	}
	return out
}

// TopologicalOrder returns the dependency-first order of every node
// reachable from roots. Ties among otherwise-unordered siblings are broken
// using order, a map from node id to registration index (lower runs
// first); nodes absent from order sort after all present nodes, stably by
// name, so unregistered dependency placeholders still get a deterministic
// position.
//
// Cycle detection uses the classic three-color depth-first walk: unvisited,
// on-stack ("temporary"), and done ("permanent"). Hitting an on-stack node
// means a back edge, i.e. a cycle; the offending loop is reconstructed by
// unwinding the current DFS path from that node.
func (g *Graph) TopologicalOrder(roots []string, order map[string]int) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make(map[string]int)
	var path []string
	var result []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case onStack:
			cycle := append([]string{}, path...)
			cycle = append(cycle, id)
			for i, v := range cycle {
				if v == id {
					cycle = cycle[i:]
					break
				}
			}
			return &pakeerr.CyclicDependency{Cycle: cycle}
		}

		state[id] = onStack
		path = append(path, id)

		n := g.nodes[id]
		if n != nil {
			deps := make([]string, 0, len(n.deps))
			for dep := range n.deps {
				deps = append(deps, dep)
			}
			sortByOrder(deps, order)
			for _, dep := range deps {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		state[id] = done
		result = append(result, id)
		return nil
	}

	sortedRoots := append([]string{}, roots...)
	sortByOrder(sortedRoots, order)
	for _, root := range sortedRoots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func sortByOrder(ids []string, order map[string]int) {
	sort.SliceStable(ids, func(i, j int) bool {
		oi, iok := order[ids[i]]
		oj, jok := order[ids[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok:
			return true
		case jok:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}
