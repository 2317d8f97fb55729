package core

import (
	"fmt"
	"slices"
	"sync/atomic"
)

// =============================================================================
// GraphBuilder
// =============================================================================

// GraphBuilder assembles a task graph incrementally. It is not safe for
// concurrent use; build one per submission.
type GraphBuilder struct {
	units    []*taskUnit
	index    map[TaskID]int
	succ     [][]int
	edges    map[[2]int]struct{}
	consumed bool
}

// NewGraphBuilder returns an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		index: make(map[TaskID]int),
		edges: make(map[[2]int]struct{}),
	}
}

// AddTask adds a payload and returns its id. After Build the builder accepts
// no more tasks and AddTask returns the zero (invalid) TaskID.
func (b *GraphBuilder) AddTask(payload Payload, opts ...TaskOption) TaskID {
	if b.consumed {
		return 0
	}
	o := defaultTaskOptions()
	for _, opt := range opts {
		opt(&o)
	}
	u := newTaskUnit(payload, o)
	b.index[u.id] = len(b.units)
	b.units = append(b.units, u)
	b.succ = append(b.succ, nil)
	return u.id
}

// AddTaskWithPriority is AddTask with only a priority hint.
func (b *GraphBuilder) AddTaskWithPriority(payload Payload, priority TaskPriority) TaskID {
	return b.AddTask(payload, WithPriority(priority))
}

// AddDependency declares that successor must not start before predecessor
// has resolved. Both ids must come from this builder, before Build.
func (b *GraphBuilder) AddDependency(predecessor, successor TaskID) error {
	if b.consumed {
		return &UnknownTaskIDError{ID: predecessor}
	}
	from, ok := b.index[predecessor]
	if !ok {
		return &UnknownTaskIDError{ID: predecessor}
	}
	to, ok := b.index[successor]
	if !ok {
		return &UnknownTaskIDError{ID: successor}
	}
	edge := [2]int{from, to}
	if _, dup := b.edges[edge]; dup {
		return nil
	}
	b.edges[edge] = struct{}{}
	b.succ[from] = append(b.succ[from], to)
	return nil
}

// Len returns the number of tasks added so far.
func (b *GraphBuilder) Len() int {
	return len(b.units)
}

// Build validates the graph and freezes it. The builder is consumed whether
// or not validation succeeds.
func (b *GraphBuilder) Build() (*Graph, error) {
	if b.consumed {
		return nil, ErrBuilderConsumed
	}
	b.consumed = true

	if cycle := findCycle(b.succ); cycle != nil {
		ids := make([]TaskID, len(cycle))
		for i, idx := range cycle {
			ids[i] = b.units[idx].id
		}
		return nil, &CycleError{IDs: ids}
	}

	n := len(b.units)
	pred := make([][]int, n)
	for from, tos := range b.succ {
		for _, to := range tos {
			pred[to] = append(pred[to], from)
		}
	}

	ids := make([]TaskID, n)
	for i, u := range b.units {
		ids[i] = u.id
		u.pending.Store(int32(len(pred[i])))
		u.successors = make([]*taskUnit, len(b.succ[i]))
		for j, to := range b.succ[i] {
			u.successors[j] = b.units[to]
		}
		u.predecessors = make([]*Handle, len(pred[i]))
		for j, from := range pred[i] {
			u.predecessors[j] = b.units[from].handle
		}
	}

	g := &Graph{
		units: b.units,
		ids:   ids,
		index: b.index,
		succ:  b.succ,
		pred:  pred,
	}
	b.units, b.index, b.succ, b.edges = nil, nil, nil, nil
	return g, nil
}

// findCycle runs a three-colour DFS over the adjacency list and returns one
// cycle as arena indexes, first index repeated at the end, or nil.
func findCycle(succ [][]int) []int {
	const (
		unvisited = iota
		inProgress
		done
	)

	color := make([]uint8, len(succ))
	var path []int
	var cycle []int

	var visit func(u int) bool
	visit = func(u int) bool {
		color[u] = inProgress
		path = append(path, u)
		for _, v := range succ[u] {
			switch color[v] {
			case unvisited:
				if visit(v) {
					return true
				}
			case inProgress:
				start := slices.Index(path, v)
				cycle = append(slices.Clone(path[start:]), v)
				return true
			}
		}
		path = path[:len(path)-1]
		color[u] = done
		return false
	}

	for u := range succ {
		if color[u] == unvisited && visit(u) {
			return cycle
		}
	}
	return nil
}

// =============================================================================
// Graph
// =============================================================================

// Graph is a validated, acyclic set of tasks ready for submission. The
// structural accessors stay usable after submission; the task units
// themselves belong to the scheduler once submitted.
type Graph struct {
	units     []*taskUnit
	ids       []TaskID
	index     map[TaskID]int
	succ      [][]int
	pred      [][]int
	submitted atomic.Bool
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.ids)
}

// IDs returns the task ids in insertion order.
func (g *Graph) IDs() []TaskID {
	return slices.Clone(g.ids)
}

// Contains reports whether id belongs to the graph.
func (g *Graph) Contains(id TaskID) bool {
	_, ok := g.index[id]
	return ok
}

// Roots returns the tasks with no predecessors, in insertion order.
func (g *Graph) Roots() []TaskID {
	var roots []TaskID
	for i, p := range g.pred {
		if len(p) == 0 {
			roots = append(roots, g.ids[i])
		}
	}
	return roots
}

// Successors returns the ids that depend directly on id.
func (g *Graph) Successors(id TaskID) ([]TaskID, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, &UnknownTaskIDError{ID: id}
	}
	return g.lookup(g.succ[i]), nil
}

// Predecessors returns the ids id depends on directly.
func (g *Graph) Predecessors(id TaskID) ([]TaskID, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, &UnknownTaskIDError{ID: id}
	}
	return g.lookup(g.pred[i]), nil
}

// TopologicalOrder returns a deterministic order in which every task follows
// all of its predecessors (Kahn's algorithm, ties by insertion order).
func (g *Graph) TopologicalOrder() []TaskID {
	indeg := make([]int, len(g.pred))
	var ready []int
	for i, p := range g.pred {
		indeg[i] = len(p)
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]TaskID, 0, len(g.ids))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, g.ids[n])
		for _, m := range g.succ[n] {
			indeg[m]--
			if indeg[m] == 0 {
				ready = append(ready, m)
			}
		}
	}
	return out
}

func (g *Graph) lookup(idx []int) []TaskID {
	out := make([]TaskID, len(idx))
	for i, n := range idx {
		out[i] = g.ids[n]
	}
	return out
}

// take hands the task units to the scheduler. It succeeds once per graph.
func (g *Graph) take() ([]*taskUnit, error) {
	if !g.submitted.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %d tasks", ErrGraphSubmitted, len(g.ids))
	}
	units := g.units
	g.units = nil
	return units, nil
}

// giveBack undoes take when the scheduler rejects the submission.
func (g *Graph) giveBack(units []*taskUnit) {
	g.units = units
	g.submitted.Store(false)
}
