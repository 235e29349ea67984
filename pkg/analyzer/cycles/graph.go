package cycles

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/panbanda/tangle/pkg/models"
)

// Graph is a directed module graph. Parallel edges between the same pair
// collapse into one adjacency entry; every edge is still kept for reporting.
type Graph struct {
	names    []string
	ids      map[string]int64
	files    map[string]string
	edges    []models.DependencyEdge
	out      map[int64][]int64
	incoming map[int64]int
	directed *simple.DirectedGraph
}

func newGraph() *Graph {
	return &Graph{
		ids:      make(map[string]int64),
		files:    make(map[string]string),
		out:      make(map[int64][]int64),
		incoming: make(map[int64]int),
		directed: simple.NewDirectedGraph(),
	}
}

func (g *Graph) addNode(name, file string) int64 {
	if id, ok := g.ids[name]; ok {
		if g.files[name] == "" {
			g.files[name] = file
		}
		return id
	}
	id := int64(len(g.names))
	g.names = append(g.names, name)
	g.ids[name] = id
	g.files[name] = file
	g.directed.AddNode(simple.Node(id))
	return id
}

func (g *Graph) addEdge(e models.DependencyEdge) {
	from := g.addNode(e.From, "")
	to := g.addNode(e.To, "")
	g.edges = append(g.edges, e)
	// simple graphs reject self edges; a module importing itself is kept
	// for reporting only and never forms a cycle
	if from == to || g.directed.HasEdgeFromTo(from, to) {
		return
	}
	g.directed.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
	g.out[from] = append(g.out[from], to)
	g.incoming[to]++
}

func (g *Graph) finish() {
	for id := range g.out {
		slices.SortFunc(g.out[id], func(a, b int64) int {
			return cmp.Compare(g.names[a], g.names[b])
		})
	}
}

// Modules returns every node name in registration order.
func (g *Graph) Modules() []string {
	return slices.Clone(g.names)
}

// Edges returns every resolved import edge, including parallel edges.
func (g *Graph) Edges() []models.DependencyEdge {
	return slices.Clone(g.edges)
}

// File returns the source file of a module, or "".
func (g *Graph) File(name string) string {
	return g.files[name]
}

// Dependencies returns the distinct modules that name imports, sorted.
func (g *Graph) Dependencies(name string) []string {
	id, ok := g.ids[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.out[id]))
	for _, to := range g.out[id] {
		out = append(out, g.names[to])
	}
	return out
}

// InDegree is the number of distinct modules importing name.
func (g *Graph) InDegree(name string) int {
	id, ok := g.ids[name]
	if !ok {
		return 0
	}
	return g.incoming[id]
}

// OutDegree is the number of distinct modules name imports.
func (g *Graph) OutDegree(name string) int {
	id, ok := g.ids[name]
	if !ok {
		return 0
	}
	return len(g.out[id])
}

// EdgeLine returns the line of the first import from one module to another.
func (g *Graph) EdgeLine(from, to string) uint32 {
	for _, e := range g.edges {
		if e.From == from && e.To == to {
			return e.Line
		}
	}
	return 0
}

// FindCycles returns the strongly connected components with more than one
// member. Members of each component are sorted, and components are ordered
// by their first member.
func (g *Graph) FindCycles() [][]string {
	var sccs [][]string
	for _, scc := range topo.TarjanSCC(g.directed) {
		if len(scc) < 2 {
			continue
		}
		members := make([]string, 0, len(scc))
		for _, n := range scc {
			members = append(members, g.names[n.ID()])
		}
		slices.Sort(members)
		sccs = append(sccs, members)
	}
	slices.SortFunc(sccs, func(a, b []string) int {
		return cmp.Compare(a[0], b[0])
	})
	return sccs
}

// FindSimpleCycles enumerates elementary cycles. Each cycle is rotated to
// start at its smallest member, and cycles sharing a member set are reported
// once. The result is ordered by length, then lexically.
func (g *Graph) FindSimpleCycles() []models.Cycle {
	seen := make(map[string]int)
	var cycles []models.Cycle

	for _, path := range topo.DirectedCyclesIn(g.directed) {
		// gonum closes each cycle by repeating its first node
		if len(path) > 1 && path[0].ID() == path[len(path)-1].ID() {
			path = path[:len(path)-1]
		}
		if len(path) < 2 {
			continue
		}
		c := make(models.Cycle, len(path))
		for i, n := range path {
			c[i] = g.names[n.ID()]
		}
		c = c.Canonical()
		key := c.Key()
		// successor order is not stable, so keep the smallest ordering of a
		// member set to make the report independent of traversal order
		if i, ok := seen[key]; ok {
			if slices.Compare(c, cycles[i]) < 0 {
				cycles[i] = c
			}
			continue
		}
		seen[key] = len(cycles)
		cycles = append(cycles, c)
	}

	slices.SortFunc(cycles, func(a, b models.Cycle) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		return slices.Compare(a, b)
	})
	return cycles
}

// SuggestBreakPoint returns the cycle member with the lowest
// (incoming - outgoing) score. Ties keep the first member in cycle order.
func (g *Graph) SuggestBreakPoint(c models.Cycle) string {
	if len(c) == 0 {
		return ""
	}
	best := c[0]
	bestScore := g.InDegree(best) - g.OutDegree(best)
	for _, m := range c[1:] {
		if score := g.InDegree(m) - g.OutDegree(m); score < bestScore {
			best, bestScore = m, score
		}
	}
	return best
}

// CoreInfrastructure returns modules that sit on two or more of the given
// cycles, sorted.
func CoreInfrastructure(cycles []models.Cycle) []string {
	counts := make(map[string]int)
	for _, c := range cycles {
		for _, m := range c {
			counts[m]++
		}
	}
	var core []string
	for m, n := range counts {
		if n >= 2 {
			core = append(core, m)
		}
	}
	slices.Sort(core)
	return core
}
