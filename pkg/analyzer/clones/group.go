package clones

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/panbanda/tangle/pkg/models"
)

// group clusters fragments joined by pairs at or above the grouping threshold.
func (d *Detector) group(frags []models.Fragment, pairs []pair) []models.CloneGroup {
	var edges []pair
	for _, p := range pairs {
		if p.similarity >= d.cfg.GroupingThreshold {
			edges = append(edges, p)
		}
	}
	if len(edges) == 0 {
		return nil
	}

	var clusters [][]int
	switch d.cfg.Grouping {
	case GroupingKCore:
		clusters = kCoreComponents(edges, d.cfg.kCoreK())
	default:
		clusters = connectedComponents(edges)
	}

	bySet := make(map[[2]int]pair, len(edges))
	for _, p := range edges {
		bySet[[2]int{p.a, p.b}] = p
	}

	groups := make([]models.CloneGroup, 0, len(clusters))
	for _, members := range clusters {
		if len(members) < 2 {
			continue
		}
		slices.Sort(members)
		groups = append(groups, d.buildGroup(frags, members, bySet))
	}

	slices.SortFunc(groups, func(x, y models.CloneGroup) int {
		return cmp.Or(
			cmp.Compare(len(y.Instances), len(x.Instances)),
			cmp.Compare(y.Similarity, x.Similarity),
			cmp.Compare(x.Instances[0].File, y.Instances[0].File),
			cmp.Compare(x.Instances[0].StartLine, y.Instances[0].StartLine),
		)
	})
	for i := range groups {
		groups[i].ID = i + 1
	}
	return groups
}

func (d *Detector) buildGroup(frags []models.Fragment, members []int, bySet map[[2]int]pair) models.CloneGroup {
	g := models.CloneGroup{Instances: make([]models.CloneInstance, 0, len(members))}
	for _, idx := range members {
		g.Instances = append(g.Instances, models.InstanceOf(&frags[idx]))
		g.TotalLines += frags[idx].Lines()
	}

	votes := make(map[models.CloneType]int)
	sum, n := 0.0, 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if p, ok := bySet[[2]int{members[i], members[j]}]; ok {
				sum += p.similarity
				n++
				votes[p.cloneType]++
			}
		}
	}

	g.Similarity = d.cfg.GroupingThreshold
	if n > 0 {
		g.Similarity = sum / float64(n)
	}
	g.Type = models.CloneType3
	best := 0
	for _, t := range []models.CloneType{models.CloneType1, models.CloneType2, models.CloneType3} {
		if votes[t] > best {
			g.Type, best = t, votes[t]
		}
	}
	return g
}

func pairGraph(edges []pair) *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for _, e := range edges {
		if e.a == e.b {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(int64(e.a)), T: simple.Node(int64(e.b))})
	}
	return g
}

// connectedComponents clusters transitively: members need not have been
// compared directly.
func connectedComponents(edges []pair) [][]int {
	return components(pairGraph(edges))
}

// kCoreComponents repeatedly removes nodes with fewer than k neighbours and
// returns the connected components of what remains.
func kCoreComponents(edges []pair, k int) [][]int {
	g := pairGraph(edges)
	for {
		var weak []int64
		nodes := g.Nodes()
		for nodes.Next() {
			id := nodes.Node().ID()
			if g.From(id).Len() < k {
				weak = append(weak, id)
			}
		}
		if len(weak) == 0 {
			break
		}
		for _, id := range weak {
			g.RemoveNode(id)
		}
	}
	return components(g)
}

func components(g *simple.UndirectedGraph) [][]int {
	var out [][]int
	for _, comp := range topo.ConnectedComponents(g) {
		members := make([]int, 0, len(comp))
		for _, n := range comp {
			members = append(members, int(n.ID()))
		}
		out = append(out, members)
	}
	return out
}
