package depgraph

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mdsync/mdsync/report"
	"github.com/mdsync/mdsync/tablemeta"
)

// Node is a table in the dependency graph. Parents are the tables its rows
// reference; children are the tables referencing it.
type Node struct {
	Table    tablemeta.Table
	Parents  []string
	Children []string
}

// Graph holds the foreign key dependencies between tables. Edges run from
// the referenced table to the referencing table.
type Graph struct {
	nodes  []*Node
	byName map[string]*Node
	built  bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{byName: make(map[string]*Node)}
}

// FromSet registers every table of s and builds the edges.
func FromSet(s tablemeta.Set) *Graph {
	g := New()
	for _, t := range s.Tables() {
		g.AddTable(t)
	}
	g.BuildEdges()
	return g
}

// AddTable registers a table. A table registered twice replaces the
// earlier registration.
func (g *Graph) AddTable(t tablemeta.Table) {
	g.built = false
	if n, ok := g.byName[t.Name]; ok {
		n.Table = t
		return
	}
	n := &Node{Table: t}
	g.nodes = append(g.nodes, n)
	g.byName[t.Name] = n
}

// Node looks up a registered table by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.byName[name]
	return n, ok
}

// BuildEdges pairs every registered table with every foreign key
// referencing it. Self references do not produce edges.
func (g *Graph) BuildEdges() {
	for _, n := range g.nodes {
		n.Parents = nil
		n.Children = nil
	}
	for _, parent := range g.nodes {
		for _, child := range g.nodes {
			if parent == child {
				continue
			}
			for _, fk := range child.Table.ForeignKeys {
				if fk.RefTable == parent.Table.Name {
					parent.Children = appendUnique(parent.Children, child.Table.Name)
					child.Parents = appendUnique(child.Parents, parent.Table.Name)
				}
			}
		}
	}
	g.built = true
}

func appendUnique(s []string, v string) []string {
	for _, e := range s {
		if e == v {
			return s
		}
	}
	return append(s, v)
}

// Cycle is a path of table names whose first and last elements are equal.
type Cycle struct {
	Path []string
}

func (c Cycle) String() string {
	return strings.Join(c.Path, " -> ")
}

// normalized rotates the cycle so it starts at its lexicographically
// smallest table.
func (c Cycle) normalized() Cycle {
	if len(c.Path) < 2 {
		return c
	}
	body := c.Path[:len(c.Path)-1]
	minIdx := 0
	for i, name := range body {
		if name < body[minIdx] {
			minIdx = i
		}
	}
	ret := make([]string, 0, len(c.Path))
	ret = append(ret, body[minIdx:]...)
	ret = append(ret, body[:minIdx]...)
	ret = append(ret, body[minIdx])
	return Cycle{Path: ret}
}

type SelfReference struct {
	Table      string
	ForeignKey tablemeta.ForeignKey
}

type DanglingReference struct {
	Table      string
	ForeignKey tablemeta.ForeignKey
}

// Result carries every diagnostic found by DetectCycles.
type Result struct {
	Cycles             []Cycle
	SelfReferences     []SelfReference
	DanglingReferences []DanglingReference
}

// CycleError is returned when the graph cannot be ordered.
type CycleError struct {
	Cycles []Cycle
}

func (e *CycleError) Error() string {
	paths := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		paths[i] = c.String()
	}
	return "dependency cycle detected: " + strings.Join(paths, "; ")
}

// Err returns a *CycleError if any cycle was found.
func (r Result) Err() error {
	if len(r.Cycles) == 0 {
		return nil
	}
	return &CycleError{Cycles: r.Cycles}
}

// Report emits every diagnostic, warnings first.
func (r Result) Report(reporter report.Reporter) {
	for _, s := range r.SelfReferences {
		reporter.Report(report.SelfReference{Table: s.Table, ForeignKey: s.ForeignKey})
	}
	for _, d := range r.DanglingReferences {
		reporter.Report(report.DanglingReference{Table: d.Table, ForeignKey: d.ForeignKey})
	}
	for _, c := range r.Cycles {
		reporter.Report(report.CycleDetected{Path: c.Path})
	}
}

// DetectCycles searches for a cycle through every node and flags self and
// dangling references. Cycles found from several starting nodes are
// reported once.
func (g *Graph) DetectCycles() Result {
	if !g.built {
		g.BuildEdges()
	}
	var ret Result
	seen := make(map[string]struct{})
	for _, n := range g.nodes {
		for _, fk := range n.Table.ForeignKeys {
			if fk.RefTable == n.Table.Name {
				ret.SelfReferences = append(ret.SelfReferences, SelfReference{Table: n.Table.Name, ForeignKey: fk})
			} else if _, ok := g.byName[fk.RefTable]; !ok {
				ret.DanglingReferences = append(ret.DanglingReferences, DanglingReference{Table: n.Table.Name, ForeignKey: fk})
			}
		}
		c, ok := g.FindCycle(n.Table.Name)
		if !ok {
			continue
		}
		c = c.normalized()
		key := strings.Join(c.Path, "\x00")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ret.Cycles = append(ret.Cycles, c)
	}
	return ret
}

// FindCycle runs a depth first search from start and returns the first
// path that leads back to it.
func (g *Graph) FindCycle(start string) (Cycle, bool) {
	if !g.built {
		g.BuildEdges()
	}
	n, ok := g.byName[start]
	if !ok {
		return Cycle{}, false
	}
	// A node explored once without reaching start never reaches it, so
	// visited is not cleared on backtrack.
	visited := map[string]bool{start: true}
	path := []string{start}
	var visit func(n *Node) bool
	visit = func(n *Node) bool {
		for _, childName := range n.Children {
			if childName == start {
				path = append(path, start)
				return true
			}
			// Cycles not passing through start are found from their own nodes.
			if visited[childName] {
				continue
			}
			visited[childName] = true
			path = append(path, childName)
			if visit(g.byName[childName]) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	if !visit(n) {
		return Cycle{}, false
	}
	return Cycle{Path: path}, true
}

// TopologicalOrder returns the tables ordered so that every referenced
// table precedes the tables referencing it. Ties are broken by name.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if !g.built {
		g.BuildEdges()
	}
	inDegree := make(map[string]int, len(g.nodes))
	var ready []string
	for _, n := range g.nodes {
		inDegree[n.Table.Name] = len(n.Parents)
		if len(n.Parents) == 0 {
			ready = append(ready, n.Table.Name)
		}
	}
	sort.Strings(ready)

	ret := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ret = append(ret, name)
		var next []string
		for _, child := range g.byName[name].Children {
			inDegree[child]--
			if inDegree[child] == 0 {
				next = append(next, child)
			}
		}
		ready = append(ready, next...)
		sort.Strings(ready)
	}
	if len(ret) != len(g.nodes) {
		if err := g.DetectCycles().Err(); err != nil {
			return nil, err
		}
		return nil, errors.AssertionFailedf("graph ordered %d of %d tables without a cycle", len(ret), len(g.nodes))
	}
	return ret, nil
}
