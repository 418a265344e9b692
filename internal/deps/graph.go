// Package deps builds the cross-file reference graph of a project: which
// files import, link to, invoke or configure which other files.
//
// Extraction is syntactic and intentionally approximate. A path inside a
// comment or an unrelated string still yields an edge, which errs toward
// treating files as referenced.
package deps

import (
	"sort"
)

// EdgeType classifies how one file references another
type EdgeType string

const (
	EdgeImport          EdgeType = "import"
	EdgeReference       EdgeType = "reference"
	EdgeScriptCall      EdgeType = "script-call"
	EdgeConfigReference EdgeType = "config-reference"
)

// Edge is a directed reference from one project file to another
type Edge struct {
	From string   `json:"from" yaml:"from"`
	To   string   `json:"to" yaml:"to"`
	Type EdgeType `json:"type" yaml:"type"`
}

// Graph is the dependency graph of a set of files. Every analyzed file is a
// node even when it has no edges. Edge targets are project-relative paths
// inside the root.
type Graph struct {
	Nodes []string `json:"nodes" yaml:"nodes"`
	Edges []Edge   `json:"edges" yaml:"edges"`

	incoming map[string][]Edge
	nodeSet  map[string]bool
}

// NewGraph builds a graph, sorting nodes and edges and dropping self and
// duplicate edges. For a duplicate (from, to) pair the first edge wins.
func NewGraph(nodes []string, edges []Edge) *Graph {
	g := &Graph{
		incoming: make(map[string][]Edge),
		nodeSet:  make(map[string]bool, len(nodes)),
	}

	for _, n := range nodes {
		if !g.nodeSet[n] {
			g.nodeSet[n] = true
			g.Nodes = append(g.Nodes, n)
		}
	}
	sort.Strings(g.Nodes)

	type pair struct{ from, to string }
	seen := make(map[pair]bool, len(edges))
	for _, e := range edges {
		if e.From == e.To {
			continue
		}
		key := pair{e.From, e.To}
		if seen[key] {
			continue
		}
		seen[key] = true
		g.Edges = append(g.Edges, e)
	}

	sort.SliceStable(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})

	for _, e := range g.Edges {
		g.incoming[e.To] = append(g.incoming[e.To], e)
	}

	return g
}

// HasNode reports whether path was part of the analyzed set
func (g *Graph) HasNode(path string) bool {
	return g.nodeSet[path]
}

// IncomingEdges returns the edges pointing at path
func (g *Graph) IncomingEdges(path string) []Edge {
	return g.incoming[path]
}

// IsReferenced reports whether any file references path
func (g *Graph) IsReferenced(path string) bool {
	return len(g.incoming[path]) > 0
}

// ReferencingFiles returns the sorted files that reference path
func (g *Graph) ReferencingFiles(path string) []string {
	edges := g.incoming[path]
	if len(edges) == 0 {
		return nil
	}

	files := make([]string, 0, len(edges))
	for _, e := range edges {
		files = append(files, e.From)
	}
	sort.Strings(files)
	return files
}

// IsFileReferenced reports whether any file in graph references path
func IsFileReferenced(path string, graph *Graph) bool {
	return graph.IsReferenced(path)
}

// GetReferencingFiles returns the files in graph that reference path
func GetReferencingFiles(path string, graph *Graph) []string {
	return graph.ReferencingFiles(path)
}
