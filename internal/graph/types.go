// Package graph implements the file-level dependency graph and personalized
// weighted PageRank used to rank a repository's symbols for repo-map
// emission (spec.md §4.2). Storage is two flat arrays — a node list and an
// edge list of (src, dst, weight) — plus a file→id index, never pointers,
// so the graph is cheap to rebuild on every indexing pass.
package graph

// Edge is a weighted, directed file→file dependency: src defines a symbol
// that dst references.
type Edge struct {
	Src    int
	Dst    int
	Weight float64
}

// Graph is a file-level dependency graph. Nodes[i] is the file path for id
// i; Index maps a file path back to its id.
type Graph struct {
	Nodes []string
	Index map[string]int
	Edges []Edge

	// outWeight[i] is the sum of weights of edges leaving node i.
	outWeight []float64
}

// Builder accumulates edges before producing an immutable Graph. Multi-edges
// between the same (src, dst) pair collapse into a single weighted edge;
// self-edges are dropped, per spec.md §4.2.
type Builder struct {
	index   map[string]int
	nodes   []string
	weights map[[2]int]float64
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		index:   make(map[string]int),
		weights: make(map[[2]int]float64),
	}
}

// nodeID returns file's node id, creating one if this is the first time
// file has been seen.
func (b *Builder) nodeID(file string) int {
	if id, ok := b.index[file]; ok {
		return id
	}
	id := len(b.nodes)
	b.index[file] = id
	b.nodes = append(b.nodes, file)
	return id
}

// EnsureNode registers file as a node even if it has no edges, so isolated
// files still appear in the ranked output with a nonzero baseline score.
func (b *Builder) EnsureNode(file string) {
	b.nodeID(file)
}

// AddEdge adds weight to the definer→referrer edge from src to dst,
// collapsing repeated calls for the same pair and dropping self-edges.
func (b *Builder) AddEdge(src, dst string, weight float64) {
	if src == dst || weight <= 0 {
		b.EnsureNode(src)
		b.EnsureNode(dst)
		return
	}
	s, d := b.nodeID(src), b.nodeID(dst)
	b.weights[[2]int{s, d}] += weight
}

// Build finalizes the accumulated nodes/edges into an immutable Graph.
func (b *Builder) Build() *Graph {
	g := &Graph{
		Nodes:     append([]string(nil), b.nodes...),
		Index:     make(map[string]int, len(b.index)),
		outWeight: make([]float64, len(b.nodes)),
	}
	for k, v := range b.index {
		g.Index[k] = v
	}
	g.Edges = make([]Edge, 0, len(b.weights))
	for pair, w := range b.weights {
		g.Edges = append(g.Edges, Edge{Src: pair[0], Dst: pair[1], Weight: w})
		g.outWeight[pair[0]] += w
	}
	return g
}
