package graph

import (
	"math"
	"regexp"
	"sort"

	"github.com/kbserver/kbserver/internal/parser"
)

// definerKinds are the Tag kinds spec.md §4.2 treats as symbol
// definitions — a file containing one of these becomes a graph "definer".
// kbstore.SymbolModule has no tree-sitter equivalent emitted by our
// extractor, so in practice this set is function/method/class.
var definerKinds = map[string]bool{
	"function": true,
	"method":   true,
	"class":    true,
	"module":   true,
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// BuildGraph constructs the file dependency graph from a repository's
// extracted tags and raw file sources. Definer files are those containing
// at least one tag of a definer kind; an edge definer→referrer is added
// with weight equal to the number of times the referrer's source mentions
// the definer symbol's name as a token, per spec.md §4.2's
// "referenced-identifier" construction.
func BuildGraph(tags []parser.Tag, sources map[string][]byte) *Graph {
	b := NewBuilder()

	definersByFile := make(map[string][]parser.Tag)
	for _, tag := range tags {
		b.EnsureNode(tag.File)
		if definerKinds[string(tag.Kind)] {
			definersByFile[tag.File] = append(definersByFile[tag.File], tag)
		}
	}
	for file := range sources {
		b.EnsureNode(file)
	}

	// Precompute identifier token sets per file so each referrer file is
	// scanned exactly once regardless of how many definer symbols exist.
	tokenCounts := make(map[string]map[string]int, len(sources))
	for file, content := range sources {
		counts := make(map[string]int)
		for _, tok := range identifierPattern.FindAll(content, -1) {
			counts[string(tok)]++
		}
		tokenCounts[file] = counts
	}

	for definerFile, defs := range definersByFile {
		names := make(map[string]bool, len(defs))
		for _, d := range defs {
			if d.Name != "" {
				names[d.Name] = true
			}
		}
		for referrerFile, counts := range tokenCounts {
			if referrerFile == definerFile {
				continue
			}
			var weight float64
			for name := range names {
				weight += float64(counts[name])
			}
			if weight > 0 {
				b.AddEdge(definerFile, referrerFile, weight)
			}
		}
	}

	return b.Build()
}

// RankedTag is a Tag annotated with its symbol importance score, per
// spec.md §4.2: file_pagerank * (1 + log(1 + #references to that symbol));
// the added 1 inside the log keeps unreferenced symbols finite.
type RankedTag struct {
	Tag   parser.Tag
	Score float64
}

// RankTags scores every tag by its file's PageRank combined with the
// symbol's reference count (the number of times its name was counted as a
// graph edge weight contribution across all referrer files), and sorts the
// result by the spec's required tie-break: score descending, then
// (file path, line) lexicographic ascending.
func RankTags(g *Graph, tags []parser.Tag, sources map[string][]byte, personalization map[string]float64) []RankedTag {
	scores := PageRank(g, personalization, DefaultDamping, DefaultTolerance, MaxIterations)

	refCounts := referenceCounts(tags, sources)

	ranked := make([]RankedTag, 0, len(tags))
	for _, tag := range tags {
		fileScore := scores[tag.File]
		refs := refCounts[refKey(tag.File, tag.Name)]
		importance := fileScore * (1 + math.Log(float64(refs)+1))
		ranked = append(ranked, RankedTag{Tag: tag, Score: importance})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Tag.File != b.Tag.File {
			return a.Tag.File < b.Tag.File
		}
		return a.Tag.Line < b.Tag.Line
	})
	return ranked
}

func refKey(file, name string) string {
	return file + "\x00" + name
}

// referenceCounts tallies, for every (definer file, symbol name) pair, how
// many times that symbol's identifier occurs across all OTHER files'
// sources — the same signal BuildGraph turns into edge weight.
func referenceCounts(tags []parser.Tag, sources map[string][]byte) map[string]int {
	definersByFile := make(map[string][]parser.Tag)
	for _, tag := range tags {
		if definerKinds[string(tag.Kind)] && tag.Name != "" {
			definersByFile[tag.File] = append(definersByFile[tag.File], tag)
		}
	}

	tokenCounts := make(map[string]map[string]int, len(sources))
	for file, content := range sources {
		counts := make(map[string]int)
		for _, tok := range identifierPattern.FindAll(content, -1) {
			counts[string(tok)]++
		}
		tokenCounts[file] = counts
	}

	out := make(map[string]int)
	for definerFile, defs := range definersByFile {
		for _, d := range defs {
			var total int
			for referrerFile, counts := range tokenCounts {
				if referrerFile == definerFile {
					continue
				}
				total += counts[d.Name]
			}
			out[refKey(definerFile, d.Name)] = total
		}
	}
	return out
}

// containsLongIdentifier reports whether content has any identifier token
// of at least 8 characters, for the "long identifiers" personalization
// boost in spec.md §4.2.
func containsLongIdentifier(content []byte) bool {
	for _, tok := range identifierPattern.FindAll(content, -1) {
		if len(tok) >= 8 {
			return true
		}
	}
	return false
}

// LongIdentifierFiles returns the subset of sources containing at least one
// identifier >= 8 characters long.
func LongIdentifierFiles(sources map[string][]byte) map[string]bool {
	out := make(map[string]bool)
	for file, content := range sources {
		if containsLongIdentifier(content) {
			out[file] = true
		}
	}
	return out
}

// ReferencedOnlyFiles approximates spec.md's "referenced by others but not
// referencing many" boost signal: files whose out-degree (distinct files
// referencing them, since edges run definer→referrer) exceeds their
// in-degree (distinct definer files they reference) in g.
func ReferencedOnlyFiles(g *Graph) map[string]bool {
	inDeg := make([]int, len(g.Nodes))
	outDeg := make([]int, len(g.Nodes))
	seen := make(map[[2]int]bool, len(g.Edges))
	for _, e := range g.Edges {
		if seen[[2]int{e.Src, e.Dst}] {
			continue
		}
		seen[[2]int{e.Src, e.Dst}] = true
		outDeg[e.Src]++
		inDeg[e.Dst]++
	}
	out := make(map[string]bool)
	for i, file := range g.Nodes {
		if outDeg[i] > inDeg[i] {
			out[file] = true
		}
	}
	return out
}
