package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbserver/kbserver/internal/parser"
)

func TestPageRank_UniformOnDisconnectedGraph(t *testing.T) {
	b := NewBuilder()
	b.EnsureNode("a.go")
	b.EnsureNode("b.go")
	g := b.Build()

	scores := PageRank(g, nil, DefaultDamping, DefaultTolerance, MaxIterations)
	require.Len(t, scores, 2)
	assert.InDelta(t, scores["a.go"], scores["b.go"], 1e-9)
}

func TestPageRank_DefinerGetsHigherScoreThanIsolatedFile(t *testing.T) {
	b := NewBuilder()
	b.AddEdge("lib.go", "main.go", 3)
	b.EnsureNode("unused.go")
	g := b.Build()

	scores := PageRank(g, nil, DefaultDamping, DefaultTolerance, MaxIterations)
	assert.Greater(t, scores["lib.go"], scores["unused.go"])
}

func TestPageRank_SelfEdgesDropped(t *testing.T) {
	b := NewBuilder()
	b.AddEdge("a.go", "a.go", 5)
	g := b.Build()
	assert.Empty(t, g.Edges)
}

func TestPageRank_MultiEdgesCollapseToWeightedSingle(t *testing.T) {
	b := NewBuilder()
	b.AddEdge("a.go", "b.go", 1)
	b.AddEdge("a.go", "b.go", 2)
	g := b.Build()
	require.Len(t, g.Edges, 1)
	assert.Equal(t, 3.0, g.Edges[0].Weight)
}

func TestPageRank_PersonalizationBoostsInChatFile(t *testing.T) {
	b := NewBuilder()
	b.EnsureNode("a.go")
	b.EnsureNode("b.go")
	g := b.Build()

	personalization := BuildPersonalization([]string{"a.go", "b.go"}, PersonalizationInputs{
		InChat: map[string]bool{"a.go": true},
	})
	scores := PageRank(g, personalization, DefaultDamping, DefaultTolerance, MaxIterations)
	assert.Greater(t, scores["a.go"], scores["b.go"])
}

func TestRankTags_TieBreaksByPathThenLine(t *testing.T) {
	tags := []parser.Tag{
		{File: "b.go", Name: "Foo", Kind: "function", Line: 10},
		{File: "a.go", Name: "Bar", Kind: "function", Line: 5},
		{File: "a.go", Name: "Baz", Kind: "function", Line: 1},
	}
	sources := map[string][]byte{
		"a.go": []byte("package a\nfunc Bar() {}\nfunc Baz() {}\n"),
		"b.go": []byte("package a\nfunc Foo() {}\n"),
	}
	g := BuildGraph(tags, sources)
	ranked := RankTags(g, tags, sources, nil)

	require.Len(t, ranked, 3)
	// All three tags are in disconnected files (no cross-references) so
	// their scores tie; the tie-break must order by (file, line) ascending.
	assert.Equal(t, "a.go", ranked[0].Tag.File)
	assert.Equal(t, 1, ranked[0].Tag.Line)
	assert.Equal(t, "a.go", ranked[1].Tag.File)
	assert.Equal(t, 5, ranked[1].Tag.Line)
	assert.Equal(t, "b.go", ranked[2].Tag.File)
}

func TestBuildGraph_ReferencedIdentifierCreatesEdge(t *testing.T) {
	tags := []parser.Tag{
		{File: "lib.go", Name: "Helper", Kind: "function", Line: 1},
	}
	sources := map[string][]byte{
		"lib.go":  []byte("package lib\nfunc Helper() {}\n"),
		"main.go": []byte("package main\nfunc main() { lib.Helper() }\n"),
	}
	g := BuildGraph(tags, sources)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, g.Index["lib.go"], g.Edges[0].Src)
	assert.Equal(t, g.Index["main.go"], g.Edges[0].Dst)
}
