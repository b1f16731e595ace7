// Package orchestrator drives the structural and semantic indexing
// pipelines end to end (spec.md §4.10), wiring the parser, graph,
// repo-map, chunk, and embed packages into the knowledge store.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/kbserver/kbserver/internal/graph"
	"github.com/kbserver/kbserver/internal/jobqueue"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/parser"
	"github.com/kbserver/kbserver/internal/repomap"
	"github.com/kbserver/kbserver/internal/scanner"
)

// DefaultRepoMapTokenBudget is used when a caller doesn't specify one.
const DefaultRepoMapTokenBudget = 4096

// StructuralIndexer runs spec.md §4.10's structural pipeline: enumerate,
// parse, rank, persist, render.
type StructuralIndexer struct {
	Metadata kbstore.MetadataStore
	Parser   *parser.Parser
	Scanner  *scanner.Scanner
}

// NewStructuralIndexer wires a StructuralIndexer from its dependencies.
func NewStructuralIndexer(metadata kbstore.MetadataStore, p *parser.Parser, sc *scanner.Scanner) *StructuralIndexer {
	return &StructuralIndexer{Metadata: metadata, Parser: p, Scanner: sc}
}

// Run indexes projectPath's structure into kbID: parse every non-excluded
// file, build the dependency graph, rank tags by PageRank, persist the
// result atomically, then render and store a default repo map.
func (si *StructuralIndexer) Run(ctx context.Context, kbID, projectPath string, tokenBudget int, progress *jobqueue.Progress) error {
	if tokenBudget <= 0 {
		tokenBudget = DefaultRepoMapTokenBudget
	}
	if progress != nil {
		progress.Update(0, "scanning files")
	}

	results, err := si.Scanner.Scan(ctx, &scanner.ScanOptions{
		RootDir:          projectPath,
		RespectGitignore: true,
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", projectPath, err)
	}

	var allTags []parser.Tag
	sources := make(map[string][]byte)
	contentTypes := make(map[string]kbstore.ContentType)

	scanned := 0
	for res := range results {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if res.Error != nil {
			slog.Warn("orchestrator: scan error", slog.String("error", res.Error.Error()))
			continue
		}
		file := res.File
		content, err := os.ReadFile(file.AbsPath)
		if err != nil {
			slog.Warn("orchestrator: failed to read file",
				slog.String("path", file.AbsPath), slog.String("error", err.Error()))
			continue
		}

		tags, err := si.Parser.Parse(ctx, file.Path, file.Language, content, file.ModTime.UnixNano())
		if err != nil {
			slog.Warn("orchestrator: failed to parse file",
				slog.String("path", file.Path), slog.String("error", err.Error()))
		}
		allTags = append(allTags, tags...)
		sources[file.Path] = content
		contentTypes[file.Path] = structuralContentType(file.ContentType)

		scanned++
		if progress != nil && scanned%50 == 0 {
			progress.Update(30, fmt.Sprintf("parsed %d files", scanned))
		}
	}

	if progress != nil {
		progress.Update(60, "ranking symbols")
	}

	g := graph.BuildGraph(allTags, sources)
	ranked := graph.RankTags(g, allTags, sources, nil)

	symbols := make([]*kbstore.Symbol, 0, len(ranked))
	for _, rt := range ranked {
		symbols = append(symbols, &kbstore.Symbol{
			ID:         symbolID(kbID, rt.Tag.File, rt.Tag.Name, rt.Tag.Line),
			KBID:       kbID,
			File:       rt.Tag.File,
			Name:       rt.Tag.Name,
			Kind:       rt.Tag.Kind,
			Line:       rt.Tag.Line,
			Signature:  rt.Tag.Signature,
			Language:   rt.Tag.Language,
			Importance: rt.Score,
		})
	}
	edges := edgesFromGraph(kbID, g)

	if progress != nil {
		progress.Update(75, "rendering repo map")
	}

	contentTypeOf := func(file string) kbstore.ContentType {
		if ct, ok := contentTypes[file]; ok {
			return ct
		}
		return kbstore.ContentTypeCode
	}
	emitted := repomap.Emit(ranked, contentTypeOf, tokenBudget)

	rankedTagStrings := make([]string, 0, len(ranked))
	for _, rt := range ranked {
		rankedTagStrings = append(rankedTagStrings, fmt.Sprintf("%s:%d:%s", rt.Tag.File, rt.Tag.Line, rt.Tag.Name))
	}
	rm := &kbstore.RepoMap{
		KBID:       kbID,
		RankedTags: rankedTagStrings,
		Text:       emitted.Text,
		TokenCount: emitted.TokenCount,
		Overflow:   emitted.Overflow,
		Params:     map[string]string{"token_budget": fmt.Sprintf("%d", tokenBudget)},
	}

	if progress != nil {
		progress.Update(90, "persisting structural index")
	}
	if err := si.Metadata.ReplaceStructuralIndex(ctx, kbID, symbols, edges, rm); err != nil {
		return fmt.Errorf("persist structural index for %s: %w", kbID, err)
	}
	if progress != nil {
		progress.Update(100, "done")
	}
	return nil
}

func structuralContentType(ct scanner.ContentType) kbstore.ContentType {
	switch ct {
	case scanner.ContentTypeMarkdown:
		return kbstore.ContentTypeMarkdown
	case scanner.ContentTypeCode, scanner.ContentTypeConfig:
		return kbstore.ContentTypeCode
	default:
		return kbstore.ContentTypeText
	}
}

func edgesFromGraph(kbID string, g *graph.Graph) []*kbstore.DependencyEdge {
	edges := make([]*kbstore.DependencyEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, &kbstore.DependencyEdge{
			ID:      edgeID(kbID, g.Nodes[e.Src], g.Nodes[e.Dst]),
			KBID:    kbID,
			SrcFile: g.Nodes[e.Src],
			DstFile: g.Nodes[e.Dst],
			Weight:  e.Weight,
			Kind:    kbstore.EdgeReferences,
		})
	}
	return edges
}

func symbolID(kbID, file, name string, line int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", kbID, file, name, line)))
	return hex.EncodeToString(h[:])[:16]
}

func edgeID(kbID, src, dst string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", kbID, src, dst)))
	return hex.EncodeToString(h[:])[:16]
}
