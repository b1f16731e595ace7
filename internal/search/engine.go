package search

import (
	"context"
	"sort"
	"time"

	kberrors "github.com/kbserver/kbserver/internal/errors"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/telemetry"
)

// Embedder is the subset of embed.Embedder the search engine depends on.
// Declared locally to avoid importing internal/embed, keeping this package's
// dependency surface limited to kbstore + the error taxonomy.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// IndexProvider resolves the per-KB BM25/vector index instances. Each knowledge
// base owns its own BM25Index/VectorStore (spec.md §3: dimension is fixed per KB),
// so the engine never opens indices itself — the orchestrator wires them in.
type IndexProvider interface {
	BM25(kbID string) (kbstore.BM25Index, error)
	Vector(kbID string) (kbstore.VectorStore, error)
}

// Engine implements Querier against a MetadataStore + IndexProvider + Embedder.
type Engine struct {
	metadata kbstore.MetadataStore
	indexes  IndexProvider
	embedder Embedder
	reranker Reranker
	metrics  *telemetry.QueryMetrics
}

var _ Querier = (*Engine)(nil)

// NewEngine builds a search engine. reranker may be nil (use_rerank then errors
// BackendUnavailable); a *NoOpReranker can be passed to make use_rerank a no-op instead.
func NewEngine(metadata kbstore.MetadataStore, indexes IndexProvider, embedder Embedder, reranker Reranker) *Engine {
	return &Engine{metadata: metadata, indexes: indexes, embedder: embedder, reranker: reranker}
}

// WithMetrics attaches a query telemetry recorder (local-only, spec.md §4.4's
// retrieval engine reports no metrics over the wire). Returns e for chaining.
func (e *Engine) WithMetrics(m *telemetry.QueryMetrics) *Engine {
	e.metrics = m
	return e
}

func (e *Engine) recordQuery(text string, opts Options, results []*Result, start time.Time) {
	if e.metrics == nil {
		return
	}
	queryType := telemetry.QueryTypeLexical
	switch {
	case opts.useVector() && opts.UseBM25:
		queryType = telemetry.QueryTypeMixed
	case opts.useVector():
		queryType = telemetry.QueryTypeSemantic
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       text,
		QueryType:   queryType,
		ResultCount: len(results),
		Latency:     time.Since(start),
		Timestamp:   time.Now(),
	})
}

// rerankPoolSize is the cross-encoder candidate pool size (spec.md §4.4: M=50).
const rerankPoolSize = 50

// Query implements the spec.md §4.4 hybrid contract.
func (e *Engine) Query(ctx context.Context, kbID string, text string, opts Options) ([]*Result, error) {
	start := time.Now()
	results, err := e.query(ctx, kbID, text, opts)
	if err == nil {
		e.recordQuery(text, opts, results, start)
	}
	return results, err
}

func (e *Engine) query(ctx context.Context, kbID string, text string, opts Options) ([]*Result, error) {
	kb, err := e.metadata.GetKB(ctx, kbID)
	if err != nil {
		return nil, kberrors.DependencyError(kberrors.ErrCodeBackendTimeout, "metadata store lookup failed", err)
	}
	if kb == nil {
		return nil, kberrors.NotFoundError(kberrors.ErrCodeKBNotFound, "knowledge base not found: "+kbID, nil)
	}

	opts = opts.normalize()
	pool := candidatePoolSize(opts.K)

	var vecResults []*kbstore.VectorResult
	if opts.useVector() {
		vecResults, err = e.vectorSearch(ctx, kb, text, pool)
		if err != nil {
			return nil, err
		}
	}

	var bm25Results []*kbstore.BM25Result
	if opts.UseBM25 {
		idx, err := e.indexes.BM25(kbID)
		if err != nil {
			return nil, kberrors.DependencyError(kberrors.ErrCodeBackendTimeout, "bm25 index unavailable", err)
		}
		bm25Results, err = idx.Search(ctx, text, pool)
		if err != nil {
			return nil, kberrors.DependencyError(kberrors.ErrCodeBackendTimeout, "bm25 search failed", err)
		}
	}

	merged := mergeScores(vecResults, bm25Results, opts.useVector(), opts.UseBM25)
	if len(merged) == 0 {
		return nil, nil
	}

	results, err := e.enrich(ctx, merged, opts.Filter)
	if err != nil {
		return nil, err
	}

	sortResults(results)

	if opts.UseRerank {
		results, err = e.rerank(ctx, text, results)
		if err != nil {
			return nil, err
		}
	}

	if len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

// candidatePoolSize returns the candidate pool M=max(50, 10k) per spec.md §4.4.
func candidatePoolSize(k int) int {
	pool := 10 * k
	if pool < 50 {
		pool = 50
	}
	return pool
}

func (e *Engine) vectorSearch(ctx context.Context, kb *kbstore.KnowledgeBase, text string, limit int) ([]*kbstore.VectorResult, error) {
	queryVec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, kberrors.DependencyError(kberrors.ErrCodeEmbedderUnreachable, "failed to embed query", err)
	}
	if kb.Dimension > 0 && len(queryVec) != kb.Dimension {
		return nil, kberrors.IntegrityError(kberrors.ErrCodeDimensionMismatch, "query embedding dimension does not match knowledge base dimension", nil)
	}

	store, err := e.indexes.Vector(kb.ID)
	if err != nil {
		return nil, kberrors.DependencyError(kberrors.ErrCodeBackendTimeout, "vector store unavailable", err)
	}
	results, err := store.Search(ctx, queryVec, limit)
	if err != nil {
		return nil, kberrors.DependencyError(kberrors.ErrCodeBackendTimeout, "vector search failed", err)
	}
	return results, nil
}

// candidate is one merged, not-yet-enriched match.
type candidate struct {
	chunkID     string
	score       float64
	vectorScore float64
	bm25Score   float64
}

// mergeScores min-max normalizes each enabled ranker's scores independently and
// combines them 0.5/0.5 (spec.md §4.4). When only one ranker is enabled its
// normalized score is used directly.
func mergeScores(vec []*kbstore.VectorResult, bm25 []*kbstore.BM25Result, useVector, useBM25 bool) []*candidate {
	byID := make(map[string]*candidate)

	if useVector && len(vec) > 0 {
		normed := normalizeVector(vec)
		for i, v := range vec {
			c := getOrCreate(byID, v.ID)
			c.vectorScore = float64(v.Score)
			c.score += weightFor(useVector, useBM25) * normed[i]
		}
	}
	if useBM25 && len(bm25) > 0 {
		normed := normalizeBM25(bm25)
		for i, r := range bm25 {
			c := getOrCreate(byID, r.DocID)
			c.bm25Score = r.Score
			c.score += weightFor(useBM25, useVector) * normed[i]
		}
	}

	out := make([]*candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	return out
}

func weightFor(self, other bool) float64 {
	if self && other {
		return 0.5
	}
	return 1.0
}

func getOrCreate(m map[string]*candidate, id string) *candidate {
	c, ok := m[id]
	if !ok {
		c = &candidate{chunkID: id}
		m[id] = c
	}
	return c
}

func normalizeVector(results []*kbstore.VectorResult) []float64 {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = float64(r.Score)
	}
	return minMaxNormalize(scores)
}

func normalizeBM25(results []*kbstore.BM25Result) []float64 {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}
	return minMaxNormalize(scores)
}

// minMaxNormalize rescales scores to [0,1]; a zero-range input maps to all-1.0
// (every candidate equally relevant) rather than dividing by zero.
func minMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	rng := max - min
	for i, s := range scores {
		if rng <= 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (s - min) / rng
	}
	return out
}

func (e *Engine) enrich(ctx context.Context, candidates []*candidate, filter kbstore.ContentType) ([]*Result, error) {
	ids := make([]string, len(candidates))
	byID := make(map[string]*candidate, len(candidates))
	for i, c := range candidates {
		ids[i] = c.chunkID
		byID[c.chunkID] = c
	}

	chunks, err := e.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, kberrors.DependencyError(kberrors.ErrCodeBackendTimeout, "failed to load chunks", err)
	}

	docCache := make(map[string]*kbstore.Document)
	results := make([]*Result, 0, len(chunks))
	for _, chunk := range chunks {
		c := byID[chunk.ID]
		if c == nil {
			continue
		}

		doc, ok := docCache[chunk.DocumentID]
		if !ok {
			doc, err = e.metadata.GetDocumentByID(ctx, chunk.DocumentID)
			if err != nil {
				return nil, kberrors.DependencyError(kberrors.ErrCodeBackendTimeout, "failed to load document", err)
			}
			docCache[chunk.DocumentID] = doc
		}
		if doc == nil {
			continue
		}
		if filter != "" && doc.ContentType != filter {
			continue
		}

		results = append(results, &Result{
			Chunk:       chunk,
			Document:    doc,
			Score:       c.score,
			VectorScore: c.vectorScore,
			BM25Score:   c.bm25Score,
		})
	}
	return results, nil
}

// sortResults applies the spec.md §4.4 tie-break: score desc, filename asc, ordinal asc.
func sortResults(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Document.Filename != b.Document.Filename {
			return a.Document.Filename < b.Document.Filename
		}
		return a.Chunk.Ordinal < b.Chunk.Ordinal
	})
}

func (e *Engine) rerank(ctx context.Context, query string, results []*Result) ([]*Result, error) {
	if e.reranker == nil {
		return nil, kberrors.DependencyError(kberrors.ErrCodeRerankerUnavailable, "no reranker configured", nil)
	}
	if !e.reranker.Available(ctx) {
		return nil, kberrors.DependencyError(kberrors.ErrCodeRerankerUnavailable, "reranker unavailable", nil)
	}

	poolLen := len(results)
	if poolLen > rerankPoolSize {
		poolLen = rerankPoolSize
	}
	pool := results[:poolLen]
	rest := results[poolLen:]

	docs := make([]string, len(pool))
	for i, r := range pool {
		docs[i] = r.Chunk.Text
	}

	reranked, err := e.reranker.Rerank(ctx, query, docs, 0)
	if err != nil {
		return nil, kberrors.DependencyError(kberrors.ErrCodeRerankerUnavailable, "rerank failed", err)
	}

	out := make([]*Result, 0, len(reranked)+len(rest))
	for _, rr := range reranked {
		if rr.Index < 0 || rr.Index >= len(pool) {
			continue
		}
		r := pool[rr.Index]
		r.Score = rr.Score
		out = append(out, r)
	}
	out = append(out, rest...)
	return out, nil
}
