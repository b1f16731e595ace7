// Package registry owns the per-knowledge-base BM25Index/VectorStore
// instances backing a running kbserver process. Each KB gets its own pair,
// opened lazily under <data-root>/kb/<id>/ and cached for the process
// lifetime (spec.md §3: a KB's embedding dimension is fixed at creation, so
// its vector store is sized once and never shared across KBs).
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/search"
)

// Registry resolves and caches the BM25/vector index pair for each KB,
// implementing search.IndexProvider for the hybrid query engine and serving
// the same pair to the indexing orchestrator and the CLI/HTTP stats paths.
type Registry struct {
	dataDir     string
	metadata    kbstore.MetadataStore
	bm25Backend string

	mu     sync.Mutex
	bm25   map[string]kbstore.BM25Index
	vector map[string]*kbstore.HNSWStore
}

// New creates a Registry rooted at dataDir (Config.DataDir). bm25Backend is
// "sqlite" or "bleve" (Config.Search.BM25Backend).
func New(dataDir string, metadata kbstore.MetadataStore, bm25Backend string) *Registry {
	return &Registry{
		dataDir:     dataDir,
		metadata:    metadata,
		bm25Backend: bm25Backend,
		bm25:        make(map[string]kbstore.BM25Index),
		vector:      make(map[string]*kbstore.HNSWStore),
	}
}

var _ search.IndexProvider = (*Registry)(nil)

func (r *Registry) kbDir(kbID string) string {
	return filepath.Join(r.dataDir, "kb", kbID)
}

// BM25 returns kbID's BM25 index, opening it on first use.
func (r *Registry) BM25(kbID string) (kbstore.BM25Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.bm25[kbID]; ok {
		return idx, nil
	}

	dir := r.kbDir(kbID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create kb dir: %w", err)
	}

	idx, err := kbstore.NewBM25IndexWithBackend(filepath.Join(dir, "bm25"), kbstore.DefaultBM25Config(), r.bm25Backend)
	if err != nil {
		return nil, fmt.Errorf("open bm25 index for %s: %w", kbID, err)
	}
	r.bm25[kbID] = idx
	return idx, nil
}

// Vector returns kbID's HNSW vector store, opening and rehydrating it from
// disk on first use and from the authoritative SQLite embedding rows if no
// saved graph exists yet (spec.md §4.5: the ANN index is a view of the
// SQLite rows, rebuilt on startup).
func (r *Registry) Vector(kbID string) (kbstore.VectorStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if vs, ok := r.vector[kbID]; ok {
		return vs, nil
	}

	kb, err := r.metadata.GetKB(context.Background(), kbID)
	if err != nil {
		return nil, fmt.Errorf("look up kb %s: %w", kbID, err)
	}

	dir := r.kbDir(kbID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create kb dir: %w", err)
	}

	vs, err := kbstore.NewHNSWStore(kbstore.DefaultVectorStoreConfig(kb.Dimension))
	if err != nil {
		return nil, fmt.Errorf("open vector store for %s: %w", kbID, err)
	}

	graphPath := filepath.Join(dir, "vector.hnsw")
	if _, err := os.Stat(graphPath); err == nil {
		if err := vs.Load(graphPath); err != nil {
			return nil, fmt.Errorf("load vector graph for %s: %w", kbID, err)
		}
	} else if err := r.rebuildFromEmbeddings(context.Background(), vs, kbID); err != nil {
		return nil, fmt.Errorf("rebuild vector graph for %s: %w", kbID, err)
	}

	r.vector[kbID] = vs
	return vs, nil
}

// rebuildFromEmbeddings repopulates a fresh HNSW graph from the KB's
// persisted embedding rows, used when no saved graph snapshot exists.
func (r *Registry) rebuildFromEmbeddings(ctx context.Context, vs kbstore.VectorStore, kbID string) error {
	embeddings, err := r.metadata.GetAllEmbeddings(ctx, kbID)
	if err != nil {
		return err
	}
	if len(embeddings) == 0 {
		return nil
	}

	ids := make([]string, 0, len(embeddings))
	vectors := make([][]float32, 0, len(embeddings))
	for chunkID, vec := range embeddings {
		ids = append(ids, chunkID)
		vectors = append(vectors, vec)
	}
	return vs.Add(ctx, ids, vectors)
}

// Save persists every opened vector store's graph to disk (BM25 backends
// persist themselves on write, so only vector snapshots need an explicit
// flush). Called before process shutdown and by the compaction job.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for kbID, vs := range r.vector {
		path := filepath.Join(r.kbDir(kbID), "vector.hnsw")
		if err := vs.Save(path); err != nil {
			return fmt.Errorf("save vector graph for %s: %w", kbID, err)
		}
	}
	return nil
}

// Close saves and closes every opened index.
func (r *Registry) Close() error {
	if err := r.Save(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, idx := range r.bm25 {
		_ = idx.Close()
	}
	for _, vs := range r.vector {
		_ = vs.Close()
	}
	return nil
}

// Stats reports combined BM25 + vector statistics for one KB, backing the
// `stats` CLI subcommand and GET /api/kb/{name}/stats.
type Stats struct {
	DocumentCount    int     `json:"document_count"`
	TermCount        int     `json:"term_count"`
	AvgDocLength     float64 `json:"avg_doc_length"`
	VectorValidIDs   int     `json:"vector_valid_ids"`
	VectorGraphNodes int     `json:"vector_graph_nodes"`
	VectorOrphans    int     `json:"vector_orphans"`
	OrphanRatio      float64 `json:"orphan_ratio"`
}

// Stats computes Stats for kbID, opening its indexes if not already cached.
func (r *Registry) Stats(kbID string) (*Stats, error) {
	bm25, err := r.BM25(kbID)
	if err != nil {
		return nil, err
	}
	vec, err := r.Vector(kbID)
	if err != nil {
		return nil, err
	}

	bstats := bm25.Stats()
	out := &Stats{
		DocumentCount: bstats.DocumentCount,
		TermCount:     bstats.TermCount,
		AvgDocLength:  bstats.AvgDocLength,
	}

	if hs, ok := vec.(*kbstore.HNSWStore); ok {
		vstats := hs.Stats()
		out.VectorValidIDs = vstats.ValidIDs
		out.VectorGraphNodes = vstats.GraphNodes
		out.VectorOrphans = vstats.Orphans
		if vstats.GraphNodes > 0 {
			out.OrphanRatio = float64(vstats.Orphans) / float64(vstats.GraphNodes)
		}
	}

	return out, nil
}
