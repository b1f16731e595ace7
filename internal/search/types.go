// Package search implements the hybrid vector/BM25 query contract of spec.md §4.4:
// a KB-scoped query that blends cosine similarity and BM25 score, with optional
// cross-encoder reranking over the candidate pool.
package search

import (
	"context"

	"github.com/kbserver/kbserver/internal/kbstore"
)

// DefaultK is the result count used when Options.K is zero.
const DefaultK = 5

// MaxK is the largest result count a caller may request.
const MaxK = 200

// Options configures a single hybrid query (spec.md §4.4).
type Options struct {
	// UseVector enables cosine-similarity search over the KB's embeddings. Default true.
	UseVector *bool

	// UseBM25 enables BM25 keyword search. Default false.
	UseBM25 bool

	// UseRerank reranks the top candidate pool with a cross-encoder. Default false.
	UseRerank bool

	// Filter restricts results to chunks whose document content type matches, when non-empty.
	Filter kbstore.ContentType

	// K is the number of results to return. Zero means DefaultK; values above MaxK are clamped.
	K int
}

// normalize fills in defaults and clamps K (spec.md §4.4: default k=5, max 200,
// use_vector defaults true, use_bm25 defaults false).
func (o Options) normalize() Options {
	out := o
	if out.UseVector == nil {
		t := true
		out.UseVector = &t
	}
	if out.K <= 0 {
		out.K = DefaultK
	}
	if out.K > MaxK {
		out.K = MaxK
	}
	return out
}

func (o Options) useVector() bool {
	return o.UseVector == nil || *o.UseVector
}

// Result is one ranked hit from Query.
type Result struct {
	Chunk       *kbstore.Chunk
	Document    *kbstore.Document
	Score       float64 // combined score in [0,1] (or rerank score when UseRerank)
	VectorScore float64 // cosine similarity in [-1,1], 0 if vector search was not used
	BM25Score   float64 // raw BM25 score, 0 if BM25 search was not used
}

// Querier executes the hybrid query contract for one knowledge base.
type Querier interface {
	// Query searches kbID's chunks for text and returns up to opts.K results,
	// ranked by combined score desc, then Document.Filename asc, then Chunk.Ordinal asc.
	Query(ctx context.Context, kbID string, text string, opts Options) ([]*Result, error)
}
