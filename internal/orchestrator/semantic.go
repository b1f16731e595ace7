package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kbserver/kbserver/internal/chunk"
	"github.com/kbserver/kbserver/internal/embed"
	"github.com/kbserver/kbserver/internal/graph"
	"github.com/kbserver/kbserver/internal/jobqueue"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/scanner"
)

// MaxSemanticFileBytes is spec.md §4.3's per-file size cutoff: larger files
// are skipped rather than embedded.
const MaxSemanticFileBytes = 2 * 1024 * 1024

// TopImportanceFraction is the fraction of highest-ranked symbols (by
// importance) whose files are selected for semantic indexing, per spec.md
// §4.3's "top-20% of symbols by importance" rule.
const TopImportanceFraction = 0.20

var docPatterns = []string{"*.md", "*.txt", "*.rst"}

// SemanticIndexer runs spec.md §4.3's selective semantic pipeline:
// select, chunk, embed, persist, then update the owning hook's
// content-hash map.
type SemanticIndexer struct {
	Metadata    kbstore.MetadataStore
	BM25        kbstore.BM25Index
	Vector      kbstore.VectorStore
	Embedder    embed.Embedder
	CodeChunker chunk.Chunker
	MDChunker   chunk.Chunker
	Scanner     *scanner.Scanner
}

// NewSemanticIndexer wires a SemanticIndexer from its dependencies,
// defaulting the chunkers if not supplied.
func NewSemanticIndexer(metadata kbstore.MetadataStore, bm25 kbstore.BM25Index, vector kbstore.VectorStore, embedder embed.Embedder, sc *scanner.Scanner) *SemanticIndexer {
	return &SemanticIndexer{
		Metadata:    metadata,
		BM25:        bm25,
		Vector:      vector,
		Embedder:    embedder,
		CodeChunker: chunk.NewCodeChunker(),
		MDChunker:   chunk.NewMarkdownChunker(),
		Scanner:     sc,
	}
}

// SelectiveParams configures which files spec.md §4.3 selects for semantic
// indexing.
type SelectiveParams struct {
	// Selective, when true, applies the union-of-criteria file selection.
	// When false, every scanned file is selected.
	Selective bool
	// CodeStructureKBID is the structural KB whose symbols supply the
	// importance ranking used by the top-20% criterion. Required when
	// Selective is true.
	CodeStructureKBID string
	// ModifiedWindowDays overrides the personalization window for the
	// "recently modified" selection criterion (default 30).
	ModifiedWindowDays int
}

// Run indexes projectPath's selected files into kbID, optionally scoped to
// a single Hook whose synced-files map is updated on success. Returns the
// number of files successfully indexed.
func (si *SemanticIndexer) Run(ctx context.Context, kbID, projectPath string, params SelectiveParams, hook *kbstore.Hook, progress *jobqueue.Progress) (int, error) {
	if progress != nil {
		progress.Update(0, "scanning files")
	}

	results, err := si.Scanner.Scan(ctx, &scanner.ScanOptions{
		RootDir:          projectPath,
		RespectGitignore: true,
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", projectPath, err)
	}

	var candidates []*scanner.FileInfo
	for res := range results {
		if res.Error != nil {
			slog.Warn("orchestrator: scan error", slog.String("error", res.Error.Error()))
			continue
		}
		candidates = append(candidates, res.File)
	}

	selected, err := si.selectFiles(ctx, candidates, params)
	if err != nil {
		return 0, fmt.Errorf("select files for semantic index: %w", err)
	}
	slog.Info("orchestrator: semantic file selection",
		slog.Int("candidates", len(candidates)), slog.Int("selected", len(selected)))

	lastReport := time.Now()
	var processed, indexed int
	for _, file := range selected {
		select {
		case <-ctx.Done():
			return indexed, ctx.Err()
		default:
		}

		if err := si.indexFile(ctx, kbID, file); err != nil {
			slog.Warn("orchestrator: failed to index file",
				slog.String("path", file.Path), slog.String("error", err.Error()))
		} else {
			indexed++
			if hook != nil {
				if hook.SyncedFiles == nil {
					hook.SyncedFiles = make(map[string]string)
				}
				hash, hashErr := fileContentHash(file.AbsPath)
				if hashErr == nil {
					hook.SyncedFiles[file.Path] = hash
				}
			}
		}

		processed++
		if progress != nil && time.Since(lastReport) >= time.Second {
			pct := 100 * processed / maxInt(1, len(selected))
			progress.Update(pct, fmt.Sprintf("embedded %d/%d files", processed, len(selected)))
			lastReport = time.Now()
		}
	}

	if hook != nil {
		hook.LastSyncAt = time.Now()
		if err := si.Metadata.SaveHook(ctx, hook); err != nil {
			return indexed, fmt.Errorf("persist hook sync state: %w", err)
		}
	}

	if progress != nil {
		progress.Update(100, "done")
	}
	return indexed, nil
}

// indexSinglePath handles one watcher-dispatched sync task (spec.md §4.6):
// re-chunk, re-embed, and re-persist a single file, then advance the hook's
// content-hash map. Used by Orchestrator.ReindexFile; deletions (the file
// no longer exists on disk) remove the document instead of indexing it.
func (si *SemanticIndexer) indexSinglePath(ctx context.Context, kbID, projectPath, relPath string, hook *kbstore.Hook, progress *jobqueue.Progress) error {
	if progress != nil {
		progress.Update(0, "reindexing "+relPath)
	}

	absPath := filepath.Join(projectPath, relPath)
	info, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		if doc, derr := si.Metadata.GetDocument(ctx, kbID, relPath); derr == nil && doc != nil {
			if err := si.Metadata.DeleteDocument(ctx, doc.ID); err != nil {
				return fmt.Errorf("delete document for removed file %s: %w", relPath, err)
			}
		}
		if hook != nil {
			delete(hook.SyncedFiles, relPath)
		}
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", absPath, err)
	} else {
		file := &scanner.FileInfo{
			Path:        relPath,
			AbsPath:     absPath,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			ContentType: scanner.DetectContentType(scanner.DetectLanguage(relPath)),
			Language:    scanner.DetectLanguage(relPath),
		}
		if err := si.indexFile(ctx, kbID, file); err != nil {
			return fmt.Errorf("reindex %s: %w", relPath, err)
		}
		if hook != nil {
			if hook.SyncedFiles == nil {
				hook.SyncedFiles = make(map[string]string)
			}
			if hash, hashErr := fileContentHash(absPath); hashErr == nil {
				hook.SyncedFiles[relPath] = hash
			}
		}
	}

	if hook != nil {
		hook.LastSyncAt = time.Now()
		if err := si.Metadata.SaveHook(ctx, hook); err != nil {
			return fmt.Errorf("persist hook sync state: %w", err)
		}
	}

	if progress != nil {
		progress.Update(100, "done")
	}
	return nil
}

// selectFiles applies spec.md §4.3's union-of-criteria selection.
func (si *SemanticIndexer) selectFiles(ctx context.Context, candidates []*scanner.FileInfo, params SelectiveParams) ([]*scanner.FileInfo, error) {
	if !params.Selective {
		return candidates, nil
	}

	windowDays := params.ModifiedWindowDays
	if windowDays <= 0 {
		windowDays = graph.DefaultModifiedWindowDays
	}
	cutoff := time.Now().AddDate(0, 0, -windowDays)

	importantFiles, err := si.topImportanceFiles(ctx, params.CodeStructureKBID)
	if err != nil {
		return nil, err
	}

	var selected []*scanner.FileInfo
	for _, f := range candidates {
		if importantFiles[f.Path] || isDocFile(f.Path) || f.ModTime.After(cutoff) {
			selected = append(selected, f)
		}
	}
	return selected, nil
}

// topImportanceFiles returns the set of files whose highest-importance
// symbol falls in the top TopImportanceFraction of all symbols in the
// structural KB.
func (si *SemanticIndexer) topImportanceFiles(ctx context.Context, structureKBID string) (map[string]bool, error) {
	result := make(map[string]bool)
	if structureKBID == "" {
		return result, nil
	}
	symbols, err := si.Metadata.GetSymbols(ctx, structureKBID)
	if err != nil {
		return nil, fmt.Errorf("load structural symbols: %w", err)
	}
	if len(symbols) == 0 {
		return result, nil
	}

	maxPerFile := make(map[string]float64)
	importances := make([]float64, 0, len(symbols))
	for _, s := range symbols {
		importances = append(importances, s.Importance)
		if s.Importance > maxPerFile[s.File] {
			maxPerFile[s.File] = s.Importance
		}
	}

	sort.Float64s(importances)
	idx := int(float64(len(importances)) * (1 - TopImportanceFraction))
	if idx >= len(importances) {
		idx = len(importances) - 1
	}
	threshold := importances[idx]

	for file, importance := range maxPerFile {
		if importance >= threshold {
			result[file] = true
		}
	}
	return result, nil
}

func isDocFile(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range docPatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// indexFile chunks, embeds, and persists one scanned file, skipping it if
// its content hash matches the already-stored document (idempotence,
// spec.md §4.3).
func (si *SemanticIndexer) indexFile(ctx context.Context, kbID string, file *scanner.FileInfo) error {
	if file.Size > MaxSemanticFileBytes {
		return nil
	}

	content, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", file.Path, err)
	}
	if looksBinary(content) {
		return nil
	}

	return si.IndexDocument(ctx, kbID, file.Path, content, structuralContentType(file.ContentType), file.Language, file.AbsPath)
}

// IndexDocument chunks, embeds, and persists raw content directly under
// filename, without touching the filesystem. This is the entry point for
// tool/API-driven document uploads (spec.md §6's `ingest_document`), as
// opposed to indexFile/indexSinglePath which source content from disk.
func (si *SemanticIndexer) IndexDocument(ctx context.Context, kbID, filename string, content []byte, contentType kbstore.ContentType, language, sourcePath string) error {
	if int64(len(content)) > MaxSemanticFileBytes {
		return fmt.Errorf("ingest_document: %s exceeds max size of %d bytes", filename, MaxSemanticFileBytes)
	}
	if looksBinary(content) {
		return fmt.Errorf("ingest_document: %s looks like a binary file", filename)
	}

	hash := sha256.Sum256(content)
	contentHash := hex.EncodeToString(hash[:])

	existing, err := si.Metadata.GetDocument(ctx, kbID, filename)
	if err != nil {
		return fmt.Errorf("lookup existing document %s: %w", filename, err)
	}
	if existing != nil && existing.ContentHash == contentHash {
		return nil
	}

	chunker := si.CodeChunker
	if contentType == kbstore.ContentTypeMarkdown {
		chunker = si.MDChunker
	}
	rawChunks, err := chunker.Chunk(ctx, &chunk.FileInput{Path: filename, Content: content, Language: language})
	if err != nil {
		return fmt.Errorf("chunk %s: %w", filename, err)
	}
	if err := chunk.AssignOffsets(content, rawChunks); err != nil {
		return fmt.Errorf("assign offsets for %s: %w", filename, err)
	}

	docID := documentID(kbID, filename)
	storeChunks, err := chunk.ToKBStore(docID, rawChunks)
	if err != nil {
		return fmt.Errorf("convert chunks for %s: %w", filename, err)
	}

	texts := make([]string, len(storeChunks))
	for i, c := range storeChunks {
		texts[i] = c.Text
	}
	vectors, err := si.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %s: %w", filename, err)
	}
	if len(vectors) != len(storeChunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(storeChunks))
	}

	embeddings := make([]*kbstore.Embedding, len(storeChunks))
	for i, c := range storeChunks {
		embeddings[i] = &kbstore.Embedding{
			ChunkID: c.ID,
			Dim:     si.Embedder.Dimensions(),
			Vector:  vectors[i],
			Model:   si.Embedder.ModelName(),
		}
	}

	doc := &kbstore.Document{
		ID:          docID,
		KBID:        kbID,
		Filename:    filename,
		SourcePath:  sourcePath,
		Size:        int64(len(content)),
		ContentType: contentType,
		ContentHash: contentHash,
	}
	if err := si.Metadata.UpsertDocument(ctx, doc, storeChunks, embeddings); err != nil {
		return fmt.Errorf("persist document %s: %w", filename, err)
	}

	if si.BM25 != nil {
		docs := make([]*kbstore.BM25Doc, len(storeChunks))
		for i, c := range storeChunks {
			docs[i] = &kbstore.BM25Doc{ID: c.ID, Content: c.Text}
		}
		if err := si.BM25.Index(ctx, docs); err != nil {
			return fmt.Errorf("index %s into BM25: %w", filename, err)
		}
	}
	if si.Vector != nil {
		ids := make([]string, len(storeChunks))
		vecs := make([][]float32, len(storeChunks))
		for i, c := range storeChunks {
			ids[i] = c.ID
			vecs[i] = vectors[i]
		}
		if err := si.Vector.Add(ctx, ids, vecs); err != nil {
			return fmt.Errorf("index %s into vector store: %w", filename, err)
		}
	}

	return nil
}

func looksBinary(content []byte) bool {
	n := len(content)
	if n > 8000 {
		n = 8000
	}
	for _, b := range content[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

func fileContentHash(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:]), nil
}

func documentID(kbID, path string) string {
	h := sha256.Sum256([]byte(kbID + "|" + path))
	return hex.EncodeToString(h[:])[:16]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
