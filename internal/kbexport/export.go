// Package kbexport implements spec.md §6's bit-stable export/restore
// format: a self-contained SQLite file (knowledge_bases, documents,
// embeddings, export_metadata tables) plus a manifest JSON describing it.
// Export/restore are one-shot CLI operations, so this package uses the
// CGO sqlite3 driver (github.com/mattn/go-sqlite3) rather than the
// pure-Go driver internal/kbstore uses for the always-on metadata store.
package kbexport

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kbserver/kbserver/internal/kbstore"
)

// FormatVersion is the export format's bit-stable schema version
// (spec.md §6: export_metadata.format_version).
const FormatVersion = "1.0"

// Manifest is the sidecar JSON written alongside the export database.
type Manifest struct {
	FormatVersion   string            `json:"format_version"`
	ExportedAt      time.Time         `json:"exported_at"`
	ProjectName     string            `json:"project_name"`
	KnowledgeBases  []string          `json:"knowledge_bases"`
	Stats           map[string]int    `json:"stats"`
	Schema          map[string]string `json:"schema"`
}

// Export writes project's bound knowledge bases to
// <outputDir>/<project>_<ts>.db and its manifest to
// <outputDir>/<project>_<ts>.manifest.json, returning both paths.
func Export(ctx context.Context, metadata kbstore.MetadataStore, project *kbstore.Project, outputDir string) (dbPath, manifestPath string, err error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}

	kbsByRole, err := metadata.ListProjectKBs(ctx, project.ID)
	if err != nil {
		return "", "", fmt.Errorf("list project kbs: %w", err)
	}

	ts := project.CreatedAt.UTC().Format("20060102-150405")
	base := fmt.Sprintf("%s_%s", project.Name, ts)
	dbPath = filepath.Join(outputDir, base+".db")
	manifestPath = filepath.Join(outputDir, base+".manifest.json")

	db, err := openExportDB(dbPath)
	if err != nil {
		return "", "", err
	}
	defer db.Close()

	stats := make(map[string]int)
	var kbNames []string

	for _, kb := range kbsByRole {
		kbNames = append(kbNames, kb.Name)
		docs, err := metadata.ListDocuments(ctx, kb.ID)
		if err != nil {
			return "", "", fmt.Errorf("list documents for %s: %w", kb.Name, err)
		}

		for _, doc := range docs {
			if err := insertDocument(db, kb, doc); err != nil {
				return "", "", err
			}
			stats["documents"]++
		}

		embeddings, err := metadata.GetAllEmbeddings(ctx, kb.ID)
		if err != nil {
			return "", "", fmt.Errorf("get embeddings for %s: %w", kb.Name, err)
		}
		for chunkID, vec := range embeddings {
			if err := insertEmbedding(db, chunkID, vec); err != nil {
				return "", "", err
			}
			stats["embeddings"]++
		}

		if err := insertKB(db, kb); err != nil {
			return "", "", err
		}
	}
	stats["knowledge_bases"] = len(kbNames)

	if _, err := db.Exec(`INSERT INTO export_metadata(key, value) VALUES (?, ?)`, "format_version", FormatVersion); err != nil {
		return "", "", fmt.Errorf("write export metadata: %w", err)
	}

	manifest := Manifest{
		FormatVersion:  FormatVersion,
		ExportedAt:     time.Now().UTC(),
		ProjectName:    project.Name,
		KnowledgeBases: kbNames,
		Stats:          stats,
		Schema: map[string]string{
			"knowledge_bases": "id, name, slug, type, description, dimension",
			"documents":       "id, kb_id, kb_name, title, content, source_file, metadata, created_at",
			"embeddings":      "id, document_id, embedding, model, dimensions",
		},
	}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, manifestBytes, 0o644); err != nil {
		return "", "", fmt.Errorf("write manifest: %w", err)
	}

	return dbPath, manifestPath, nil
}

func openExportDB(path string) (*sql.DB, error) {
	_ = os.Remove(path)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open export db: %w", err)
	}

	schema := []string{
		`CREATE TABLE knowledge_bases (id TEXT PRIMARY KEY, name TEXT, slug TEXT, type TEXT, description TEXT, dimension INTEGER)`,
		`CREATE TABLE documents (id TEXT PRIMARY KEY, kb_id TEXT, kb_name TEXT, title TEXT, content TEXT, source_file TEXT, metadata TEXT, created_at TEXT)`,
		`CREATE TABLE embeddings (id TEXT PRIMARY KEY, document_id TEXT, embedding BLOB, model TEXT, dimensions INTEGER)`,
		`CREATE TABLE export_metadata (key TEXT PRIMARY KEY, value TEXT)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create export schema: %w", err)
		}
	}
	return db, nil
}

func insertKB(db *sql.DB, kb *kbstore.KnowledgeBase) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO knowledge_bases(id, name, slug, type, description, dimension) VALUES (?, ?, ?, ?, ?, ?)`,
		kb.ID, kb.Name, kb.Slug, string(kb.Type), kb.Description, kb.Dimension)
	return err
}

func insertDocument(db *sql.DB, kb *kbstore.KnowledgeBase, doc *kbstore.Document) error {
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	_, err = db.Exec(`INSERT OR REPLACE INTO documents(id, kb_id, kb_name, title, content, source_file, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, kb.ID, kb.Name, doc.Filename, "", doc.SourcePath, string(metaJSON), doc.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func insertEmbedding(db *sql.DB, chunkID string, vec []float32) error {
	blob, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	_, err = db.Exec(`INSERT OR REPLACE INTO embeddings(id, document_id, embedding, model, dimensions) VALUES (?, ?, ?, ?, ?)`,
		chunkID, "", blob, "", len(vec))
	return err
}
