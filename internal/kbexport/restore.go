package kbexport

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/kbserver/kbserver/internal/kbstore"
)

// Restore reads an export database (written by Export) and re-creates its
// project, knowledge bases, and documents in metadata. Documents are restored
// without chunks or embeddings; the export's embeddings table is not read.
// Restored KBs get fresh IDs. The manifest at manifestPath must exist, and the
// restored project's name is taken from it.
func Restore(ctx context.Context, metadata kbstore.MetadataStore, dbPath, manifestPath string) (*kbstore.Project, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("export database not found: %w", err)
	}

	manifest, err := readManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open export db: %w", err)
	}
	defer db.Close()

	if err := checkFormatVersion(db); err != nil {
		return nil, err
	}

	project := &kbstore.Project{ID: uuid.NewString(), Name: manifest.ProjectName}
	if err := metadata.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT id, name, slug, type, description, dimension FROM knowledge_bases`)
	if err != nil {
		return nil, fmt.Errorf("read knowledge_bases: %w", err)
	}
	defer rows.Close()

	idMap := make(map[string]string) // export-file kb id -> restored kb id
	var kbIDs []string
	for rows.Next() {
		var oldID, name, slug, kbType, desc string
		var dim int
		if err := rows.Scan(&oldID, &name, &slug, &kbType, &desc, &dim); err != nil {
			return nil, fmt.Errorf("scan knowledge_bases row: %w", err)
		}
		kb := &kbstore.KnowledgeBase{
			ID:          uuid.NewString(),
			Name:        name,
			Slug:        slug,
			Type:        kbstore.KBType(kbType),
			Description: desc,
			Dimension:   dim,
		}
		if err := metadata.CreateKB(ctx, kb); err != nil {
			return nil, fmt.Errorf("create kb %s: %w", name, err)
		}
		idMap[oldID] = kb.ID
		kbIDs = append(kbIDs, kb.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge_bases: %w", err)
	}

	if err := bindRestoredKBs(ctx, metadata, project.ID, kbIDs); err != nil {
		return nil, err
	}

	if err := restoreDocuments(ctx, metadata, db, idMap); err != nil {
		return nil, err
	}

	return project, nil
}

// bindRestoredKBs binds restored KBs to AllProjectRoles positionally; the
// export format doesn't carry role tags, so ordering follows the exported row
// order, which comes from Export's map iteration and can differ between exports.
func bindRestoredKBs(ctx context.Context, metadata kbstore.MetadataStore, projectID string, kbIDs []string) error {
	for i, kbID := range kbIDs {
		if i >= len(kbstore.AllProjectRoles) {
			break
		}
		if err := metadata.BindProjectKB(ctx, projectID, kbstore.AllProjectRoles[i], kbID); err != nil {
			return fmt.Errorf("bind restored kb: %w", err)
		}
	}
	return nil
}

func restoreDocuments(ctx context.Context, metadata kbstore.MetadataStore, db *sql.DB, idMap map[string]string) error {
	rows, err := db.QueryContext(ctx, `SELECT id, kb_id, title, source_file, metadata, created_at FROM documents`)
	if err != nil {
		return fmt.Errorf("read documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, oldKBID, title, sourceFile, metaJSON, createdAt string
		if err := rows.Scan(&id, &oldKBID, &title, &sourceFile, &metaJSON, &createdAt); err != nil {
			return fmt.Errorf("scan documents row: %w", err)
		}
		kbID, ok := idMap[oldKBID]
		if !ok {
			continue
		}
		var meta map[string]string
		if metaJSON != "" {
			if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
				return fmt.Errorf("unmarshal document metadata: %w", err)
			}
		}
		doc := &kbstore.Document{
			ID:         uuid.NewString(),
			KBID:       kbID,
			Filename:   title,
			SourcePath: sourceFile,
			Metadata:   meta,
		}
		if err := metadata.UpsertDocument(ctx, doc, nil, nil); err != nil {
			return fmt.Errorf("restore document %s: %w", title, err)
		}
	}
	return rows.Err()
}

func checkFormatVersion(db *sql.DB) error {
	var version string
	err := db.QueryRow(`SELECT value FROM export_metadata WHERE key = 'format_version'`).Scan(&version)
	if err != nil {
		return fmt.Errorf("read export_metadata: %w", err)
	}
	if version != FormatVersion {
		return fmt.Errorf("unsupported export format version %q (expected %q)", version, FormatVersion)
	}
	return nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
