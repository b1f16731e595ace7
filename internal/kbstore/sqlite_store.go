package kbstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// defaultCacheSizeMB is the default SQLite page cache size in megabytes.
const defaultCacheSizeMB = 64

// StoreConfig configures a SQLiteStore.
type StoreConfig struct {
	// CacheSizeMB is the SQLite page cache size in megabytes. Zero uses the default.
	CacheSizeMB int
}

// DefaultStoreConfig returns sensible defaults for the metadata store.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{CacheSizeMB: defaultCacheSizeMB}
}

// SQLiteStore implements MetadataStore on top of a single SQLite database file
// (the "store.db" of spec.md §6's persistent layout). It uses WAL journaling over
// a pool of one connection, so reads and writes from this process run one at a
// time; WAL lets other processes read the file while this one writes.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a metadata store at path using default config.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(path, DefaultStoreConfig())
}

// NewSQLiteStoreWithConfig opens (or creates) a metadata store at path.
func NewSQLiteStoreWithConfig(path string, cfg StoreConfig) (*SQLiteStore, error) {
	cacheSizeMB := cfg.CacheSizeMB
	if cacheSizeMB <= 0 {
		cacheSizeMB = defaultCacheSizeMB
	}

	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection avoids SQLITE_BUSY on the WAL-journaled metadata file; reads
	// wait for it as writes do, so readers in this process do not run concurrently.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheSizeMB*1024),
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return s, nil
}

// migrate runs pending forward migrations idempotently (spec.md §4.5); no downgrades.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS knowledge_bases (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		slug TEXT NOT NULL UNIQUE,
		kb_type TEXT NOT NULL,
		description TEXT,
		dimension INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER,
		updated_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		description TEXT,
		created_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS project_kbs (
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		kb_id TEXT NOT NULL UNIQUE REFERENCES knowledge_bases(id) ON DELETE CASCADE,
		PRIMARY KEY (project_id, role)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		kb_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		source_path TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		content_type TEXT,
		content_hash TEXT,
		metadata TEXT,
		created_at INTEGER,
		updated_at INTEGER
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_kb_filename ON documents(kb_id, filename);
	CREATE INDEX IF NOT EXISTS idx_documents_kb_hash ON documents(kb_id, content_hash);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		ordinal INTEGER NOT NULL,
		text TEXT,
		start_offset INTEGER,
		end_offset INTEGER,
		token_count INTEGER
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_doc_ordinal ON chunks(document_id, ordinal);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL,
		model TEXT
	);

	CREATE TABLE IF NOT EXISTS symbols (
		id TEXT PRIMARY KEY,
		kb_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
		file TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		line INTEGER NOT NULL,
		signature TEXT,
		language TEXT,
		importance REAL
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_kb_lang ON symbols(kb_id, language);
	CREATE INDEX IF NOT EXISTS idx_symbols_kb_name ON symbols(kb_id, name);

	CREATE TABLE IF NOT EXISTS dependency_edges (
		id TEXT PRIMARY KEY,
		kb_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
		src_file TEXT NOT NULL,
		dst_file TEXT NOT NULL,
		src_symbol TEXT,
		dst_symbol TEXT,
		weight REAL NOT NULL DEFAULT 1,
		kind TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_edges_kb ON dependency_edges(kb_id);

	CREATE TABLE IF NOT EXISTS repo_maps (
		kb_id TEXT PRIMARY KEY REFERENCES knowledge_bases(id) ON DELETE CASCADE,
		ranked_tags TEXT,
		map_text TEXT,
		token_count INTEGER,
		overflow INTEGER NOT NULL DEFAULT 0,
		params TEXT,
		created_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS jobs_snapshot (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		percent INTEGER NOT NULL DEFAULT 0,
		message TEXT,
		params TEXT,
		coalesce_key TEXT,
		started_at INTEGER,
		completed_at INTEGER,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_kind ON jobs_snapshot(kind);
	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs_snapshot(state);

	CREATE TABLE IF NOT EXISTS hooks (
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 0,
		folder_path TEXT,
		patterns TEXT,
		last_sync_at INTEGER,
		synced_files TEXT,
		PRIMARY KEY (project_id, role)
	);

	CREATE TABLE IF NOT EXISTS session_state (
		project_id TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
		synced_files TEXT,
		last_structural_index INTEGER
	);

	CREATE TABLE IF NOT EXISTS kv_state (
		kb_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (kb_id, key)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying *sql.DB for callers that need raw access
// (consistency checks, maintenance commands, export).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- Knowledge base operations ---

func (s *SQLiteStore) CreateKB(ctx context.Context, kb *KnowledgeBase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if kb.CreatedAt.IsZero() {
		kb.CreatedAt = now
	}
	kb.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_bases (id, name, slug, kb_type, description, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, kb.ID, kb.Name, kb.Slug, string(kb.Type), kb.Description, kb.Dimension, timeToUnix(kb.CreatedAt), timeToUnix(kb.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create knowledge base: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetKB(ctx context.Context, id string) (*KnowledgeBase, error) {
	return s.getKBWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetKBBySlug(ctx context.Context, slug string) (*KnowledgeBase, error) {
	return s.getKBWhere(ctx, "slug = ?", slug)
}

func (s *SQLiteStore) GetKBByName(ctx context.Context, name string) (*KnowledgeBase, error) {
	return s.getKBWhere(ctx, "name = ?", name)
}

func (s *SQLiteStore) getKBWhere(ctx context.Context, where string, arg any) (*KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, name, slug, kb_type, description, dimension, created_at, updated_at
		FROM knowledge_bases WHERE %s
	`, where), arg)

	kb, err := scanKB(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return kb, err
}

func (s *SQLiteStore) ListKBs(ctx context.Context) ([]*KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, kb_type, description, dimension, created_at, updated_at
		FROM knowledge_bases ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge bases: %w", err)
	}
	defer rows.Close()

	var out []*KnowledgeBase
	for rows.Next() {
		kb, err := scanKB(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, kb)
	}
	return out, rows.Err()
}

// DeleteKB deletes a KB and all its descendants in one atomic step (invariant 1).
func (s *SQLiteStore) DeleteKB(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// ON DELETE CASCADE handles documents/chunks/embeddings/symbols/edges/repo_maps
	// transitively, but kv_state has no FK (kb_id is not a declared foreign key there), so
	// it is cleared explicitly.
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_state WHERE kb_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete kv state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_bases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete knowledge base: %w", err)
	}
	return tx.Commit()
}

// --- Project operations ---

func (s *SQLiteStore) CreateProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, path, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Path, p.Description, timeToUnix(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, description, created_at FROM projects WHERE id = ?
	`, id)
	var p Project
	var createdAt int64
	var desc sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Path, &desc, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.Description = desc.String
	p.CreatedAt = unixToTime(createdAt)
	return &p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, path, description, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		var p Project
		var createdAt int64
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &desc, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Description = desc.String
		p.CreatedAt = unixToTime(createdAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// BindProjectKB binds a KB to a project under a role. A KB may belong to at most
// one project, enforced by the UNIQUE constraint on project_kbs.kb_id.
func (s *SQLiteStore) BindProjectKB(ctx context.Context, projectID string, role ProjectRole, kbID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_kbs (project_id, role, kb_id) VALUES (?, ?, ?)
		ON CONFLICT(project_id, role) DO UPDATE SET kb_id = excluded.kb_id
	`, projectID, string(role), kbID)
	if err != nil {
		return fmt.Errorf("failed to bind project kb: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProjectKB(ctx context.Context, projectID string, role ProjectRole) (*KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT kb.id, kb.name, kb.slug, kb.kb_type, kb.description, kb.dimension, kb.created_at, kb.updated_at
		FROM knowledge_bases kb
		JOIN project_kbs pk ON pk.kb_id = kb.id
		WHERE pk.project_id = ? AND pk.role = ?
	`, projectID, string(role))

	kb, err := scanKB(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return kb, err
}

func (s *SQLiteStore) ListProjectKBs(ctx context.Context, projectID string) (map[ProjectRole]*KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT pk.role, kb.id, kb.name, kb.slug, kb.kb_type, kb.description, kb.dimension, kb.created_at, kb.updated_at
		FROM project_kbs pk JOIN knowledge_bases kb ON kb.id = pk.kb_id
		WHERE pk.project_id = ?
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project kbs: %w", err)
	}
	defer rows.Close()

	out := make(map[ProjectRole]*KnowledgeBase)
	for rows.Next() {
		var role string
		var kb KnowledgeBase
		var createdAt, updatedAt int64
		var kbType, desc sql.NullString
		if err := rows.Scan(&role, &kb.ID, &kb.Name, &kb.Slug, &kbType, &desc, &kb.Dimension, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project kb: %w", err)
		}
		kb.Type = KBType(kbType.String)
		kb.Description = desc.String
		kb.CreatedAt = unixToTime(createdAt)
		kb.UpdatedAt = unixToTime(updatedAt)
		out[ProjectRole(role)] = &kb
	}
	return out, rows.Err()
}

// --- Document operations ---

// UpsertDocument writes a document with its chunks and embeddings in one transaction
// (spec.md §4.5 transactional operation 1). Chunk ordinals must be contiguous from 0.
func (s *SQLiteStore) UpsertDocument(ctx context.Context, doc *Document, chunks []*Chunk, embeddings []*Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, kb_id, filename, source_path, size, content_type, content_hash, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			source_path = excluded.source_path,
			size = excluded.size,
			content_type = excluded.content_type,
			content_hash = excluded.content_hash,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`, doc.ID, doc.KBID, doc.Filename, doc.SourcePath, doc.Size, string(doc.ContentType), doc.ContentHash,
		string(metaJSON), timeToUnix(doc.CreatedAt), timeToUnix(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	// Replace chunks wholesale: delete-then-insert keeps ordinals contiguous (invariant 3)
	// even when the new chunk count differs from the old one.
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear old chunks: %w", err)
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, text, start_offset, end_offset, token_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer chunkStmt.Close()

	embByChunk := make(map[string]*Embedding, len(embeddings))
	for _, e := range embeddings {
		embByChunk[e.ChunkID] = e
	}

	embStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (chunk_id, dim, vector, model)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET dim = excluded.dim, vector = excluded.vector, model = excluded.model
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare embedding insert: %w", err)
	}
	defer embStmt.Close()

	for i, c := range chunks {
		if c.Ordinal != i {
			return fmt.Errorf("chunk ordinals must be contiguous from 0: got ordinal %d at position %d", c.Ordinal, i)
		}
		if _, err := chunkStmt.ExecContext(ctx, c.ID, doc.ID, c.Ordinal, c.Text, c.StartOffset, c.EndOffset, c.TokenCount); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}
		if e, ok := embByChunk[c.ID]; ok {
			if _, err := embStmt.ExecContext(ctx, e.ChunkID, e.Dim, embeddingToBytes(e.Vector), e.Model); err != nil {
				return fmt.Errorf("failed to save embedding for %s: %w", c.ID, err)
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetDocument(ctx context.Context, kbID, filename string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, kb_id, filename, source_path, size, content_type, content_hash, metadata, created_at, updated_at
		FROM documents WHERE kb_id = ? AND filename = ?
	`, kbID, filename)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStore) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, kb_id, filename, source_path, size, content_type, content_hash, metadata, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, kbID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kb_id, filename, source_path, size, content_type, content_hash, metadata, created_at, updated_at
		FROM documents WHERE kb_id = ? ORDER BY filename
	`, kbID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// --- Chunk / embedding operations ---

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, ordinal, text, start_offset, end_offset, token_count FROM chunks WHERE id = ?
	`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, ordinal, text, start_offset, end_offset, token_count
		FROM chunks WHERE id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteStore) GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, ordinal, text, start_offset, end_offset, token_count
		FROM chunks WHERE document_id = ? ORDER BY ordinal
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks by document: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteStore) GetAllChunks(ctx context.Context, kbID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.ordinal, c.text, c.start_offset, c.end_offset, c.token_count
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.kb_id = ?
	`, kbID)
	if err != nil {
		return nil, fmt.Errorf("failed to query all chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *SQLiteStore) GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e Embedding
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT chunk_id, dim, vector, model FROM embeddings WHERE chunk_id = ?`, chunkID).
		Scan(&e.ChunkID, &e.Dim, &blob, &e.Model)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	e.Vector = bytesToEmbedding(blob)
	return &e, nil
}

func (s *SQLiteStore) GetAllEmbeddings(ctx context.Context, kbID string) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.chunk_id, e.vector
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE d.kb_id = ?
	`, kbID)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		out[id] = bytesToEmbedding(blob)
	}
	return out, rows.Err()
}

// --- Structural index (symbols + edges + repo map) ---

// ReplaceStructuralIndex atomically replaces the structural index for a KB
// (spec.md §4.5 transactional operation 2).
func (s *SQLiteStore) ReplaceStructuralIndex(ctx context.Context, kbID string, symbols []*Symbol, edges []*DependencyEdge, rm *RepoMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE kb_id = ?`, kbID); err != nil {
		return fmt.Errorf("failed to clear symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dependency_edges WHERE kb_id = ?`, kbID); err != nil {
		return fmt.Errorf("failed to clear edges: %w", err)
	}

	symStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (id, kb_id, file, name, kind, line, signature, language, importance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare symbol insert: %w", err)
	}
	defer symStmt.Close()
	for _, sym := range symbols {
		if sym.File == "" || sym.Line < 1 {
			return fmt.Errorf("invalid symbol %q: file must be non-empty and line >= 1 (invariant 5)", sym.Name)
		}
		if _, err := symStmt.ExecContext(ctx, sym.ID, kbID, sym.File, sym.Name, string(sym.Kind), sym.Line, sym.Signature, sym.Language, sym.Importance); err != nil {
			return fmt.Errorf("failed to save symbol %s: %w", sym.Name, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dependency_edges (id, kb_id, src_file, dst_file, src_symbol, dst_symbol, weight, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()
	for _, e := range edges {
		if _, err := edgeStmt.ExecContext(ctx, e.ID, kbID, e.SrcFile, e.DstFile, e.SrcSymbol, e.DstSymbol, e.Weight, string(e.Kind)); err != nil {
			return fmt.Errorf("failed to save edge %s->%s: %w", e.SrcFile, e.DstFile, err)
		}
	}

	if rm != nil {
		tagsJSON, err := json.Marshal(rm.RankedTags)
		if err != nil {
			return fmt.Errorf("failed to marshal ranked tags: %w", err)
		}
		paramsJSON, err := json.Marshal(rm.Params)
		if err != nil {
			return fmt.Errorf("failed to marshal repo-map params: %w", err)
		}
		createdAt := rm.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		overflow := 0
		if rm.Overflow {
			overflow = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO repo_maps (kb_id, ranked_tags, map_text, token_count, overflow, params, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(kb_id) DO UPDATE SET
				ranked_tags = excluded.ranked_tags,
				map_text = excluded.map_text,
				token_count = excluded.token_count,
				overflow = excluded.overflow,
				params = excluded.params,
				created_at = excluded.created_at
		`, kbID, string(tagsJSON), rm.Text, rm.TokenCount, overflow, string(paramsJSON), timeToUnix(createdAt))
		if err != nil {
			return fmt.Errorf("failed to save repo map: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetSymbols(ctx context.Context, kbID string) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kb_id, file, name, kind, line, signature, language, importance
		FROM symbols WHERE kb_id = ? ORDER BY file, line
	`, kbID)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

func (s *SQLiteStore) GetEdges(ctx context.Context, kbID string) ([]*DependencyEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kb_id, src_file, dst_file, src_symbol, dst_symbol, weight, kind
		FROM dependency_edges WHERE kb_id = ?
	`, kbID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var out []*DependencyEdge
	for rows.Next() {
		var e DependencyEdge
		var srcSym, dstSym sql.NullString
		var kind string
		if err := rows.Scan(&e.ID, &e.KBID, &e.SrcFile, &e.DstFile, &srcSym, &dstSym, &e.Weight, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.SrcSymbol = srcSym.String
		e.DstSymbol = dstSym.String
		e.Kind = EdgeKind(kind)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SearchSymbols(ctx context.Context, kbID, name string, limit int) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kb_id, file, name, kind, line, signature, language, importance
		FROM symbols WHERE kb_id = ? AND name LIKE ? ESCAPE '\'
		ORDER BY importance DESC, file, line
		LIMIT ?
	`, kbID, "%"+escapeLike(name)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search symbols: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

func (s *SQLiteStore) GetRepoMap(ctx context.Context, kbID string) (*RepoMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT kb_id, ranked_tags, map_text, token_count, overflow, params, created_at
		FROM repo_maps WHERE kb_id = ?
	`, kbID)

	var rm RepoMap
	var tagsJSON, paramsJSON sql.NullString
	var overflow int
	var createdAt int64
	err := row.Scan(&rm.KBID, &tagsJSON, &rm.Text, &rm.TokenCount, &overflow, &paramsJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repo map: %w", err)
	}
	if tagsJSON.Valid {
		_ = json.Unmarshal([]byte(tagsJSON.String), &rm.RankedTags)
	}
	if paramsJSON.Valid {
		_ = json.Unmarshal([]byte(paramsJSON.String), &rm.Params)
	}
	rm.Overflow = overflow != 0
	rm.CreatedAt = unixToTime(createdAt)
	return &rm, nil
}

// --- Job operations ---

func (s *SQLiteStore) SaveJob(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal job params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs_snapshot (id, kind, state, percent, message, params, coalesce_key, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			state = excluded.state,
			percent = excluded.percent,
			message = excluded.message,
			params = excluded.params,
			coalesce_key = excluded.coalesce_key,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			error = excluded.error
	`, job.ID, string(job.Kind), string(job.State), job.Percent, job.Message, string(paramsJSON),
		job.CoalesceKey, timeToUnix(job.StartedAt), timeToUnix(job.CompletedAt), job.Error)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, state, percent, message, params, coalesce_key, started_at, completed_at, error
		FROM jobs_snapshot WHERE id = ?
	`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (s *SQLiteStore) ListJobs(ctx context.Context, kind JobKind) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows *sql.Rows
	var err error
	if kind == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, kind, state, percent, message, params, coalesce_key, started_at, completed_at, error
			FROM jobs_snapshot ORDER BY started_at DESC
		`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, kind, state, percent, message, params, coalesce_key, started_at, completed_at, error
			FROM jobs_snapshot WHERE kind = ? ORDER BY started_at DESC
		`, string(kind))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListRunningJobs(ctx context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, state, percent, message, params, coalesce_key, started_at, completed_at, error
		FROM jobs_snapshot WHERE state = ?
	`, string(JobRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to list running jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// --- Hook operations ---

func (s *SQLiteStore) SaveHook(ctx context.Context, h *Hook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	patternsJSON, err := json.Marshal(h.Patterns)
	if err != nil {
		return fmt.Errorf("failed to marshal hook patterns: %w", err)
	}
	syncedJSON, err := json.Marshal(h.SyncedFiles)
	if err != nil {
		return fmt.Errorf("failed to marshal hook synced files: %w", err)
	}
	enabled := 0
	if h.Enabled {
		enabled = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hooks (project_id, role, enabled, folder_path, patterns, last_sync_at, synced_files)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, role) DO UPDATE SET
			enabled = excluded.enabled,
			folder_path = excluded.folder_path,
			patterns = excluded.patterns,
			last_sync_at = excluded.last_sync_at,
			synced_files = excluded.synced_files
	`, h.ProjectID, string(h.Role), enabled, h.FolderPath, string(patternsJSON), timeToUnix(h.LastSyncAt), string(syncedJSON))
	if err != nil {
		return fmt.Errorf("failed to save hook: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetHook(ctx context.Context, projectID string, role ProjectRole) (*Hook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, role, enabled, folder_path, patterns, last_sync_at, synced_files
		FROM hooks WHERE project_id = ? AND role = ?
	`, projectID, string(role))
	h, err := scanHook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return h, err
}

func (s *SQLiteStore) ListHooks(ctx context.Context) ([]*Hook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, role, enabled, folder_path, patterns, last_sync_at, synced_files FROM hooks
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list hooks: %w", err)
	}
	defer rows.Close()

	var out []*Hook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- Session state ---

func (s *SQLiteStore) SaveSessionState(ctx context.Context, st *SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	syncedJSON, err := json.Marshal(st.SyncedFiles)
	if err != nil {
		return fmt.Errorf("failed to marshal session synced files: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_state (project_id, synced_files, last_structural_index)
		VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			synced_files = excluded.synced_files,
			last_structural_index = excluded.last_structural_index
	`, st.ProjectID, string(syncedJSON), timeToUnix(st.LastStructuralIndex))
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSessionState(ctx context.Context, projectID string) (*SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT project_id, synced_files, last_structural_index FROM session_state WHERE project_id = ?
	`, projectID)
	var st SessionState
	var syncedJSON sql.NullString
	var lastIdx int64
	err := row.Scan(&st.ProjectID, &syncedJSON, &lastIdx)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session state: %w", err)
	}
	if syncedJSON.Valid {
		_ = json.Unmarshal([]byte(syncedJSON.String), &st.SyncedFiles)
	}
	st.LastStructuralIndex = unixToTime(lastIdx)
	return &st, nil
}

// --- Per-KB key-value state ---

func (s *SQLiteStore) GetState(ctx context.Context, kbID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE kb_id = ? AND key = ?`, kbID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, kbID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_state (kb_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(kb_id, key) DO UPDATE SET value = excluded.value
	`, kbID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// --- Lifecycle ---

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKB(row rowScanner) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	var createdAt, updatedAt int64
	var kbType, desc sql.NullString
	err := row.Scan(&kb.ID, &kb.Name, &kb.Slug, &kbType, &desc, &kb.Dimension, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	kb.Type = KBType(kbType.String)
	kb.Description = desc.String
	kb.CreatedAt = unixToTime(createdAt)
	kb.UpdatedAt = unixToTime(updatedAt)
	return &kb, nil
}

func scanDocument(row rowScanner) (*Document, error) {
	var d Document
	var createdAt, updatedAt int64
	var contentType, sourcePath, contentHash, metaJSON sql.NullString
	err := row.Scan(&d.ID, &d.KBID, &d.Filename, &sourcePath, &d.Size, &contentType, &contentHash, &metaJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	d.SourcePath = sourcePath.String
	d.ContentType = ContentType(contentType.String)
	d.ContentHash = contentHash.String
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &d.Metadata)
	}
	d.CreatedAt = unixToTime(createdAt)
	d.UpdatedAt = unixToTime(updatedAt)
	return &d, nil
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var text sql.NullString
	err := row.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &text, &c.StartOffset, &c.EndOffset, &c.TokenCount)
	if err != nil {
		return nil, err
	}
	c.Text = text.String
	return &c, nil
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanSymbols(rows *sql.Rows) ([]*Symbol, error) {
	var out []*Symbol
	for rows.Next() {
		var sym Symbol
		var kind string
		var sig, lang sql.NullString
		if err := rows.Scan(&sym.ID, &sym.KBID, &sym.File, &sym.Name, &kind, &sym.Line, &sig, &lang, &sym.Importance); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		sym.Kind = SymbolKind(kind)
		sym.Signature = sig.String
		sym.Language = lang.String
		out = append(out, &sym)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var kind, state string
	var message, paramsJSON, coalesceKey, errStr sql.NullString
	var startedAt, completedAt int64
	err := row.Scan(&j.ID, &kind, &state, &j.Percent, &message, &paramsJSON, &coalesceKey, &startedAt, &completedAt, &errStr)
	if err != nil {
		return nil, err
	}
	j.Kind = JobKind(kind)
	j.State = JobState(state)
	j.Message = message.String
	j.CoalesceKey = coalesceKey.String
	j.Error = errStr.String
	if paramsJSON.Valid {
		_ = json.Unmarshal([]byte(paramsJSON.String), &j.Params)
	}
	j.StartedAt = unixToTime(startedAt)
	j.CompletedAt = unixToTime(completedAt)
	return &j, nil
}

func scanHook(row rowScanner) (*Hook, error) {
	var h Hook
	var role string
	var enabled int
	var folderPath, patternsJSON, syncedJSON sql.NullString
	var lastSync int64
	err := row.Scan(&h.ProjectID, &role, &enabled, &folderPath, &patternsJSON, &lastSync, &syncedJSON)
	if err != nil {
		return nil, err
	}
	h.Role = ProjectRole(role)
	h.Enabled = enabled != 0
	h.FolderPath = folderPath.String
	if patternsJSON.Valid {
		_ = json.Unmarshal([]byte(patternsJSON.String), &h.Patterns)
	}
	h.LastSyncAt = unixToTime(lastSync)
	if syncedJSON.Valid {
		_ = json.Unmarshal([]byte(syncedJSON.String), &h.SyncedFiles)
	}
	return &h, nil
}

func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func unixToTime(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

// embeddingToBytes packs a float32 vector as little-endian IEEE-754 bytes.
func embeddingToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		putFloat32(buf[i*4:], f)
	}
	return buf
}

// bytesToEmbedding unpacks a float32 vector from little-endian IEEE-754 bytes.
func bytesToEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = getFloat32(b[i*4:])
	}
	return v
}

func putFloat32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func getFloat32(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

var _ = sort.Strings // keep sort imported for helpers that may need determinism later
