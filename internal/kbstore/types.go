// Package kbstore provides vector storage (HNSW), BM25 index, and metadata persistence (SQLite).
// This is the persistence layer for every knowledge base: knowledge bases themselves,
// projects, documents, chunks, embeddings, symbols, dependency edges, repo maps, jobs,
// hooks, and session state (see spec.md §3 Data Model).
package kbstore

import (
	"context"
	"fmt"
	"time"
)

// ContentType represents the type of content in a document/chunk.
type ContentType string

const (
	ContentTypeCode     ContentType = "code"
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// KBType is the type tag a knowledge base is created with.
type KBType string

const (
	KBTypeGeneric      KBType = "generic"
	KBTypeCode         KBType = "code"
	KBTypeDocumentation KBType = "documentation"
	KBTypeAgentOS      KBType = "agent-os"
	KBTypeStructure    KBType = "structure"
)

// ProjectRole is the role a KB plays within a Project's five-slot binding.
type ProjectRole string

const (
	RoleMemories ProjectRole = "memories"
	RoleIndex    ProjectRole = "index"
	RoleProfile  ProjectRole = "profile"
	RoleDocs     ProjectRole = "docs"
	RoleStructure ProjectRole = "structure"
)

// AllProjectRoles lists every role a project auto-creates a KB for.
var AllProjectRoles = []ProjectRole{RoleMemories, RoleIndex, RoleProfile, RoleDocs, RoleStructure}

// SymbolKind is the kind of a parsed code symbol (Tag).
type SymbolKind string

const (
	SymbolClass    SymbolKind = "class"
	SymbolFunction SymbolKind = "function"
	SymbolMethod   SymbolKind = "method"
	SymbolVariable SymbolKind = "variable"
	SymbolModule   SymbolKind = "module"
	SymbolOther    SymbolKind = "other"
)

// EdgeKind is the kind of a dependency edge between symbols/files.
type EdgeKind string

const (
	EdgeDefines    EdgeKind = "defines"
	EdgeReferences EdgeKind = "references"
	EdgeImports    EdgeKind = "imports"
	EdgeExtends    EdgeKind = "extends"
)

// JobState is a job's lifecycle state (spec.md §4.9).
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// JobKind is a tagged variant distinguishing background job types.
type JobKind string

const (
	JobKindStructuralIndex JobKind = "structural"
	JobKindSemanticIndex   JobKind = "semantic"
	JobKindChunkEmbed      JobKind = "chunk_embed"
	JobKindReindexFile     JobKind = "reindex_file"
)

// KnowledgeBase is a named container of documents and derived artifacts (spec.md §3).
type KnowledgeBase struct {
	ID          string
	Name        string
	Slug        string
	Type        KBType
	Description string
	Dimension   int // embedding dimension d, fixed for the KB's lifetime once set
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Project references up to five KBs by role.
type Project struct {
	ID          string
	Name        string
	Path        string
	Description string
	CreatedAt   time.Time
}

// Document owns its chunks. (kb_id, filename) is unique within a KB.
type Document struct {
	ID          string
	KBID        string
	Filename    string
	SourcePath  string
	Size        int64
	ContentType ContentType
	ContentHash string // sha-256 of raw bytes
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a bounded text span; ordinals are contiguous from 0 within a document.
type Chunk struct {
	ID          string
	DocumentID  string
	Ordinal     int
	Text        string
	StartOffset int
	EndOffset   int
	TokenCount  int
}

// Embedding is owned 1:1 by a Chunk; dimension matches the owning KB's d.
type Embedding struct {
	ChunkID string
	Dim     int
	Vector  []float32
	Model   string
}

// Symbol (Tag) is a syntactic entity extracted from source code.
type Symbol struct {
	ID         string
	KBID       string
	File       string
	Name       string
	Kind       SymbolKind
	Line       int
	Signature  string
	Language   string
	Importance float64
}

// DependencyEdge is a directed, weighted edge between two files (graph node granularity
// per spec.md §4.2); SrcSymbol/DstSymbol record the defining symbol names when known.
type DependencyEdge struct {
	ID        string
	KBID      string
	SrcFile   string
	DstFile   string
	SrcSymbol string
	DstSymbol string
	Weight    float64
	Kind      EdgeKind
}

// RepoMap is a derived, regenerated-not-mutated artifact per structural KB.
type RepoMap struct {
	KBID       string
	RankedTags []string // "file:line:name" in emitted order
	Text       string
	TokenCount int
	Overflow   bool
	Params     map[string]string
	CreatedAt  time.Time
}

// Job is owned by the queue; immutable once in a terminal state.
type Job struct {
	ID            string
	Kind          JobKind
	State         JobState
	Percent       int
	Message       string
	Params        map[string]string
	CoalesceKey   string
	StartedAt     time.Time
	CompletedAt   time.Time
	Error         string
}

// Hook binds a (project, role) pair to a watched folder with auto-sync.
type Hook struct {
	ProjectID    string
	Role         ProjectRole
	Enabled      bool
	FolderPath   string
	Patterns     []string
	LastSyncAt   time.Time
	SyncedFiles  map[string]string // filename -> last-seen content hash
}

// SessionState is a small per-project cursor, rewritten atomically.
type SessionState struct {
	ProjectID           string
	SyncedFiles         map[string]string
	LastStructuralIndex time.Time
}

// State keys for the per-KB key-value store.
const (
	StateKeyIndexDimension = "index_embedding_dimension"
	StateKeyIndexModel     = "index_embedding_model"

	StateKeyCheckpointStage         = "checkpoint_stage"
	StateKeyCheckpointTotal         = "checkpoint_total"
	StateKeyCheckpointEmbedded      = "checkpoint_embedded"
	StateKeyCheckpointTimestamp     = "checkpoint_timestamp"
	StateKeyCheckpointEmbedderModel = "checkpoint_embedder_model"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// MetadataStore persists the full knowledge-base domain model in SQLite.
type MetadataStore interface {
	// Knowledge base operations
	CreateKB(ctx context.Context, kb *KnowledgeBase) error
	GetKB(ctx context.Context, id string) (*KnowledgeBase, error)
	GetKBBySlug(ctx context.Context, slug string) (*KnowledgeBase, error)
	GetKBByName(ctx context.Context, name string) (*KnowledgeBase, error)
	ListKBs(ctx context.Context) ([]*KnowledgeBase, error)
	DeleteKB(ctx context.Context, id string) error // cascades per invariant 1

	// Project operations
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	BindProjectKB(ctx context.Context, projectID string, role ProjectRole, kbID string) error
	GetProjectKB(ctx context.Context, projectID string, role ProjectRole) (*KnowledgeBase, error)
	ListProjectKBs(ctx context.Context, projectID string) (map[ProjectRole]*KnowledgeBase, error)

	// Document operations (transactional: upsert document with chunks+embeddings)
	UpsertDocument(ctx context.Context, doc *Document, chunks []*Chunk, embeddings []*Embedding) error
	GetDocument(ctx context.Context, kbID, filename string) (*Document, error)
	GetDocumentByID(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, kbID string) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error // cascades chunks+embeddings

	// Chunk operations
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error)
	GetAllChunks(ctx context.Context, kbID string) ([]*Chunk, error)

	// Embedding operations
	GetEmbedding(ctx context.Context, chunkID string) (*Embedding, error)
	GetAllEmbeddings(ctx context.Context, kbID string) (map[string][]float32, error)

	// Structural index (transactional: replace symbols+edges+repo-map atomically)
	ReplaceStructuralIndex(ctx context.Context, kbID string, symbols []*Symbol, edges []*DependencyEdge, rm *RepoMap) error
	GetSymbols(ctx context.Context, kbID string) ([]*Symbol, error)
	GetEdges(ctx context.Context, kbID string) ([]*DependencyEdge, error)
	SearchSymbols(ctx context.Context, kbID, name string, limit int) ([]*Symbol, error)
	GetRepoMap(ctx context.Context, kbID string) (*RepoMap, error)

	// Job operations
	SaveJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, kind JobKind) ([]*Job, error)
	ListRunningJobs(ctx context.Context) ([]*Job, error)

	// Hook operations
	SaveHook(ctx context.Context, h *Hook) error
	GetHook(ctx context.Context, projectID string, role ProjectRole) (*Hook, error)
	ListHooks(ctx context.Context) ([]*Hook, error)

	// Session state
	SaveSessionState(ctx context.Context, s *SessionState) error
	GetSessionState(ctx context.Context, projectID string) (*SessionState, error)

	// State operations (per-KB key-value store, e.g. dimension/model bookkeeping)
	GetState(ctx context.Context, kbID, key string) (string, error)
	SetState(ctx context.Context, kbID, key, value string) error

	// Lifecycle
	Close() error
}

// IndexCheckpoint represents the saved state of an indexing operation for resume.
type IndexCheckpoint struct {
	Stage         string
	Total         int
	EmbeddedCount int
	Timestamp     time.Time
	EmbedderModel string
}

// --- BM25 / vector abstractions (one instance per KB, generic over chunk IDs) ---

// BM25Doc represents a document to be indexed in BM25 (BM25's unit, not kbstore.Document).
type BM25Doc struct {
	ID      string // Chunk ID
	Content string
}

// BM25Result represents a single BM25 search result.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the BM25 index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index provides keyword search using BM25 algorithm (k1=1.2, b=0.75 defaults).
type BM25Index interface {
	Index(ctx context.Context, docs []*BM25Doc) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures the BM25 index.
type BM25Config struct {
	K1             float64
	B              float64
	StopWords      []string
	MinTokenLength int
}

// DefaultBM25Config returns the spec-mandated BM25 parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultCodeStopWords,
		MinTokenLength: 2,
	}
}

// DefaultCodeStopWords contains programming keywords to filter out.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	Dimensions     int
	Quantization   string
	Metric         string
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible defaults for vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Quantization:   "f16",
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore provides semantic search using HNSW algorithm.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates an embedding's dimension does not match the KB's d.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (KB dimension is fixed at creation)", e.Expected, e.Got)
}

// ErrKBNotFound indicates a KB lookup by id/slug/name found nothing.
type ErrKBNotFound struct {
	Ref string
}

func (e ErrKBNotFound) Error() string {
	return fmt.Sprintf("knowledge base not found: %s", e.Ref)
}
