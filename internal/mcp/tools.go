package mcp

// ListKnowledgeBasesInput defines the input schema for the
// list_knowledge_bases tool (no parameters).
type ListKnowledgeBasesInput struct{}

// ListKnowledgeBasesOutput defines the output schema for
// list_knowledge_bases.
type ListKnowledgeBasesOutput struct {
	KnowledgeBases []KnowledgeBaseInfo `json:"knowledge_bases"`
}

// KnowledgeBaseInfo summarizes one knowledge base for tool output.
type KnowledgeBaseInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Type        string `json:"kb_type"`
	Description string `json:"description,omitempty"`
	Dimension   int    `json:"dimension,omitempty"`
}

// CreateKnowledgeBaseInput defines the input schema for
// create_knowledge_base.
type CreateKnowledgeBaseInput struct {
	Name        string `json:"name" jsonschema:"the knowledge base's display name"`
	KBType      string `json:"kb_type,omitempty" jsonschema:"generic, code, documentation, agent-os, or structure; default generic"`
	Description string `json:"description,omitempty" jsonschema:"a short description of the knowledge base's purpose"`
}

// CreateKnowledgeBaseOutput defines the output schema for
// create_knowledge_base.
type CreateKnowledgeBaseOutput struct {
	KnowledgeBase KnowledgeBaseInfo `json:"knowledge_base"`
}

// DeleteKnowledgeBaseInput defines the input schema for
// delete_knowledge_base.
type DeleteKnowledgeBaseInput struct {
	KB string `json:"kb" jsonschema:"the knowledge base's name or slug"`
}

// DeleteKnowledgeBaseOutput defines the output schema for
// delete_knowledge_base.
type DeleteKnowledgeBaseOutput struct {
	Deleted bool `json:"deleted"`
}

// SearchKnowledgeBaseInput defines the input schema for
// search_knowledge_base. KB-scoped tool registrations omit KB and default
// it to the bound knowledge base.
type SearchKnowledgeBaseInput struct {
	KB          string `json:"kb,omitempty" jsonschema:"the knowledge base's name or slug"`
	Query       string `json:"query" jsonschema:"the search query to execute"`
	K           int    `json:"k,omitempty" jsonschema:"number of results to return, default 5, max 200"`
	Filter      string `json:"filter,omitempty" jsonschema:"restrict to a content type: code, markdown, or text"`
	UseVector   *bool  `json:"use_vector,omitempty" jsonschema:"enable cosine-similarity search, default true"`
	UseBM25     bool   `json:"use_bm25,omitempty" jsonschema:"enable BM25 keyword search, default false"`
	UseRerank   bool   `json:"use_rerank,omitempty" jsonschema:"rerank the candidate pool with a cross-encoder, default false"`
}

// SearchKnowledgeBaseOutput defines the output schema for
// search_knowledge_base.
type SearchKnowledgeBaseOutput struct {
	Results []SearchResultOutput `json:"results"`
}

// SearchResultOutput defines a single search result.
type SearchResultOutput struct {
	DocumentFilename string  `json:"document_filename"`
	ChunkOrdinal     int     `json:"chunk_ordinal"`
	Text             string  `json:"text"`
	Score            float64 `json:"score" jsonschema:"combined relevance score"`
	VectorScore      float64 `json:"vector_score,omitempty"`
	BM25Score        float64 `json:"bm25_score,omitempty"`
}

// GetKBStatsInput defines the input schema for get_kb_stats.
type GetKBStatsInput struct {
	KB string `json:"kb,omitempty" jsonschema:"the knowledge base's name or slug"`
}

// GetKBStatsOutput defines the output schema for get_kb_stats.
type GetKBStatsOutput struct {
	DocumentCount int    `json:"document_count"`
	ChunkCount    int    `json:"chunk_count"`
	LastUpdated   string `json:"last_updated,omitempty"`
}

// ListDocumentsInput defines the input schema for list_documents.
type ListDocumentsInput struct {
	KB string `json:"kb,omitempty" jsonschema:"the knowledge base's name or slug"`
}

// ListDocumentsOutput defines the output schema for list_documents.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
}

// DocumentInfo summarizes one document for tool output.
type DocumentInfo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	UpdatedAt   string `json:"updated_at"`
}

// IngestDocumentInput defines the input schema for ingest_document. Exactly
// one of Bytes (base64) or Path (a server-local filesystem path) must be set.
type IngestDocumentInput struct {
	KB       string `json:"kb,omitempty" jsonschema:"the knowledge base's name or slug"`
	Filename string `json:"filename" jsonschema:"the document's filename, used as its unique key within the KB"`
	Bytes    string `json:"bytes,omitempty" jsonschema:"base64-encoded document content"`
	Path     string `json:"path,omitempty" jsonschema:"a server-local filesystem path to read the content from"`
}

// IngestDocumentOutput defines the output schema for ingest_document.
type IngestDocumentOutput struct {
	Filename string `json:"filename"`
	Indexed  bool   `json:"indexed"`
}

// IngestDirectoryInput defines the input schema for ingest_directory.
type IngestDirectoryInput struct {
	KB   string `json:"kb,omitempty" jsonschema:"the knowledge base's name or slug"`
	Path string `json:"path" jsonschema:"a server-local directory path to ingest recursively"`
}

// IngestDirectoryOutput defines the output schema for ingest_directory.
type IngestDirectoryOutput struct {
	FilesIndexed int `json:"files_indexed"`
}

// GetRepoMapInput defines the input schema for get_repo_map.
type GetRepoMapInput struct {
	KB          string `json:"kb,omitempty" jsonschema:"the structural knowledge base's name or slug"`
	TokenBudget int    `json:"token_budget,omitempty" jsonschema:"informational only: the budget the stored repo map was last rendered with"`
}

// GetRepoMapOutput defines the output schema for get_repo_map.
type GetRepoMapOutput struct {
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Overflow   bool   `json:"overflow"`
}
