// Package parser extracts structural tags (symbols) from source files for the
// indexing engine's structural pipeline (spec.md §4.2). It wraps the teacher's
// tree-sitter based chunk.Parser/LanguageRegistry with a bounded, per-language
// parser pool and an LRU tag cache keyed by file content identity.
package parser

import "github.com/kbserver/kbserver/internal/kbstore"

// Tag is one structural symbol extracted from a parsed file.
type Tag struct {
	File      string
	Name      string
	Kind      kbstore.SymbolKind
	Line      int // 1-indexed
	Signature string
	Language  string
}

// MaxParseFileBytes is the size cutoff above which a file is not parsed
// (spec.md §4.2: files larger than 8 MiB are skipped, not truncated).
const MaxParseFileBytes = 8 * 1024 * 1024
