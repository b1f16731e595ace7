package parser

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/kbserver/kbserver/internal/chunk"
	"github.com/kbserver/kbserver/internal/kbstore"
)

// Parser extracts Tags from source files, backed by a bounded pool of
// tree-sitter parsers and an LRU cache of previously parsed files.
type Parser struct {
	pool      *Pool
	cache     *tagCache
	registry  *chunk.LanguageRegistry
	extractor *chunk.SymbolExtractor
}

// Config tunes the parser's pool size and cache capacity. Zero values fall
// back to the package defaults.
type Config struct {
	PoolSize  int
	CacheSize int
	Registry  *chunk.LanguageRegistry
}

// New creates a Parser with the given configuration.
func New(cfg Config) *Parser {
	registry := cfg.Registry
	if registry == nil {
		registry = chunk.DefaultRegistry()
	}
	return &Parser{
		pool:      NewPool(cfg.PoolSize),
		cache:     newTagCache(cfg.CacheSize),
		registry:  registry,
		extractor: chunk.NewSymbolExtractorWithRegistry(registry),
	}
}

// Close releases the parser pool's resources.
func (p *Parser) Close() {
	p.pool.Close()
}

// isBinary applies the same null-byte heuristic the teacher's chunker uses to
// skip non-text files.
func isBinary(content []byte) bool {
	checkLen := len(content)
	if checkLen > 8000 {
		checkLen = 8000
	}
	return bytes.IndexByte(content[:checkLen], 0) != -1
}

// Parse extracts structural Tags from a file's content. language, when
// empty, is inferred from filePath's extension. mtimeNs and size key the tag
// cache so a file whose content has not changed (same path/mtime/size) skips
// re-parsing. An unsupported extension, empty file, binary file, or a file
// over MaxParseFileBytes returns (nil, nil) rather than an error — these are
// expected skips, not failures of the indexing pipeline.
func (p *Parser) Parse(ctx context.Context, filePath string, language string, content []byte, mtimeNs int64) ([]Tag, error) {
	if len(content) == 0 {
		return nil, nil
	}
	if len(content) > MaxParseFileBytes {
		return nil, nil
	}
	if isBinary(content) {
		return nil, nil
	}

	if language == "" {
		config, ok := p.registry.GetByExtension(filepath.Ext(filePath))
		if !ok {
			return nil, nil
		}
		language = config.Name
	} else if _, ok := p.registry.GetByName(language); !ok {
		return nil, nil
	}

	key := cacheKey(filePath, mtimeNs, int64(len(content)))
	if tags, ok := p.cache.get(key); ok {
		return tags, nil
	}

	ts, err := p.pool.Rent(ctx)
	if err != nil {
		return nil, err
	}
	defer p.pool.Return(ts)

	tree, err := ts.Parse(ctx, content, language)
	if err != nil {
		return nil, err
	}

	symbols := p.extractor.Extract(tree, content)
	tags := make([]Tag, 0, len(symbols))
	for _, sym := range symbols {
		tags = append(tags, Tag{
			File:      filePath,
			Name:      sym.Name,
			Kind:      symbolKindFor(sym.Type),
			Line:      sym.StartLine,
			Signature: sym.Signature,
			Language:  language,
		})
	}

	p.cache.set(key, tags)
	return tags, nil
}

// symbolKindFor maps the chunker's language-agnostic symbol taxonomy onto
// the knowledge store's coarser SymbolKind used for ranking and storage.
func symbolKindFor(t chunk.SymbolType) kbstore.SymbolKind {
	switch t {
	case chunk.SymbolTypeFunction:
		return kbstore.SymbolFunction
	case chunk.SymbolTypeMethod:
		return kbstore.SymbolMethod
	case chunk.SymbolTypeClass, chunk.SymbolTypeInterface, chunk.SymbolTypeType:
		return kbstore.SymbolClass
	case chunk.SymbolTypeVariable, chunk.SymbolTypeConstant:
		return kbstore.SymbolVariable
	default:
		return kbstore.SymbolOther
	}
}
