package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheEntries bounds the tag cache to a number of files (spec.md §4.2's
// 50k-entry default). golang-lru has no byte-size eviction, so the 256 MiB
// budget from spec.md is approximated by this entry cap rather than enforced
// directly — a parsed file's tags are small (symbol name/line/signature) compared
// to its source, so 50k files comfortably fits the byte budget in practice.
const DefaultCacheEntries = 50_000

// tagCache is an LRU cache of parsed tags keyed by file content identity.
type tagCache struct {
	lru *lru.Cache[string, []Tag]
}

func newTagCache(size int) *tagCache {
	if size <= 0 {
		size = DefaultCacheEntries
	}
	c, err := lru.New[string, []Tag](size)
	if err != nil {
		// Only returns an error for size<=0, which we've already guarded against.
		panic(fmt.Sprintf("parser: failed to create tag cache: %v", err))
	}
	return &tagCache{lru: c}
}

func (c *tagCache) get(key string) ([]Tag, bool) {
	return c.lru.Get(key)
}

func (c *tagCache) set(key string, tags []Tag) {
	c.lru.Add(key, tags)
}

// cacheKey derives a stable identity for a file's content: sha256(path) joined
// with its mtime (nanoseconds) and size, so a content-identical file re-parsed
// after being touched (mtime changed) still misses and re-parses. The cache is
// held in memory only and is not persisted, so it starts empty in every process.
func cacheKey(path string, mtimeNs int64, size int64) string {
	h := sha256.Sum256([]byte(path))
	return fmt.Sprintf("%s:%d:%d", hex.EncodeToString(h[:]), mtimeNs, size)
}
