package chunk

import (
	"bytes"
	"fmt"

	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/tokenest"
)

// AssignOffsets locates each chunk's RawContent within the original file
// bytes, in chunk order, and populates StartByte/EndByte/Ordinal/TokenCount.
// Chunkers emit chunks in file order but don't track byte offsets directly
// (they work off line numbers and AST node boundaries), so this walks the
// file once, advancing a cursor past each match, which keeps offsets correct
// even when RawContent repeats verbatim elsewhere in the file.
//
// Per spec.md §4.7, concatenating a document's chunk texts in ordinal order
// and stripping overlaps must reproduce the original text verbatim up to
// trailing whitespace; a chunk whose RawContent cannot be located gets
// StartByte/EndByte -1 and is left out of that reconstruction.
func AssignOffsets(fileContent []byte, chunks []*Chunk) error {
	cursor := 0
	for i, ch := range chunks {
		ch.Ordinal = i

		raw := []byte(ch.RawContent)
		if len(raw) == 0 {
			ch.StartByte, ch.EndByte = -1, -1
			ch.TokenCount = 0
			continue
		}

		idx := bytes.Index(fileContent[cursor:], raw)
		if idx < 0 {
			// Fall back to a search from the start of the file, in case
			// chunks were reordered upstream (e.g. frontmatter chunks).
			idx = bytes.Index(fileContent, raw)
			if idx < 0 {
				ch.StartByte, ch.EndByte = -1, -1
				ch.TokenCount = tokenCountFor(ch)
				continue
			}
		} else {
			idx += cursor
		}

		ch.StartByte = idx
		ch.EndByte = idx + len(raw)
		cursor = ch.EndByte
		ch.TokenCount = tokenCountFor(ch)
	}
	return nil
}

func tokenCountFor(ch *Chunk) int {
	if ch.ContentType == ContentTypeMarkdown || ch.ContentType == ContentTypeText {
		return tokenest.EstimateProse(ch.RawContent)
	}
	return tokenest.EstimateCode(ch.RawContent)
}

// ToKBStore converts chunker output into the persistence-layer Chunk shape.
// Ordinal is assigned by position in the slice (chunkers, and AssignOffsets
// above, both emit chunks in file order), so callers should run
// AssignOffsets before ToKBStore.
func ToKBStore(documentID string, chunks []*Chunk) ([]*kbstore.Chunk, error) {
	out := make([]*kbstore.Chunk, 0, len(chunks))
	for i, ch := range chunks {
		if ch.RawContent == "" {
			return nil, fmt.Errorf("chunk %d (%s) has empty text", i, ch.ID)
		}
		out = append(out, &kbstore.Chunk{
			ID:          ch.ID,
			DocumentID:  documentID,
			Ordinal:     i,
			Text:        ch.RawContent,
			StartOffset: ch.StartByte,
			EndOffset:   ch.EndByte,
			TokenCount:  ch.TokenCount,
		})
	}
	return out, nil
}
