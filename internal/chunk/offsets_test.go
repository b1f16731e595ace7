package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignOffsets_RoundTripsOriginalText(t *testing.T) {
	source := `package main

import "fmt"

func Hello() {
	fmt.Println("Hello")
}

func Goodbye() {
	fmt.Println("Goodbye")
}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	content := []byte(source)
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "main.go",
		Content:  content,
		Language: "go",
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	require.NoError(t, AssignOffsets(content, chunks))

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		require.GreaterOrEqual(t, ch.StartByte, 0, "chunk %d should resolve a byte offset", i)
		assert.Equal(t, ch.RawContent, string(content[ch.StartByte:ch.EndByte]))
		assert.Greater(t, ch.TokenCount, 0)
	}
}

func TestAssignOffsets_OrdersOffsetsMonotonically(t *testing.T) {
	source := `package main

func A() {}

func B() {}

func C() {}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	content := []byte(source)
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "main.go",
		Content:  content,
		Language: "go",
	})
	require.NoError(t, err)
	require.NoError(t, AssignOffsets(content, chunks))

	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i].StartByte, chunks[i-1].EndByte)
	}
}

func TestAssignOffsets_EmptyRawContentGetsUnresolvedOffsets(t *testing.T) {
	chunks := []*Chunk{{ID: "c1", RawContent: ""}}
	require.NoError(t, AssignOffsets([]byte("anything"), chunks))
	assert.Equal(t, -1, chunks[0].StartByte)
	assert.Equal(t, -1, chunks[0].EndByte)
	assert.Equal(t, 0, chunks[0].TokenCount)
}

func TestAssignOffsets_ProseContentUsesProseEstimator(t *testing.T) {
	source := "# Title\n\nThis is a longer paragraph of prose text used to sanity check the estimator.\n"
	chunker := NewMarkdownChunker()

	content := []byte(source)
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:    "doc.md",
		Content: content,
	})
	require.NoError(t, err)
	require.NoError(t, AssignOffsets(content, chunks))

	for _, ch := range chunks {
		assert.Equal(t, ch.TokenCount, estimateProseTokens(ch.RawContent))
	}
}

func TestToKBStore_AssignsSequentialOrdinalsAndOffsets(t *testing.T) {
	source := `package main

func A() {}

func B() {}
`
	chunker := NewCodeChunker()
	defer chunker.Close()

	content := []byte(source)
	chunks, err := chunker.Chunk(context.Background(), &FileInput{
		Path:     "main.go",
		Content:  content,
		Language: "go",
	})
	require.NoError(t, err)
	require.NoError(t, AssignOffsets(content, chunks))

	storeChunks, err := ToKBStore("doc-1", chunks)
	require.NoError(t, err)
	require.Len(t, storeChunks, len(chunks))

	for i, sc := range storeChunks {
		assert.Equal(t, "doc-1", sc.DocumentID)
		assert.Equal(t, i, sc.Ordinal)
		assert.Equal(t, chunks[i].RawContent, sc.Text)
		assert.Equal(t, chunks[i].TokenCount, sc.TokenCount)
		assert.NotEmpty(t, sc.Text)
	}
}

func TestToKBStore_RejectsEmptyChunkText(t *testing.T) {
	chunks := []*Chunk{{ID: "c1", RawContent: ""}}
	_, err := ToKBStore("doc-1", chunks)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "empty text"))
}
