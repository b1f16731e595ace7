package repomap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbserver/kbserver/internal/graph"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/parser"
)

func codeType(string) kbstore.ContentType { return kbstore.ContentTypeCode }

func TestEmit_FitsEntireInputWithinBudget(t *testing.T) {
	tags := []graph.RankedTag{
		{Tag: parser.Tag{File: "a.go", Name: "Foo", Line: 1, Signature: "func Foo()"}, Score: 2},
		{Tag: parser.Tag{File: "a.go", Name: "Bar", Line: 5, Signature: "func Bar()"}, Score: 1},
	}
	result := Emit(tags, codeType, 1000)
	require.False(t, result.Overflow)
	assert.Contains(t, result.Text, "a.go")
	assert.Contains(t, result.Text, "1: func Foo()")
	assert.Contains(t, result.Text, "5: func Bar()")
}

func TestEmit_GroupsByFileAndSortsLinesAscending(t *testing.T) {
	tags := []graph.RankedTag{
		{Tag: parser.Tag{File: "a.go", Name: "Late", Line: 20, Signature: "func Late()"}, Score: 2},
		{Tag: parser.Tag{File: "a.go", Name: "Early", Line: 3, Signature: "func Early()"}, Score: 1},
	}
	result := Emit(tags, codeType, 1000)
	earlyIdx := strings.Index(result.Text, "3: func Early()")
	lateIdx := strings.Index(result.Text, "20: func Late()")
	require.GreaterOrEqual(t, earlyIdx, 0)
	require.GreaterOrEqual(t, lateIdx, 0)
	assert.Less(t, earlyIdx, lateIdx)
}

func TestEmit_TinyBudgetFallsBackToSingleFileHeaderWithOverflow(t *testing.T) {
	tags := []graph.RankedTag{
		{Tag: parser.Tag{File: "a.go", Name: "Foo", Line: 1, Signature: strings.Repeat("x", 500)}, Score: 2},
	}
	result := Emit(tags, codeType, 1)
	assert.True(t, result.Overflow)
	assert.Equal(t, "a.go\n", result.Text)
}

func TestEmit_EmptyInput(t *testing.T) {
	result := Emit(nil, codeType, 1000)
	assert.Equal(t, Result{}, result)
}
