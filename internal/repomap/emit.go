// Package repomap renders a token-budgeted text summary of a repository
// from ranked structural tags (spec.md §4.2's "Repo-map emission"): group
// by file, list each symbol's line and signature, and binary-search the
// largest ranked-tag prefix that fits a token budget.
package repomap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kbserver/kbserver/internal/graph"
	"github.com/kbserver/kbserver/internal/kbstore"
	"github.com/kbserver/kbserver/internal/tokenest"
)

// toleranceFraction is the ±15% acceptance band from spec.md §4.2: a
// prefix is accepted if it's under budget with no room for one more tag, OR
// its token count is within this fraction of the budget either way.
const toleranceFraction = 0.15

// Result is the emitted repo-map artifact.
type Result struct {
	Text       string
	TokenCount int
	Overflow   bool
}

// Emit renders the largest prefix of rankedTags (already sorted by the
// graph package's score/tie-break order) whose rendered text fits within
// tokenBudget, using contentTypeOf to choose the byte- or rune-based
// estimator per file. If no nonempty prefix fits, it falls back to the
// single highest-ranked file's header line and flags Overflow.
func Emit(rankedTags []graph.RankedTag, contentTypeOf func(file string) kbstore.ContentType, tokenBudget int) Result {
	if len(rankedTags) == 0 || tokenBudget <= 0 {
		return Result{}
	}

	renderPrefix := func(n int) (string, int) {
		text := render(rankedTags[:n], contentTypeOf)
		return text, estimateTokens(rankedTags[:n], contentTypeOf)
	}

	fits := func(n int) (bool, int) {
		if n == 0 {
			return true, 0
		}
		_, count := renderPrefix(n)
		if count <= tokenBudget {
			return true, count
		}
		delta := float64(count-tokenBudget) / float64(tokenBudget)
		return delta <= toleranceFraction, count
	}

	lo, hi := 0, len(rankedTags)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		ok, _ := fits(mid)
		if ok {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	if lo == 0 {
		// No prefix fits at all: emit the single highest-ranked file's
		// header, even over budget, and flag overflow per spec.md §4.2.
		text := rankedTags[0].Tag.File + "\n"
		return Result{Text: text, TokenCount: estimateTokens(rankedTags[:1], contentTypeOf), Overflow: true}
	}

	text, count := renderPrefix(lo)
	overflow := count > tokenBudget
	return Result{Text: text, TokenCount: count, Overflow: overflow}
}

// render groups tags by file (preserving the order files first appear in
// the ranked prefix) and renders each file's header followed by its
// `  <line>: <signature>` lines sorted by line ascending.
func render(tags []graph.RankedTag, contentTypeOf func(file string) kbstore.ContentType) string {
	order := make([]string, 0)
	byFile := make(map[string][]graph.RankedTag)
	seen := make(map[string]bool)
	for _, rt := range tags {
		f := rt.Tag.File
		if !seen[f] {
			seen[f] = true
			order = append(order, f)
		}
		byFile[f] = append(byFile[f], rt)
	}

	var out strings.Builder
	for _, file := range order {
		entries := byFile[file]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Tag.Line < entries[j].Tag.Line })

		out.WriteString(file)
		out.WriteByte('\n')
		for _, e := range entries {
			fmt.Fprintf(&out, "  %d: %s\n", e.Tag.Line, e.Tag.Signature)
		}
	}
	return out.String()
}

// estimateTokens sums the per-file rendered section's token estimate using
// each file's own content-type estimator, since a single repo-map can span
// both code and prose files.
func estimateTokens(tags []graph.RankedTag, contentTypeOf func(file string) kbstore.ContentType) int {
	byFile := make(map[string][]graph.RankedTag)
	order := make([]string, 0)
	seen := make(map[string]bool)
	for _, rt := range tags {
		f := rt.Tag.File
		if !seen[f] {
			seen[f] = true
			order = append(order, f)
		}
		byFile[f] = append(byFile[f], rt)
	}

	total := 0
	for _, file := range order {
		entries := byFile[file]
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Tag.Line < entries[j].Tag.Line })

		var section strings.Builder
		section.WriteString(file)
		section.WriteByte('\n')
		for _, e := range entries {
			fmt.Fprintf(&section, "  %d: %s\n", e.Tag.Line, e.Tag.Signature)
		}

		contentType := string(contentTypeOf(file))
		total += tokenest.Estimate(section.String(), contentType)
	}
	return total
}
