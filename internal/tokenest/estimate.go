// Package tokenest implements the deterministic token estimator shared by
// the chunker, the repo-map emitter, and the retrieval engine (spec.md §4.2):
// byte length / 3.3 for code, UTF-8 codepoints / 3.8 for prose. Using one
// estimator everywhere keeps a chunk's recorded token count consistent with
// the budget the repo-map emitter fits against.
package tokenest

import "unicode/utf8"

const (
	codeBytesPerToken  = 3.3
	proseRunesPerToken = 3.8
)

// IsCode reports whether a content-type string should use the code
// estimator. Kept as a small string switch (rather than importing kbstore)
// so this package has no dependency on the domain model.
func IsCode(contentType string) bool {
	return contentType == "code"
}

// EstimateCode estimates token count for source code: byte length / 3.3.
func EstimateCode(text string) int {
	return estimate(float64(len(text)), codeBytesPerToken)
}

// EstimateProse estimates token count for prose/markdown: codepoints / 3.8.
func EstimateProse(text string) int {
	return estimate(float64(utf8.RuneCountInString(text)), proseRunesPerToken)
}

// Estimate dispatches to EstimateCode or EstimateProse based on contentType.
func Estimate(text string, contentType string) int {
	if IsCode(contentType) {
		return EstimateCode(text)
	}
	return EstimateProse(text)
}

func estimate(units, perToken float64) int {
	if units <= 0 {
		return 0
	}
	n := int(units / perToken)
	if n == 0 && units > 0 {
		n = 1
	}
	return n
}
