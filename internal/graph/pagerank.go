package graph

import "math"

// Defaults per spec.md §4.2.
const (
	DefaultDamping            = 0.85
	DefaultTolerance          = 1e-6
	MaxIterations             = 100
	DefaultModifiedWindowDays = 30

	// Personalization boosts, spec.md §4.2.
	BoostInChat           = 50.0
	BoostRecentlyModified = 10.0
	BoostLongIdentifiers  = 10.0
	BoostReferencedOnly   = 5.0
)

// PageRank computes weighted, personalized PageRank over g using power
// iteration. Rank flows along each edge in reverse, from the referrer file
// to the definer file it references, so files whose symbols are referenced
// score higher. personalization, if non-nil, is renormalized to sum to 1 and
// used both as the teleport distribution and as the redistribution target
// for dangling nodes (files that reference no definer); a nil or empty
// personalization falls back to a uniform distribution over all nodes.
//
// Returns a score per file path. Iterates until the L1 change between
// successive iterations is <= tolerance, or MaxIterations is reached.
func PageRank(g *Graph, personalization map[string]float64, damping, tolerance float64, maxIterations int) map[string]float64 {
	n := len(g.Nodes)
	if n == 0 {
		return map[string]float64{}
	}
	if damping <= 0 {
		damping = DefaultDamping
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if maxIterations <= 0 {
		maxIterations = MaxIterations
	}

	p := normalizedPersonalization(g, personalization)

	// adjacency: for each referrer, list of (definer, weight/inWeight[referrer])
	type weighted struct {
		dst    int
		weight float64
	}
	inWeight := make([]float64, n)
	for _, e := range g.Edges {
		inWeight[e.Dst] += e.Weight
	}
	adj := make([][]weighted, n)
	for _, e := range g.Edges {
		iw := inWeight[e.Dst]
		if iw <= 0 {
			continue
		}
		adj[e.Dst] = append(adj[e.Dst], weighted{dst: e.Src, weight: e.Weight / iw})
	}

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = p[i]
	}

	next := make([]float64, n)
	for iter := 0; iter < maxIterations; iter++ {
		for i := range next {
			next[i] = (1 - damping) * p[i]
		}

		var danglingMass float64
		for src := 0; src < n; src++ {
			if len(adj[src]) == 0 {
				danglingMass += scores[src]
				continue
			}
			for _, w := range adj[src] {
				next[w.dst] += damping * scores[src] * w.weight
			}
		}
		if danglingMass > 0 {
			for i := range next {
				next[i] += damping * danglingMass * p[i]
			}
		}

		delta := 0.0
		for i := range next {
			delta += math.Abs(next[i] - scores[i])
		}
		copy(scores, next)
		if delta <= tolerance {
			break
		}
	}

	out := make(map[string]float64, n)
	for i, file := range g.Nodes {
		out[file] = scores[i]
	}
	return out
}

func normalizedPersonalization(g *Graph, personalization map[string]float64) []float64 {
	n := len(g.Nodes)
	p := make([]float64, n)
	var sum float64
	if len(personalization) == 0 {
		for i := range p {
			p[i] = 1.0 / float64(n)
		}
		return p
	}
	for i, file := range g.Nodes {
		v := personalization[file]
		if v <= 0 {
			v = 1.0
		}
		p[i] = v
		sum += v
	}
	if sum <= 0 {
		for i := range p {
			p[i] = 1.0 / float64(n)
		}
		return p
	}
	for i := range p {
		p[i] /= sum
	}
	return p
}

// PersonalizationInputs carries the signals spec.md §4.2 uses to bias
// PageRank's teleport distribution toward files relevant to the current
// context.
type PersonalizationInputs struct {
	// InChat is the set of files explicitly open/attached to the session.
	InChat map[string]bool
	// RecentlyModified is the set of files modified within the
	// personalization window (git mtime within N days, default 30).
	RecentlyModified map[string]bool
	// LongIdentifierFiles is the set of files containing at least one
	// identifier >= 8 characters long.
	LongIdentifierFiles map[string]bool
	// ReferencedOnly is the set of files referenced by others but that
	// reference few files themselves (high out-degree, low in-degree in the
	// definer→referrer graph).
	ReferencedOnly map[string]bool
}

// BuildPersonalization derives an unnormalized per-file weight vector from
// the boost signals in inputs. Weights start at 1 (uniform) and multiply by
// each applicable boost; PageRank renormalizes the result, so callers don't
// need to.
func BuildPersonalization(files []string, inputs PersonalizationInputs) map[string]float64 {
	weights := make(map[string]float64, len(files))
	for _, f := range files {
		w := 1.0
		if inputs.InChat[f] {
			w *= BoostInChat
		}
		if inputs.RecentlyModified[f] {
			w *= BoostRecentlyModified
		}
		if inputs.LongIdentifierFiles[f] {
			w *= BoostLongIdentifiers
		}
		if inputs.ReferencedOnly[f] {
			w *= BoostReferencedOnly
		}
		weights[f] = w
	}
	return weights
}
