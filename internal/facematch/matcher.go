package facematch

import (
	"fmt"
	"math"
)

// Matcher finds the closest enrolled identity for a query embedding.
// Threshold is the maximum accepted Euclidean distance (exclusive).
// When Index is set, the best candidate comes from the index instead of a
// full scan; the acceptance rule is the same.
type Matcher struct {
	Threshold float64
	Index     NeighborIndex
}

// Match runs an exhaustive scan of g with the given threshold.
func Match(query Embedding, g *Gallery, threshold float64) (MatchResult, error) {
	return Matcher{Threshold: threshold}.Match(query, g)
}

// Match returns the best identity when its distance is strictly below the
// threshold, Unknown otherwise. Exact ties keep the first candidate in scan
// order (lexicographically smallest identity, earliest reference).
func (m Matcher) Match(query Embedding, g *Gallery) (MatchResult, error) {
	if err := ValidateQuery(query, 0); err != nil {
		return MatchResult{}, err
	}

	if m.Index != nil {
		return m.matchIndexed(query)
	}

	best, bestDist, skipped := Nearest(query, g)
	if best == "" || !(bestDist < m.Threshold) {
		return unknownResult(skipped), nil
	}
	return MatchResult{Identity: best, Distance: &bestDist, Skipped: skipped}, nil
}

func (m Matcher) matchIndexed(query Embedding) (MatchResult, error) {
	neighbors, err := m.Index.Nearest(query, 1)
	if err != nil {
		return MatchResult{}, fmt.Errorf("searching index: %w", err)
	}
	if len(neighbors) == 0 || !(neighbors[0].Distance < m.Threshold) {
		return unknownResult(0), nil
	}
	d := neighbors[0].Distance
	return MatchResult{Identity: neighbors[0].Identity, Distance: &d}, nil
}

// Nearest scans every reference and returns the closest identity and its
// distance regardless of any threshold. References whose length differs from
// the query are excluded and counted in skipped. An empty gallery yields "".
func Nearest(query Embedding, g *Gallery) (identity string, distance float64, skipped int) {
	distance = math.Inf(1)
	g.Each(func(id string, _ int, ref Embedding) {
		if len(ref) != len(query) {
			skipped++
			return
		}
		if d := EuclideanDistance(query, ref); d < distance {
			distance = d
			identity = id
		}
	})
	return identity, distance, skipped
}
