package facematch

import (
	"cmp"
	"slices"
)

type scoredReference struct {
	identity string
	distance float64
}

// Rank returns up to k distinct identities ordered by their closest
// reference distance to query. Equal distances keep scan order. It is a
// disambiguation aid for a human, never an authentication decision. Queries
// rejected by ValidateQuery rank nothing.
func Rank(query Embedding, g *Gallery, k int) []string {
	if k <= 0 || ValidateQuery(query, 0) != nil {
		return []string{}
	}

	scored := make([]scoredReference, 0, g.Total())
	g.Each(func(id string, _ int, ref Embedding) {
		if len(ref) != len(query) {
			return
		}
		scored = append(scored, scoredReference{identity: id, distance: EuclideanDistance(query, ref)})
	})
	slices.SortStableFunc(scored, func(a, b scoredReference) int {
		return cmp.Compare(a.distance, b.distance)
	})

	out := make([]string, 0, min(k, g.Len()))
	seen := make(map[string]bool, k)
	for _, s := range scored {
		if seen[s.identity] {
			continue
		}
		seen[s.identity] = true
		out = append(out, s.identity)
		if len(out) == k {
			break
		}
	}
	return out
}
