package facematch

import (
	"maps"
	"slices"
)

// Gallery is an immutable snapshot of enrolled references per identity.
// Identities iterate in lexicographic order and references in enrollment
// order, which fixes the tie-break rule used by the matcher and the ranker.
type Gallery struct {
	ids  []string
	refs map[string][]Embedding
}

// NewGallery builds a gallery from an identity -> references mapping.
// Embeddings are copied and identities without references are dropped.
func NewGallery(refs map[string][]Embedding) *Gallery {
	g := &Gallery{refs: make(map[string][]Embedding, len(refs))}
	for id, embs := range refs {
		if len(embs) == 0 {
			continue
		}
		cp := make([]Embedding, len(embs))
		for i, e := range embs {
			cp[i] = e.Clone()
		}
		g.refs[id] = cp
	}
	g.ids = slices.Sorted(maps.Keys(g.refs))
	return g
}

// EmptyGallery returns a gallery with no identities.
func EmptyGallery() *Gallery {
	return &Gallery{refs: map[string][]Embedding{}}
}

// Identities returns the enrolled identities in scan order.
func (g *Gallery) Identities() []string {
	if g == nil {
		return nil
	}
	return slices.Clone(g.ids)
}

// References returns the references of an identity in enrollment order.
// The embeddings themselves are shared and must not be modified.
func (g *Gallery) References(identity string) []Embedding {
	if g == nil {
		return nil
	}
	return slices.Clone(g.refs[identity])
}

// Has reports whether the identity has at least one reference.
func (g *Gallery) Has(identity string) bool {
	if g == nil {
		return false
	}
	_, ok := g.refs[identity]
	return ok
}

// Len returns the number of identities.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.ids)
}

// Count returns the number of references held by an identity.
func (g *Gallery) Count(identity string) int {
	if g == nil {
		return 0
	}
	return len(g.refs[identity])
}

// Total returns the number of references across all identities.
func (g *Gallery) Total() int {
	if g == nil {
		return 0
	}
	n := 0
	for _, embs := range g.refs {
		n += len(embs)
	}
	return n
}

// Dimension returns the length of the first reference in scan order, or 0.
func (g *Gallery) Dimension() int {
	if g == nil || len(g.ids) == 0 {
		return 0
	}
	return len(g.refs[g.ids[0]][0])
}

// Each calls fn for every reference in scan order.
func (g *Gallery) Each(fn func(identity string, index int, e Embedding)) {
	if g == nil {
		return
	}
	for _, id := range g.ids {
		for i, e := range g.refs[id] {
			fn(id, i, e)
		}
	}
}

// With returns a new gallery that also holds e as the last reference of identity.
func (g *Gallery) With(identity string, e Embedding) *Gallery {
	next := g.shallowCopy()
	refs := slices.Clone(next.refs[identity])
	next.refs[identity] = append(refs, e.Clone())
	if len(refs) == 0 {
		next.ids = slices.Sorted(maps.Keys(next.refs))
	}
	return next
}

// Without returns a new gallery with identity removed.
func (g *Gallery) Without(identity string) *Gallery {
	next := g.shallowCopy()
	if _, ok := next.refs[identity]; !ok {
		return next
	}
	delete(next.refs, identity)
	next.ids = slices.DeleteFunc(next.ids, func(id string) bool { return id == identity })
	return next
}

// Map returns a copy of the gallery contents.
func (g *Gallery) Map() map[string][]Embedding {
	out := make(map[string][]Embedding, g.Len())
	if g == nil {
		return out
	}
	for id, embs := range g.refs {
		cp := make([]Embedding, len(embs))
		for i, e := range embs {
			cp[i] = e.Clone()
		}
		out[id] = cp
	}
	return out
}

func (g *Gallery) shallowCopy() *Gallery {
	if g == nil {
		return EmptyGallery()
	}
	refs := maps.Clone(g.refs)
	if refs == nil {
		refs = map[string][]Embedding{}
	}
	return &Gallery{
		ids:  slices.Clone(g.ids),
		refs: refs,
	}
}
