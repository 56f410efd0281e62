package facematch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGallery(t *testing.T) {
	src := map[string][]Embedding{
		"bob":   {{1, 2}},
		"alice": {{3, 4}, {5, 6}},
		"empty": {},
	}
	g := NewGallery(src)

	assert.Equal(t, []string{"alice", "bob"}, g.Identities())
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 3, g.Total())
	assert.Equal(t, 2, g.Count("alice"))
	assert.False(t, g.Has("empty"))
	assert.Equal(t, 2, g.Dimension())

	src["bob"][0][0] = 99
	assert.Equal(t, Embedding{1, 2}, g.References("bob")[0], "input must be copied")
}

func TestGallery_Each(t *testing.T) {
	g := NewGallery(map[string][]Embedding{
		"b": {{1}},
		"a": {{2}, {3}},
	})

	var order []string
	var values []float32
	g.Each(func(id string, idx int, e Embedding) {
		order = append(order, id)
		values = append(values, e[0])
		if id == "a" {
			assert.Equal(t, int(e[0])-2, idx)
		}
	})
	assert.Equal(t, []string{"a", "a", "b"}, order)
	assert.Equal(t, []float32{2, 3, 1}, values)
}

func TestGallery_WithIsCopyOnWrite(t *testing.T) {
	g := NewGallery(map[string][]Embedding{"alice": {{0, 0}}})

	next := g.With("alice", Embedding{1, 1})
	next = next.With("bob", Embedding{2, 2})

	assert.Equal(t, 1, g.Count("alice"))
	assert.False(t, g.Has("bob"))
	assert.Equal(t, 2, next.Count("alice"))
	assert.Equal(t, []string{"alice", "bob"}, next.Identities())
	assert.Equal(t, Embedding{1, 1}, next.References("alice")[1])
}

func TestGallery_Without(t *testing.T) {
	g := NewGallery(map[string][]Embedding{
		"alice": {{0}},
		"bob":   {{1}},
	})

	next := g.Without("alice")
	assert.Equal(t, []string{"bob"}, next.Identities())
	assert.True(t, g.Has("alice"))

	same := next.Without("nobody")
	assert.Equal(t, next.Identities(), same.Identities())
}

func TestGallery_NilSafe(t *testing.T) {
	var g *Gallery

	assert.Zero(t, g.Len())
	assert.Zero(t, g.Total())
	assert.Zero(t, g.Dimension())
	assert.Nil(t, g.Identities())
	assert.Empty(t, g.Map())

	next := g.With("alice", Embedding{1})
	require.NotNil(t, next)
	assert.Equal(t, 1, next.Total())
}

func TestGallery_Map(t *testing.T) {
	g := NewGallery(map[string][]Embedding{"alice": {{1, 2}}})

	m := g.Map()
	m["alice"][0][0] = 42
	assert.Equal(t, float32(1), g.References("alice")[0][0])
}
