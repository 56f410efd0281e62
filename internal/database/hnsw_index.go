package database

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"math"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/faceauth/internal/facematch"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	Identities  int       `json:"identities"`
	References  int       `json:"references"`
	Dimension   int       `json:"dimension"`
	Fingerprint uint64    `json:"fingerprint"`
	BuildTime   time.Time `json:"build_time"`
	Version     int       `json:"version"`
}

const hnswMetadataVersion = 2

// hnswKeys is the .keys sidecar: node key -> identity and vector.
type hnswKeys struct {
	Identities []string
	Vectors    [][]float32
}

// HNSWIndex answers nearest-reference queries over one gallery snapshot.
// Distances returned are exact Euclidean distances recomputed from the stored
// vectors, so the matcher's threshold applies unchanged. Indexes holding at
// most HNSWExactScanLimit references are answered by an exact scan of the
// vectors; larger ones search the graph with an HNSWEfSearch candidate pool.
type HNSWIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[int64]
	identities []string              // node key -> identity
	vectors    []facematch.Embedding // node key -> vector
	meta       HNSWIndexMetadata
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// BuildFromGallery replaces the index contents with every reference of g
// whose length matches the gallery dimension. Node keys follow scan order.
func (h *HNSWIndex) BuildFromGallery(g *facematch.Gallery) {
	dim := g.Dimension()
	graph := newGraph()
	identities := make([]string, 0, g.Total())
	vectors := make([]facematch.Embedding, 0, g.Total())

	g.Each(func(id string, _ int, e facematch.Embedding) {
		if len(e) != dim {
			return
		}
		key := int64(len(identities))
		identities = append(identities, id)
		vectors = append(vectors, e)
		graph.Add(hnsw.MakeNode(key, []float32(e)))
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = graph
	h.identities = identities
	h.vectors = vectors
	h.meta = metadataFor(g)
}

// Nearest returns up to k distinct identities ordered by exact distance.
// Equal distances keep scan order.
func (h *HNSWIndex) Nearest(query facematch.Embedding, k int) ([]facematch.Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, errors.New("index not initialized")
	}
	if k <= 0 || h.graph.Len() == 0 || len(query) != h.meta.Dimension {
		return nil, nil
	}

	type hit struct {
		key      int64
		distance float64
	}
	var hits []hit
	if len(h.vectors) <= HNSWExactScanLimit {
		hits = make([]hit, 0, len(h.vectors))
		for key, v := range h.vectors {
			hits = append(hits, hit{key: int64(key), distance: facematch.EuclideanDistance(query, v)})
		}
	} else {
		fetch := min(max(k*HNSWSearchMultiplier, HNSWEfSearch), h.graph.Len())
		nodes := h.graph.Search([]float32(query), fetch)
		hits = make([]hit, 0, len(nodes))
		for _, n := range nodes {
			if n.Key < 0 || int(n.Key) >= len(h.vectors) {
				continue
			}
			hits = append(hits, hit{key: n.Key, distance: facematch.EuclideanDistance(query, h.vectors[n.Key])})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		return cmp.Or(cmp.Compare(a.distance, b.distance), cmp.Compare(a.key, b.key))
	})

	out := make([]facematch.Neighbor, 0, k)
	seen := make(map[string]bool, k)
	for _, hh := range hits {
		id := h.identities[hh.key]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, facematch.Neighbor{Identity: id, Distance: hh.distance})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Count returns the number of indexed references.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.identities)
}

// Metadata returns the metadata of the indexed snapshot.
func (h *HNSWIndex) Metadata() HNSWIndexMetadata {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.meta
}

// Fresh reports whether the index was built from a gallery identical to g.
func (h *HNSWIndex) Fresh(g *facematch.Gallery) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.graph == nil {
		return false
	}
	want := metadataFor(g)
	return h.meta.Fingerprint == want.Fingerprint &&
		h.meta.References == want.References &&
		h.meta.Identities == want.Identities
}

// Save persists the graph to path with .meta and .keys sidecars.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".keys")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := h.graph.Export(w); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	keys, err := os.Create(path + ".keys") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create keys file: %w", err)
	}
	sidecar := hnswKeys{Identities: h.identities, Vectors: make([][]float32, len(h.vectors))}
	for i, v := range h.vectors {
		sidecar.Vectors[i] = v
	}
	if err := gob.NewEncoder(keys).Encode(sidecar); err != nil {
		_ = keys.Close()
		return fmt.Errorf("failed to encode keys: %w", err)
	}
	if err := keys.Close(); err != nil {
		return fmt.Errorf("failed to close keys file: %w", err)
	}

	meta := h.meta
	meta.Version = hnswMetadataVersion
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load replaces the index with one saved by Save. A missing graph file
// returns an error wrapping fs.ErrNotExist.
func (h *HNSWIndex) Load(path string) error {
	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		return err
	}
	if meta.Version != hnswMetadataVersion {
		return fmt.Errorf("unsupported HNSW index version %d", meta.Version)
	}

	keysFile, err := os.Open(path + ".keys") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to open keys file: %w", err)
	}
	var sidecar hnswKeys
	err = gob.NewDecoder(keysFile).Decode(&sidecar)
	_ = keysFile.Close()
	if err != nil {
		return fmt.Errorf("failed to decode keys: %w", err)
	}

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to open HNSW index: %w", err)
	}
	defer f.Close()

	graph := newGraph()
	if err := graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}
	graph.Distance = hnsw.EuclideanDistance
	graph.EfSearch = HNSWEfSearch

	if graph.Len() != len(sidecar.Identities) || len(sidecar.Vectors) != len(sidecar.Identities) {
		return fmt.Errorf("HNSW index has %d nodes but %d keys and %d vectors",
			graph.Len(), len(sidecar.Identities), len(sidecar.Vectors))
	}
	vectors := make([]facematch.Embedding, len(sidecar.Vectors))
	for i, v := range sidecar.Vectors {
		if len(v) != meta.Dimension {
			return fmt.Errorf("HNSW index vector %d has dimension %d, want %d", i, len(v), meta.Dimension)
		}
		vectors[i] = v
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = graph
	h.identities = sidecar.Identities
	h.vectors = vectors
	h.meta = meta
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// IndexFileExists reports whether a saved index is present at path.
func IndexFileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist) && err == nil
}

func metadataFor(g *facematch.Gallery) HNSWIndexMetadata {
	h := fnv.New64a()
	var buf [4]byte
	dim := g.Dimension()
	refs := 0
	g.Each(func(id string, _ int, e facematch.Embedding) {
		if len(e) != dim {
			return
		}
		refs++
		_, _ = h.Write([]byte(id))
		_, _ = h.Write([]byte{0})
		for _, v := range e {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			_, _ = h.Write(buf[:])
		}
	})
	return HNSWIndexMetadata{
		Identities:  g.Len(),
		References:  refs,
		Dimension:   dim,
		Fingerprint: h.Sum64(),
		BuildTime:   time.Now().UTC(),
		Version:     hnswMetadataVersion,
	}
}
