package database

// HNSW index parameters for face reference embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so k distinct identities survive deduplication.
	HNSWSearchMultiplier = 3

	// HNSWExactScanLimit is the largest reference count answered by scanning
	// every indexed vector instead of searching the graph.
	HNSWExactScanLimit = 4096
)

// File layout
const (
	// DefaultExtension is used for reference files when none is configured.
	DefaultExtension = "gob"

	// counterFile holds the next sequence index inside an identity folder.
	counterFile = ".next"

	// indexWidth is the minimum zero-padded width of sequence indices.
	indexWidth = 2

	// maxAppendAttempts bounds retries when another writer took the index.
	maxAppendAttempts = 1000
)
