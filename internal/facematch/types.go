// Package facematch decides identity from face embeddings.
// It holds the matcher, the enrollment policy and the suggestion ranker,
// all operating on immutable Gallery snapshots so CLI and web handlers share
// one decision path.
package facematch

import "errors"

// Unknown is the identity reported when no stored reference is close enough.
const Unknown = "Unknown"

var (
	// ErrEmptyQuery is returned for a nil or zero-length query embedding.
	ErrEmptyQuery = errors.New("empty query embedding")
	// ErrInvalidQuery is returned for a query holding NaN or infinite values.
	ErrInvalidQuery = errors.New("invalid query embedding")
	// ErrDimensionMismatch is returned when an embedding's length disagrees
	// with the established dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedding is a face descriptor produced by an external model.
// Values are never modified after creation.
type Embedding []float32

// Clone returns an independent copy of e.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	cp := make(Embedding, len(e))
	copy(cp, e)
	return cp
}

// MatchResult is the outcome of matching one query against a gallery.
// Distance is nil exactly when Identity is Unknown.
type MatchResult struct {
	Identity string   `json:"identity"`
	Distance *float64 `json:"distance,omitempty"`
	Skipped  int      `json:"skipped,omitempty"` // candidates excluded for dimension mismatch
}

// Matched reports whether the result names an enrolled identity.
func (r MatchResult) Matched() bool {
	return r.Identity != Unknown && r.Distance != nil
}

func unknownResult(skipped int) MatchResult {
	return MatchResult{Identity: Unknown, Skipped: skipped}
}

// EnrollmentAction is what the enrollment policy decided for a sample.
type EnrollmentAction string

const (
	ActionSave   EnrollmentAction = "save"   // moderately novel, added as a reference
	ActionSkip   EnrollmentAction = "skip"   // near-duplicate of an existing reference
	ActionReject EnrollmentAction = "reject" // too far from every reference to trust
)

// EnrollmentDecision explains whether a post-login sample was enrolled.
type EnrollmentDecision struct {
	Action   EnrollmentAction `json:"action"`
	Reason   string           `json:"reason"`
	Distance *float64         `json:"distance,omitempty"` // closest reference distance
	Location string           `json:"location,omitempty"` // where a saved sample was persisted
}

// Neighbor is a reference found by a NeighborIndex.
type Neighbor struct {
	Identity string
	Distance float64
}

// NeighborIndex answers nearest-reference queries faster than a full scan.
// Distances must be exact Euclidean distances.
type NeighborIndex interface {
	Nearest(query Embedding, k int) ([]Neighbor, error)
}
