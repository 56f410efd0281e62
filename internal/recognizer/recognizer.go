// Package recognizer combines the reference store with the matcher, the
// enrollment policy and the suggestion ranker behind one API shared by the
// HTTP server and the CLI.
package recognizer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/faceauth/internal/database"
	"github.com/kozaktomas/faceauth/internal/facematch"
	"github.com/kozaktomas/faceauth/internal/metrics"
)

// Options configures a Recognizer.
type Options struct {
	Threshold     float64
	TopK          int
	Policy        facematch.EnrollmentPolicy
	EnrollEnabled bool
	Metrics       *metrics.Recorder
	Logger        *slog.Logger
}

// Recognizer answers identity questions against one reference store.
// Every call works on a single immutable snapshot.
type Recognizer struct {
	store   *database.Store
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// New creates a Recognizer over store.
func New(store *database.Store, opts Options) *Recognizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{store: store, opts: opts, logger: logger, metrics: opts.Metrics}
}

// Store returns the underlying reference store.
func (r *Recognizer) Store() *database.Store {
	return r.store
}

// Threshold returns the configured match threshold.
func (r *Recognizer) Threshold() float64 {
	return r.opts.Threshold
}

// LoginResult is the outcome of a face login attempt.
type LoginResult struct {
	AttemptID     string                        `json:"attempt_id"`
	Authenticated bool                          `json:"authenticated"`
	Identity      string                        `json:"identity"`
	Distance      *float64                      `json:"distance,omitempty"`
	Enrollment    *facematch.EnrollmentDecision `json:"enrollment,omitempty"`
	Suggestions   []string                      `json:"suggestions,omitempty"`
}

// IdentitySummary lists one enrolled identity.
type IdentitySummary struct {
	Identity   string `json:"identity"`
	References int    `json:"references"`
}

// Match matches query against the current snapshot.
func (r *Recognizer) Match(query facematch.Embedding) (facematch.MatchResult, error) {
	return r.matchWithThreshold(query, r.opts.Threshold)
}

// MatchWithThreshold matches with a one-off threshold.
func (r *Recognizer) MatchWithThreshold(query facematch.Embedding, threshold float64) (facematch.MatchResult, error) {
	return r.matchWithThreshold(query, threshold)
}

func (r *Recognizer) matchWithThreshold(query facematch.Embedding, threshold float64) (facematch.MatchResult, error) {
	start := time.Now()
	if err := facematch.ValidateQuery(query, r.store.Dimension()); err != nil {
		r.metrics.RecordMatch(facematch.MatchResult{}, err, time.Since(start))
		return facematch.MatchResult{}, err
	}

	g, idx := r.store.Current()
	m := facematch.Matcher{Threshold: threshold, Index: idx}
	res, err := m.Match(query, g)
	if err != nil && m.Index != nil {
		r.logger.Warn("index search failed, falling back to scan", "error", err)
		m.Index = nil
		res, err = m.Match(query, g)
	}
	r.metrics.RecordMatch(res, err, time.Since(start))
	if err != nil {
		return facematch.MatchResult{}, fmt.Errorf("matching: %w", err)
	}
	return res, nil
}

// RankSuggestions returns up to k candidate identities; k <= 0 uses the
// configured default.
func (r *Recognizer) RankSuggestions(query facematch.Embedding, k int) ([]string, error) {
	if err := facematch.ValidateQuery(query, r.store.Dimension()); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = r.opts.TopK
	}
	r.metrics.RecordSuggestions()
	return facematch.Rank(query, r.store.Snapshot(), k), nil
}

// ConsiderEnrollment runs the enrollment policy for identity and appends the
// sample on Save.
func (r *Recognizer) ConsiderEnrollment(ctx context.Context, identity string, query facematch.Embedding) (facematch.EnrollmentDecision, error) {
	d, err := r.opts.Policy.Consider(ctx, identity, query, r.store.Snapshot(), r.store)
	r.metrics.RecordEnrollment(d, err)
	if err != nil {
		return facematch.EnrollmentDecision{}, err
	}
	r.logger.Info("enrollment decision", "identity", identity, "action", d.Action, "reason", d.Reason)
	return d, nil
}

// DecideEnrollment runs the enrollment policy without persisting anything.
func (r *Recognizer) DecideEnrollment(identity string, query facematch.Embedding) (facematch.EnrollmentDecision, error) {
	g := r.store.Snapshot()
	if err := facematch.ValidateQuery(query, g.Dimension()); err != nil {
		return facematch.EnrollmentDecision{}, err
	}
	return r.opts.Policy.Decide(query, g.References(identity)), nil
}

// Login matches query and, on success, considers the sample for enrollment.
// An unknown face gets ranked suggestions instead. A failed enrollment does
// not fail the login.
func (r *Recognizer) Login(ctx context.Context, query facematch.Embedding) (LoginResult, error) {
	attempt := uuid.NewString()
	logger := r.logger.With("attempt", attempt)

	res, err := r.Match(query)
	if err != nil {
		return LoginResult{}, err
	}

	out := LoginResult{
		AttemptID:     attempt,
		Authenticated: res.Matched(),
		Identity:      res.Identity,
		Distance:      res.Distance,
	}

	if !res.Matched() {
		out.Suggestions = facematch.Rank(query, r.store.Snapshot(), r.opts.TopK)
		r.metrics.RecordSuggestions()
		logger.Info("login rejected", "suggestions", len(out.Suggestions))
		return out, nil
	}

	logger.Info("login accepted", "identity", res.Identity, "distance", *res.Distance)
	if r.opts.EnrollEnabled {
		d, err := r.ConsiderEnrollment(ctx, res.Identity, query)
		if err != nil {
			logger.Error("enrollment failed", "identity", res.Identity, "error", err)
		} else {
			out.Enrollment = &d
		}
	}
	return out, nil
}

// Append stores an embedding for identity, creating it when new.
func (r *Recognizer) Append(ctx context.Context, identity string, e facematch.Embedding) (string, error) {
	return r.store.Append(ctx, identity, e)
}

// Remove deletes identity and all of its references.
func (r *Recognizer) Remove(ctx context.Context, identity string) error {
	return r.store.Remove(ctx, identity)
}

// Reload re-reads the backend.
func (r *Recognizer) Reload(ctx context.Context) (*facematch.Gallery, []database.LoadIssue, error) {
	g, err := r.store.Reload(ctx)
	if err != nil {
		return nil, nil, err
	}
	return g, r.store.LastIssues(), nil
}

// Identities lists the enrolled identities in scan order.
func (r *Recognizer) Identities() []IdentitySummary {
	g := r.store.Snapshot()
	out := make([]IdentitySummary, 0, g.Len())
	for _, id := range g.Identities() {
		out = append(out, IdentitySummary{Identity: id, References: g.Count(id)})
	}
	return out
}

// Has reports whether identity is enrolled.
func (r *Recognizer) Has(identity string) bool {
	return r.store.Snapshot().Has(identity)
}

// ResolveIdentity maps a caller-supplied label to an identity. A label that
// names an enrolled identity is used as given, so folders created outside
// this tool keep their names; any other label is sanitized.
func (r *Recognizer) ResolveIdentity(label string) (string, error) {
	if r.Has(label) {
		return label, nil
	}
	return facematch.SanitizeIdentity(label)
}
