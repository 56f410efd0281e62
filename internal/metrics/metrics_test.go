package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/faceauth/internal/facematch"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	return w.Body.String()
}

func TestRecorder(t *testing.T) {
	r := New()
	d := 0.4

	r.RecordMatch(facematch.MatchResult{Identity: "alice", Distance: &d}, nil, time.Millisecond)
	r.RecordMatch(facematch.MatchResult{Identity: facematch.Unknown, Skipped: 2}, nil, time.Millisecond)
	r.RecordMatch(facematch.MatchResult{}, facematch.ErrEmptyQuery, 0)
	r.RecordMatchError()
	r.RecordEnrollment(facematch.EnrollmentDecision{Action: facematch.ActionSave}, nil)
	r.RecordEnrollment(facematch.EnrollmentDecision{Action: facematch.ActionSkip}, nil)
	r.RecordEnrollment(facematch.EnrollmentDecision{}, errors.New("disk full"))
	r.RecordSuggestions()
	r.SnapshotPublished(facematch.NewGallery(map[string][]facematch.Embedding{
		"alice": {{0}, {1}},
		"bob":   {{2}},
	}))
	r.LoadIssues(3)

	body := scrape(t, r)
	for _, want := range []string{
		`faceauth_match_requests_total{outcome="matched"} 1`,
		`faceauth_match_requests_total{outcome="unknown"} 1`,
		`faceauth_match_requests_total{outcome="invalid"} 1`,
		`faceauth_match_requests_total{outcome="error"} 1`,
		`faceauth_match_skipped_references_total 2`,
		`faceauth_enrollment_decisions_total{action="save"} 1`,
		`faceauth_enrollment_decisions_total{action="skip"} 1`,
		`faceauth_enrollment_decisions_total{action="error"} 1`,
		`faceauth_suggestions_requests_total 1`,
		`faceauth_store_identities 2`,
		`faceauth_store_references 3`,
		`faceauth_store_load_issues_total 3`,
		`faceauth_match_latency_seconds_count 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.RecordSuggestions()

	if !strings.Contains(scrape(t, a), "faceauth_suggestions_requests_total 1") {
		t.Error("expected recorded suggestion in first registry")
	}
	if !strings.Contains(scrape(t, b), "faceauth_suggestions_requests_total 0") {
		t.Error("expected untouched counter in second registry")
	}
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.RecordMatch(facematch.MatchResult{}, nil, time.Second)
	r.RecordMatchError()
	r.RecordEnrollment(facematch.EnrollmentDecision{}, nil)
	r.RecordSuggestions()
	r.SnapshotPublished(facematch.EmptyGallery())
	r.LoadIssues(1)
}
