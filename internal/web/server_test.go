package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/faceauth/internal/config"
	"github.com/kozaktomas/faceauth/internal/constants"
	"github.com/kozaktomas/faceauth/internal/database"
	"github.com/kozaktomas/faceauth/internal/database/mock"
	"github.com/kozaktomas/faceauth/internal/facematch"
	"github.com/kozaktomas/faceauth/internal/metrics"
	"github.com/kozaktomas/faceauth/internal/recognizer"
)

func setupServer(t *testing.T) (*httptest.Server, *mock.MockBackend) {
	t.Helper()
	s, backend := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, backend
}

func newTestServer(t *testing.T) (*Server, *mock.MockBackend) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := mock.NewMockBackend()
	backend.AddReference("alice", facematch.Embedding{0, 0})
	backend.AddReference("bob", facematch.Embedding{3, 0})

	m := metrics.New()
	store, err := database.OpenStore(context.Background(), backend, database.StoreOptions{
		Index:    true,
		Logger:   logger,
		Observer: m,
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	rec := recognizer.New(store, recognizer.Options{
		Threshold:     0.8,
		TopK:          3,
		Policy:        facematch.EnrollmentPolicy{DLow: 0.5, DHigh: 1.2},
		EnrollEnabled: true,
		Metrics:       m,
		Logger:        logger,
	})

	cfg := &config.Config{Web: config.WebConfig{Host: "127.0.0.1", Port: 0}}
	return NewServer(cfg, rec, m, logger), backend
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Health(t *testing.T) {
	srv, _ := setupServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on every response")
	}
}

func TestServer_LoginFlow(t *testing.T) {
	srv, backend := setupServer(t)

	resp := post(t, srv.URL+"/api/v1/login", map[string]any{"embedding": []float32{0.6, 0}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var result recognizer.LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !result.Authenticated || result.Identity != "alice" {
		t.Errorf("expected alice authenticated, got %+v", result)
	}
	if len(backend.References("alice")) != 2 {
		t.Errorf("expected enrolled sample persisted, got %d references", len(backend.References("alice")))
	}

	// The saved sample is now the closest reference.
	resp = post(t, srv.URL+"/api/v1/match", map[string]any{"embedding": []float32{0.65, 0}})
	var match facematch.MatchResult
	if err := json.NewDecoder(resp.Body).Decode(&match); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if match.Identity != "alice" || match.Distance == nil || *match.Distance > 0.06 {
		t.Errorf("expected match against the new reference, got %+v", match)
	}
}

func TestServer_RemoveThenMatch(t *testing.T) {
	srv, _ := setupServer(t)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/identities/bob", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.StatusCode)
	}

	resp = post(t, srv.URL+"/api/v1/match", map[string]any{"embedding": []float32{3, 0}})
	var match facematch.MatchResult
	if err := json.NewDecoder(resp.Body).Decode(&match); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if match.Identity != facematch.Unknown {
		t.Errorf("expected Unknown after removal, got %s", match.Identity)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := setupServer(t)

	post(t, srv.URL+"/api/v1/match", map[string]any{"embedding": []float32{0, 0}})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "faceauth_match_requests_total") {
		t.Error("expected match counter in metrics output")
	}
	if !strings.Contains(string(body), "faceauth_store_identities 2") {
		t.Error("expected identity gauge in metrics output")
	}
}

func TestServer_OversizedBody(t *testing.T) {
	s, _ := newTestServer(t)

	big := strings.Repeat("1,", constants.MaxRequestBytes)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/match", strings.NewReader(`{"embedding":[`+big+`1]}`))
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", recorder.Code)
	}
}
