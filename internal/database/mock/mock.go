// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/kozaktomas/faceauth/internal/database"
	"github.com/kozaktomas/faceauth/internal/facematch"
)

// MockBackend is an in-memory implementation of database.Backend
type MockBackend struct {
	mu     sync.RWMutex
	refs   map[string][]facematch.Embedding
	issues []database.LoadIssue

	LoadCalls   int
	AppendCalls int
	RemoveCalls int

	// OnLoad runs at the start of every Load, before the lock is taken.
	OnLoad func(ctx context.Context) error

	// Error injection
	LoadError   error
	AppendError error
	RemoveError error
}

// NewMockBackend creates a new mock backend
func NewMockBackend() *MockBackend {
	return &MockBackend{
		refs: make(map[string][]facematch.Embedding),
	}
}

// AddReference adds a reference to the mock store without counting a call
func (m *MockBackend) AddReference(identity string, e facematch.Embedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[identity] = append(m.refs[identity], e.Clone())
}

// AddIssue makes the next loads report an excluded entry
func (m *MockBackend) AddIssue(issue database.LoadIssue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues = append(m.issues, issue)
}

// References returns the stored references of an identity
func (m *MockBackend) References(identity string) []facematch.Embedding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.refs[identity])
}

// Load returns a copy of every stored reference
func (m *MockBackend) Load(ctx context.Context) (map[string][]facematch.Embedding, []database.LoadIssue, error) {
	if m.OnLoad != nil {
		if err := m.OnLoad(ctx); err != nil {
			return nil, nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoadCalls++
	if m.LoadError != nil {
		return nil, nil, m.LoadError
	}
	out := make(map[string][]facematch.Embedding, len(m.refs))
	for id, embs := range m.refs {
		cp := make([]facematch.Embedding, len(embs))
		for i, e := range embs {
			cp[i] = e.Clone()
		}
		out[id] = cp
	}
	return out, slices.Clone(m.issues), nil
}

// Append stores a reference and returns a synthetic location
func (m *MockBackend) Append(ctx context.Context, identity string, e facematch.Embedding) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendError != nil {
		return "", m.AppendError
	}
	if !facematch.StorableIdentity(identity) {
		return "", fmt.Errorf("%w: %q", database.ErrInvalidIdentity, identity)
	}
	m.refs[identity] = append(m.refs[identity], e.Clone())
	return fmt.Sprintf("mock://%s/%d", identity, len(m.refs[identity])-1), nil
}

// Remove deletes every reference of an identity
func (m *MockBackend) Remove(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls++
	if m.RemoveError != nil {
		return m.RemoveError
	}
	if _, ok := m.refs[identity]; !ok {
		return fmt.Errorf("%w: %s", database.ErrIdentityNotFound, identity)
	}
	delete(m.refs, identity)
	return nil
}

// Identities returns the stored identities in sorted order
func (m *MockBackend) Identities() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.refs))
}
