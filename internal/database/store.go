package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/kozaktomas/faceauth/internal/facematch"
)

// StoreObserver is notified after every published snapshot.
type StoreObserver interface {
	SnapshotPublished(g *facematch.Gallery)
	LoadIssues(n int)
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Dimension fixes the embedding length; 0 takes it from the first reference.
	Dimension int
	// Index enables an HNSW index rebuilt with every snapshot.
	Index bool
	// IndexPath loads a cached index on the first load and is written by SaveIndex.
	IndexPath string
	Logger    *slog.Logger
	Observer  StoreObserver
}

// Store serializes mutations against a Backend and publishes immutable
// snapshots, so concurrent matches never see a half-updated gallery.
type Store struct {
	backend Backend
	opts    StoreOptions
	logger  *slog.Logger
	current atomic.Pointer[view]
	issues  atomic.Pointer[[]LoadIssue]
	mu      sync.Mutex // serializes backend access and snapshot swaps
	reloads singleflight.Group
	loaded  atomic.Bool
}

// view pairs a gallery with the index built from it. Both are swapped in
// one store so readers never combine an index with another gallery.
type view struct {
	gallery *facematch.Gallery
	index   *HNSWIndex
}

func (v *view) neighborIndex() facematch.NeighborIndex {
	if v.index == nil {
		return nil
	}
	return v.index
}

// NewStore creates a store with an empty snapshot. Call Reload to populate it.
func NewStore(backend Backend, opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{backend: backend, opts: opts, logger: logger}
	s.current.Store(&view{gallery: facematch.EmptyGallery()})
	return s
}

// OpenStore creates a store and performs the initial load.
func OpenStore(ctx context.Context, backend Backend, opts StoreOptions) (*Store, error) {
	s := NewStore(backend, opts)
	if _, err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the current immutable gallery.
func (s *Store) Snapshot() *facematch.Gallery {
	return s.current.Load().gallery
}

// Index returns the neighbor index of the current snapshot, or nil when the
// index is disabled.
func (s *Store) Index() facematch.NeighborIndex {
	return s.current.Load().neighborIndex()
}

// Current returns the current gallery together with the index built from
// it. The index is nil when disabled.
func (s *Store) Current() (*facematch.Gallery, facematch.NeighborIndex) {
	v := s.current.Load()
	return v.gallery, v.neighborIndex()
}

// Dimension returns the store-wide embedding length, 0 while unknown.
func (s *Store) Dimension() int {
	if s.opts.Dimension > 0 {
		return s.opts.Dimension
	}
	return s.Snapshot().Dimension()
}

// LastIssues returns the entries excluded by the most recent load.
func (s *Store) LastIssues() []LoadIssue {
	if p := s.issues.Load(); p != nil {
		return *p
	}
	return nil
}

// Reload re-reads the backend and swaps the snapshot. Concurrent calls share
// one backend read. The read runs detached from the caller's cancellation; a
// caller whose ctx ends stops waiting, and the read finishes for the others.
func (s *Store) Reload(ctx context.Context) (*facematch.Gallery, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := s.reloads.DoChan("reload", func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		refs, issues, err := s.backend.Load(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("loading references: %w", err)
		}
		for _, issue := range issues {
			s.logger.Warn("skipping reference", "location", issue.Location, "identity", issue.Identity, "error", issue.Message)
		}

		g := facematch.NewGallery(refs)
		if dim := s.opts.Dimension; dim > 0 {
			g, issues = dropMismatched(g, dim, issues)
		}

		s.issues.Store(&issues)
		if s.opts.Observer != nil {
			s.opts.Observer.LoadIssues(len(issues))
		}
		s.publish(g, !s.loaded.Swap(true))
		s.logger.Info("references loaded", "identities", g.Len(), "references", g.Total(), "issues", len(issues))
		return g, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*facematch.Gallery), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Append persists e for identity and publishes a snapshot holding it.
func (s *Store) Append(ctx context.Context, identity string, e facematch.Embedding) (string, error) {
	if err := facematch.ValidateQuery(e, s.Dimension()); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	location, err := s.backend.Append(ctx, identity, e)
	if err != nil {
		return "", err
	}
	s.publish(s.Snapshot().With(identity, e), false)
	s.logger.Info("reference appended", "identity", identity, "location", location)
	return location, nil
}

// Remove deletes identity from the backend and the snapshot.
func (s *Store) Remove(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Remove(ctx, identity); err != nil {
		return err
	}
	s.publish(s.Snapshot().Without(identity), false)
	s.logger.Info("identity removed", "identity", identity)
	return nil
}

// SaveIndex writes the current index to the configured path.
func (s *Store) SaveIndex() error {
	idx := s.current.Load().index
	if idx == nil || s.opts.IndexPath == "" {
		return nil
	}
	if err := idx.Save(s.opts.IndexPath); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	s.logger.Info("index saved", "path", s.opts.IndexPath, "references", idx.Count())
	return nil
}

// publish must be called with s.mu held.
func (s *Store) publish(g *facematch.Gallery, first bool) {
	next := &view{gallery: g}
	if s.opts.Index {
		next.index = s.indexFor(g, first)
	}
	s.current.Store(next)
	if s.opts.Observer != nil {
		s.opts.Observer.SnapshotPublished(g)
	}
}

func (s *Store) indexFor(g *facematch.Gallery, first bool) *HNSWIndex {
	idx := NewHNSWIndex()
	if first && s.opts.IndexPath != "" && IndexFileExists(s.opts.IndexPath) {
		err := idx.Load(s.opts.IndexPath)
		if err == nil && idx.Fresh(g) {
			s.logger.Info("index loaded from cache", "path", s.opts.IndexPath, "references", idx.Count())
			return idx
		}
		if err != nil {
			s.logger.Warn("ignoring cached index", "path", s.opts.IndexPath, "error", err)
		} else {
			s.logger.Info("cached index is stale, rebuilding", "path", s.opts.IndexPath)
		}
		idx = NewHNSWIndex()
	}
	idx.BuildFromGallery(g)
	return idx
}

func dropMismatched(g *facematch.Gallery, dim int, issues []LoadIssue) (*facematch.Gallery, []LoadIssue) {
	refs := g.Map()
	changed := false
	for id, embs := range refs {
		kept := embs[:0]
		for i, e := range embs {
			if len(e) != dim {
				issues = append(issues, newLoadIssue(fmt.Sprintf("%s#%d", id, i), id,
					fmt.Errorf("%w: got %d, want %d", facematch.ErrDimensionMismatch, len(e), dim)))
				changed = true
				continue
			}
			kept = append(kept, e)
		}
		refs[id] = kept
	}
	if !changed {
		return g, issues
	}
	return facematch.NewGallery(refs), issues
}

// IsStorageError reports whether err is a persistence failure rather than a
// caller mistake.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
