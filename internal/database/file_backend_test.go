package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/faceauth/internal/facematch"
)

func writeRef(t *testing.T, path string, e facematch.Embedding) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, WriteEmbeddingFile(path, e))
}

func TestFileBackend_LoadMissingRoot(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "missing"), "gob", 0)

	refs, issues, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Empty(t, issues)
}

func TestFileBackend_LoadUnreadableRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	require.NoError(t, os.WriteFile(root, []byte("not a directory"), 0600))

	_, _, err := NewFileBackend(root, "gob", 0).Load(context.Background())
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestFileBackend_AppendAndLoad(t *testing.T) {
	root := t.TempDir()
	b := NewFileBackend(root, "gob", 0)
	ctx := context.Background()

	first := facematch.Embedding{0.125, -0.5, 3.25}
	second := facematch.Embedding{1e-7, 42, -0.333}

	loc, err := b.Append(ctx, "alice", first)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alice", "alice_00.gob"), loc)

	loc, err = b.Append(ctx, "alice", second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alice", "alice_01.gob"), loc)

	refs, issues, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, map[string][]facematch.Embedding{"alice": {first, second}}, refs)
}

func TestFileBackend_AppendUsesPersistedCounter(t *testing.T) {
	root := t.TempDir()
	b := NewFileBackend(root, "gob", 0)
	ctx := context.Background()

	for range 3 {
		_, err := b.Append(ctx, "bob", facematch.Embedding{1, 2})
		require.NoError(t, err)
	}

	// another process deleted an older reference; the count no longer
	// matches the next free index
	require.NoError(t, os.Remove(filepath.Join(root, "bob", "bob_01.gob")))

	loc, err := b.Append(ctx, "bob", facematch.Embedding{3, 4})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "bob", "bob_03.gob"), loc)

	data, err := os.ReadFile(filepath.Join(root, "bob", counterFile))
	require.NoError(t, err)
	assert.Equal(t, "4\n", string(data))
}

func TestFileBackend_AppendSkipsExistingFiles(t *testing.T) {
	root := t.TempDir()
	b := NewFileBackend(root, "gob", 0)

	writeRef(t, filepath.Join(root, "carol", "carol_07.gob"), facematch.Embedding{1})
	require.NoError(t, os.WriteFile(filepath.Join(root, "carol", counterFile), []byte("2\n"), 0600))

	loc, err := b.Append(context.Background(), "carol", facematch.Embedding{2})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "carol", "carol_08.gob"), loc)
}

func TestFileBackend_AppendWideIndex(t *testing.T) {
	root := t.TempDir()
	b := NewFileBackend(root, "gob", 0)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dave"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dave", counterFile), []byte("100"), 0600))

	loc, err := b.Append(context.Background(), "dave", facematch.Embedding{2})
	require.NoError(t, err)
	assert.Equal(t, "dave_100.gob", filepath.Base(loc))
}

func TestFileBackend_AppendValidation(t *testing.T) {
	b := NewFileBackend(t.TempDir(), "gob", 3)
	ctx := context.Background()

	_, err := b.Append(ctx, "../escape", facematch.Embedding{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	_, err = b.Append(ctx, facematch.Unknown, facematch.Embedding{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	_, err = b.Append(ctx, "alice", facematch.Embedding{1, 2})
	assert.ErrorIs(t, err, facematch.ErrDimensionMismatch)

	_, err = b.Append(ctx, "alice", nil)
	assert.ErrorIs(t, err, facematch.ErrEmptyQuery)
}

func TestFileBackend_LoadLegacyLayout(t *testing.T) {
	root := t.TempDir()
	writeRef(t, filepath.Join(root, "bob.gob"), facematch.Embedding{1, 1})
	writeRef(t, filepath.Join(root, "carol_03.gob"), facematch.Embedding{3, 3})
	writeRef(t, filepath.Join(root, "carol_01.gob"), facematch.Embedding{1, 3})
	writeRef(t, filepath.Join(root, "carol", "carol_00.gob"), facematch.Embedding{0, 3})
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0600))

	refs, issues, err := NewFileBackend(root, "gob", 0).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, []facematch.Embedding{{1, 1}}, refs["bob"])
	assert.Equal(t, []facematch.Embedding{{0, 3}, {1, 3}, {3, 3}}, refs["carol"])
	assert.Len(t, refs, 2)
}

func TestFileBackend_LoadReportsBadEntries(t *testing.T) {
	root := t.TempDir()
	writeRef(t, filepath.Join(root, "alice", "alice_00.gob"), facematch.Embedding{1, 2, 3})
	writeRef(t, filepath.Join(root, "alice", "alice_01.gob"), facematch.Embedding{1, 2})
	require.NoError(t, os.WriteFile(filepath.Join(root, "alice", "alice_02.gob"), []byte("garbage"), 0600))
	writeRef(t, filepath.Join(root, "bob", "bob_00.gob"), facematch.Embedding{4, 5, 6})

	refs, issues, err := NewFileBackend(root, "gob", 0).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []facematch.Embedding{{1, 2, 3}}, refs["alice"])
	assert.Equal(t, []facematch.Embedding{{4, 5, 6}}, refs["bob"])
	require.Len(t, issues, 2)
	assert.ErrorIs(t, issues[0].Err, facematch.ErrDimensionMismatch)
	assert.Equal(t, "alice", issues[1].Identity)
	assert.NotEmpty(t, issues[1].Message)
}

func TestFileBackend_ConfiguredDimension(t *testing.T) {
	root := t.TempDir()
	writeRef(t, filepath.Join(root, "alice", "alice_00.gob"), facematch.Embedding{1, 2})
	writeRef(t, filepath.Join(root, "bob", "bob_00.gob"), facematch.Embedding{1, 2, 3})

	refs, issues, err := NewFileBackend(root, "gob", 3).Load(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, refs, "alice")
	assert.Contains(t, refs, "bob")
	require.Len(t, issues, 1)
	assert.ErrorIs(t, issues[0].Err, facematch.ErrDimensionMismatch)
}

func TestFileBackend_JSONExtension(t *testing.T) {
	root := t.TempDir()
	b := NewFileBackend(root, ".json", 0)

	loc, err := b.Append(context.Background(), "erin", facematch.Embedding{0.5, 0.25})
	require.NoError(t, err)
	assert.Equal(t, ".json", filepath.Ext(loc))

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.JSONEq(t, "[0.5,0.25]", string(data))

	refs, _, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, facematch.Embedding{0.5, 0.25}, refs["erin"][0])
}

func TestFileBackend_Remove(t *testing.T) {
	root := t.TempDir()
	b := NewFileBackend(root, "gob", 0)
	ctx := context.Background()

	_, err := b.Append(ctx, "alice", facematch.Embedding{1})
	require.NoError(t, err)
	writeRef(t, filepath.Join(root, "alice_05.gob"), facematch.Embedding{2})
	_, err = b.Append(ctx, "bob", facematch.Embedding{3})
	require.NoError(t, err)

	require.NoError(t, b.Remove(ctx, "alice"))

	refs, _, err := b.Load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, refs, "alice")
	assert.Contains(t, refs, "bob")

	assert.ErrorIs(t, b.Remove(ctx, "alice"), ErrIdentityNotFound)
	assert.ErrorIs(t, b.Remove(ctx, "a/b"), ErrInvalidIdentity)
}

func TestFileBackend_MigrateLegacyFile(t *testing.T) {
	root := t.TempDir()
	b := NewFileBackend(root, "gob", 0)
	writeRef(t, filepath.Join(root, "frank_00.gob"), facematch.Embedding{7, 8})
	writeRef(t, filepath.Join(root, "frank_01.gob"), facematch.Embedding{9, 10})

	legacy, err := b.LegacyFiles()
	require.NoError(t, err)
	require.Len(t, legacy["frank"], 2)

	for _, path := range legacy["frank"] {
		_, err := b.MigrateLegacyFile(context.Background(), "frank", path)
		require.NoError(t, err)
	}

	legacy, err = b.LegacyFiles()
	require.NoError(t, err)
	assert.Empty(t, legacy)

	refs, _, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []facematch.Embedding{{7, 8}, {9, 10}}, refs["frank"])
	assert.FileExists(t, filepath.Join(root, "frank", "frank_01.gob"))
}

func TestFileBackend_LoadFailsOnUnreadableReference(t *testing.T) {
	root := t.TempDir()
	writeRef(t, filepath.Join(root, "alice", "alice_00.gob"), facematch.Embedding{1, 2, 3})
	target := filepath.Join(t.TempDir(), "elsewhere")
	require.NoError(t, os.Mkdir(target, 0750))
	require.NoError(t, os.Symlink(target, filepath.Join(root, "alice", "alice_01.gob")))

	refs, issues, err := NewFileBackend(root, "gob", 0).Load(context.Background())
	require.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "alice_01.gob")
	assert.Nil(t, refs)
	assert.Empty(t, issues)
}

func TestFileBackend_MixedCaseFolder(t *testing.T) {
	root := t.TempDir()
	b := NewFileBackend(root, "gob", 0)
	ctx := context.Background()
	writeRef(t, filepath.Join(root, "Diogo", "Diogo_00.gob"), facematch.Embedding{0, 0})

	refs, issues, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, []facematch.Embedding{{0, 0}}, refs["Diogo"])

	loc, err := b.Append(ctx, "Diogo", facematch.Embedding{0.7, 0})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Diogo", "Diogo_01.gob"), loc)

	require.NoError(t, b.Remove(ctx, "Diogo"))
	assert.NoDirExists(t, filepath.Join(root, "Diogo"))
}

func TestFileBackend_MigrateMixedCaseLegacyFile(t *testing.T) {
	root := t.TempDir()
	b := NewFileBackend(root, "gob", 0)
	writeRef(t, filepath.Join(root, "Diogo_00.gob"), facematch.Embedding{1, 1})

	legacy, err := b.LegacyFiles()
	require.NoError(t, err)
	require.Len(t, legacy["Diogo"], 1)

	loc, err := b.MigrateLegacyFile(context.Background(), "Diogo", legacy["Diogo"][0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Diogo", "Diogo_00.gob"), loc)
	assert.NoFileExists(t, filepath.Join(root, "Diogo_00.gob"))
}

func TestFileBackend_RejectsUnsafeIdentities(t *testing.T) {
	b := NewFileBackend(t.TempDir(), "gob", 0)
	ctx := context.Background()

	for _, id := range []string{"", ".", "..", ".hidden", "a/b", `a\b`, " padded", "unknown", "tab\there"} {
		_, err := b.Append(ctx, id, facematch.Embedding{1})
		assert.ErrorIs(t, err, ErrInvalidIdentity, "append %q", id)
		assert.ErrorIs(t, b.Remove(ctx, id), ErrInvalidIdentity, "remove %q", id)
	}
}
