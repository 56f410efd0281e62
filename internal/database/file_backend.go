package database

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/kozaktomas/faceauth/internal/facematch"
)

// FileBackend stores one encoded embedding per file:
//
//	root/{identity}/{identity}_{NN}.{ext}
//
// Flat legacy files root/{identity}.{ext} and root/{identity}_{NN}.{ext} are
// read as well, the identity being the name prefix before the first underscore.
type FileBackend struct {
	root string
	ext  string
	dim  int
}

// NewFileBackend creates a backend rooted at root. dim > 0 rejects
// embeddings of any other length; 0 accepts the first length seen.
func NewFileBackend(root, ext string, dim int) *FileBackend {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = DefaultExtension
	}
	return &FileBackend{root: root, ext: ext, dim: dim}
}

// Root returns the storage root directory.
func (b *FileBackend) Root() string {
	return b.root
}

type refFile struct {
	path   string
	index  int
	legacy bool
}

// Load reads every reference file under the root. Files that cannot be
// decoded or have the wrong length are reported as issues; a file that cannot
// be read fails the whole load.
func (b *FileBackend) Load(ctx context.Context) (map[string][]facematch.Embedding, []LoadIssue, error) {
	files, err := b.scan()
	if err != nil {
		return nil, nil, err
	}

	refs := make(map[string][]facematch.Embedding, len(files))
	var issues []LoadIssue
	dim := b.dim

	for _, id := range slices.Sorted(maps.Keys(files)) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		for _, f := range files[id] {
			data, err := os.ReadFile(f.path) //nolint:gosec // path comes from scanning the root
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, nil, storageError("reading reference "+f.path, err)
			}
			e, err := DecodeEmbedding(bytes.NewReader(data), b.ext)
			if err != nil {
				issues = append(issues, newLoadIssue(f.path, id, err))
				continue
			}
			if err := facematch.ValidateQuery(e, dim); err != nil {
				issues = append(issues, newLoadIssue(f.path, id, err))
				continue
			}
			if dim == 0 {
				dim = len(e)
			}
			refs[id] = append(refs[id], e)
		}
	}
	return refs, issues, nil
}

// scan lists reference files per identity, folder files first in index
// order, then legacy flat files.
func (b *FileBackend) scan() (map[string][]refFile, error) {
	entries, err := os.ReadDir(b.root)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]refFile{}, nil
	}
	if err != nil {
		return nil, storageError("reading root", err)
	}

	files := make(map[string][]refFile)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if entry.IsDir() {
			dirFiles, err := b.scanIdentityDir(name)
			if err != nil {
				return nil, err
			}
			if len(dirFiles) > 0 {
				files[name] = append(files[name], dirFiles...)
			}
			continue
		}
		id, index, ok := b.parseLegacyName(name)
		if !ok {
			continue
		}
		files[id] = append(files[id], refFile{path: filepath.Join(b.root, name), index: index, legacy: true})
	}

	for id := range files {
		slices.SortStableFunc(files[id], func(a, c refFile) int {
			if a.legacy != c.legacy {
				if a.legacy {
					return 1
				}
				return -1
			}
			return cmp.Or(cmp.Compare(a.index, c.index), cmp.Compare(a.path, c.path))
		})
	}
	return files, nil
}

func (b *FileBackend) scanIdentityDir(identity string) ([]refFile, error) {
	dir := filepath.Join(b.root, identity)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, storageError("reading "+dir, err)
	}

	var files []refFile
	for _, entry := range entries {
		if entry.IsDir() || !b.hasExt(entry.Name()) {
			continue
		}
		files = append(files, refFile{
			path:  filepath.Join(dir, entry.Name()),
			index: b.parseIndex(identity, entry.Name()),
		})
	}
	return files, nil
}

// parseIndex extracts NN from {identity}_{NN}.{ext}. Foreign names sort last.
func (b *FileBackend) parseIndex(identity, name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	suffix, ok := strings.CutPrefix(base, identity+"_")
	if !ok {
		return math.MaxInt
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return math.MaxInt
	}
	return n
}

func (b *FileBackend) parseLegacyName(name string) (identity string, index int, ok bool) {
	if !b.hasExt(name) {
		return "", 0, false
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	identity, rest, found := strings.Cut(base, "_")
	if identity == "" {
		return "", 0, false
	}
	if !found {
		return identity, 0, true
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return identity, math.MaxInt, true
	}
	return identity, n, true
}

func (b *FileBackend) hasExt(name string) bool {
	return strings.EqualFold(strings.TrimPrefix(filepath.Ext(name), "."), b.ext)
}

// Append writes e to the next free index of identity. The index comes from the
// persisted counter reconciled with the files present, and the file is created
// exclusively so concurrent writers never overwrite each other.
func (b *FileBackend) Append(ctx context.Context, identity string, e facematch.Embedding) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !facematch.StorableIdentity(identity) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}
	if err := facematch.ValidateQuery(e, b.dim); err != nil {
		return "", err
	}

	dir := filepath.Join(b.root, identity)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", storageError("creating identity folder", err)
	}

	next, err := b.nextIndex(identity)
	if err != nil {
		return "", err
	}

	for range maxAppendAttempts {
		path := filepath.Join(dir, b.fileName(identity, next))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600) //nolint:gosec // path built from a checked identity
		if errors.Is(err, fs.ErrExist) {
			next++
			continue
		}
		if err != nil {
			return "", storageError("creating reference file", err)
		}

		encErr := EncodeEmbedding(f, b.ext, e)
		closeErr := f.Close()
		if err := errors.Join(encErr, closeErr); err != nil {
			_ = os.Remove(path)
			return "", storageError("writing reference file", err)
		}

		if err := writeCounter(dir, next+1); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", storageError("appending reference", fmt.Errorf("no free index for %s after %d attempts", identity, maxAppendAttempts))
}

func (b *FileBackend) fileName(identity string, index int) string {
	return fmt.Sprintf("%s_%0*d.%s", identity, indexWidth, index, b.ext)
}

// nextIndex returns max(persisted counter, highest existing index + 1).
func (b *FileBackend) nextIndex(identity string) (int, error) {
	dir := filepath.Join(b.root, identity)
	next, err := readCounter(dir)
	if err != nil {
		return 0, err
	}

	files, err := b.scanIdentityDir(identity)
	if err != nil {
		return 0, err
	}
	for _, f := range files {
		if f.index != math.MaxInt {
			next = max(next, f.index+1)
		}
	}
	return next, nil
}

func readCounter(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, counterFile)) //nolint:gosec // path built from a checked identity
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, storageError("reading counter", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		// A damaged counter is rebuilt from the files present.
		return 0, nil
	}
	return n, nil
}

// writeCounter replaces the counter atomically via temp file and rename.
func writeCounter(dir string, next int) error {
	tmp, err := os.CreateTemp(dir, counterFile+"-*")
	if err != nil {
		return storageError("creating counter", err)
	}
	_, writeErr := tmp.WriteString(strconv.Itoa(next) + "\n")
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return storageError("writing counter", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, counterFile)); err != nil {
		_ = os.Remove(tmp.Name())
		return storageError("replacing counter", err)
	}
	return nil
}

// Remove deletes the identity folder and any legacy flat files of identity.
func (b *FileBackend) Remove(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !facematch.StorableIdentity(identity) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}

	removed := false
	dir := filepath.Join(b.root, identity)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		if err := os.RemoveAll(dir); err != nil {
			return storageError("removing identity folder", err)
		}
		removed = true
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageError("checking identity folder", err)
	}

	legacy, err := b.LegacyFiles()
	if err != nil {
		return err
	}
	for _, f := range legacy[identity] {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return storageError("removing legacy file", err)
		}
		removed = true
	}

	if !removed {
		return fmt.Errorf("%w: %s", ErrIdentityNotFound, identity)
	}
	return nil
}

// LegacyFiles returns flat legacy files per identity in index order.
func (b *FileBackend) LegacyFiles() (map[string][]string, error) {
	files, err := b.scan()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for id, refs := range files {
		for _, f := range refs {
			if f.legacy {
				out[id] = append(out[id], f.path)
			}
		}
	}
	return out, nil
}

// MigrateLegacyFile moves one flat legacy file of identity into its folder
// under the next free index and deletes the original.
func (b *FileBackend) MigrateLegacyFile(ctx context.Context, identity, path string) (string, error) {
	e, err := ReadEmbeddingFile(path)
	if err != nil {
		return "", err
	}
	location, err := b.Append(ctx, identity, e)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return location, storageError("removing migrated file", err)
	}
	return location, nil
}
