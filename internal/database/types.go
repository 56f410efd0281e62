// Package database persists face reference embeddings and serves them to the
// matcher as immutable gallery snapshots.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/faceauth/internal/facematch"
)

var (
	// ErrStorageUnavailable wraps failures reading or writing the persistence root.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrIdentityNotFound is returned when removing an identity with no references.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrInvalidIdentity is returned for labels that cannot be stored.
	ErrInvalidIdentity = facematch.ErrInvalidIdentity
)

// Backend is one persistence medium for reference embeddings.
type Backend interface {
	// Load reads every persisted reference. A missing root yields an empty
	// mapping. Entries that cannot be used are reported as issues and skipped.
	Load(ctx context.Context) (map[string][]facematch.Embedding, []LoadIssue, error)
	// Append persists one more reference under the next unused index.
	Append(ctx context.Context, identity string, e facematch.Embedding) (string, error)
	// Remove deletes every reference of identity.
	Remove(ctx context.Context, identity string) error
}

// LoadIssue describes a persisted entry excluded during Load.
type LoadIssue struct {
	Location string `json:"location"`
	Identity string `json:"identity,omitempty"`
	Err      error  `json:"-"`
	Message  string `json:"error"`
}

func newLoadIssue(location, identity string, err error) LoadIssue {
	return LoadIssue{Location: location, Identity: identity, Err: err, Message: err.Error()}
}

func (i LoadIssue) String() string {
	return fmt.Sprintf("%s: %s", i.Location, i.Message)
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
