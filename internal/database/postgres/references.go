package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/faceauth/internal/database"
	"github.com/kozaktomas/faceauth/internal/facematch"
)

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

const maxInsertAttempts = 5

// ReferenceRepository implements database.Backend on PostgreSQL.
type ReferenceRepository struct {
	pool *Pool
	dim  int
}

var _ database.Backend = (*ReferenceRepository)(nil)

// NewReferenceRepository creates a repository. dim > 0 rejects embeddings of
// any other length.
func NewReferenceRepository(pool *Pool, dim int) *ReferenceRepository {
	return &ReferenceRepository{pool: pool, dim: dim}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", database.ErrStorageUnavailable, op, err)
}

// Load reads every reference ordered by identity and sequence index.
func (r *ReferenceRepository) Load(ctx context.Context) (map[string][]facematch.Embedding, []database.LoadIssue, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity, seq, embedding
		FROM face_references
		ORDER BY identity, seq
	`)
	if err != nil {
		return nil, nil, unavailable("loading references", err)
	}
	defer rows.Close()

	refs := make(map[string][]facematch.Embedding)
	var issues []database.LoadIssue
	dim := r.dim
	for rows.Next() {
		var identity string
		var seq int
		var vec pgvector.Vector
		if err := rows.Scan(&identity, &seq, &vec); err != nil {
			return nil, nil, unavailable("scanning reference", err)
		}

		e := facematch.Embedding(vec.Slice())
		if err := facematch.ValidateQuery(e, dim); err != nil {
			issues = append(issues, database.LoadIssue{
				Location: location(identity, seq),
				Identity: identity,
				Err:      err,
				Message:  err.Error(),
			})
			continue
		}
		if dim == 0 {
			dim = len(e)
		}
		refs[identity] = append(refs[identity], e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, unavailable("iterating references", err)
	}
	return refs, issues, nil
}

// Append inserts e under the next sequence index from identity_counters.
// The counter is reconciled with the highest stored index and bumped in the
// same transaction as the insert.
func (r *ReferenceRepository) Append(ctx context.Context, identity string, e facematch.Embedding) (string, error) {
	if !facematch.StorableIdentity(identity) {
		return "", fmt.Errorf("%w: %q", database.ErrInvalidIdentity, identity)
	}
	if err := facematch.ValidateQuery(e, r.dim); err != nil {
		return "", err
	}

	var lastErr error
	for range maxInsertAttempts {
		seq, err := r.insert(ctx, identity, e)
		if err == nil {
			return location(identity, seq), nil
		}
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
			return "", unavailable("appending reference", err)
		}
		// concurrent first append for the same identity
		lastErr = err
	}
	return "", unavailable("appending reference", lastErr)
}

func (r *ReferenceRepository) insert(ctx context.Context, identity string, e facematch.Embedding) (int, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var seq int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO identity_counters (identity, next_seq)
		VALUES ($1, (SELECT COALESCE(MAX(seq), -1) + 2 FROM face_references WHERE identity = $1))
		ON CONFLICT (identity) DO UPDATE SET next_seq = GREATEST(
			identity_counters.next_seq,
			(SELECT COALESCE(MAX(seq), -1) + 1 FROM face_references WHERE identity = $1)
		) + 1
		RETURNING next_seq - 1
	`, identity).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("bumping counter: %w", err)
	}

	vec := pgvector.NewVector([]float32(e))
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO face_references (identity, seq, embedding, dim)
		VALUES ($1, $2, $3, $4)
	`, identity, seq, vec, len(e)); err != nil {
		return 0, fmt.Errorf("inserting reference: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing reference: %w", err)
	}
	return seq, nil
}

// Remove deletes every reference of identity. The counter is kept so
// sequence indices are never reused.
func (r *ReferenceRepository) Remove(ctx context.Context, identity string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM face_references WHERE identity = $1", identity)
	if err != nil {
		return unavailable("removing identity", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return unavailable("removing identity", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", database.ErrIdentityNotFound, identity)
	}
	return nil
}

func location(identity string, seq int) string {
	return fmt.Sprintf("face_references/%s/%d", identity, seq)
}
