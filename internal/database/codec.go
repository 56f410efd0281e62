package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/faceauth/internal/facematch"
)

// EncodeEmbedding writes e in the format implied by ext: JSON for "json",
// gob-encoded []float32 otherwise.
func EncodeEmbedding(w io.Writer, ext string, e facematch.Embedding) error {
	if isJSON(ext) {
		if err := json.NewEncoder(w).Encode([]float32(e)); err != nil {
			return fmt.Errorf("encoding json embedding: %w", err)
		}
		return nil
	}
	if err := gob.NewEncoder(w).Encode([]float32(e)); err != nil {
		return fmt.Errorf("encoding gob embedding: %w", err)
	}
	return nil
}

// DecodeEmbedding reads one embedding written by EncodeEmbedding.
func DecodeEmbedding(r io.Reader, ext string) (facematch.Embedding, error) {
	var v []float32
	if isJSON(ext) {
		if err := json.NewDecoder(r).Decode(&v); err != nil {
			return nil, fmt.Errorf("decoding json embedding: %w", err)
		}
	} else if err := gob.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding gob embedding: %w", err)
	}
	return facematch.Embedding(v), nil
}

// ReadEmbeddingFile decodes an embedding file, picking the codec by extension.
func ReadEmbeddingFile(path string) (facematch.Embedding, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	e, err := DecodeEmbedding(bytes.NewReader(data), filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return e, nil
}

// WriteEmbeddingFile encodes e to path, picking the codec by extension.
func WriteEmbeddingFile(path string, e facematch.Embedding) error {
	var buf bytes.Buffer
	if err := EncodeEmbedding(&buf, filepath.Ext(path), e); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func isJSON(ext string) bool {
	return strings.EqualFold(strings.TrimPrefix(ext, "."), "json")
}
