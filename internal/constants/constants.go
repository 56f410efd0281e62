// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Distance interpretation bands used when comparing two embeddings directly
const (
	// SameDistance is the distance below which two embeddings are likely the same person
	SameDistance = 0.8

	// PossiblySameDistance is the distance below which two embeddings may be the same person
	PossiblySameDistance = 1.3
)

// KnownDimensions are the embedding lengths produced by the supported face models
var KnownDimensions = []int{128, 192}

// HTTP API constants
const (
	// RequestTimeout bounds a single API request
	RequestTimeout = 30 * time.Second

	// ShutdownTimeout bounds graceful shutdown of the API server
	ShutdownTimeout = 30 * time.Second

	// MaxRequestBytes caps API request bodies; one embedding is a few kilobytes
	MaxRequestBytes = 1 << 20
)

// Processing constants
const (
	// DefaultImportConcurrency is the default number of identities imported in parallel
	DefaultImportConcurrency = 4
)
