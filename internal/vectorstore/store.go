// Package vectorstore adapts similarity-search backends to the narrow
// contract the experience memory needs: ensure a collection, upsert one
// record, search by vector, and scan everything.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the backend could not be reached at startup.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrEmptyVector is returned when upsert or search is given no vector.
	ErrEmptyVector = errors.New("vector cannot be empty")
)

// Payload is the string-keyed record body stored next to a vector.
type Payload map[string]any

// Point is one stored record as returned by Search or ScrollAll.
// Score is zero for scroll results.
type Point struct {
	ID      string
	Payload Payload
	Score   float32
}

// DimensionSource tells where a collection's dimensionality was learned.
type DimensionSource string

const (
	DimensionFromConfig DimensionSource = "config"
	DimensionFromVector DimensionSource = "vector"
	DimensionUnknown    DimensionSource = "unknown"
)

// CollectionStatus reports the outcome of EnsureCollection.
type CollectionStatus struct {
	Name      string
	Created   bool
	Requested int
	// Dimension is the detected size; zero when it could not be determined.
	Dimension int
	Source    DimensionSource
	// Mismatch is informational only; reads keep working.
	Mismatch bool
}

// Store is the collaborator contract for similarity storage.
//
// Every failing call returns a *CollaboratorError so callers can apply a
// degrade-to-empty policy with errors.As.
type Store interface {
	// CollectionDimension returns the vector size of an existing collection,
	// or 0 when the collection does not exist or its size is unknown.
	CollectionDimension(ctx context.Context, name string) (int, error)

	// EnsureCollection creates the collection if missing. When it exists,
	// its dimensionality is detected and a mismatch with dim is reported in
	// the returned status rather than as an error.
	EnsureCollection(ctx context.Context, name string, dim int) (CollectionStatus, error)

	// Upsert writes one record. An empty id is replaced with a new one.
	// The id is returned even when the write fails.
	Upsert(ctx context.Context, collection, id string, payload Payload, vector []float32) (string, error)

	// Search returns up to topK records ordered by descending score.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Point, error)

	// ScrollAll returns every payload in the collection. It stops at an
	// empty page, a missing or repeated cursor, or the page budget.
	ScrollAll(ctx context.Context, collection string, batchSize int) ([]Point, error)

	// Close releases backend resources.
	Close() error
}

// CollaboratorError wraps a failed backend call.
type CollaboratorError struct {
	Provider   string
	Op         string
	Collection string
	Err        error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s on %q: %v", e.Provider, e.Op, e.Collection, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// IsCollaboratorError reports whether err came from a backend call.
func IsCollaboratorError(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}

// normalizePayload round-trips through JSON so nested structs and typed
// maps become plain map[string]any / []any / float64 / string / bool values.
func normalizePayload(p Payload) (map[string]any, error) {
	if p == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return out, nil
}

// unitVector returns a unit vector of the given size with equal components.
func unitVector(dim int) []float32 {
	v := make([]float32, dim)
	c := float32(1 / math.Sqrt(float64(dim)))
	for i := range v {
		v[i] = c
	}
	return v
}
