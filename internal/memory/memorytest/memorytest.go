// Package memorytest provides deterministic fakes for the memory service:
// a token-hashing embedder and an in-memory vector store with error
// injection.
package memorytest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/expmem/internal/vectorstore"
)

// ErrInjected is the error returned by a Store or HashEmbedder set to fail.
var ErrInjected = errors.New("injected failure")

// HashEmbedder maps each lowercased token to a bucket and normalizes the
// counts, so texts sharing words land close together.
type HashEmbedder struct {
	Dim int

	mu   sync.Mutex
	fail bool
	// Calls counts embedded texts.
	Calls int
}

// NewHashEmbedder returns an embedder producing dim-length vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{Dim: dim}
}

// Fail makes every later call fail or succeed.
func (e *HashEmbedder) Fail(fail bool) {
	e.mu.Lock()
	e.fail = fail
	e.mu.Unlock()
}

// EmbedDocuments embeds each text.
func (e *HashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return nil, ErrInjected
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	e.Calls += len(texts)
	return out, nil
}

// EmbedQuery embeds one text.
func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimension returns the vector length.
func (e *HashEmbedder) Dimension() int { return e.Dim }

// Model names the fake.
func (e *HashEmbedder) Model() string { return "hash" }

// Close is a no-op.
func (e *HashEmbedder) Close() error { return nil }

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.Dim)
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		h := fnv.New32a()
		_, _ = h.Write([]byte(f))
		v[h.Sum32()%uint32(e.Dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

type entry struct {
	id      string
	payload vectorstore.Payload
	vector  []float32
}

// Store is an in-memory vectorstore.Store using cosine similarity.
type Store struct {
	mu          sync.Mutex
	collections map[string]int
	points      map[string][]entry
	failOps     map[string]bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]int),
		points:      make(map[string][]entry),
		failOps:     make(map[string]bool),
	}
}

// FailOn makes op ("search", "upsert", "scroll", "dimension", "ensure")
// fail or succeed.
func (s *Store) FailOn(op string, fail bool) {
	s.mu.Lock()
	s.failOps[op] = fail
	s.mu.Unlock()
}

// Seed writes a raw payload, bypassing any record encoding.
func (s *Store) Seed(collection, id string, payload vectorstore.Payload, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = len(vector)
	}
	s.points[collection] = append(s.points[collection], entry{id: id, payload: payload, vector: vector})
}

// Count returns the number of points in collection.
func (s *Store) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points[collection])
}

func (s *Store) check(op, collection string) error {
	if s.failOps[op] {
		return &vectorstore.CollaboratorError{Provider: "fake", Op: op, Collection: collection, Err: ErrInjected}
	}
	return nil
}

// CollectionDimension returns the recorded size or 0.
func (s *Store) CollectionDimension(_ context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("dimension", name); err != nil {
		return 0, err
	}
	return s.collections[name], nil
}

// EnsureCollection creates name or reports a size mismatch.
func (s *Store) EnsureCollection(_ context.Context, name string, dim int) (vectorstore.CollectionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := vectorstore.CollectionStatus{Name: name, Requested: dim}
	if err := s.check("ensure", name); err != nil {
		return cs, err
	}
	existing, ok := s.collections[name]
	if !ok {
		s.collections[name] = dim
		cs.Created = true
		cs.Dimension = dim
		cs.Source = vectorstore.DimensionFromConfig
		return cs, nil
	}
	cs.Dimension = existing
	cs.Source = vectorstore.DimensionFromConfig
	cs.Mismatch = existing != dim
	return cs, nil
}

// Upsert stores or replaces one point.
func (s *Store) Upsert(_ context.Context, collection, id string, payload vectorstore.Payload, vector []float32) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.check("upsert", collection); err != nil {
		return id, err
	}
	if _, ok := s.collections[collection]; !ok {
		return id, &vectorstore.CollaboratorError{Provider: "fake", Op: "upsert", Collection: collection, Err: vectorstore.ErrCollectionNotFound}
	}
	pts := s.points[collection]
	for i := range pts {
		if pts[i].id == id {
			pts[i] = entry{id: id, payload: payload, vector: vector}
			return id, nil
		}
	}
	s.points[collection] = append(pts, entry{id: id, payload: payload, vector: vector})
	return id, nil
}

// Search ranks every point by cosine similarity.
func (s *Store) Search(_ context.Context, collection string, vector []float32, topK int) ([]vectorstore.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("search", collection); err != nil {
		return nil, err
	}
	pts := s.points[collection]
	out := make([]vectorstore.Point, 0, len(pts))
	for _, p := range pts {
		out = append(out, vectorstore.Point{ID: p.id, Payload: p.payload, Score: cosine(vector, p.vector)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// ScrollAll returns every point in insertion order.
func (s *Store) ScrollAll(_ context.Context, collection string, _ int) ([]vectorstore.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("scroll", collection); err != nil {
		return nil, err
	}
	out := make([]vectorstore.Point, 0, len(s.points[collection]))
	for _, p := range s.points[collection] {
		out = append(out, vectorstore.Point{ID: p.id, Payload: p.payload})
	}
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
