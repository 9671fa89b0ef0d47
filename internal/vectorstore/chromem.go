package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	providerChromem = "chromem"

	// metaPayload is the document metadata key holding the JSON payload.
	metaPayload = "payload"
)

var chromemTracer = otel.Tracer("expmem.vectorstore.chromem")

// candidateSizes are the embedding widths tried when a reopened collection's
// size is not yet known.
var candidateSizes = []int{384, 512, 768, 1024, 1536, 3072}

// ChromemConfig holds configuration for the embedded chromem-go database.
type ChromemConfig struct {
	// Path is the persistence directory. Ignored when InMemory is set.
	Path     string
	Compress bool
	InMemory bool
}

// ChromemStore is a Store backed by chromem-go.
//
// chromem keeps string metadata only, so the payload is stored as JSON in
// the document metadata and the content field mirrors payload["content"].
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// dims caches collection name -> knownDimension
	dims sync.Map
}

type knownDimension struct {
	size   int
	source DimensionSource
}

// NewChromemStore opens (or creates) the embedded database.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.InMemory {
		db = chromem.NewDB()
	} else {
		if config.Path == "" {
			return nil, fmt.Errorf("%w: chromem path required", ErrInvalidConfig)
		}
		if err := os.MkdirAll(config.Path, 0700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", config.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem DB: %v", ErrConnectionFailed, err)
		}
	}

	return &ChromemStore{db: db, config: config, logger: logger}, nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

func (s *ChromemStore) fail(op, collection string, err error) error {
	return &CollaboratorError{Provider: providerChromem, Op: op, Collection: collection, Err: err}
}

func (s *ChromemStore) collection(name string) *chromem.Collection {
	return s.db.GetCollection(name, nil)
}

// CollectionDimension returns the known vector size of a collection.
func (s *ChromemStore) CollectionDimension(ctx context.Context, name string) (int, error) {
	col := s.collection(name)
	if col == nil {
		return 0, nil
	}
	dim, _ := s.detectDimension(ctx, name, col, 0)
	return dim, nil
}

// detectDimension uses the size recorded at creation when available.
// Otherwise it fetches one stored vector by probing with the requested size
// and then the common embedding widths; chromem rejects queries whose
// length differs from the stored vectors.
func (s *ChromemStore) detectDimension(ctx context.Context, name string, col *chromem.Collection, requested int) (int, DimensionSource) {
	if v, ok := s.dims.Load(name); ok {
		kd := v.(knownDimension)
		return kd.size, kd.source
	}
	if col.Count() == 0 {
		return 0, DimensionUnknown
	}

	sizes := candidateSizes
	if requested > 0 {
		sizes = append([]int{requested}, candidateSizes...)
	}
	for _, size := range sizes {
		res, err := col.QueryEmbedding(ctx, unitVector(size), 1, nil, nil)
		if err != nil || len(res) == 0 {
			continue
		}
		dim := len(res[0].Embedding)
		if dim == 0 {
			dim = size
		}
		s.dims.Store(name, knownDimension{size: dim, source: DimensionFromVector})
		return dim, DimensionFromVector
	}
	return 0, DimensionUnknown
}

// EnsureCollection creates the collection or reports its dimensionality.
func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, dim int) (cs CollectionStatus, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("vector_size", dim))

	start := time.Now()
	defer func() { observe(providerChromem, "ensure_collection", start, err) }()

	cs = CollectionStatus{Name: name, Requested: dim}
	if dim <= 0 {
		return cs, s.fail("ensure_collection", name, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig))
	}

	if col := s.collection(name); col != nil {
		existing, source := s.detectDimension(ctx, name, col, dim)
		if source == DimensionUnknown && col.Count() == 0 {
			// Empty and unrecorded: adopt the requested size.
			s.dims.Store(name, knownDimension{size: dim, source: DimensionFromConfig})
			existing, source = dim, DimensionFromConfig
		}
		cs.Dimension = existing
		cs.Source = source
		// A non-empty collection no candidate size could read holds vectors of some
		// other size.
		cs.Mismatch = (existing > 0 && existing != dim) || (source == DimensionUnknown && col.Count() > 0)
		recordMismatch(name, cs.Mismatch)
		if cs.Mismatch {
			s.logger.Warn("collection dimension mismatch",
				zap.String("collection", name),
				zap.Int("collection_dim", existing),
				zap.Int("embedding_dim", dim),
				zap.String("source", string(source)))
		}
		span.SetStatus(codes.Ok, "exists")
		return cs, nil
	}

	_, err = s.db.CreateCollection(name, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return cs, s.fail("create_collection", name, err)
	}
	s.dims.Store(name, knownDimension{size: dim, source: DimensionFromConfig})
	cs.Created = true
	cs.Dimension = dim
	cs.Source = DimensionFromConfig
	recordMismatch(name, false)
	s.logger.Info("created collection", zap.String("collection", name), zap.Int("vector_size", dim))
	span.SetStatus(codes.Ok, "created")
	return cs, nil
}

// Upsert writes one document, replacing any existing document with the id.
func (s *ChromemStore) Upsert(ctx context.Context, collection, id string, payload Payload, vector []float32) (_ string, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	start := time.Now()
	defer func() { observe(providerChromem, "upsert", start, err) }()

	if id == "" {
		id = uuid.NewString()
	}
	span.SetAttributes(attribute.String("collection", collection), attribute.String("id", id))

	if len(vector) == 0 {
		return id, s.fail("upsert", collection, ErrEmptyVector)
	}
	col := s.collection(collection)
	if col == nil {
		return id, s.fail("upsert", collection, ErrCollectionNotFound)
	}

	body, err := normalizePayload(payload)
	if err != nil {
		return id, s.fail("upsert", collection, err)
	}
	body[idPayloadKey] = id
	raw, err := json.Marshal(body)
	if err != nil {
		return id, s.fail("upsert", collection, err)
	}
	content, _ := body["content"].(string)

	// chromem normalizes in place; keep the caller's slice intact.
	embedding := append([]float32(nil), vector...)
	err = col.AddDocuments(ctx, []chromem.Document{{
		ID:        id,
		Content:   content,
		Metadata:  map[string]string{metaPayload: string(raw)},
		Embedding: embedding,
	}}, 1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return id, s.fail("upsert", collection, err)
	}
	span.SetStatus(codes.Ok, "success")
	return id, nil
}

// Search returns the nearest documents by cosine similarity.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, topK int) (_ []Point, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("top_k", topK))

	start := time.Now()
	defer func() { observe(providerChromem, "search", start, err) }()

	if len(vector) == 0 {
		return nil, s.fail("search", collection, ErrEmptyVector)
	}
	col := s.collection(collection)
	if col == nil {
		return nil, s.fail("search", collection, ErrCollectionNotFound)
	}

	// chromem rejects nResults larger than the document count.
	n := min(topK, col.Count())
	if n <= 0 {
		return []Point{}, nil
	}
	query := append([]float32(nil), vector...)
	results, err := col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, s.fail("search", collection, err)
	}

	points := make([]Point, 0, len(results))
	for _, r := range results {
		points = append(points, Point{
			ID:      r.ID,
			Payload: s.decodePayload(r.ID, r.Content, r.Metadata),
			Score:   r.Similarity,
		})
	}
	span.SetAttributes(attribute.Int("results_count", len(points)))
	span.SetStatus(codes.Ok, "success")
	return points, nil
}

// ScrollAll returns every document. chromem has no cursor API, so the scan
// is one query with a unit vector sized to the collection.
func (s *ChromemStore) ScrollAll(ctx context.Context, collection string, batchSize int) (_ []Point, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.ScrollAll")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	start := time.Now()
	defer func() { observe(providerChromem, "scroll_all", start, err) }()

	col := s.collection(collection)
	if col == nil {
		return nil, s.fail("scroll", collection, ErrCollectionNotFound)
	}
	count := col.Count()
	if count == 0 {
		return []Point{}, nil
	}
	dim, _ := s.detectDimension(ctx, collection, col, 0)
	if dim == 0 {
		return nil, s.fail("scroll", collection, fmt.Errorf("collection dimension unknown"))
	}

	results, err := col.QueryEmbedding(ctx, unitVector(dim), count, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, s.fail("scroll", collection, err)
	}

	points := make([]Point, 0, len(results))
	for _, r := range results {
		points = append(points, Point{ID: r.ID, Payload: s.decodePayload(r.ID, r.Content, r.Metadata)})
	}
	scrolledPoints.WithLabelValues(providerChromem).Add(float64(len(points)))
	span.SetAttributes(attribute.Int("points", len(points)))
	span.SetStatus(codes.Ok, "success")
	return points, nil
}

func (s *ChromemStore) decodePayload(id, content string, meta map[string]string) Payload {
	payload := Payload{}
	if raw := meta[metaPayload]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			s.logger.Warn("undecodable payload", zap.String("id", id), zap.Error(err))
			payload = Payload{}
		}
	} else {
		for k, v := range meta {
			payload[k] = v
		}
	}
	if _, ok := payload["content"]; !ok && strings.TrimSpace(content) != "" {
		payload["content"] = content
	}
	return payload
}
