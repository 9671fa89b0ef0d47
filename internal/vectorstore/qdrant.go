package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const providerQdrant = "qdrant"

var tracer = otel.Tracer("expmem.vectorstore.qdrant")

// idPayloadKey keeps the caller's id when it is not a valid Qdrant UUID.
const idPayloadKey = "id"

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost".
	Host string

	// Port is the gRPC port (not the 6333 REST port). Default: 6334.
	Port int

	UseTLS bool
	APIKey string

	// RequestTimeout bounds every individual call. Default: 10s.
	RequestTimeout time.Duration

	// MaxMessageSize is the gRPC message cap. Default: 50MB.
	MaxMessageSize int

	// ScrollMaxPages is the page budget for ScrollAll. Default: 10000.
	ScrollMaxPages int

	// Distance is the similarity metric for new collections. Default: Cosine.
	Distance qdrant.Distance
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.ScrollMaxPages == 0 {
		c.ScrollMaxPages = 10000
	}
	if c.Distance == qdrant.Distance_UnknownDistance {
		c.Distance = qdrant.Distance_Cosine
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// qdrantAPI is the subset of *qdrant.Client the store calls.
type qdrantAPI interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	ScrollAndOffset(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Close() error
}

// QdrantStore is a Store backed by Qdrant's native gRPC client.
type QdrantStore struct {
	client qdrantAPI
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore dials Qdrant and performs a health check. A failed health
// check is a startup error.
func NewQdrantStore(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, TLS disabled", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := newQdrantStoreWithClient(client, config, logger)

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}
	return store, nil
}

func newQdrantStoreWithClient(client qdrantAPI, config QdrantConfig, logger *zap.Logger) *QdrantStore {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QdrantStore{client: client, config: config, logger: logger}
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStore) fail(op, collection string, err error) error {
	return &CollaboratorError{Provider: providerQdrant, Op: op, Collection: collection, Err: err}
}

// CollectionDimension returns the configured or observed vector size.
func (s *QdrantStore) CollectionDimension(ctx context.Context, name string) (int, error) {
	dim, _, exists, err := s.detectDimension(ctx, name)
	if err != nil || !exists {
		return 0, err
	}
	return dim, nil
}

// detectDimension reads the collection config first and falls back to the
// length of one stored vector.
func (s *QdrantStore) detectDimension(ctx context.Context, name string) (int, DimensionSource, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	info, err := s.client.GetCollectionInfo(cctx, name)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == grpccodes.NotFound {
			return 0, DimensionUnknown, false, nil
		}
		return 0, DimensionUnknown, false, s.fail("collection_info", name, err)
	}

	if size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(); size > 0 {
		return int(size), DimensionFromConfig, true, nil
	}

	points, err := s.client.Scroll(cctx, &qdrant.ScrollPoints{
		CollectionName: name,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(false),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		s.logger.Warn("probing stored vector failed", zap.String("collection", name), zap.Error(err))
		return 0, DimensionUnknown, true, nil
	}
	if len(points) > 0 {
		if n := len(points[0].GetVectors().GetVector().GetData()); n > 0 {
			return n, DimensionFromVector, true, nil
		}
	}
	return 0, DimensionUnknown, true, nil
}

// EnsureCollection creates the collection or reports its dimensionality.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dim int) (cs CollectionStatus, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("vector_size", dim))

	start := time.Now()
	defer func() { observe(providerQdrant, "ensure_collection", start, err) }()

	cs = CollectionStatus{Name: name, Requested: dim}
	if dim <= 0 {
		return cs, s.fail("ensure_collection", name, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig))
	}

	existing, source, exists, err := s.detectDimension(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return cs, err
	}

	if !exists {
		cctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
		err = s.client.CreateCollection(cctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: s.config.Distance,
			}),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return cs, s.fail("create_collection", name, err)
		}
		cs.Created = true
		cs.Dimension = dim
		cs.Source = DimensionFromConfig
		recordMismatch(name, false)
		s.logger.Info("created collection", zap.String("collection", name), zap.Int("vector_size", dim))
		span.SetStatus(codes.Ok, "created")
		return cs, nil
	}

	cs.Dimension = existing
	cs.Source = source
	cs.Mismatch = existing > 0 && existing != dim
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

// Upsert writes one point.
func (s *QdrantStore) Upsert(ctx context.Context, collection, id string, payload Payload, vector []float32) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()

	start := time.Now()
	defer func() { observe(providerQdrant, "upsert", start, err) }()

	if id == "" {
		id = uuid.NewString()
	}
	span.SetAttributes(attribute.String("collection", collection), attribute.String("id", id))

	if len(vector) == 0 {
		return id, s.fail("upsert", collection, ErrEmptyVector)
	}

	body, err := normalizePayload(payload)
	if err != nil {
		return id, s.fail("upsert", collection, err)
	}
	body[idPayloadKey] = id

	values, err := qdrant.TryValueMap(body)
	if err != nil {
		return id, s.fail("upsert", collection, fmt.Errorf("converting payload: %w", err))
	}

	cctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	_, err = s.client.Upsert(cctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      pointID(id),
			Vectors: qdrant.NewVectors(vector...),
			Payload: values,
		}},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return id, s.fail("upsert", collection, err)
	}
	span.SetStatus(codes.Ok, "success")
	return id, nil
}

// Search queries nearest points.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, topK int) (_ []Point, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("top_k", topK))

	start := time.Now()
	defer func() { observe(providerQdrant, "search", start, err) }()

	if len(vector) == 0 {
		return nil, s.fail("search", collection, ErrEmptyVector)
	}
	if topK <= 0 {
		return []Point{}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	scored, err := s.client.Query(cctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, s.fail("search", collection, err)
	}

	points := make([]Point, 0, len(scored))
	for _, sp := range scored {
		payload := fromValueMap(sp.GetPayload())
		points = append(points, Point{
			ID:      resolveID(sp.GetId(), payload),
			Payload: payload,
			Score:   sp.GetScore(),
		})
	}
	span.SetAttributes(attribute.Int("results_count", len(points)))
	span.SetStatus(codes.Ok, "success")
	return points, nil
}

// ScrollAll pages through the collection without vectors.
func (s *QdrantStore) ScrollAll(ctx context.Context, collection string, batchSize int) (_ []Point, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.ScrollAll")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("batch_size", batchSize))

	start := time.Now()
	defer func() { observe(providerQdrant, "scroll_all", start, err) }()

	if batchSize <= 0 {
		batchSize = 100
	}

	var (
		out    []Point
		offset *qdrant.PointId
		seen   = map[string]bool{}
	)
	for page := 0; page < s.config.ScrollMaxPages; page++ {
		cctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		points, next, err := s.client.ScrollAndOffset(cctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(batchSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		cancel()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, s.fail("scroll", collection, err)
		}
		if len(points) == 0 {
			break
		}
		for _, rp := range points {
			payload := fromValueMap(rp.GetPayload())
			out = append(out, Point{ID: resolveID(rp.GetId(), payload), Payload: payload})
		}
		if next == nil {
			break
		}
		key := pointIDString(next)
		if seen[key] {
			s.logger.Warn("scroll cursor repeated, stopping", zap.String("collection", collection), zap.String("offset", key))
			break
		}
		seen[key] = true
		offset = next
	}

	scrolledPoints.WithLabelValues(providerQdrant).Add(float64(len(out)))
	span.SetAttributes(attribute.Int("points", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// pointID maps an arbitrary id onto a Qdrant UUID. Non-UUID ids get a
// stable name-based UUID; the original stays in the payload.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func pointIDString(id *qdrant.PointId) string {
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return strconv.FormatUint(v.Num, 10)
	}
	return ""
}

func resolveID(id *qdrant.PointId, payload Payload) string {
	if s, ok := payload[idPayloadKey].(string); ok && s != "" {
		return s
	}
	return pointIDString(id)
}

func fromValueMap(m map[string]*qdrant.Value) Payload {
	out := make(Payload, len(m))
	for k, v := range m {
		out[k] = fromValue(v)
	}
	return out
}

func fromValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		fields := kind.StructValue.GetFields()
		m := make(map[string]any, len(fields))
		for k, fv := range fields {
			m[k] = fromValue(fv)
		}
		return m
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		list := make([]any, len(items))
		for i, iv := range items {
			list[i] = fromValue(iv)
		}
		return list
	}
	return nil
}
