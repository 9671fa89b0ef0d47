package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/expmem/internal/embeddings"
	"github.com/fyrsmithlabs/expmem/internal/learning"
	"github.com/fyrsmithlabs/expmem/internal/reflection"
	"github.com/fyrsmithlabs/expmem/internal/session"
	"github.com/fyrsmithlabs/expmem/internal/vectorstore"
	"github.com/fyrsmithlabs/expmem/internal/wisdom"
)

var tracer = otel.Tracer("expmem.memory")

const (
	// DefaultRecallTopK is used when a caller passes no top_k.
	DefaultRecallTopK = 5
	// DefaultSessionRecallTopK is the forced recall size on session start.
	DefaultSessionRecallTopK = 30
	// DefaultScrollBatch is the preload page size.
	DefaultScrollBatch = 100

	// GrowthScore is the wisdom score given to a lesson learned by Grow.
	GrowthScore = 1.0
)

// ErrEmptyQuery is returned for a blank recall or think query.
var ErrEmptyQuery = errors.New("query cannot be empty")

// ErrInvalidExperience is returned when an experience has no content.
var ErrInvalidExperience = errors.New("experience content is required")

// Options configures a Service.
type Options struct {
	Collection        string
	RecallTopK        int
	SessionRecallTopK int
	ScrollBatch       int
}

func (o *Options) applyDefaults() {
	if o.RecallTopK <= 0 {
		o.RecallTopK = DefaultRecallTopK
	}
	if o.SessionRecallTopK <= 0 {
		o.SessionRecallTopK = DefaultSessionRecallTopK
	}
	if o.ScrollBatch <= 0 {
		o.ScrollBatch = DefaultScrollBatch
	}
}

// Deps are the collaborators and state holders a Service uses. Store and
// Embedder are required; the rest default to fresh in-process instances.
type Deps struct {
	Store    vectorstore.Store
	Embedder embeddings.Embedder
	Learner  *learning.Learner
	Wisdom   *wisdom.Base
	Sessions *session.Manager
	Identity *session.IdentityGuard
	Sentinel *session.Sentinel
	Mailbox  *session.Mailbox
	Logger   *zap.Logger
}

// Service is the Memory Session: the single owner of process-wide memory
// state, shared by every request.
type Service struct {
	opts     Options
	store    vectorstore.Store
	embedder embeddings.Embedder
	learner  *learning.Learner
	wisdom   *wisdom.Base
	sessions *session.Manager
	identity *session.IdentityGuard
	sentinel *session.Sentinel
	mailbox  *session.Mailbox
	logger   *zap.Logger

	mu             sync.RWMutex
	records        []Record
	lastReflection time.Time
	now            func() time.Time
}

// NewService wires a Service. The learner's outcome records are saved
// through the service itself.
func NewService(opts Options, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if opts.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	opts.applyDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		opts:     opts,
		store:    deps.Store,
		embedder: deps.Embedder,
		learner:  deps.Learner,
		wisdom:   deps.Wisdom,
		sessions: deps.Sessions,
		identity: deps.Identity,
		sentinel: deps.Sentinel,
		mailbox:  deps.Mailbox,
		logger:   logger,
		now:      time.Now,
	}
	if s.learner == nil {
		s.learner = learning.NewLearner(learning.DefaultHistoryCap, nil, logger)
	}
	if s.wisdom == nil {
		s.wisdom = wisdom.NewBase(wisdom.DefaultCap)
	}
	if s.sessions == nil {
		s.sessions = session.NewManager(session.DefaultInactivityWindow, logger)
	}
	if s.identity == nil {
		s.identity = session.NewIdentityGuard("Caia", nil, session.DefaultMaxDrift, logger)
	}
	if s.sentinel == nil {
		s.sentinel = session.NewSentinel()
	}
	if s.mailbox == nil {
		s.mailbox = session.NewMailbox(session.NewMemoryMailStore(), logger)
	}
	s.learner.SetRecorder(learning.RecorderFunc(s.saveOutcome))
	return s, nil
}

// Preload fills the record cache from the store. A failed scan is logged
// and leaves the cache empty.
func (s *Service) Preload(ctx context.Context) int {
	ctx, span := tracer.Start(ctx, "memory.Preload")
	defer span.End()

	points, err := s.store.ScrollAll(ctx, s.opts.Collection, s.opts.ScrollBatch)
	if err != nil {
		s.degraded(ctx, "preload", err)
		span.RecordError(err)
		return 0
	}
	records := make([]Record, 0, len(points))
	for _, p := range points {
		records = append(records, recordFromPoint(p, false))
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("records", len(records)))
	s.logger.Info("preloaded memories",
		zap.String("collection", s.opts.Collection),
		zap.Int("count", len(records)))
	return len(records)
}

// MemoryCount returns the number of cached records.
func (s *Service) MemoryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// SaveResult is returned by Save.
type SaveResult struct {
	ID         string                `json:"id"`
	Reflection reflection.Reflection `json:"reflection"`
}

// Save stores one experience with a complete reflection. The reflection is
// returned even when the store write fails.
func (s *Service) Save(ctx context.Context, exp Experience) (SaveResult, error) {
	ctx, span := tracer.Start(ctx, "memory.Save")
	defer span.End()

	if exp.Content == "" {
		return SaveResult{}, ErrInvalidExperience
	}

	in := reflection.Experience{Content: exp.Content, Type: exp.Type()}
	if exp.Reflection != nil {
		in.Event = exp.Reflection.Event
		in.Interpretation = exp.Reflection.Interpretation
		in.Lesson = exp.Reflection.Lesson
		in.Rule = exp.Reflection.Rule
	}
	rec := Record{
		Content:    exp.Content,
		Reflection: reflection.Extract(in),
		Tags:       copyTags(exp.Tags),
		UpdatedAt:  s.now().UTC(),
	}
	res := SaveResult{Reflection: rec.Reflection}

	vecs, err := s.embedder.EmbedDocuments(ctx, []string{embeddingText(rec.Content, rec.Reflection)})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return res, fmt.Errorf("embedding experience: %w", err)
	}
	if len(vecs) != 1 {
		return res, fmt.Errorf("embedding experience: got %d vectors", len(vecs))
	}

	id, err := s.store.Upsert(ctx, s.opts.Collection, "", rec.payload(), vecs[0])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return res, fmt.Errorf("saving experience: %w", err)
	}
	rec.ID = id
	res.ID = id

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()

	if rec.Reflection.Lesson != "" {
		if _, err := s.mailbox.Send(ctx, session.LearningEngine, rec.Reflection.Lesson, session.MailLesson); err != nil {
			s.logger.Warn("lesson mail not sent", zap.String("id", id), zap.Error(err))
		}
	}

	span.SetAttributes(attribute.String("id", id))
	s.logger.Debug("experience saved", zap.String("id", id), zap.String("type", exp.Type()))
	return res, nil
}

func copyTags(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GrowResult is returned by Grow.
type GrowResult struct {
	Status      string     `json:"status"`
	Saved       SaveResult `json:"saved"`
	LessonAdded bool       `json:"lesson_added"`
}

// Grow saves an experience and credits what it taught: its rule gains a
// point and its lesson joins the Wisdom Base.
func (s *Service) Grow(ctx context.Context, exp Experience) (GrowResult, error) {
	saved, err := s.Save(ctx, exp)
	if err != nil {
		return GrowResult{Saved: saved}, err
	}
	s.learner.Reinforce(saved.Reflection.Rule, learning.SuccessDelta)
	s.wisdom.Append(wisdom.Entry{
		Lesson:   saved.Reflection.Lesson,
		SourceID: saved.ID,
		Score:    GrowthScore,
	})
	return GrowResult{Status: "grown", Saved: saved, LessonAdded: true}, nil
}

// saveOutcome persists a learner outcome as a new experience.
func (s *Service) saveOutcome(ctx context.Context, rec learning.Record) (string, error) {
	res, err := s.Save(ctx, Experience{
		Content: rec.Content,
		Tags:    map[string]any{keyType: rec.Type, keyActor: rec.Actor},
		Reflection: &reflection.Reflection{
			Lesson: rec.Lesson,
			Rule:   rec.Rule,
		},
	})
	return res.ID, err
}

// Recall returns up to topK records similar to query, each with a complete
// reflection and its similarity score. A context carrying "chat_id"
// refreshes that session first. Store or embedding failures yield an empty
// list.
func (s *Service) Recall(ctx context.Context, query string, topK int, rctx map[string]any) ([]Record, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if chatID, _ := rctx["chat_id"].(string); chatID != "" {
		s.sessions.Restore(chatID)
	}
	records, err := s.search(ctx, query, topK)
	if err != nil {
		s.degraded(ctx, "recall", err)
		return []Record{}, nil
	}
	return records, nil
}

func (s *Service) search(ctx context.Context, query string, topK int) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "memory.search")
	defer span.End()

	if topK <= 0 {
		topK = s.opts.RecallTopK
	}
	span.SetAttributes(attribute.Int("top_k", topK))

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	points, err := s.store.Search(ctx, s.opts.Collection, vec, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}

	records := make([]Record, 0, len(points))
	for _, p := range points {
		records = append(records, recordFromPoint(p, true))
	}
	span.SetAttributes(attribute.Int("results", len(records)))
	return records, nil
}

func (s *Service) degraded(ctx context.Context, op string, err error) {
	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	var ce *vectorstore.CollaboratorError
	if errors.As(err, &ce) {
		fields = append(fields, zap.String("provider", ce.Provider), zap.String("store_op", ce.Op))
	}
	if ctx.Err() != nil {
		fields = append(fields, zap.NamedError("context", ctx.Err()))
	}
	degradedOps.WithLabelValues(op).Inc()
	s.logger.Warn("memory degraded to empty result", fields...)
}

// RecordOutcome feeds a decision outcome to the learner. input is kept for
// the caller's audit trail and does not affect scoring.
func (s *Service) RecordOutcome(ctx context.Context, input map[string]any, out learning.Output, feedback any) learning.Result {
	ctx, span := tracer.Start(ctx, "memory.RecordOutcome")
	defer span.End()

	res := s.learner.Learn(ctx, out, feedback)
	span.SetAttributes(attribute.Bool("success", res.Success), attribute.Int("rules", len(out.Rules)))
	s.logger.Debug("outcome recorded",
		zap.Bool("success", res.Success),
		zap.String("action", out.Action),
		zap.Int("input_keys", len(input)))
	return res
}

// MeasureGrowth reports the learner's totals and top rules.
func (s *Service) MeasureGrowth() learning.Growth {
	return s.learner.MeasureGrowth()
}

// SelfReflection is the result of Reflect.
type SelfReflection struct {
	TopLessons     []string             `json:"top_lessons"`
	TopPatterns    []learning.RuleScore `json:"top_patterns"`
	PatternCount   int                  `json:"pattern_count"`
	WisdomCount    int                  `json:"wisdom_count"`
	LastReflection time.Time            `json:"last_reflection"`
}

// Reflect summarizes the best lessons and rules learned so far.
func (s *Service) Reflect() SelfReflection {
	now := s.now().UTC()
	s.mu.Lock()
	s.lastReflection = now
	s.mu.Unlock()

	return SelfReflection{
		TopLessons:     s.wisdom.TopLessons(5),
		TopPatterns:    s.learner.TopRules(learning.TopRulesInGrowth),
		PatternCount:   s.learner.RuleCount(),
		WisdomCount:    s.wisdom.Len(),
		LastReflection: now,
	}
}

// DeliverMail puts inbound mail in the inbox for the next session start.
func (s *Service) DeliverMail(ctx context.Context, m session.Mail) (session.Mail, error) {
	return s.mailbox.Deliver(ctx, m)
}

// Sentinel returns the last sentinel report after recomputing it.
func (s *Service) Sentinel() session.Report {
	return s.updateSentinel()
}

func (s *Service) updateSentinel() session.Report {
	return s.sentinel.Update(s.MemoryCount(), s.learner.RuleCount(), s.learner.RecentSuccessRate())
}

// Close releases the mailbox.
func (s *Service) Close() error {
	return s.mailbox.Close()
}
