package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/expmem/internal/learning"
	"github.com/fyrsmithlabs/expmem/internal/patterns"
	"github.com/fyrsmithlabs/expmem/internal/wisdom"
)

const enrichLessons = 2

// PatternMatch is a matched rule with the record it came from.
type PatternMatch struct {
	Rule       string          `json:"rule"`
	Action     patterns.Action `json:"action"`
	Confidence float64         `json:"confidence"`
	Memory     Record          `json:"memory"`
}

// Decision is think's recommendation.
type Decision struct {
	Action     patterns.Action `json:"action"`
	Confidence float64         `json:"confidence"`
	Reasons    []string        `json:"reasons"`
}

// ThinkResult is the full pipeline output.
type ThinkResult struct {
	Query            string         `json:"query"`
	Context          map[string]any `json:"context"`
	RelevantMemories []Record       `json:"relevant_memories"`
	Patterns         []PatternMatch `json:"patterns"`
	Wisdom           wisdom.Summary `json:"wisdom"`
	Decision         Decision       `json:"decision"`
	Timestamp        time.Time      `json:"timestamp"`
}

// Output converts the result into what the learner scores.
func (r ThinkResult) Output() learning.Output {
	out := learning.Output{Action: string(r.Decision.Action)}
	for _, p := range r.Patterns {
		out.Rules = append(out.Rules, p.Rule)
	}
	return out
}

// Think recalls memories for query, matches their rules against the
// context, compresses the matches and picks an action. With no memories
// or no match the action is "analyze".
func (s *Service) Think(ctx context.Context, query string, tctx map[string]any, topK int) (ThinkResult, error) {
	ctx, span := tracer.Start(ctx, "memory.Think")
	defer span.End()

	if query == "" {
		return ThinkResult{}, ErrEmptyQuery
	}
	if tctx == nil {
		tctx = map[string]any{}
	}

	bundle, ok := BundleFromContext(tctx["ersp"])
	if !ok {
		if chatID, _ := tctx["chat_id"].(string); chatID != "" {
			if sess, found := s.sessions.Get(chatID); found {
				bundle, ok = BundleFromContext(sess.Context["ersp"])
			}
		}
	}
	if ok && bundle.Integrated && len(bundle.ActiveLessons) > 0 {
		query = fmt.Sprintf("%s [Lessons: %s]", query, strings.Join(head(bundle.ActiveLessons, enrichLessons), ", "))
	}

	relevant, err := s.Recall(ctx, query, topK, tctx)
	if err != nil {
		return ThinkResult{}, err
	}

	byID := make(map[string]Record, len(relevant))
	candidates := make([]patterns.Candidate, 0, len(relevant))
	for i, r := range relevant {
		key := r.ID
		if key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		byID[key] = r
		candidates = append(candidates, patterns.Candidate{
			ID:         key,
			Reflection: r.Reflection,
			Score:      r.Score,
			Scored:     r.Scored,
		})
	}
	matches := patterns.MatchAll(patterns.SituationFromMap(tctx), candidates)

	res := ThinkResult{
		Query:            query,
		Context:          tctx,
		RelevantMemories: relevant,
		Patterns:         make([]PatternMatch, 0, len(matches)),
		Wisdom:           wisdom.Summary{EvidenceIDs: []string{}, ApplicableRules: []string{}},
		Decision:         Decision{Action: patterns.ActionAnalyze, Reasons: []string{}},
		Timestamp:        s.now().UTC(),
	}
	if len(relevant) > 0 {
		res.Decision.Confidence = relevant[0].Score
	}

	evidence := make([]wisdom.Evidence, 0, len(matches))
	for _, m := range matches {
		rec := byID[m.Candidate.ID]
		res.Patterns = append(res.Patterns, PatternMatch{
			Rule:       m.Rule,
			Action:     m.Action,
			Confidence: m.Confidence,
			Memory:     rec,
		})
		evidence = append(evidence, wisdom.Evidence{
			ID:         rec.ID,
			Reflection: rec.Reflection,
			Score:      rec.Score,
			Scored:     rec.Scored,
		})
		if rec.Reflection.Lesson != "" {
			res.Decision.Reasons = append(res.Decision.Reasons, rec.Reflection.Lesson)
		}
	}
	if len(matches) > 0 {
		res.Decision.Action = matches[0].Action
		res.Wisdom = wisdom.Compress(evidence)
	}

	span.SetAttributes(
		attribute.Int("relevant", len(relevant)),
		attribute.Int("matches", len(matches)),
		attribute.String("action", string(res.Decision.Action)))
	s.logger.Debug("think completed",
		zap.Int("relevant", len(relevant)),
		zap.Int("matches", len(matches)),
		zap.String("action", string(res.Decision.Action)))
	return res, nil
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
