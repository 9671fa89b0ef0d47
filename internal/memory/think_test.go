package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/expmem/internal/patterns"
	"github.com/fyrsmithlabs/expmem/internal/reflection"
	"github.com/fyrsmithlabs/expmem/internal/vectorstore"
	"github.com/fyrsmithlabs/expmem/internal/wisdom"
)

func TestThink_ThresholdHedge(t *testing.T) {
	f := newFixture(t)
	saved := f.save(t, Experience{
		Content: "VIX jumped after the rate decision",
		Reflection: &reflection.Reflection{
			Event:          "volatility spike",
			Interpretation: "risk regime changed",
			Lesson:         "hedge early when volatility jumps",
			Rule:           hedgeRule,
		},
	})

	res, err := f.svc.Think(context.Background(), "volatility spike", map[string]any{"dVIX": "6.2%"}, 5)
	require.NoError(t, err)

	require.Len(t, res.Patterns, 1)
	assert.Equal(t, patterns.ActionEnterHedge, res.Decision.Action)
	assert.Equal(t, hedgeRule, res.Patterns[0].Rule)
	assert.Equal(t, saved.ID, res.Patterns[0].Memory.ID)
	assert.Equal(t, []string{"hedge early when volatility jumps"}, res.Decision.Reasons)
	assert.Equal(t, res.RelevantMemories[0].Score, res.Decision.Confidence)

	assert.Equal(t, []string{saved.ID}, res.Wisdom.EvidenceIDs)
	assert.Contains(t, res.Wisdom.Principle, "Lessons: hedge early when volatility jumps")
	assert.Equal(t, []string{hedgeRule}, res.Wisdom.ApplicableRules)
}

func TestThink_ThresholdNotMet(t *testing.T) {
	f := newFixture(t)
	f.save(t, Experience{
		Content:    "VIX jumped",
		Reflection: &reflection.Reflection{Lesson: "hedge early", Rule: hedgeRule},
	})

	res, err := f.svc.Think(context.Background(), "VIX jumped", map[string]any{"dVIX": 3.0}, 5)
	require.NoError(t, err)
	assert.Empty(t, res.Patterns)
	assert.Equal(t, patterns.ActionAnalyze, res.Decision.Action)
	assert.Greater(t, res.Decision.Confidence, 0.0, "confidence still reflects the best recall")
	assert.Empty(t, res.Decision.Reasons)
	assert.Equal(t, "", res.Wisdom.Principle)
	assert.NotNil(t, res.Wisdom.EvidenceIDs)
}

func TestThink_MatchKinds(t *testing.T) {
	tests := []struct {
		name string
		tctx map[string]any
		want patterns.Action
	}{
		{"type containment", map[string]any{"type": "error"}, patterns.ActionTypeSpecific},
		{"keyword overlap", map[string]any{"content": "an error was detected in billing"}, patterns.ActionKeyword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			saved := f.save(t, Experience{Content: "api crash in production"})
			require.Equal(t, reflection.RuleError, saved.Reflection.Rule)

			res, err := f.svc.Think(context.Background(), "api crash", tt.tctx, 5)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Decision.Action)
		})
	}
}

func TestThink_SimilarContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	query := "weekly sync notes"
	vec, err := f.embedder.EmbedQuery(ctx, query)
	require.NoError(t, err)
	f.store.Seed(testCollection, "similar-1", vectorstore.Payload{
		"content": "weekly sync notes",
		"ersp":    map[string]any{"if_then": reflection.RuleDefault},
	}, vec)

	res, err := f.svc.Think(ctx, query, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, patterns.ActionSimilar, res.Decision.Action)
	assert.InDelta(t, 1.0, res.Decision.Confidence, 1e-5)
}

func TestThink_DegradedStore(t *testing.T) {
	f := newFixture(t)
	f.save(t, Experience{Content: "VIX jumped", Reflection: &reflection.Reflection{Rule: hedgeRule}})
	f.store.FailOn("search", true)

	res, err := f.svc.Think(context.Background(), "VIX jumped", map[string]any{"dVIX": 9}, 5)
	require.NoError(t, err)
	assert.Empty(t, res.RelevantMemories)
	assert.Empty(t, res.Patterns)
	assert.Equal(t, patterns.ActionAnalyze, res.Decision.Action)
	assert.Equal(t, 0.0, res.Decision.Confidence)
	assert.Equal(t, wisdom.Summary{EvidenceIDs: []string{}, ApplicableRules: []string{}}, res.Wisdom)
}

func TestThink_EmptyQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Think(context.Background(), "", nil, 5)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestThink_QueryEnrichment(t *testing.T) {
	tests := []struct {
		name string
		ersp any
		want string
	}{
		{
			name: "bundle",
			ersp: Bundle{Integrated: true, ActiveLessons: []string{"l1", "l2", "l3"}},
			want: "what now [Lessons: l1, l2]",
		},
		{
			name: "decoded json",
			ersp: map[string]any{"integrated": true, "active_lessons": []any{"only one"}},
			want: "what now [Lessons: only one]",
		},
		{
			name: "not integrated",
			ersp: Bundle{Reason: "no memories"},
			want: "what now",
		},
		{
			name: "unrelated value",
			ersp: "nope",
			want: "what now",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.svc.Think(context.Background(), "what now", map[string]any{"ersp": tt.ersp}, 5)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Query)
		})
	}
}

func TestThink_EnrichesFromSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, Experience{Content: "deploy failed on friday", Reflection: &reflection.Reflection{Lesson: "avoid friday deploys"}})

	start, err := f.svc.InitializeSession(ctx, "chat-1")
	require.NoError(t, err)
	require.True(t, start.ERSPContext.Integrated)

	res, err := f.svc.Think(ctx, "plan the release", map[string]any{"chat_id": "chat-1"}, 5)
	require.NoError(t, err)
	assert.Equal(t, "plan the release [Lessons: avoid friday deploys]", res.Query)
}

func TestThinkResult_Output(t *testing.T) {
	res := ThinkResult{
		Decision: Decision{Action: patterns.ActionKeyword},
		Patterns: []PatternMatch{{Rule: "IF a THEN b"}, {Rule: "IF c THEN d"}},
	}
	out := res.Output()
	assert.Equal(t, "apply_keyword_pattern", out.Action)
	assert.Equal(t, []string{"IF a THEN b", "IF c THEN d"}, out.Rules)
}
