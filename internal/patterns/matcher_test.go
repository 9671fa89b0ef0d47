package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/expmem/internal/reflection"
)

func candidate(id, rule, lesson string, score float64, scored bool) Candidate {
	return Candidate{
		ID:         id,
		Reflection: reflection.Reflection{Event: "e", Interpretation: "i", Lesson: lesson, Rule: rule},
		Score:      score,
		Scored:     scored,
	}
}

func TestMatchAll_Threshold(t *testing.T) {
	hedge := candidate("h", "dVIX >= 7", "hedge when volatility spikes", 0.4, true)
	plain := candidate("p", "dVIX >= 7", "watch closely", 0.3, true)

	got := MatchAll(SituationFromMap(map[string]any{"dVIX": 8.0}), []Candidate{hedge, plain})
	require.Len(t, got, 2)
	assert.Equal(t, ActionEnterHedge, got[0].Action)
	assert.Equal(t, "h", got[0].Candidate.ID)
	assert.Equal(t, ActionActOnRule, got[1].Action)

	got = MatchAll(SituationFromMap(map[string]any{"dVIX": 5.0}), []Candidate{hedge, plain})
	assert.Empty(t, got)
}

func TestMatchAll_ThresholdAcrossSignalSpellings(t *testing.T) {
	tests := []struct {
		name string
		rule string
		ctx  map[string]any
	}{
		{"bare rule, delta context", "IF VIX >= 7 THEN hedge", map[string]any{"dVIX": 8.0}},
		{"delta rule, bare context", "dVIX >= 7", map[string]any{"VIX": 8.0}},
		{"greek rule, lower-case context", "ΔVIX >= 7%", map[string]any{"vix": "8%"}},
		{"bare rule, greek context", "vix >= 7", map[string]any{"ΔVIX": 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate("v", tt.rule, "hedge when volatility spikes", 0.4, true)
			got := MatchAll(SituationFromMap(tt.ctx), []Candidate{c})
			require.Len(t, got, 1)
			assert.Equal(t, ActionEnterHedge, got[0].Action)
		})
	}
}

func TestSituation_SignalBaseNames(t *testing.T) {
	s := Situation{Signals: map[string]float64{"dVIX": 8, "drawdown": -2}}

	_, ok := s.Signal("rawdown")
	assert.False(t, ok)
	v, ok := s.Signal("drawdown")
	assert.True(t, ok)
	assert.Equal(t, -2.0, v)
	v, ok = s.Signal("VIX")
	assert.True(t, ok)
	assert.Equal(t, 8.0, v)
}

func TestMatchAll_ThresholdFallsThroughToKeyword(t *testing.T) {
	c := candidate("k", "IF dVIX >= 7 THEN hedge_portfolio", "", 0.2, true)
	s := SituationFromMap(map[string]any{"dVIX": "5", "content": "should we hedge the portfolio"})

	got := MatchAll(s, []Candidate{c})
	require.Len(t, got, 1)
	assert.Equal(t, ActionKeyword, got[0].Action)
}

func TestMatchAll_Precedence(t *testing.T) {
	tests := []struct {
		name string
		ctx  map[string]any
		c    Candidate
		want Action
	}{
		{
			name: "threshold beats type",
			ctx:  map[string]any{"type": "error", "errors": 5},
			c:    candidate("1", "IF errors > 3 THEN error_escalate", "", 0.9, true),
			want: ActionActOnRule,
		},
		{
			name: "type containment",
			ctx:  map[string]any{"type": "Error"},
			c:    candidate("2", reflection.RuleError, "", 0.9, true),
			want: ActionTypeSpecific,
		},
		{
			name: "keyword overlap",
			ctx:  map[string]any{"content": "time to recover the service"},
			c:    candidate("3", reflection.RuleError, "", 0.1, true),
			want: ActionKeyword,
		},
		{
			name: "similarity fallback",
			ctx:  map[string]any{},
			c:    candidate("4", reflection.RuleDefault, "", 0.71, true),
			want: ActionSimilar,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchAll(SituationFromMap(tt.ctx), []Candidate{tt.c})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Action)
			assert.Equal(t, tt.c.Reflection.Rule, got[0].Rule)
		})
	}
}

func TestMatchAll_Drops(t *testing.T) {
	cands := []Candidate{
		// similarity at the threshold is not enough
		candidate("a", reflection.RuleDefault, "", 0.7, true),
		// unscored candidates never take the similarity path
		candidate("b", reflection.RuleDefault, "", 0, false),
		// decision template does not carry the similar-context trigger
		candidate("c", reflection.RuleDecision, "", 0.95, true),
	}
	assert.Empty(t, MatchAll(SituationFromMap(nil), cands))
}

func TestMatchAll_OrderingAndDefaultConfidence(t *testing.T) {
	s := SituationFromMap(map[string]any{"type": "feedback"})
	cands := []Candidate{
		candidate("low", reflection.RuleFeedback, "", 0.2, true),
		candidate("none", reflection.RuleFeedback, "", 0, false),
		candidate("high", reflection.RuleFeedback, "", 0.9, true),
	}

	got := MatchAll(s, cands)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"high", "none", "low"}, []string{got[0].Candidate.ID, got[1].Candidate.ID, got[2].Candidate.ID})
	assert.Equal(t, DefaultConfidence, got[1].Confidence)
}

func TestTokenize(t *testing.T) {
	got := Tokenize("IF error_detected THEN analyze_and_recover, ok?")
	assert.Equal(t, map[string]bool{
		"error": true, "detected": true, "analyze": true, "recover": true,
	}, got)
	assert.Empty(t, Tokenize(""))
}

func TestSituationFromMap(t *testing.T) {
	s := SituationFromMap(map[string]any{
		"type":    "decision",
		"content": "pick a hedge",
		"ΔVIX":    "7.5%",
		"count":   3,
		"flag":    true,
		"nested":  map[string]any{"x": 1},
	})
	assert.Equal(t, "decision", s.Type)
	assert.Equal(t, "pick a hedge", s.Content)
	assert.Equal(t, map[string]float64{"dVIX": 7.5, "count": 3}, s.Signals)

	v, ok := s.Signal("DVIX")
	assert.True(t, ok)
	assert.Equal(t, 7.5, v)
}
