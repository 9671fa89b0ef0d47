package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/expmem/internal/logging"
)

func TestEvaluate(t *testing.T) {
	acted := Output{Action: "enter_hedge"}
	fallback := Output{Action: FallbackAction}
	yes := true

	tests := []struct {
		name     string
		out      Output
		feedback any
		want     bool
	}{
		{"bool false beats action", acted, false, false},
		{"bool true", fallback, true, true},
		{"bool pointer", fallback, &yes, true},
		{"positive int", fallback, 1, true},
		{"zero float", acted, 0.0, false},
		{"negative float", acted, -0.2, false},
		{"json number", fallback, json.Number("3"), true},
		{"map success false", acted, map[string]any{"success": false}, false},
		{"map success string", fallback, map[string]any{"success": "true"}, true},
		{"map success numeric", fallback, map[string]any{"success": 1}, true},
		{"typed map", acted, map[string]bool{"success": false}, false},
		{"map without success uses heuristic", acted, map[string]any{"note": "x"}, true},
		{"nil with action", acted, nil, true},
		{"nil with analyze", fallback, nil, false},
		{"nil with empty action", Output{}, nil, false},
		{"string feedback uses heuristic", acted, "great", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.out, tt.feedback))
		})
	}
}

type captureRecorder struct {
	mu   sync.Mutex
	recs []Record
	err  error
}

func (c *captureRecorder) RecordOutcome(_ context.Context, rec Record) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.recs = append(c.recs, rec)
	return fmt.Sprintf("rec-%d", len(c.recs)), nil
}

func TestLearner_ScoreAsymmetry(t *testing.T) {
	rec := &captureRecorder{}
	l := NewLearner(10, rec, nil)
	ctx := context.Background()
	out := Output{Action: "act_on_rule", Rules: []string{"dVIX >= 7"}}

	r1 := l.Learn(ctx, out, true)
	r2 := l.Learn(ctx, out, false)

	assert.Equal(t, Result{Status: "learned", Success: true, RecordID: "rec-1"}, r1)
	assert.False(t, r2.Success)
	assert.Equal(t, 0.5, l.Score("dVIX >= 7"))

	require.Len(t, rec.recs, 2)
	assert.Equal(t, Record{
		Type:    "feedback",
		Actor:   "Caia",
		Content: "decision result: success",
		Lesson:  "reinforce the success pattern",
		Rule:    "dVIX >= 7",
	}, rec.recs[0])
	assert.Equal(t, "decision result: failure", rec.recs[1].Content)
}

func TestLearner_RecorderFailureIsLogged(t *testing.T) {
	log := logging.NewTestLogger()
	l := NewLearner(10, &captureRecorder{err: errors.New("store down")}, log.Underlying())

	res := l.Learn(context.Background(), Output{Action: "act_on_rule", Rules: []string{"r"}}, nil)

	assert.True(t, res.Success)
	assert.Empty(t, res.RecordID)
	assert.Equal(t, 1.0, l.Score("r"))
	log.AssertLogged(t, zapcore.WarnLevel, "outcome record not persisted")
}

func TestLearner_MeasureGrowth(t *testing.T) {
	l := NewLearner(0, nil, nil)
	assert.Equal(t, 0.0, l.MeasureGrowth().RollingAccuracy)

	ctx := context.Background()
	for i := 0; i < 12; i++ {
		l.Learn(ctx, Output{Rules: []string{fmt.Sprintf("rule-%02d", i)}}, i%3 != 0)
	}

	g := l.MeasureGrowth()
	assert.Equal(t, 12, g.TotalDecisions)
	assert.Equal(t, 8, g.Success)
	assert.Equal(t, 4, g.Failure)
	assert.Equal(t, 0.667, g.RollingAccuracy)
	require.Len(t, g.TopRules, TopRulesInGrowth)
	assert.Equal(t, RuleScore{Rule: "rule-01", Score: 1}, g.TopRules[0])
	assert.Equal(t, -0.5, g.TopRules[9].Score)
}

func TestLearner_LedgerIsBounded(t *testing.T) {
	l := NewLearner(3, nil, nil)
	assert.Equal(t, NeutralSuccessRate, l.RecentSuccessRate())

	ctx := context.Background()
	for _, ok := range []bool{false, false, true, true, false} {
		l.Learn(ctx, Output{}, ok)
	}

	hist := l.History(0)
	require.Len(t, hist, 3)
	assert.Equal(t, []bool{true, true, false}, []bool{hist[0].Success, hist[1].Success, hist[2].Success})
	assert.InDelta(t, 2.0/3.0, l.RecentSuccessRate(), 1e-9)
	assert.Equal(t, 5, l.MeasureGrowth().TotalDecisions)
	assert.Equal(t, 3, l.MeasureGrowth().HistorySize)
}

func TestLearner_ConcurrentLearn(t *testing.T) {
	l := NewLearner(100, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Learn(context.Background(), Output{Rules: []string{"shared"}}, true)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50.0, l.Score("shared"))
}

func TestLearner_Reinforce(t *testing.T) {
	l := NewLearner(10, nil, nil)
	l.Reinforce("IF x THEN y", 1)
	l.Reinforce("", 5)
	assert.Equal(t, 1, l.RuleCount())
	assert.Equal(t, []RuleScore{{Rule: "IF x THEN y", Score: 1}}, l.TopRules(-1))
}
