package learning

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// SuccessDelta is added to a rule's score when it helped.
	SuccessDelta = 1.0
	// FailureDelta is added to a rule's score when it did not.
	FailureDelta = -0.5

	// TopRulesInGrowth is how many rules MeasureGrowth reports.
	TopRulesInGrowth = 10

	// RecentWindow is how many ledger entries the recent success rate uses.
	RecentWindow = 100

	recordActor = "Caia"
	recordType  = "feedback"
)

// Record is the experience the learner persists for every outcome.
type Record struct {
	Type    string
	Actor   string
	Content string
	Lesson  string
	Rule    string
}

// Recorder persists outcome records as new experiences.
type Recorder interface {
	RecordOutcome(ctx context.Context, rec Record) (string, error)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, rec Record) (string, error)

// RecordOutcome calls f.
func (f RecorderFunc) RecordOutcome(ctx context.Context, rec Record) (string, error) {
	return f(ctx, rec)
}

// Result is returned by Learn.
type Result struct {
	Status   string `json:"status"`
	Success  bool   `json:"success"`
	RecordID string `json:"record_id,omitempty"`
}

// RuleScore pairs a rule with its score.
type RuleScore struct {
	Rule  string  `json:"rule"`
	Score float64 `json:"score"`
}

// Growth is the read-only report from MeasureGrowth.
type Growth struct {
	TotalDecisions  int         `json:"total_decisions"`
	Success         int         `json:"success"`
	Failure         int         `json:"failure"`
	RollingAccuracy float64     `json:"rolling_accuracy"`
	TopRules        []RuleScore `json:"pattern_scores"`
	HistorySize     int         `json:"history_size"`
}

// Learner owns the rule score map and the decision ledger. Safe for
// concurrent use; the recorder is called without holding the lock.
type Learner struct {
	mu      sync.Mutex
	scores  map[string]float64
	total   int
	success int
	failure int
	history *ledger

	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewLearner returns a Learner with a ledger of historyCap entries.
// recorder may be nil, in which case outcomes are not persisted.
func NewLearner(historyCap int, recorder Recorder, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learner{
		scores:   make(map[string]float64),
		history:  newLedger(historyCap),
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// SetRecorder replaces the outcome recorder.
func (l *Learner) SetRecorder(r Recorder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorder = r
}

// Learn evaluates an outcome, updates counters and the scores of every
// rule the decision used, and persists an outcome record. A recorder
// failure is logged and does not undo the score update.
func (l *Learner) Learn(ctx context.Context, out Output, feedback any) Result {
	success := Evaluate(out, feedback)

	l.mu.Lock()
	l.total++
	if success {
		l.success++
	} else {
		l.failure++
	}
	l.history.push(HistoryEntry{At: l.now().UTC(), Success: success})

	delta, direction := FailureDelta, "down"
	if success {
		delta, direction = SuccessDelta, "up"
	}
	for _, rule := range out.Rules {
		if rule == "" {
			continue
		}
		l.scores[rule] += delta
		ruleUpdates.WithLabelValues(direction).Inc()
	}
	acc := float64(l.success) / float64(l.total)
	recorder := l.recorder
	l.mu.Unlock()

	decisionsTotal.WithLabelValues(outcomeLabel(success)).Inc()
	rollingAccuracy.Set(acc)

	res := Result{Status: "learned", Success: success}
	if recorder == nil {
		return res
	}
	id, err := recorder.RecordOutcome(ctx, outcomeRecord(out, success))
	if err != nil {
		l.logger.Warn("outcome record not persisted", zap.Bool("success", success), zap.Error(err))
		return res
	}
	res.RecordID = id
	return res
}

func outcomeRecord(out Output, success bool) Record {
	rec := Record{Type: recordType, Actor: recordActor}
	if success {
		rec.Content = "decision result: success"
		rec.Lesson = "reinforce the success pattern"
	} else {
		rec.Content = "decision result: failure"
		rec.Lesson = "analyze the root cause of the failure"
	}
	for _, r := range out.Rules {
		if r != "" {
			rec.Rule = r
			break
		}
	}
	return rec
}

// Reinforce adds delta to a rule's score directly.
func (l *Learner) Reinforce(rule string, delta float64) {
	if rule == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scores[rule] += delta
}

// Score returns a rule's current score.
func (l *Learner) Score(rule string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scores[rule]
}

// RuleCount returns how many rules have a score.
func (l *Learner) RuleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.scores)
}

// TopRules returns up to n rules by descending score, ties by rule text.
func (l *Learner) TopRules(n int) []RuleScore {
	l.mu.Lock()
	out := make([]RuleScore, 0, len(l.scores))
	for r, s := range l.scores {
		out = append(out, RuleScore{Rule: r, Score: s})
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Rule < out[j].Rule
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// RecentSuccessRate is the success ratio over the last RecentWindow
// decisions, or NeutralSuccessRate when none were recorded.
func (l *Learner) RecentSuccessRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	recent := l.history.recent(RecentWindow)
	if len(recent) == 0 {
		return NeutralSuccessRate
	}
	ok := 0
	for _, e := range recent {
		if e.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(recent))
}

// History returns up to n recent ledger entries, oldest first.
func (l *Learner) History(n int) []HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history.recent(n)
}

// MeasureGrowth reports totals, rolling accuracy, and the top rules.
func (l *Learner) MeasureGrowth() Growth {
	l.mu.Lock()
	g := Growth{
		TotalDecisions: l.total,
		Success:        l.success,
		Failure:        l.failure,
		HistorySize:    l.history.len(),
	}
	l.mu.Unlock()

	if g.TotalDecisions > 0 {
		g.RollingAccuracy = math.Round(float64(g.Success)/float64(g.TotalDecisions)*1000) / 1000
	}
	g.TopRules = l.TopRules(TopRulesInGrowth)
	return g
}
