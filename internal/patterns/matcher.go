package patterns

import (
	"sort"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/expmem/internal/reflection"
)

// Action is what a matched rule suggests doing.
type Action string

const (
	ActionEnterHedge   Action = "enter_hedge"
	ActionActOnRule    Action = "act_on_rule"
	ActionTypeSpecific Action = "apply_type_specific_pattern"
	ActionKeyword      Action = "apply_keyword_pattern"
	ActionSimilar      Action = "apply_similar_pattern"
	// ActionAnalyze is the fallback when nothing matched.
	ActionAnalyze Action = "analyze"
)

const (
	// DefaultConfidence is used for candidates without a retrieval score.
	DefaultConfidence = 0.5
	// SimilarityThreshold gates the similar-context fallback.
	SimilarityThreshold = 0.7

	similarTrigger = "similar_context"
	minTokenLen    = 3
)

var stopTokens = map[string]bool{"if": true, "then": true, "and": true}

// Candidate is a retrieved record offered to the matcher.
type Candidate struct {
	ID         string
	Reflection reflection.Reflection
	// Score is the retrieval similarity; meaningful only when Scored.
	Score  float64
	Scored bool
}

// Match is one rule that applied to the situation.
type Match struct {
	Rule       string
	Action     Action
	Candidate  Candidate
	Confidence float64
}

// MatchAll checks each candidate's rule against the situation and returns the
// ones that applied, most confident first. Per candidate the checks run in
// order: numeric threshold, type containment, keyword overlap, similarity
// fallback. The first hit decides the action.
func MatchAll(s Situation, candidates []Candidate) []Match {
	ctxTokens := Tokenize(s.Content)
	ctxType := strings.ToLower(strings.TrimSpace(s.Type))

	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		rule := c.Reflection.Rule
		action, ok := matchOne(s, ctxType, ctxTokens, c, rule)
		if !ok {
			continue
		}
		conf := DefaultConfidence
		if c.Scored {
			conf = c.Score
		}
		out = append(out, Match{Rule: rule, Action: action, Candidate: c, Confidence: conf})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

func matchOne(s Situation, ctxType string, ctxTokens map[string]bool, c Candidate, rule string) (Action, bool) {
	lowerRule := strings.ToLower(rule)

	if th, ok := ParseThreshold(rule); ok {
		if v, ok := s.Signal(th.Signal); ok && th.Eval(v) {
			text := strings.ToLower(c.Reflection.Lesson + " " + rule)
			if strings.Contains(text, "hedge") {
				return ActionEnterHedge, true
			}
			return ActionActOnRule, true
		}
	}

	if ctxType != "" && strings.Contains(lowerRule, ctxType) {
		return ActionTypeSpecific, true
	}

	if len(ctxTokens) > 0 {
		for tok := range Tokenize(rule) {
			if ctxTokens[tok] {
				return ActionKeyword, true
			}
		}
	}

	if strings.Contains(lowerRule, similarTrigger) && c.Scored && c.Score > SimilarityThreshold {
		return ActionSimilar, true
	}
	return "", false
}

// Tokenize lowercases text and splits it on anything that is not a letter
// or digit. Short tokens and IF/THEN scaffolding are dropped.
func Tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTokenLen || stopTokens[f] {
			continue
		}
		out[f] = true
	}
	return out
}
