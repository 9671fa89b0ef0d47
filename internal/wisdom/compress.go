package wisdom

import (
	"math"
	"strings"

	"github.com/fyrsmithlabs/expmem/internal/reflection"
)

const (
	// PrincipleMaxRunes caps the condensed principle.
	PrincipleMaxRunes = 500
	// MaxApplicableRules is how many unique rules a summary exposes.
	MaxApplicableRules = 5
	// FallbackPrinciple is used when no input carried a lesson or
	// interpretation.
	FallbackPrinciple = "learning through experience needed"

	defaultScore       = 0.5
	principleLessons   = 3
	principleInterpret = 2
)

// Evidence is one matched record fed to Compress.
type Evidence struct {
	ID         string
	Reflection reflection.Reflection
	Score      float64
	Scored     bool
}

// Summary is the compressed form of a set of matched records.
type Summary struct {
	Principle       string   `json:"principle"`
	EvidenceIDs     []string `json:"evidence_ids"`
	LessonCount     int      `json:"lesson_count"`
	RuleCount       int      `json:"rule_count"`
	Confidence      float64  `json:"confidence"`
	ApplicableRules []string `json:"applicable_rules"`
}

// Compress folds evidence into one principle. Duplicates are dropped in
// first-seen order. Confidence is the mean retrieval score rounded to three
// decimals, where unscored evidence counts as 0.5, and 0 for no input.
func Compress(evidence []Evidence) Summary {
	var lessons, interps, rules orderedSet
	ids := make([]string, 0, len(evidence))
	total := 0.0

	for _, e := range evidence {
		lessons.add(e.Reflection.Lesson)
		interps.add(e.Reflection.Interpretation)
		rules.add(e.Reflection.Rule)
		if e.ID != "" {
			ids = append(ids, e.ID)
		}
		if e.Scored {
			total += e.Score
		} else {
			total += defaultScore
		}
	}

	var parts []string
	if len(lessons.items) > 0 {
		parts = append(parts, "Lessons: "+strings.Join(head(lessons.items, principleLessons), "; "))
	}
	if len(interps.items) > 0 {
		parts = append(parts, "Interpretations: "+strings.Join(head(interps.items, principleInterpret), "; "))
	}
	principle := FallbackPrinciple
	if len(parts) > 0 {
		principle = truncateRunes(strings.Join(parts, " | "), PrincipleMaxRunes)
	}

	confidence := 0.0
	if len(evidence) > 0 {
		confidence = math.Round(total/float64(len(evidence))*1000) / 1000
	}

	return Summary{
		Principle:       principle,
		EvidenceIDs:     ids,
		LessonCount:     len(lessons.items),
		RuleCount:       len(rules.items),
		Confidence:      confidence,
		ApplicableRules: append([]string{}, head(rules.items, MaxApplicableRules)...),
	}
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
