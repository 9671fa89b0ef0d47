package reflection

import (
	"strings"
	"unicode/utf8"
)

// EventMaxRunes bounds a synthesized event label.
const EventMaxRunes = 100

// UnknownEvent labels an experience with no content.
const UnknownEvent = "unknown event"

// Rule templates.
const (
	RuleDecision = "IF similar_decision_context THEN apply_learned_pattern"
	RuleError    = "IF error_detected THEN analyze_and_recover"
	RulePattern  = "IF pattern_matched THEN execute_associated_action"
	RuleFeedback = "IF feedback_received THEN update_pattern_scores"
	RuleDefault  = "IF similar_context THEN recall_related_memories"
)

var interpretations = map[Category]string{
	CategoryError:    "Error occurred: root cause analysis needed",
	CategorySuccess:  "Performed successfully: pattern should be reinforced",
	CategoryFeedback: "Feedback received: a learning opportunity",
	CategoryDecision: "Decision point: examine the reasoning behind it",
	CategoryGeneric:  "Experience recorded: to be analyzed later",
}

var lessons = map[Category]string{
	CategoryError:    "Failure is a chance to grow: analyze the cause and find what to improve",
	CategorySuccess:  "Remember the success pattern and reinforce it",
	CategoryFeedback: "Learn and adapt through interaction",
	CategoryDecision: "Wisdom comes from reflecting on each decision",
	CategoryGeneric:  "Every experience is material for learning",
}

// InterpretationFor returns the canned interpretation for c.
func InterpretationFor(c Category) string {
	if s, ok := interpretations[c]; ok {
		return s
	}
	return interpretations[CategoryGeneric]
}

// LessonFor returns the canned lesson for c.
func LessonFor(c Category) string {
	if s, ok := lessons[c]; ok {
		return s
	}
	return lessons[CategoryGeneric]
}

// RuleFor returns the rule template for c. Content mentioning a pattern
// gets the pattern template unless the category is decision or error.
func RuleFor(c Category, content string) string {
	switch c {
	case CategoryDecision:
		return RuleDecision
	case CategoryError:
		return RuleError
	}
	if strings.Contains(strings.ToLower(content), "pattern") {
		return RulePattern
	}
	if c == CategoryFeedback {
		return RuleFeedback
	}
	return RuleDefault
}

// Experience is the raw input to extraction. Any of the reflection fields
// may be empty.
type Experience struct {
	Content string
	Type    string

	Event          string
	Interpretation string
	Lesson         string
	Rule           string
}

// Reflection is the structured ERSP summary of an experience.
type Reflection struct {
	Event          string `json:"event"`
	Interpretation string `json:"interpretation"`
	Lesson         string `json:"lesson"`
	Rule           string `json:"if_then"`
}

// Complete reports whether every field is non-empty.
func (r Reflection) Complete() bool {
	return r.Event != "" && r.Interpretation != "" && r.Lesson != "" && r.Rule != ""
}

// Extract returns the experience's reflection, synthesizing missing
// fields. It never returns an empty field.
func Extract(exp Experience) Reflection {
	given := Reflection{
		Event:          exp.Event,
		Interpretation: exp.Interpretation,
		Lesson:         exp.Lesson,
		Rule:           exp.Rule,
	}
	if given.Complete() {
		return given
	}

	c := Classify(exp.Content, exp.Type)
	out := given
	if out.Event == "" {
		out.Event = eventFrom(exp.Content)
	}
	if out.Interpretation == "" {
		out.Interpretation = InterpretationFor(c)
	}
	if out.Lesson == "" {
		out.Lesson = LessonFor(c)
	}
	if out.Rule == "" {
		out.Rule = RuleFor(c, exp.Content)
	}
	return out
}

// Backfill completes a partially populated reflection read from storage.
func Backfill(r Reflection, content, expType string) Reflection {
	return Extract(Experience{
		Content:        content,
		Type:           expType,
		Event:          r.Event,
		Interpretation: r.Interpretation,
		Lesson:         r.Lesson,
		Rule:           r.Rule,
	})
}

func eventFrom(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return UnknownEvent
	}
	if utf8.RuneCountInString(content) <= EventMaxRunes {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:EventMaxRunes]))
}
