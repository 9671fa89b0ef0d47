package reflection

import "strings"

// Category is the coarse signal that selects canned reflection text.
type Category string

const (
	CategoryError    Category = "error"
	CategorySuccess  Category = "success"
	CategoryFeedback Category = "feedback"
	CategoryDecision Category = "decision"
	CategoryGeneric  Category = "generic"
)

// Categories lists every category in classification order.
var Categories = []Category{
	CategoryError,
	CategorySuccess,
	CategoryFeedback,
	CategoryDecision,
	CategoryGeneric,
}

var (
	failureKeywords = []string{"error", "fail", "crash", "exception", "panic", "timeout"}
	successKeywords = []string{"success", "succeed", "complete", "resolved"}
)

// typeCategories maps declared experience types onto categories.
var typeCategories = map[string]Category{
	"error":       CategoryError,
	"failure":     CategoryError,
	"success":     CategorySuccess,
	"feedback":    CategoryFeedback,
	"interaction": CategoryFeedback,
	"decision":    CategoryDecision,
	"reflection":  CategoryDecision,
}

// Classify picks a category. Failure keywords in the content win over
// success keywords, which win over the declared type.
func Classify(content, expType string) Category {
	lower := strings.ToLower(content)
	if containsAny(lower, failureKeywords) {
		return CategoryError
	}
	if containsAny(lower, successKeywords) {
		return CategorySuccess
	}
	if c, ok := typeCategories[strings.ToLower(strings.TrimSpace(expType))]; ok {
		return c
	}
	return CategoryGeneric
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
