package learning

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FallbackAction is the decision action that means nothing matched.
const FallbackAction = "analyze"

// Output is the part of a think result the learner inspects.
type Output struct {
	Action string `json:"action"`
	// Rules are the rule texts of the patterns the decision used.
	Rules []string `json:"rules"`
}

// Evaluate decides whether a decision succeeded. Feedback is read in this
// order: a bool, a number (positive is success), a map with a "success"
// key. Anything else falls back to whether the decision picked an action
// other than the analyze fallback.
func Evaluate(out Output, feedback any) bool {
	switch f := feedback.(type) {
	case bool:
		return f
	case *bool:
		if f != nil {
			return *f
		}
	case map[string]any:
		if v, ok := f["success"]; ok {
			return truthy(v)
		}
	case map[string]bool:
		if v, ok := f["success"]; ok {
			return v
		}
	default:
		if n, ok := number(feedback); ok {
			return n > 0
		}
	}
	return out.Action != "" && out.Action != FallbackAction
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	}
	if n, ok := number(v); ok {
		return n != 0
	}
	return true
}
