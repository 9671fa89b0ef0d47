package patterns

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Situation is the caller's current context reduced to what matching uses.
type Situation struct {
	Type    string
	Content string
	// Signals holds every numeric context value by key.
	Signals map[string]float64
}

// SituationFromMap reads "type" and "content" strings and collects numeric
// values. Numeric strings count as signals.
func SituationFromMap(ctx map[string]any) Situation {
	s := Situation{Signals: map[string]float64{}}
	for k, v := range ctx {
		switch k {
		case "type":
			s.Type, _ = v.(string)
			continue
		case "content":
			s.Content, _ = v.(string)
			continue
		}
		if f, ok := toFloat(v); ok {
			s.Signals[NormalizeSignal(k)] = f
		}
	}
	return s
}

// Signal looks up a value by exact key, then case-insensitively, then by
// base name so "VIX", "dVIX" and "ΔVIX" all resolve to the same signal.
func (s Situation) Signal(name string) (float64, bool) {
	if v, ok := s.Signals[name]; ok {
		return v, true
	}
	for k, v := range s.Signals {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	base := signalBase(name)
	for k, v := range s.Signals {
		if signalBase(k) == base {
			return v, true
		}
	}
	return 0, false
}

// signalBase lowercases name after dropping a change prefix: "Δ", or a "d"
// followed by an upper-case letter. "drawdown" keeps its d.
func signalBase(name string) string {
	name = NormalizeSignal(name)
	if rest, ok := strings.CutPrefix(name, "d"); ok {
		if r, _ := utf8.DecodeRuneInString(rest); unicode.IsUpper(r) {
			name = rest
		}
	}
	return strings.ToLower(name)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		return f, err == nil
	}
	return 0, false
}
