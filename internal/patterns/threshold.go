package patterns

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Comparator is a numeric comparison operator.
type Comparator string

const (
	OpGreater      Comparator = ">"
	OpLess         Comparator = "<"
	OpGreaterEqual Comparator = ">="
	OpLessEqual    Comparator = "<="
	OpEqual        Comparator = "=="
)

// Threshold is a parsed numeric rule such as "dVIX >= 7%".
type Threshold struct {
	Signal  string
	Op      Comparator
	Value   float64
	Percent bool
}

func (t Threshold) String() string {
	s := fmt.Sprintf("%s %s %s", t.Signal, t.Op, strconv.FormatFloat(t.Value, 'f', -1, 64))
	if t.Percent {
		s += "%"
	}
	return s
}

// Eval applies the comparator with v on the left.
func (t Threshold) Eval(v float64) bool {
	switch t.Op {
	case OpGreater:
		return v > t.Value
	case OpLess:
		return v < t.Value
	case OpGreaterEqual:
		return v >= t.Value
	case OpLessEqual:
		return v <= t.Value
	case OpEqual:
		return v == t.Value
	}
	return false
}

// Two-character operators come first in the alternation so ">=" is never
// read as ">".
var thresholdRe = regexp.MustCompile(`(Δ?[A-Za-z][A-Za-z0-9_]*)\s*(>=|<=|==|>|<)\s*(-?[0-9]+(?:\.[0-9]+)?)\s*(%)?`)

// ParseThreshold finds the first signal/comparator/number triple in rule.
// A leading Δ on the signal name is normalized to "d".
func ParseThreshold(rule string) (Threshold, bool) {
	m := thresholdRe.FindStringSubmatch(rule)
	if m == nil {
		return Threshold{}, false
	}
	v, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Threshold{}, false
	}
	return Threshold{
		Signal:  NormalizeSignal(m[1]),
		Op:      Comparator(m[2]),
		Value:   v,
		Percent: m[4] == "%",
	}, true
}

// NormalizeSignal maps "ΔVIX" to "dVIX".
func NormalizeSignal(name string) string {
	if rest, ok := strings.CutPrefix(name, "Δ"); ok {
		return "d" + rest
	}
	return name
}
