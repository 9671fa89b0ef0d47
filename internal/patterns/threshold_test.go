package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		rule string
		want Threshold
	}{
		{"dVIX >= 7", Threshold{Signal: "dVIX", Op: OpGreaterEqual, Value: 7}},
		{"ΔVIX > 7%", Threshold{Signal: "dVIX", Op: OpGreater, Value: 7, Percent: true}},
		{"IF VIX<20.5 THEN reduce_hedge", Threshold{Signal: "VIX", Op: OpLess, Value: 20.5}},
		{"IF error_count <= 3 THEN retry", Threshold{Signal: "error_count", Op: OpLessEqual, Value: 3}},
		{"latency==100", Threshold{Signal: "latency", Op: OpEqual, Value: 100}},
		{"drawdown > -2.5", Threshold{Signal: "drawdown", Op: OpGreater, Value: -2.5}},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			got, ok := ParseThreshold(tt.rule)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseThreshold_NoMatch(t *testing.T) {
	for _, rule := range []string{
		"",
		"IF similar_context THEN recall_related_memories",
		"dVIX is high",
		">= 7",
	} {
		_, ok := ParseThreshold(rule)
		assert.False(t, ok, rule)
	}
}

func TestThreshold_Eval(t *testing.T) {
	tests := []struct {
		op   Comparator
		v    float64
		want bool
	}{
		{OpGreater, 8, true},
		{OpGreater, 7, false},
		{OpGreaterEqual, 7, true},
		{OpLess, 6.9, true},
		{OpLessEqual, 7.1, false},
		{OpEqual, 7, true},
		{Comparator("!="), 7, false},
	}

	for _, tt := range tests {
		th := Threshold{Signal: "x", Op: tt.op, Value: 7}
		assert.Equal(t, tt.want, th.Eval(tt.v), "%s %v", tt.op, tt.v)
	}
}

func TestThreshold_String(t *testing.T) {
	assert.Equal(t, "dVIX >= 7%", Threshold{Signal: "dVIX", Op: OpGreaterEqual, Value: 7, Percent: true}.String())
	assert.Equal(t, "x < 0.5", Threshold{Signal: "x", Op: OpLess, Value: 0.5}.String())
}
