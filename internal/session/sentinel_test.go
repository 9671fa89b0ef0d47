package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeMetrics(t *testing.T) {
	tests := []struct {
		name     string
		memories int
		patterns int
		rate     float64
		want     Metrics
	}{
		{
			name: "empty",
			rate: 0.7,
			want: Metrics{DecisionConfidence: 0.7, DriftRisk: (1 + 1 + 0.3) / 3},
		},
		{
			name:     "saturated",
			memories: 5000,
			patterns: 250,
			rate:     1,
			want:     Metrics{AwarenessLevel: 1, MemoryCoherence: 1, DecisionConfidence: 1, LearningRate: 0.1, DriftRisk: 0},
		},
		{
			name:     "partial",
			memories: 500,
			patterns: 50,
			rate:     0.5,
			want:     Metrics{AwarenessLevel: 0.5, MemoryCoherence: 0.5, DecisionConfidence: 0.5, LearningRate: 0.1, DriftRisk: 0.5},
		},
		{
			name:     "out of range rate is clamped",
			memories: 0,
			patterns: 0,
			rate:     1.5,
			want:     Metrics{DecisionConfidence: 1, DriftRisk: 2.0 / 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeMetrics(tt.memories, tt.patterns, tt.rate)
			assert.InDelta(t, tt.want.AwarenessLevel, got.AwarenessLevel, 1e-9)
			assert.InDelta(t, tt.want.MemoryCoherence, got.MemoryCoherence, 1e-9)
			assert.InDelta(t, tt.want.DecisionConfidence, got.DecisionConfidence, 1e-9)
			assert.InDelta(t, tt.want.LearningRate, got.LearningRate, 1e-9)
			assert.InDelta(t, tt.want.DriftRisk, got.DriftRisk, 1e-9)

			for _, v := range []float64{got.AwarenessLevel, got.MemoryCoherence, got.DecisionConfidence, got.LearningRate, got.DriftRisk} {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		})
	}
}

func TestThresholds_Healthy(t *testing.T) {
	th := DefaultThresholds
	assert.True(t, th.Healthy(ComputeMetrics(300, 40, 0.5)))
	assert.False(t, th.Healthy(ComputeMetrics(299, 40, 0.5)))
	assert.False(t, th.Healthy(ComputeMetrics(300, 39, 0.5)))
	assert.False(t, th.Healthy(ComputeMetrics(300, 40, 0.49)))
	assert.False(t, th.Healthy(Metrics{AwarenessLevel: 1, MemoryCoherence: 1, DecisionConfidence: 1, DriftRisk: 0.71}))
}

func TestSentinel_Update(t *testing.T) {
	s := NewSentinel()
	r := s.Update(2000, 200, 0.9)
	assert.True(t, r.Healthy)
	assert.Equal(t, DefaultThresholds, r.Thresholds)
	assert.False(t, r.Timestamp.IsZero())
	assert.Equal(t, r, s.Report())
}
