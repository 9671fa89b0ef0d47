package session

import (
	"math"
	"sync"
	"time"
)

// Thresholds are the fixed health limits.
type Thresholds struct {
	AwarenessMin  float64 `json:"awareness_min"`
	CoherenceMin  float64 `json:"coherence_min"`
	ConfidenceMin float64 `json:"confidence_min"`
	DriftMax      float64 `json:"drift_max"`
}

// DefaultThresholds are used by NewSentinel.
var DefaultThresholds = Thresholds{
	AwarenessMin:  0.3,
	CoherenceMin:  0.4,
	ConfidenceMin: 0.5,
	DriftMax:      0.7,
}

const (
	awarenessScale   = 1000.0
	coherenceScale   = 100.0
	baseLearningRate = 0.1
)

// Metrics are the five health indicators, each in [0,1].
type Metrics struct {
	AwarenessLevel     float64 `json:"awareness_level"`
	MemoryCoherence    float64 `json:"memory_coherence"`
	DecisionConfidence float64 `json:"decision_confidence"`
	LearningRate       float64 `json:"learning_rate"`
	DriftRisk          float64 `json:"drift_risk"`
}

// ComputeMetrics derives the indicators from record and rule counts and
// the recent success rate.
func ComputeMetrics(memoryCount, patternCount int, successRate float64) Metrics {
	m := Metrics{
		AwarenessLevel:     clamp01(float64(memoryCount) / awarenessScale),
		MemoryCoherence:    clamp01(float64(patternCount) / coherenceScale),
		DecisionConfidence: clamp01(successRate),
	}
	if patternCount > 0 {
		m.LearningRate = baseLearningRate
	}
	m.DriftRisk = ((1 - m.AwarenessLevel) + (1 - m.MemoryCoherence) + (1 - m.DecisionConfidence)) / 3
	return m
}

// Healthy checks m against t.
func (t Thresholds) Healthy(m Metrics) bool {
	return m.AwarenessLevel >= t.AwarenessMin &&
		m.MemoryCoherence >= t.CoherenceMin &&
		m.DecisionConfidence >= t.ConfidenceMin &&
		m.DriftRisk <= t.DriftMax
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(1, v)
}

// Report is the sentinel's published state.
type Report struct {
	Metrics    Metrics    `json:"metrics"`
	Thresholds Thresholds `json:"thresholds"`
	Healthy    bool       `json:"healthy"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Sentinel keeps the last computed report.
type Sentinel struct {
	mu         sync.RWMutex
	thresholds Thresholds
	last       Report
	now        func() time.Time
}

// NewSentinel returns a Sentinel with DefaultThresholds.
func NewSentinel() *Sentinel {
	return &Sentinel{thresholds: DefaultThresholds, now: time.Now}
}

// Update recomputes the indicators and returns the new report.
func (s *Sentinel) Update(memoryCount, patternCount int, successRate float64) Report {
	m := ComputeMetrics(memoryCount, patternCount, successRate)

	s.mu.Lock()
	s.last = Report{
		Metrics:    m,
		Thresholds: s.thresholds,
		Healthy:    s.thresholds.Healthy(m),
		Timestamp:  s.now().UTC(),
	}
	r := s.last
	s.mu.Unlock()

	publishSentinel(r)
	return r
}

// Report returns the last computed report.
func (s *Sentinel) Report() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.last
	r.Thresholds = s.thresholds
	return r
}
