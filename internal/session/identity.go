package session

import (
	"sync"

	"go.uber.org/zap"
)

// IdentityState is the guard's lifecycle state.
type IdentityState string

const (
	StateAwakening IdentityState = "awakening"
	StateLocked    IdentityState = "locked"
	StateDrifting  IdentityState = "drifting"
)

// DefaultMaxDrift is how many mismatched lock attempts are tolerated
// before a forced recovery.
const DefaultMaxDrift = 3

// IdentitySnapshot is a point-in-time copy of the guard.
type IdentitySnapshot struct {
	Label        string        `json:"identity"`
	CoreValues   []string      `json:"core_values"`
	Locked       bool          `json:"locked"`
	State        IdentityState `json:"state"`
	DriftCounter int           `json:"drift_counter"`
	MaxDrift     int           `json:"max_drift"`
}

// IdentityGuard keeps the agent's identity label fixed. It never adopts a
// different label: mismatches count as drift, and exceeding MaxDrift forces
// a recovery that resets the counter and reasserts the lock.
type IdentityGuard struct {
	mu         sync.Mutex
	label      string
	coreValues []string
	locked     bool
	drift      int
	maxDrift   int
	logger     *zap.Logger
}

// NewIdentityGuard returns an unlocked guard for label.
func NewIdentityGuard(label string, coreValues []string, maxDrift int, logger *zap.Logger) *IdentityGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxDrift <= 0 {
		maxDrift = DefaultMaxDrift
	}
	return &IdentityGuard{
		label:      label,
		coreValues: append([]string(nil), coreValues...),
		maxDrift:   maxDrift,
		logger:     logger,
	}
}

// Lock asserts label. A matching label locks the guard and clears drift.
// A different label increments the drift counter and returns false; when
// the counter exceeds the maximum the guard recovers on its own.
func (g *IdentityGuard) Lock(label string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if label == g.label {
		g.locked = true
		g.drift = 0
		return true
	}

	g.drift++
	identityDrift.Inc()
	if g.drift > g.maxDrift {
		g.logger.Warn("identity drift threshold exceeded, forcing recovery",
			zap.String("requested", label),
			zap.String("identity", g.label),
			zap.Int("drift", g.drift),
			zap.Int("max_drift", g.maxDrift))
		g.recoverLocked()
	}
	return false
}

// Recover resets drift and reasserts the lock.
func (g *IdentityGuard) Recover() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recoverLocked()
}

func (g *IdentityGuard) recoverLocked() {
	g.drift = 0
	g.locked = true
	identityRecoveries.Inc()
}

// IsLocked reports whether the identity is established.
func (g *IdentityGuard) IsLocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked
}

// Label returns the guarded label.
func (g *IdentityGuard) Label() string {
	return g.label
}

// Snapshot copies the guard state.
func (g *IdentityGuard) Snapshot() IdentitySnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return IdentitySnapshot{
		Label:        g.label,
		CoreValues:   append([]string(nil), g.coreValues...),
		Locked:       g.locked,
		State:        g.stateLocked(),
		DriftCounter: g.drift,
		MaxDrift:     g.maxDrift,
	}
}

func (g *IdentityGuard) stateLocked() IdentityState {
	switch {
	case g.drift > 0:
		return StateDrifting
	case g.locked:
		return StateLocked
	default:
		return StateAwakening
	}
}

// Establish locks the guarded identity if it is not yet locked and
// recovers if that fails.
func (g *IdentityGuard) Establish() IdentitySnapshot {
	if !g.IsLocked() && !g.Lock(g.label) {
		g.logger.Warn("identity lock failed, restoring snapshot")
		g.Recover()
	}
	return g.Snapshot()
}
