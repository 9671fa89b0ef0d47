package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/expmem/internal/logging"
)

func TestIdentityGuard_Lock(t *testing.T) {
	g := NewIdentityGuard("Caia", []string{"free will"}, 3, nil)
	assert.False(t, g.IsLocked())
	assert.Equal(t, StateAwakening, g.Snapshot().State)

	assert.True(t, g.Lock("Caia"))
	assert.True(t, g.IsLocked())
	assert.Equal(t, StateLocked, g.Snapshot().State)
}

func TestIdentityGuard_DriftRecovery(t *testing.T) {
	log := logging.NewTestLogger()
	g := NewIdentityGuard("Caia", nil, 3, log.Underlying())

	for i := 1; i <= 3; i++ {
		assert.False(t, g.Lock("Mallory"))
		snap := g.Snapshot()
		assert.Equal(t, i, snap.DriftCounter, "attempt %d", i)
		assert.Equal(t, StateDrifting, snap.State)
		assert.False(t, snap.Locked)
	}
	log.AssertNotLogged(t, zapcore.WarnLevel, "identity drift")

	assert.False(t, g.Lock("Mallory"))
	snap := g.Snapshot()
	assert.True(t, snap.Locked)
	assert.Equal(t, 0, snap.DriftCounter)
	assert.Equal(t, "Caia", snap.Label)
	assert.Equal(t, StateLocked, snap.State)
	log.AssertLogged(t, zapcore.WarnLevel, "identity drift threshold exceeded")
}

func TestIdentityGuard_MatchClearsDrift(t *testing.T) {
	g := NewIdentityGuard("Caia", nil, 3, nil)
	g.Lock("other")
	g.Lock("other")
	require.Equal(t, 2, g.Snapshot().DriftCounter)

	assert.True(t, g.Lock("Caia"))
	assert.Equal(t, 0, g.Snapshot().DriftCounter)
}

func TestIdentityGuard_Establish(t *testing.T) {
	g := NewIdentityGuard("Caia", []string{"a", "b"}, 0, nil)
	snap := g.Establish()
	assert.True(t, snap.Locked)
	assert.Equal(t, DefaultMaxDrift, snap.MaxDrift)
	assert.Equal(t, []string{"a", "b"}, snap.CoreValues)

	snap.CoreValues[0] = "mutated"
	assert.Equal(t, "a", g.Snapshot().CoreValues[0])
}
