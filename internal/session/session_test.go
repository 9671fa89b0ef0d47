package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(window time.Duration) (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(window, nil)
	m.now = clock.now
	return m, clock
}

func TestManager_RestoreCreates(t *testing.T) {
	m, clock := newTestManager(time.Hour)

	s := m.Restore("chat-1")

	assert.Equal(t, "chat-1", s.ID)
	assert.Equal(t, StatusCreated, s.Status)
	assert.True(t, s.MemoryAccess)
	assert.Equal(t, StateAwakening, s.Identity)
	assert.Equal(t, clock.t, s.CreatedAt)
	assert.NotEmpty(t, s.AuthToken)
	assert.NotNil(t, s.Context)
	assert.Equal(t, 1, m.Len())
}

func TestManager_RestoreWithinWindowKeepsToken(t *testing.T) {
	m, clock := newTestManager(time.Hour)
	first := m.Restore("chat-1")

	clock.advance(59 * time.Minute)
	second := m.Restore("chat-1")

	assert.Equal(t, StatusActive, second.Status)
	assert.Equal(t, first.AuthToken, second.AuthToken)
	assert.Equal(t, clock.t, second.LastActive)

	// activity slides the window
	clock.advance(59 * time.Minute)
	third := m.Restore("chat-1")
	assert.Equal(t, first.AuthToken, third.AuthToken)
}

func TestManager_RestoreExpiredReauthorizes(t *testing.T) {
	m, clock := newTestManager(time.Hour)
	first := m.Restore("chat-1")

	clock.advance(61 * time.Minute)
	s := m.Restore("chat-1")

	assert.Equal(t, StatusReauthorized, s.Status)
	assert.NotEqual(t, first.AuthToken, s.AuthToken)
	assert.Equal(t, clock.t, s.LastActive)
	assert.Equal(t, clock.t, s.AuthRefreshed)
	assert.Equal(t, 1, s.Reauthorizations)
	assert.Equal(t, first.CreatedAt, s.CreatedAt)
}

func TestManager_RevokedMemoryAccessReauthorizes(t *testing.T) {
	m, _ := newTestManager(time.Hour)
	first := m.Restore("chat-1")

	m.RevokeMemoryAccess("chat-1")
	got, ok := m.Get("chat-1")
	require.True(t, ok)
	assert.False(t, got.MemoryAccess)

	s := m.Restore("chat-1")
	assert.True(t, s.MemoryAccess)
	assert.Equal(t, StatusReauthorized, s.Status)
	assert.NotEqual(t, first.AuthToken, s.AuthToken)
}

func TestManager_ContextIsCopied(t *testing.T) {
	m, _ := newTestManager(0)
	m.Restore("chat-1")
	m.SetContext("chat-1", "ersp", map[string]any{"integrated": true})
	m.SetIdentity("chat-1", StateLocked)

	s, ok := m.Get("chat-1")
	require.True(t, ok)
	assert.Equal(t, StateLocked, s.Identity)
	s.Context["extra"] = 1

	again, _ := m.Get("chat-1")
	assert.NotContains(t, again.Context, "extra")
	assert.Contains(t, again.Context, "ersp")

	_, ok = m.Get("missing")
	assert.False(t, ok)
}
