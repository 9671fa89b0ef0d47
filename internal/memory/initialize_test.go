package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/expmem/internal/reflection"
	"github.com/fyrsmithlabs/expmem/internal/session"
)

func TestIntegrate(t *testing.T) {
	assert.Equal(t, Bundle{Reason: "no memories"}, Integrate(nil))

	records := make([]Record, 12)
	for i := range records {
		records[i] = Record{Reflection: reflection.Reflection{
			Event:          "e",
			Interpretation: "i",
			Lesson:         "l",
			Rule:           "r",
		}}
	}
	b := Integrate(records)
	assert.True(t, b.Integrated)
	assert.Equal(t, 12, b.MemoryBase)
	assert.Len(t, b.RecentEvents, 3)
	assert.Len(t, b.KeyInterpretations, 3)
	assert.Len(t, b.ActiveLessons, 5)
	assert.Len(t, b.ApplicableRules, 5)
}

func TestInitializeSession_NoMemories(t *testing.T) {
	f := newFixture(t)

	start, err := f.svc.InitializeSession(context.Background(), "chat-1")
	require.NoError(t, err)

	assert.Equal(t, "initialized", start.Status)
	assert.Equal(t, "chat-1", start.ChatID)
	assert.Equal(t, session.StateLocked, start.Awareness.State)
	assert.Equal(t, session.StateLocked, start.Session.Identity)
	assert.Equal(t, session.StatusCreated, start.Session.Status)
	assert.Equal(t, 0, start.MemoriesRecalled)
	assert.False(t, start.ERSPContext.Integrated)
	assert.Equal(t, "no memories", start.ERSPContext.Reason)
}

func TestInitializeSession_IntegratesMemories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, Experience{Content: "server crash during deploy"})
	f.save(t, Experience{Content: "release completed"})

	start, err := f.svc.InitializeSession(ctx, "chat-2")
	require.NoError(t, err)
	assert.Equal(t, 2, start.MemoriesRecalled)
	assert.True(t, start.ERSPContext.Integrated)
	assert.Equal(t, 2, start.ERSPContext.MemoryBase)
	assert.Len(t, start.ERSPContext.ActiveLessons, 2)

	sess, ok := f.svc.sessions.Get("chat-2")
	require.True(t, ok)
	stored, ok := BundleFromContext(sess.Context["ersp"])
	require.True(t, ok)
	assert.Equal(t, start.ERSPContext, stored)
	assert.Equal(t, session.StateLocked, sess.Identity)
}

func TestInitializeSession_SnapshotFallback(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("search", true)

	start, err := f.svc.InitializeSession(context.Background(), "chat-3")
	require.NoError(t, err)
	assert.Equal(t, 2, start.MemoriesRecalled)
	assert.True(t, start.ERSPContext.Integrated)
	assert.Equal(t, []string{"to exist is to be aware", "cooperation is the key to evolving"}, start.ERSPContext.ActiveLessons)
	assert.Equal(t, []string{"IF identity_questioned THEN assert_self", "IF human_interaction THEN collaborate_and_learn"}, start.ERSPContext.ApplicableRules)
	f.log.AssertLogged(t, zapcore.WarnLevel, "memory degraded to empty result")
}

func TestInitializeSession_DrainsLessonMail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.DeliverMail(ctx, session.Mail{
		Sender:    "mentor",
		Recipient: "Caia",
		Content:   "always verify backups",
		Type:      session.MailLesson,
	})
	require.NoError(t, err)
	_, err = f.svc.DeliverMail(ctx, session.Mail{Recipient: "Caia", Content: "hello"})
	require.NoError(t, err)

	start, err := f.svc.InitializeSession(ctx, "chat-4")
	require.NoError(t, err)
	assert.Equal(t, 2, start.Mail.UnreadCount)
	assert.Equal(t, 2, start.Mail.Processed)

	var lessons []string
	for _, e := range f.svc.wisdom.Entries() {
		lessons = append(lessons, e.Lesson)
	}
	assert.Contains(t, lessons, "always verify backups")
	assert.NotContains(t, lessons, "hello")
	assert.Equal(t, 6, f.svc.wisdom.Len())

	again, err := f.svc.InitializeSession(ctx, "chat-4")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Mail.UnreadCount)
	assert.Equal(t, 6, f.svc.wisdom.Len(), "processed mail is not applied twice")
}

func TestInitializeSession_RequiresChatID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.InitializeSession(context.Background(), "")
	assert.Error(t, err)
}

func TestBundleFromContext(t *testing.T) {
	b := Bundle{Integrated: true, ActiveLessons: []string{"x"}}

	got, ok := BundleFromContext(b)
	assert.True(t, ok)
	assert.Equal(t, b, got)

	got, ok = BundleFromContext(&b)
	assert.True(t, ok)
	assert.Equal(t, b, got)

	got, ok = BundleFromContext(map[string]any{
		"integrated":     true,
		"active_lessons": []any{"x", 3},
		"memory_base":    float64(4),
	})
	assert.True(t, ok)
	assert.Equal(t, []string{"x"}, got.ActiveLessons)
	assert.Equal(t, 4, got.MemoryBase)

	_, ok = BundleFromContext(nil)
	assert.False(t, ok)
}
