package session

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/expmem/internal/logging"
)

func mailStores(t *testing.T) map[string]func() MailStore {
	return map[string]func() MailStore{
		"memory": func() MailStore { return NewMemoryMailStore() },
		"badger": func() MailStore {
			opts := badger.DefaultOptions("").WithInMemory(true)
			opts.Logger = nil
			db, err := badger.Open(opts)
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			s, err := NewBadgerMailStore(db, nil)
			require.NoError(t, err)
			return s
		},
	}
}

func TestMailbox_ProcessMailIsIdempotent(t *testing.T) {
	for name, open := range mailStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mb := NewMailbox(open(), nil)
			defer mb.Close()

			m, err := mb.Deliver(ctx, Mail{Sender: "mentor", Recipient: "Caia", Content: "check assumptions", Type: MailLesson})
			require.NoError(t, err)
			require.NotEmpty(t, m.ID)

			ok, err := mb.ProcessMail(ctx, m.ID)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = mb.ProcessMail(ctx, m.ID)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = mb.ProcessMail(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMailbox_CheckMailAndDrain(t *testing.T) {
	for name, open := range mailStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mb := NewMailbox(open(), nil)

			first, err := mb.Deliver(ctx, Mail{Recipient: "Caia", Content: "one", Type: MailLesson})
			require.NoError(t, err)
			second, err := mb.Deliver(ctx, Mail{Recipient: "Caia", Content: "two"})
			require.NoError(t, err)
			_, err = mb.Send(ctx, LearningEngine, "lesson out", MailLesson)
			require.NoError(t, err)

			unread, err := mb.CheckMail(ctx)
			require.NoError(t, err)
			require.Len(t, unread, 2)
			assert.Equal(t, first.ID, unread[0].ID)
			assert.Equal(t, MailInfo, unread[1].Type)

			var handled []string
			status, err := mb.Drain(ctx, func(m Mail) error {
				handled = append(handled, m.Content)
				if m.ID == second.ID {
					return errors.New("not now")
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"one", "two"}, handled)
			assert.Equal(t, MailStatus{UnreadCount: 2, Processed: 1, Outbox: 1}, status)

			unread, err = mb.CheckMail(ctx)
			require.NoError(t, err)
			require.Len(t, unread, 1)
			assert.Equal(t, second.ID, unread[0].ID)

			out, err := mb.Outbox(ctx)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, LearningEngine, out[0].Recipient)
		})
	}
}

func TestMailbox_RejectsEmptyMail(t *testing.T) {
	mb := NewMailbox(NewMemoryMailStore(), nil)
	_, err := mb.Send(context.Background(), "", "x", MailInfo)
	assert.ErrorIs(t, err, ErrInvalidMail)
	_, err = mb.Deliver(context.Background(), Mail{Recipient: "Caia"})
	assert.ErrorIs(t, err, ErrInvalidMail)
}

func TestBadgerMailStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenBadgerMailStore(dir, nil)
	require.NoError(t, err)
	mb := NewMailbox(store, nil)
	m, err := mb.Deliver(ctx, Mail{Recipient: "Caia", Content: "persist me", Type: MailLesson})
	require.NoError(t, err)
	require.NoError(t, mb.Close())

	store, err = OpenBadgerMailStore(dir, nil)
	require.NoError(t, err)
	mb = NewMailbox(store, nil)
	defer mb.Close()

	unread, err := mb.CheckMail(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, m.ID, unread[0].ID)
	assert.Equal(t, "persist me", unread[0].Content)
}

func TestBadgerMailStore_SkipsUndecodableMail(t *testing.T) {
	ctx := context.Background()
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	defer db.Close()

	log := logging.NewTestLogger()
	store, err := NewBadgerMailStore(db, log.Underlying())
	require.NoError(t, err)
	mb := NewMailbox(store, nil)

	good, err := mb.Deliver(ctx, Mail{Recipient: "Caia", Content: "still readable", Type: MailLesson})
	require.NoError(t, err)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set(mailKey(Inbox, "00BROKEN"), []byte("{not json"))
	}))
	before := testutil.ToFloat64(mailCorrupt.WithLabelValues(string(Inbox)))

	unread, err := mb.CheckMail(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, good.ID, unread[0].ID)

	log.AssertLogged(t, zapcore.WarnLevel, "skipping undecodable mail")
	log.AssertField(t, "skipping undecodable mail", "box", "inbox")
	assert.Equal(t, 1.0, testutil.ToFloat64(mailCorrupt.WithLabelValues(string(Inbox)))-before)
}
