package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Mail types.
const (
	MailLesson = "lesson"
	MailInfo   = "info"
)

// LearningEngine is the recipient of lesson mail sent on save.
const LearningEngine = "learning_engine"

// ErrInvalidMail is returned for mail without content or recipient.
var ErrInvalidMail = errors.New("invalid mail")

// Mail is one message in the inbox or outbox.
type Mail struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender,omitempty"`
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	SentAt    time.Time `json:"sent_at"`
}

// MailStore persists the two boxes and the processed set.
type MailStore interface {
	Append(ctx context.Context, box Box, m Mail) error
	List(ctx context.Context, box Box) ([]Mail, error)
	// MarkProcessed records id as processed. It reports false when id is
	// not in the inbox or was already processed.
	MarkProcessed(ctx context.Context, id string) (bool, error)
	IsProcessed(ctx context.Context, id string) (bool, error)
	ProcessedCount(ctx context.Context) (int, error)
	Close() error
}

// Box names a mailbox side.
type Box string

const (
	Inbox  Box = "inbox"
	Outbox Box = "outbox"
)

// MailStatus summarizes a drain.
type MailStatus struct {
	UnreadCount int `json:"unread_count"`
	Processed   int `json:"processed"`
	Outbox      int `json:"outbox"`
}

// Mailbox delivers lessons between the memory and external learners with
// at-least-once semantics: mail stays unread until processed.
type Mailbox struct {
	store  MailStore
	logger *zap.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewMailbox wraps store.
func NewMailbox(store MailStore, logger *zap.Logger) *Mailbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailbox{
		store:   store,
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (mb *Mailbox) newID(t time.Time) (string, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), mb.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (mb *Mailbox) stamp(m Mail) (Mail, error) {
	if m.Content == "" || m.Recipient == "" {
		return m, fmt.Errorf("%w: recipient and content are required", ErrInvalidMail)
	}
	if m.Type == "" {
		m.Type = MailInfo
	}
	if m.SentAt.IsZero() {
		m.SentAt = mb.now().UTC()
	}
	if m.ID == "" {
		id, err := mb.newID(m.SentAt)
		if err != nil {
			return m, err
		}
		m.ID = id
	}
	return m, nil
}

// Send appends to the outbox.
func (mb *Mailbox) Send(ctx context.Context, recipient, content, mailType string) (Mail, error) {
	m, err := mb.stamp(Mail{Recipient: recipient, Content: content, Type: mailType})
	if err != nil {
		return m, err
	}
	if err := mb.store.Append(ctx, Outbox, m); err != nil {
		return m, fmt.Errorf("sending mail: %w", err)
	}
	mailMessages.WithLabelValues(string(Outbox)).Inc()
	mb.logger.Debug("mail sent", zap.String("id", m.ID), zap.String("recipient", recipient), zap.String("type", m.Type))
	return m, nil
}

// Deliver appends inbound mail to the inbox.
func (mb *Mailbox) Deliver(ctx context.Context, m Mail) (Mail, error) {
	m, err := mb.stamp(m)
	if err != nil {
		return m, err
	}
	if err := mb.store.Append(ctx, Inbox, m); err != nil {
		return m, fmt.Errorf("delivering mail: %w", err)
	}
	mailMessages.WithLabelValues(string(Inbox)).Inc()
	return m, nil
}

// CheckMail returns inbox entries not yet processed, oldest first.
func (mb *Mailbox) CheckMail(ctx context.Context) ([]Mail, error) {
	all, err := mb.store.List(ctx, Inbox)
	if err != nil {
		return nil, err
	}
	unread := make([]Mail, 0, len(all))
	for _, m := range all {
		done, err := mb.store.IsProcessed(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if !done {
			unread = append(unread, m)
		}
	}
	return unread, nil
}

// ProcessMail marks id processed. It returns false if id is unknown or was
// already processed.
func (mb *Mailbox) ProcessMail(ctx context.Context, id string) (bool, error) {
	return mb.store.MarkProcessed(ctx, id)
}

// Outbox returns sent mail.
func (mb *Mailbox) Outbox(ctx context.Context) ([]Mail, error) {
	return mb.store.List(ctx, Outbox)
}

// Drain processes every unread inbox entry, calling handle first for each.
// A mail whose handler fails stays unread.
func (mb *Mailbox) Drain(ctx context.Context, handle func(Mail) error) (MailStatus, error) {
	unread, err := mb.CheckMail(ctx)
	if err != nil {
		return MailStatus{}, err
	}
	for _, m := range unread {
		if handle != nil {
			if err := handle(m); err != nil {
				mb.logger.Warn("mail handler failed", zap.String("id", m.ID), zap.Error(err))
				continue
			}
		}
		if _, err := mb.store.MarkProcessed(ctx, m.ID); err != nil {
			return MailStatus{}, err
		}
	}

	status := MailStatus{UnreadCount: len(unread)}
	if status.Processed, err = mb.store.ProcessedCount(ctx); err != nil {
		return status, err
	}
	out, err := mb.store.List(ctx, Outbox)
	if err != nil {
		return status, err
	}
	status.Outbox = len(out)
	return status, nil
}

// Close closes the store.
func (mb *Mailbox) Close() error {
	return mb.store.Close()
}

// MemoryMailStore keeps mail in process memory.
type MemoryMailStore struct {
	mu        sync.Mutex
	boxes     map[Box][]Mail
	processed map[string]bool
}

// NewMemoryMailStore returns an empty store.
func NewMemoryMailStore() *MemoryMailStore {
	return &MemoryMailStore{
		boxes:     map[Box][]Mail{},
		processed: map[string]bool{},
	}
}

func (s *MemoryMailStore) Append(_ context.Context, box Box, m Mail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boxes[box] = append(s.boxes[box], m)
	return nil
}

func (s *MemoryMailStore) List(_ context.Context, box Box) ([]Mail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Mail(nil), s.boxes[box]...), nil
}

func (s *MemoryMailStore) MarkProcessed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processed[id] {
		return false, nil
	}
	for _, m := range s.boxes[Inbox] {
		if m.ID == id {
			s.processed[id] = true
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryMailStore) IsProcessed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[id], nil
}

func (s *MemoryMailStore) ProcessedCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed), nil
}

func (s *MemoryMailStore) Close() error { return nil }
