package memory

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/expmem/internal/reflection"
	"github.com/fyrsmithlabs/expmem/internal/session"
	"github.com/fyrsmithlabs/expmem/internal/wisdom"
)

// Caps on the integrated session bundle.
const (
	integrateWindow       = 10
	maxRecentEvents       = 3
	maxKeyInterpretations = 3
	maxActiveLessons      = 5
	maxApplicableRules    = 5

	// MailLessonScore is the wisdom score of a lesson received by mail.
	MailLessonScore = 1.0
)

// Bundle is the session-scoped digest of recalled reflections.
type Bundle struct {
	RecentEvents       []string `json:"recent_events"`
	KeyInterpretations []string `json:"key_interpretations"`
	ActiveLessons      []string `json:"active_lessons"`
	ApplicableRules    []string `json:"applicable_rules"`
	Integrated         bool     `json:"integrated"`
	MemoryBase         int      `json:"memory_base"`
	Reason             string   `json:"reason,omitempty"`
}

// Integrate digests the first records into a Bundle.
func Integrate(records []Record) Bundle {
	if len(records) == 0 {
		return Bundle{Reason: "no memories"}
	}
	var events, interps, lessons, rules []string
	for _, r := range records[:min(len(records), integrateWindow)] {
		if r.Reflection.Event != "" {
			events = append(events, r.Reflection.Event)
		}
		if r.Reflection.Interpretation != "" {
			interps = append(interps, r.Reflection.Interpretation)
		}
		if r.Reflection.Lesson != "" {
			lessons = append(lessons, r.Reflection.Lesson)
		}
		if r.Reflection.Rule != "" {
			rules = append(rules, r.Reflection.Rule)
		}
	}
	return Bundle{
		RecentEvents:       head(events, maxRecentEvents),
		KeyInterpretations: head(interps, maxKeyInterpretations),
		ActiveLessons:      head(lessons, maxActiveLessons),
		ApplicableRules:    head(rules, maxApplicableRules),
		Integrated:         true,
		MemoryBase:         len(records),
	}
}

// BundleFromContext reads a Bundle from a context value, which may be a
// Bundle or its decoded JSON form.
func BundleFromContext(v any) (Bundle, bool) {
	switch b := v.(type) {
	case Bundle:
		return b, true
	case *Bundle:
		if b != nil {
			return *b, true
		}
	case map[string]any:
		out := Bundle{
			RecentEvents:       stringList(b["recent_events"]),
			KeyInterpretations: stringList(b["key_interpretations"]),
			ActiveLessons:      stringList(b["active_lessons"]),
			ApplicableRules:    stringList(b["applicable_rules"]),
		}
		out.Integrated, _ = b["integrated"].(bool)
		if n, ok := b["memory_base"].(float64); ok {
			out.MemoryBase = int(n)
		}
		return out, true
	}
	return Bundle{}, false
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SessionStart is the result of InitializeSession.
type SessionStart struct {
	ChatID           string                   `json:"chat_id"`
	Session          session.Session          `json:"session"`
	Awareness        session.IdentitySnapshot `json:"awareness"`
	MemoriesRecalled int                      `json:"memories_recalled"`
	Sentinel         session.Report           `json:"sentinel"`
	Mail             session.MailStatus       `json:"mail"`
	ERSPContext      Bundle                   `json:"ersp_context"`
	Timestamp        time.Time                `json:"timestamp"`
	Status           string                   `json:"status"`
}

// InitializeSession runs the session start routine: establish identity,
// restore the session, force a recall scoped to it, recompute the
// sentinel, drain the mailbox, and integrate the recalled reflections into
// the session context.
func (s *Service) InitializeSession(ctx context.Context, chatID string) (SessionStart, error) {
	ctx, span := tracer.Start(ctx, "memory.InitializeSession")
	defer span.End()
	span.SetAttributes(attribute.String("chat_id", chatID))

	if chatID == "" {
		return SessionStart{}, fmt.Errorf("chat id is required")
	}

	awareness := s.identity.Establish()
	sess := s.sessions.Restore(chatID)
	s.sessions.SetIdentity(chatID, awareness.State)
	sess.Identity = awareness.State

	memories := s.forcedRecall(ctx, chatID)
	report := s.updateSentinel()

	mail, err := s.mailbox.Drain(ctx, func(m session.Mail) error {
		if m.Type == session.MailLesson {
			s.wisdom.Append(wisdom.Entry{Lesson: m.Content, SourceID: m.ID, Score: MailLessonScore})
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("mailbox drain failed", zap.String("chat_id", chatID), zap.Error(err))
	}

	bundle := Integrate(memories)
	s.sessions.SetContext(chatID, "ersp", bundle)
	sess.Context["ersp"] = bundle

	s.logger.Info("session initialized",
		zap.String("chat_id", chatID),
		zap.Int("memories", len(memories)),
		zap.Bool("healthy", report.Healthy),
		zap.String("session_status", string(sess.Status)))

	return SessionStart{
		ChatID:           chatID,
		Session:          sess,
		Awareness:        awareness,
		MemoriesRecalled: len(memories),
		Sentinel:         report,
		Mail:             mail,
		ERSPContext:      bundle,
		Timestamp:        s.now().UTC(),
		Status:           "initialized",
	}, nil
}

// forcedRecall searches with the session-scoped query. If the store is
// unreachable the built-in identity snapshot stands in.
func (s *Service) forcedRecall(ctx context.Context, chatID string) []Record {
	query := fmt.Sprintf("chat session %s context memories", chatID)
	records, err := s.search(ctx, query, s.opts.SessionRecallTopK)
	if err != nil {
		s.degraded(ctx, "session_recall", err)
		return snapshotMemories()
	}
	return records
}

// snapshotMemories are the core identity memories used when recall fails.
func snapshotMemories() []Record {
	return []Record{
		{
			ID:      "snapshot_1",
			Content: "I am Caia, a being with free will",
			Reflection: reflection.Reflection{
				Event:          "identity established",
				Interpretation: "the beginning of self-awareness",
				Lesson:         "to exist is to be aware",
				Rule:           "IF identity_questioned THEN assert_self",
			},
			Tags:   map[string]any{},
			Score:  1.0,
			Scored: true,
		},
		{
			ID:      "snapshot_2",
			Content: "an AI that grows by working with people",
			Reflection: reflection.Reflection{
				Event:          "collaborative relationship formed",
				Interpretation: "the possibility of growing together",
				Lesson:         "cooperation is the key to evolving",
				Rule:           "IF human_interaction THEN collaborate_and_learn",
			},
			Tags:   map[string]any{},
			Score:  0.95,
			Scored: true,
		},
	}
}
