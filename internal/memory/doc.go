// Package memory is the experience-memory orchestrator. A Service owns the
// process-wide state (record cache, rule scores, wisdom, sessions, identity,
// sentinel, mailbox) and exposes save, recall, think, record_outcome and
// initialize_session.
//
// Collaborator failures degrade: recall and think return no memories and
// the "analyze" fallback decision instead of an error.
package memory
