// Package session holds the per-conversation state machine around the
// experience memory: sessions that expire and are silently re-authorized,
// the identity guard, the sentinel health indicators, and the lesson
// mailbox.
package session
