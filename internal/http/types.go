package http

import (
	"github.com/fyrsmithlabs/expmem/internal/learning"
	"github.com/fyrsmithlabs/expmem/internal/memory"
	"github.com/fyrsmithlabs/expmem/internal/reflection"
	"github.com/fyrsmithlabs/expmem/internal/session"
)

// MaxTopK bounds top_k on recall and think requests.
const MaxTopK = 100

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status      string         `json:"status"`
	Version     string         `json:"version,omitempty"`
	MemoryCount int            `json:"memory_count"`
	Sentinel    session.Report `json:"sentinel"`
}

// SaveRequest is the request body for POST /api/v1/experiences.
type SaveRequest struct {
	Content    string                 `json:"content" validate:"required"`
	Tags       map[string]any         `json:"tags"`
	Reflection *reflection.Reflection `json:"reflection"`
}

// RecallRequest is the request body for POST /api/v1/recall.
type RecallRequest struct {
	Query   string         `json:"query" validate:"required"`
	TopK    int            `json:"top_k" validate:"gte=0,lte=100"`
	Context map[string]any `json:"context"`
}

// RecallResponse is the response body for POST /api/v1/recall.
type RecallResponse struct {
	Memories []memory.Record `json:"memories"`
	Count    int             `json:"count"`
}

// ThinkRequest is the request body for POST /api/v1/think.
type ThinkRequest struct {
	Query   string         `json:"query" validate:"required"`
	TopK    int            `json:"top_k" validate:"gte=0,lte=100"`
	Context map[string]any `json:"context"`
}

// OutcomeRequest is the request body for POST /api/v1/outcomes. Feedback
// may be a boolean, a number, an object with "success", or absent.
type OutcomeRequest struct {
	Input    map[string]any  `json:"input"`
	Output   learning.Output `json:"output"`
	Feedback any             `json:"feedback"`
}

// MailRequest is the request body for POST /api/v1/mail.
type MailRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient" validate:"required"`
	Content   string `json:"content" validate:"required"`
	Type      string `json:"type" validate:"omitempty,oneof=lesson info"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
