// Package http exposes the memory service over an echo HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/expmem/internal/learning"
	"github.com/fyrsmithlabs/expmem/internal/logging"
	"github.com/fyrsmithlabs/expmem/internal/memory"
	"github.com/fyrsmithlabs/expmem/internal/session"
)

// Memory is the orchestrator surface the API serves. *memory.Service
// implements it.
type Memory interface {
	Save(ctx context.Context, exp memory.Experience) (memory.SaveResult, error)
	Recall(ctx context.Context, query string, topK int, rctx map[string]any) ([]memory.Record, error)
	Think(ctx context.Context, query string, tctx map[string]any, topK int) (memory.ThinkResult, error)
	RecordOutcome(ctx context.Context, input map[string]any, out learning.Output, feedback any) learning.Result
	MeasureGrowth() learning.Growth
	Reflect() memory.SelfReflection
	InitializeSession(ctx context.Context, chatID string) (memory.SessionStart, error)
	DeliverMail(ctx context.Context, m session.Mail) (session.Mail, error)
	Sentinel() session.Report
	MemoryCount() int
}

// Server provides HTTP endpoints for expmem.
type Server struct {
	echo    *echo.Echo
	memory  Memory
	logger  *zap.Logger
	config  *Config
	metrics *apiMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	return rv.v.Struct(i)
}

// NewServer creates a new HTTP server.
func NewServer(mem Memory, logger *zap.Logger, cfg *Config) (*Server, error) {
	if mem == nil {
		return nil, fmt.Errorf("memory service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}

	s := &Server{
		echo:    e,
		memory:  mem,
		logger:  logger,
		config:  cfg,
		metrics: newAPIMetrics(nil, logger),
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := append(logging.ContextFields(c.Request().Context()),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			logger.Info("http request", fields...)
			return nil
		}
	})

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/experiences", s.handleSave)
	v1.POST("/recall", s.handleRecall)
	v1.POST("/think", s.handleThink)
	v1.POST("/outcomes", s.handleOutcome)
	v1.GET("/growth", s.handleGrowth)
	v1.GET("/reflection", s.handleReflection)
	v1.POST("/sessions/:chat_id", s.handleInitializeSession)
	v1.POST("/mail", s.handleMail)
}

// handleError renders every error as an ErrorResponse.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", append(logging.ContextFields(c.Request().Context()), zap.Error(err))...)
	}
	_ = c.JSON(code, ErrorResponse{
		Error:     msg,
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
	})
}

func (s *Server) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// withChatID tags the request context with a chat id found in a request
// context map.
func withChatID(c echo.Context, rctx map[string]any) context.Context {
	ctx := c.Request().Context()
	if id, _ := rctx["chat_id"].(string); id != "" {
		ctx = logging.WithChatID(ctx, id)
	}
	return ctx
}

func (s *Server) handleHealth(c echo.Context) error {
	report := s.memory.Sentinel()
	status := "ok"
	if !report.Healthy {
		status = "degraded"
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:      status,
		Version:     s.config.Version,
		MemoryCount: s.memory.MemoryCount(),
		Sentinel:    report,
	})
}

func (s *Server) handleSave(c echo.Context) error {
	var req SaveRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	res, err := s.memory.Save(c.Request().Context(), memory.Experience{
		Content:    req.Content,
		Tags:       req.Tags,
		Reflection: req.Reflection,
	})
	switch {
	case errors.Is(err, memory.ErrInvalidExperience):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "memory store unavailable").SetInternal(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) handleRecall(c echo.Context) error {
	var req RecallRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	records, err := s.memory.Recall(withChatID(c, req.Context), req.Query, req.TopK, req.Context)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, RecallResponse{Memories: records, Count: len(records)})
}

func (s *Server) handleThink(c echo.Context) error {
	var req ThinkRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	res, err := s.memory.Think(withChatID(c, req.Context), req.Query, req.Context, req.TopK)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleOutcome(c echo.Context) error {
	var req OutcomeRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	res := s.memory.RecordOutcome(c.Request().Context(), req.Input, req.Output, req.Feedback)
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleGrowth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.memory.MeasureGrowth())
}

func (s *Server) handleReflection(c echo.Context) error {
	return c.JSON(http.StatusOK, s.memory.Reflect())
}

func (s *Server) handleInitializeSession(c echo.Context) error {
	chatID := c.Param("chat_id")
	ctx := logging.WithChatID(c.Request().Context(), chatID)
	res, err := s.memory.InitializeSession(ctx, chatID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleMail(c echo.Context) error {
	var req MailRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	m, err := s.memory.DeliverMail(c.Request().Context(), session.Mail{
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Content:   req.Content,
		Type:      req.Type,
	})
	switch {
	case errors.Is(err, session.ErrInvalidMail):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "mailbox unavailable").SetInternal(err)
	}
	return c.JSON(http.StatusAccepted, m)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}
