package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/rvergara/maestro/internal/engine"
	"github.com/rvergara/maestro/internal/extract"
	"github.com/rvergara/maestro/internal/metrics"
	"github.com/rvergara/maestro/internal/store"
	"github.com/rvergara/maestro/internal/streaming"
	"github.com/rvergara/maestro/internal/validation"
	"github.com/rvergara/maestro/pkg/schema"
)

// Deps holds the dependencies of the HTTP server.
type Deps struct {
	Orchestrator *engine.Orchestrator
	Store        store.Store
	Metrics      *metrics.Service
	Hub          *streaming.Hub
	Queries      *extract.QueryEngine
	Logger       *slog.Logger

	// DefaultType is used when a submission omits workflow_type.
	DefaultType string
}

// Server is the echo HTTP surface over the orchestrator and the archive.
type Server struct {
	deps      Deps
	validator *validation.SubmissionValidator
	echo      *echo.Echo
}

// NewServer builds the server with its routes registered.
func NewServer(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if deps.Queries == nil {
		deps.Queries = extract.NewQueryEngine()
	}

	validator, err := validation.NewSubmissionValidator()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{deps: deps, validator: validator, echo: e}

	e.GET("/healthz", s.handleHealth)

	v1 := e.Group("/api/v1")
	v1.POST("/workflows", s.handleSubmit)
	v1.GET("/workflows", s.handleList)
	v1.GET("/workflows/:id", s.handleGet)
	v1.GET("/workflows/:id/events", s.handleEvents)
	v1.GET("/metrics/summary", s.handleMetricsSummary)
	v1.GET("/metrics/comparison", s.handleMetricsComparison)

	return s, nil
}

// Handler exposes the underlying handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves HTTP on the given address until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// httpError maps structured errors onto HTTP status codes.
func httpError(err error) error {
	var serr *schema.Error
	if !errors.As(err, &serr) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	status := http.StatusInternalServerError
	switch serr.Code {
	case schema.ErrCodeValidation:
		status = http.StatusBadRequest
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeInvalidTransition:
		status = http.StatusConflict
	case schema.ErrCodeStageTimeout, schema.ErrCodeWorkflowTimeout:
		status = http.StatusGatewayTimeout
	}

	body := map[string]any{"code": serr.Code, "message": serr.Message}
	if serr.Stage != "" {
		body["stage"] = serr.Stage
	}
	if len(serr.Details) > 0 {
		body["details"] = serr.Details
	}
	return echo.NewHTTPError(status, body)
}
