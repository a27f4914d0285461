package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rvergara/maestro/internal/store"
	"github.com/rvergara/maestro/pkg/schema"
)

const maxSubmissionBytes = 64 << 10

// handleSubmit runs a workflow. Synchronous submissions block until the
// instance is terminal and return its full snapshot; asynchronous ones return
// 202 with the workflow id.
func (s *Server) handleSubmit(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSubmissionBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read request body: "+err.Error())
	}

	sub, err := s.validator.Validate(body)
	if err != nil {
		return httpError(err)
	}

	wfType := sub.WorkflowType
	if wfType == "" {
		wfType = s.deps.DefaultType
	}

	if sub.Async {
		id, err := s.deps.Orchestrator.Start(wfType, sub.Request)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusAccepted, map[string]string{
			"workflow_id": id,
			"status":      string(schema.WorkflowStatusRunning),
		})
	}

	snap, err := s.deps.Orchestrator.Execute(c.Request().Context(), wfType, sub.Request)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

// handleGet serves an instance snapshot, checking running instances before
// the archive. A jq expression in ?q projects the snapshot.
func (s *Server) handleGet(c echo.Context) error {
	id := c.Param("id")

	var doc map[string]any
	if snap, ok := s.deps.Orchestrator.Snapshot(id); ok {
		raw, err := json.Marshal(snap)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	} else {
		wf, err := s.deps.Store.GetWorkflow(c.Request().Context(), id)
		if err != nil {
			return httpError(err)
		}
		if err := json.Unmarshal(wf.Snapshot, &doc); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "decode archived snapshot: "+err.Error())
		}
	}

	if expr := c.QueryParam("q"); expr != "" {
		result, err := s.deps.Queries.Query(c.Request().Context(), expr, doc)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, map[string]any{"workflow_id": id, "result": result})
	}
	return c.JSON(http.StatusOK, doc)
}

// handleList serves archived workflows with optional status/type filters.
func (s *Server) handleList(c echo.Context) error {
	filter := store.WorkflowFilter{
		Type:     c.QueryParam("type"),
		Category: c.QueryParam("category"),
		Limit:    queryInt(c, "limit", 50),
		Offset:   queryInt(c, "offset", 0),
	}
	if v := c.QueryParam("status"); v != "" {
		ws := schema.WorkflowStatus(v)
		switch ws {
		case schema.WorkflowStatusCreated, schema.WorkflowStatusRunning,
			schema.WorkflowStatusCompleted, schema.WorkflowStatusFailed:
			filter.Status = &ws
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "unknown status: "+v)
		}
	}
	if v := c.QueryParam("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC3339: "+err.Error())
		}
		filter.Since = &ts
	}

	workflows, err := s.deps.Store.ListWorkflows(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	if workflows == nil {
		workflows = []*store.Workflow{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

func (s *Server) handleMetricsSummary(c echo.Context) error {
	report, err := s.deps.Metrics.Report(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleMetricsComparison(c echo.Context) error {
	cmp, err := s.deps.Metrics.Comparison(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cmp)
}

// queryInt extracts an integer query param with a default value.
func queryInt(c echo.Context, key string, def int) int {
	v := c.QueryParam(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
