package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/executor"
	"github.com/fyrsmithlabs/taskd/internal/llm"
	"github.com/fyrsmithlabs/taskd/internal/orchestrator"
	"github.com/fyrsmithlabs/taskd/internal/plan"
	"github.com/fyrsmithlabs/taskd/internal/taskcontext"
	"github.com/fyrsmithlabs/taskd/internal/tools"
)

const maxImportSize = 8 << 20

// RunRequest is the request body for POST /api/v1/agents/:agent/tasks.
type RunRequest struct {
	Task   string `json:"task"`
	TaskID string `json:"task_id,omitempty"`
}

// SubmitResponse is returned for asynchronous runs.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// ResumeRequest is the request body for POST .../:task/resume.
type ResumeRequest struct {
	Token  string `json:"token"`
	Choice string `json:"choice"`
}

// CompressRequest is the optional request body for POST .../:task/compress.
type CompressRequest struct {
	Budget int `json:"budget,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a failed run's outcome.
type ErrorResponse struct {
	Error   string                `json:"error"`
	Outcome *orchestrator.Outcome `json:"outcome,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleRun(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid run request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Task == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task field is required")
	}
	preq := plan.Request{AgentID: c.Param("agent"), TaskID: req.TaskID, Task: req.Task}

	if async, _ := strconv.ParseBool(c.QueryParam("async")); async {
		if s.deps.Dispatcher == nil {
			return echo.NewHTTPError(http.StatusNotImplemented, "asynchronous runs are not enabled")
		}
		id, err := s.deps.Dispatcher.Submit(preq)
		if err != nil {
			return s.mapError(err)
		}
		return c.JSON(http.StatusAccepted, SubmitResponse{TaskID: id, Status: "queued"})
	}

	out, err := s.deps.Runner.Run(c.Request().Context(), preq)
	if err != nil {
		return s.outcomeError(c, out, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleResume(c echo.Context) error {
	var req ResumeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" || req.Choice == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token and choice are required")
	}
	out, err := s.deps.Runner.Resume(c.Request().Context(), c.Param("agent"), c.Param("task"), req.Token, req.Choice)
	if err != nil {
		return s.outcomeError(c, out, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleList(c echo.Context) error {
	list, err := s.deps.Store.ListTasks(c.Request().Context(), c.Param("agent"))
	if err != nil {
		return s.mapError(err)
	}
	if list == nil {
		list = []taskcontext.TaskInfo{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleSummary(c echo.Context) error {
	sum, err := s.deps.Store.GetSummary(c.Request().Context(), c.Param("agent"), c.Param("task"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) handleCompress(c echo.Context) error {
	if s.deps.Summarizer == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "compression is not enabled")
	}
	var req CompressRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	budget := req.Budget
	if budget <= 0 {
		budget = s.deps.Budget
	}
	if budget <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "budget must be positive")
	}
	res, err := s.deps.Store.Compress(c.Request().Context(), c.Param("agent"), c.Param("task"), budget, s.deps.Summarizer)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleExport(c echo.Context) error {
	data, err := s.deps.Store.Export(c.Request().Context(), c.Param("agent"), c.Param("task"))
	if err != nil {
		return s.mapError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+c.Param("task")+`.json"`)
	return c.JSONBlob(http.StatusOK, data)
}

func (s *Server) handleImport(c echo.Context) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportSize+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	if len(data) > maxImportSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "document too large")
	}
	overwrite, _ := strconv.ParseBool(c.QueryParam("overwrite"))

	tc, err := s.deps.Store.Import(c.Request().Context(), c.Param("agent"), data, overwrite)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, SubmitResponse{TaskID: tc.TaskID, Status: string(tc.Status)})
}

// outcomeError reports a failed run, keeping the partial outcome.
func (s *Server) outcomeError(c echo.Context, out *orchestrator.Outcome, err error) error {
	var ge *llm.GenerationError
	if errors.As(err, &ge) {
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error(), Outcome: out})
	}
	return s.mapError(err)
}

// mapError translates domain errors to HTTP errors.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, taskcontext.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	case errors.Is(err, taskcontext.ErrTaskExists):
		return echo.NewHTTPError(http.StatusConflict, "task already exists")
	case errors.Is(err, taskcontext.ErrInvalidID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, taskcontext.ErrInvalidDocument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrNoPendingConfirmation):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrTokenMismatch), errors.Is(err, executor.ErrStepMismatch):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, tools.ErrInvalidChoice):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, orchestrator.ErrTaskBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrQueueFull), errors.Is(err, orchestrator.ErrDispatcherClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	s.logger.Error("request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
