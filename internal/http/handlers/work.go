package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/http/response"
	"github.com/calderhq/calder/internal/metrics"
	"github.com/calderhq/calder/internal/pkg/dbctx"
	pkgerrors "github.com/calderhq/calder/internal/pkg/errors"
	"github.com/calderhq/calder/internal/services"
)

type WorkHandler struct {
	scheduler services.SchedulerService
	metrics   *metrics.Metrics
}

func NewWorkHandler(scheduler services.SchedulerService, m *metrics.Metrics) *WorkHandler {
	return &WorkHandler{scheduler: scheduler, metrics: m}
}

type workRequest struct {
	WorkerID string `json:"worker_id"`
}

// Request hands the worker its next fragment, or 204 when nothing is ready.
func (h *WorkHandler) Request(c *gin.Context) {
	var req workRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
		return
	}
	workerID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest,
			fmt.Errorf("invalid worker_id: %s", req.WorkerID))
		return
	}

	dbc := dbctx.New(c.Request.Context())
	assignment, err := h.scheduler.FindAndClaimWork(dbc, workerID)
	if errors.Is(err, pkgerrors.ErrWorkerNotFound) {
		response.RespondError(c, http.StatusNotFound, response.CodeWorkerNotFound, err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, response.CodeDatabaseError, err)
		return
	}
	if assignment == nil {
		c.Status(http.StatusNoContent)
		return
	}

	h.metrics.FragmentAssigned()
	response.RespondOK(c, assignment)
}

type workResultRequest struct {
	WorkerID     string  `json:"worker_id"`
	FragmentID   string  `json:"fragment_id"`
	Success      bool    `json:"success"`
	ExitCode     *int    `json:"exit_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func (h *WorkHandler) Report(c *gin.Context) {
	var req workResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
		return
	}
	workerID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest,
			fmt.Errorf("invalid worker_id: %s", req.WorkerID))
		return
	}
	fragmentID, err := uuid.Parse(req.FragmentID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest,
			fmt.Errorf("invalid fragment_id: %s", req.FragmentID))
		return
	}

	dbc := dbctx.New(c.Request.Context())
	status, err := h.scheduler.ReportResult(dbc, workerID, fragmentID, req.Success, req.ExitCode, req.ErrorMessage)
	if errors.Is(err, pkgerrors.ErrWorkerNotFound) {
		response.RespondError(c, http.StatusNotFound, response.CodeWorkerNotFound, err)
		return
	}
	if errors.Is(err, pkgerrors.ErrFragmentNotFound) {
		response.RespondError(c, http.StatusNotFound, response.CodeFragmentNotFound, err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, response.CodeDatabaseError, err)
		return
	}

	h.metrics.FragmentReported(string(status))
	response.RespondOK(c, gin.H{
		"status":          "ok",
		"fragment_status": status,
	})
}
