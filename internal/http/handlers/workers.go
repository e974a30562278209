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

type WorkerHandler struct {
	workers services.WorkerService
	metrics *metrics.Metrics
}

func NewWorkerHandler(workers services.WorkerService, m *metrics.Metrics) *WorkerHandler {
	return &WorkerHandler{workers: workers, metrics: m}
}

type registerRequest struct {
	TenantID     string  `json:"tenant_id"`
	MachineGroup *string `json:"machine_group,omitempty"`
}

func (h *WorkerHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
		return
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest,
			fmt.Errorf("invalid tenant_id: %s", req.TenantID))
		return
	}

	dbc := dbctx.New(c.Request.Context())
	worker, err := h.workers.Register(dbc, tenantID, req.MachineGroup)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, response.CodeDatabaseError, err)
		return
	}

	h.metrics.WorkerRegistered()
	response.RespondOK(c, gin.H{
		"worker_id": worker.ID,
		"status":    worker.Status,
	})
}

type heartbeatRequest struct {
	WorkerID string `json:"worker_id"`
}

func (h *WorkerHandler) Heartbeat(c *gin.Context) {
	var req heartbeatRequest
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
	ts, err := h.workers.Heartbeat(dbc, workerID)
	if errors.Is(err, pkgerrors.ErrWorkerNotFound) {
		response.RespondError(c, http.StatusNotFound, response.CodeWorkerNotFound, err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, response.CodeDatabaseError, err)
		return
	}

	response.RespondOK(c, gin.H{
		"status":    "ok",
		"timestamp": ts,
	})
}

func (h *WorkerHandler) Busy(c *gin.Context) {
	workerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest,
			fmt.Errorf("invalid worker id: %s", c.Param("id")))
		return
	}

	dbc := dbctx.New(c.Request.Context())
	busy, fragmentID, err := h.workers.Busy(dbc, workerID)
	if errors.Is(err, pkgerrors.ErrWorkerNotFound) {
		response.RespondError(c, http.StatusNotFound, response.CodeWorkerNotFound, err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, response.CodeDatabaseError, err)
		return
	}

	response.RespondOK(c, gin.H{
		"busy":        busy,
		"fragment_id": fragmentID,
	})
}
