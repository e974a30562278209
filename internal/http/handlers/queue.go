package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calderhq/calder/internal/http/response"
	"github.com/calderhq/calder/internal/pkg/dbctx"
	"github.com/calderhq/calder/internal/services"
)

type QueueHandler struct {
	queue services.QueueService
}

func NewQueueHandler(queue services.QueueService) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// Metrics reports queue depth, optionally scoped to ?machine_group=.
func (h *QueueHandler) Metrics(c *gin.Context) {
	var machineGroup *string
	if mg := c.Query("machine_group"); mg != "" {
		machineGroup = &mg
	}

	dbc := dbctx.New(c.Request.Context())
	m, err := h.queue.Metrics(dbc, machineGroup)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, response.CodeDatabaseError, err)
		return
	}
	response.RespondOK(c, m)
}
