package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/calderhq/calder/internal/http/response"
)

type HealthHandler struct {
	service string
}

func NewHealthHandler(service string) *HealthHandler {
	return &HealthHandler{service: service}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response.RespondOK(c, gin.H{"status": "ok", "service": h.service})
}
