package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/calderhq/calder/internal/compiler"
	"github.com/calderhq/calder/internal/http/response"
	"github.com/calderhq/calder/internal/metrics"
	"github.com/calderhq/calder/internal/pkg/dbctx"
	pkgerrors "github.com/calderhq/calder/internal/pkg/errors"
	"github.com/calderhq/calder/internal/services"
	"github.com/calderhq/calder/internal/types"
)

type ChainHandler struct {
	chains  services.ChainService
	metrics *metrics.Metrics
}

func NewChainHandler(chains services.ChainService, m *metrics.Metrics) *ChainHandler {
	return &ChainHandler{chains: chains, metrics: m}
}

type parseRequest struct {
	Content        string  `json:"content"`
	TenantID       string  `json:"tenant_id"`
	SourceFilePath *string `json:"source_file_path,omitempty"`
	RepositoryURL  *string `json:"repository_url,omitempty"`
	CommitSHA      *string `json:"commit_sha,omitempty"`
	Branch         *string `json:"branch,omitempty"`
	Trigger        *string `json:"trigger,omitempty"`
	TriggerRef     *string `json:"trigger_ref,omitempty"`
}

// Parse compiles a workflow document and stores the resulting chain. A
// trigger in the request must be one the workflow declares; without one the
// declared triggers are not checked.
func (h *ChainHandler) Parse(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
		return
	}
	if req.Content == "" {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest,
			errors.New("content is required"))
		return
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest,
			fmt.Errorf("invalid tenant_id: %s", req.TenantID))
		return
	}

	wctx := &compiler.WorkflowContext{
		TenantID:       tenantID,
		SourceFilePath: req.SourceFilePath,
		RepositoryURL:  req.RepositoryURL,
		CommitSHA:      req.CommitSHA,
		Branch:         req.Branch,
		TriggerRef:     req.TriggerRef,
	}
	if req.Trigger != nil && *req.Trigger != "" {
		trigger, err := types.ParseTriggerType(*req.Trigger)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest, err)
			return
		}
		wctx.Trigger = &trigger
	}

	dbc := dbctx.New(c.Request.Context())
	result, err := h.chains.CompileAndStore(dbc, req.Content, wctx)
	if compiler.IsError(err) {
		response.RespondError(c, http.StatusBadRequest, response.CodeParseError, err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, response.CodeDatabaseError, err)
		return
	}

	h.metrics.ChainCompiled()
	response.RespondOK(c, gin.H{
		"chain_id":       result.ChainID,
		"fragment_count": result.FragmentCount,
		"message":        "workflow parsed and stored successfully",
	})
}

func (h *ChainHandler) Get(c *gin.Context) {
	chainID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, response.CodeInvalidRequest,
			fmt.Errorf("invalid chain id: %s", c.Param("id")))
		return
	}

	dbc := dbctx.New(c.Request.Context())
	chain, fragments, err := h.chains.Get(dbc, chainID)
	if errors.Is(err, pkgerrors.ErrChainNotFound) {
		response.RespondError(c, http.StatusNotFound, response.CodeChainNotFound, err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, response.CodeDatabaseError, err)
		return
	}

	response.RespondOK(c, gin.H{
		"chain":     chain,
		"fragments": fragments,
	})
}
