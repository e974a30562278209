package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes shared by the orchestrator and parser APIs.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeWorkerNotFound   = "WORKER_NOT_FOUND"
	CodeFragmentNotFound = "FRAGMENT_NOT_FOUND"
	CodeChainNotFound    = "CHAIN_NOT_FOUND"
	CodeParseError       = "PARSE_ERROR"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
