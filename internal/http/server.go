package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer wraps a gin engine in an http.Server with sane timeouts.
// WriteTimeout stays zero so long-polling work requests are not cut off.
func NewServer(addr string, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		WriteTimeout:      0,
	}
}
