// Package httpapi exposes the query path and the document list over HTTP.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouterConfig holds the server settings the router needs.
type RouterConfig struct {
	GinMode     string
	CORSOrigins []string
}

func SetupRouter(cfg RouterConfig, h *Handler) *gin.Engine {
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(RequestID())
	r.Use(AccessLog())
	r.Use(gin.Recovery())
	r.Use(CORS(cfg.CORSOrigins))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "wikirag API with Qdrant + OpenAI-compatible LLM is running"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/documents", h.Documents)
	r.POST("/query", h.Query)
	return r
}
