package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wikirag/internal/domain"
	"wikirag/internal/logger"
	"wikirag/internal/service"
)

// Answerer is the query path used by the handler.
type Answerer interface {
	Answer(ctx context.Context, question string, minScore float64, collection string) service.Answer
}

type Handler struct {
	answerer        Answerer
	store           domain.FingerprintStore
	defaultMinScore float64
}

func NewHandler(answerer Answerer, store domain.FingerprintStore, defaultMinScore float64) *Handler {
	return &Handler{answerer: answerer, store: store, defaultMinScore: defaultMinScore}
}

// Document is a fingerprint record as listed by GET /documents.
type Document struct {
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name"`
	Hash        string `json:"hash"`
	IngestedAt  string `json:"ingested_at"`
	ChunksCount int    `json:"chunks_count"`
	Collection  string `json:"collection"`
}

type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	// MinScore defaults to the configured floor when absent.
	MinScore   *float64 `json:"min_score"`
	Collection string   `json:"collection"`
}

func (h *Handler) Documents(c *gin.Context) {
	records, err := h.store.List(c.Request.Context())
	if err != nil {
		logger.L().Error("list documents", "error", err)
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	docs := make([]Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, Document{
			FilePath:    r.FilePath,
			FileName:    r.FileName(),
			Hash:        r.Hash,
			IngestedAt:  r.IngestedAt.Format(time.RFC3339Nano),
			ChunksCount: r.ChunksCount,
			Collection:  r.Collection,
		})
	}
	c.JSON(http.StatusOK, docs)
}

// Query answers a question. Service failures are reported as {"error": ...}
// with status 200, matching the answer payload contract.
func (h *Handler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	minScore := h.defaultMinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	ans := h.answerer.Answer(c.Request.Context(), req.Question, minScore, req.Collection)
	if ans.Error != "" {
		c.JSON(http.StatusOK, gin.H{"error": ans.Error})
		return
	}
	c.JSON(http.StatusOK, ans)
}
