package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/palmerwenzel/chat-genius-sub000/internal/models"
	"github.com/palmerwenzel/chat-genius-sub000/internal/ratelimit"
	"github.com/palmerwenzel/chat-genius-sub000/internal/repositories"
	"github.com/palmerwenzel/chat-genius-sub000/internal/search"
)

const searchCandidateLimit = 200

// SearchHandler serves ranked in-channel message search.
type SearchHandler struct {
	messages repositories.MessageRepository
	limiter  *ratelimit.Limiter
	logger   zerolog.Logger
}

func NewSearchHandler(messages repositories.MessageRepository, limiter *ratelimit.Limiter, logger zerolog.Logger) *SearchHandler {
	return &SearchHandler{messages: messages, limiter: limiter, logger: logger}
}

type searchResult struct {
	Message   models.Message `json:"message"`
	Highlight string         `json:"highlight"`
	Score     float64        `json:"score"`
}

// Search fetches substring candidates from the store and ranks them with
// highlighted snippets, best score first.
func (h *SearchHandler) Search(c *gin.Context) {
	channelID, ok := pathUUID(c, "channel_id")
	if !ok {
		return
	}
	userID, ok := mustUserID(c)
	if !ok {
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	if !enforceLimit(c, h.limiter, userID, "search", "query") {
		return
	}

	candidates, err := h.messages.SearchChannel(c.Request.Context(), channelID, query, searchCandidateLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	results := make([]searchResult, 0, len(candidates))
	for _, msg := range candidates {
		ranked := search.Rank(msg.Content, query)
		if ranked.Score <= 0 {
			continue
		}
		results = append(results, searchResult{
			Message:   msg,
			Highlight: ranked.Highlight,
			Score:     ranked.Score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	c.JSON(http.StatusOK, gin.H{"results": results})
}
