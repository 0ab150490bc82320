package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pointlock/pointlock-backend/internal/service"
	"github.com/pointlock/pointlock-backend/pkg/logger"
)

type MatchHandler struct {
	matchService *service.MatchService
}

func NewMatchHandler(matchService *service.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

// GetMatch 매치 조회
func (h *MatchHandler) GetMatch(c *gin.Context) {
	id := c.Param("id")

	match, err := h.matchService.GetByID(id)
	if err != nil {
		if errors.Is(err, service.ErrMatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
			return
		}

		logger.Error("Failed to get match", "matchId", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get match"})
		return
	}

	c.JSON(http.StatusOK, match)
}

// ListMyMatches 내 매치 히스토리 조회
func (h *MatchHandler) ListMyMatches(c *gin.Context) {
	userID := c.GetString("userID")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	matches, err := h.matchService.ListByUser(userID, page, pageSize)
	if err != nil {
		logger.Error("Failed to list matches", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list matches"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"page":    page,
	})
}
