package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pointlock/pointlock-backend/internal/service"
	"github.com/pointlock/pointlock-backend/pkg/logger"
)

type QueueHandler struct {
	queueService *service.QueueService
}

func NewQueueHandler(queueService *service.QueueService) *QueueHandler {
	return &QueueHandler{queueService: queueService}
}

type JoinQueueRequest struct {
	GameMode    string `json:"gameMode" binding:"required"`
	StakeAmount int64  `json:"stakeAmount" binding:"required"`
	EntrySetID  string `json:"entrySetId" binding:"required"`
}

// JoinQueue 대기열 입장. 스테이크가 즉시 차감된다.
func (h *QueueHandler) JoinQueue(c *gin.Context) {
	var req JoinQueueRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	userID := c.GetString("userID")

	entry, err := h.queueService.Enqueue(c.Request.Context(), service.EnqueueRequest{
		UserID:         userID,
		GameMode:       req.GameMode,
		StakeAmount:    req.StakeAmount,
		EntrySetID:     req.EntrySetID,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidStake),
			errors.Is(err, service.ErrEntrySetEmpty):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrEntrySetNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrAlreadyQueued), errors.Is(err, service.ErrEntrySetLocked):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient funds"})
		default:
			logger.Error("Failed to join queue", "userId", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join queue"})
		}
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// LeaveQueue 대기열 이탈 및 스테이크 환불
func (h *QueueHandler) LeaveQueue(c *gin.Context) {
	userID := c.GetString("userID")
	gameMode := c.Param("gameMode")

	cancelled, err := h.queueService.LeaveQueue(userID, gameMode)
	if err != nil {
		if errors.Is(err, service.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not in queue"})
			return
		}

		logger.Error("Failed to leave queue", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave queue"})
		return
	}

	if !cancelled {
		// 취소 경쟁에서 진 경우 (이미 매칭됐거나 만료됨)
		c.JSON(http.StatusConflict, gin.H{
			"error": "Entry is no longer cancellable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// GetQueueStatus 대기열 위치 및 상태 조회. 대기 중이 아니어도 200에
// entry=null로 응답한다.
func (h *QueueHandler) GetQueueStatus(c *gin.Context) {
	userID := c.GetString("userID")
	gameMode := c.Param("gameMode")

	status, err := h.queueService.Status(userID, gameMode)
	if err != nil {
		logger.Error("Failed to get queue status", "userId", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get queue status"})
		return
	}

	c.JSON(http.StatusOK, status)
}
