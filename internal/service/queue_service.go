package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pointlock/pointlock-backend/internal/models"
	"github.com/pointlock/pointlock-backend/internal/repository"
)

type QueueService struct {
	queueRepo    QueueStore
	entrySetRepo EntrySetStore
	userRepo     UserStore
	ledger       WalletLedger
	trigger      CycleTrigger // nil이면 주기 사이클만 돈다
	queueTTL     time.Duration
	interval     time.Duration
	logger       *zap.Logger
}

func NewQueueService(
	queueRepo QueueStore,
	entrySetRepo EntrySetStore,
	userRepo UserStore,
	ledger WalletLedger,
	trigger CycleTrigger,
	queueTTL, interval time.Duration,
	logger *zap.Logger,
) *QueueService {
	return &QueueService{
		queueRepo:    queueRepo,
		entrySetRepo: entrySetRepo,
		userRepo:     userRepo,
		ledger:       ledger,
		trigger:      trigger,
		queueTTL:     queueTTL,
		interval:     interval,
		logger:       logger,
	}
}

type EnqueueRequest struct {
	UserID         string
	GameMode       string
	StakeAmount    int64
	EntrySetID     string
	IdempotencyKey string
}

// Enqueue 스테이크를 먼저 차감한 뒤 대기열 엔트리를 만든다.
// 엔트리 생성이 실패하면 보상 환불로 차감을 되돌린다.
func (s *QueueService) Enqueue(ctx context.Context, req EnqueueRequest) (*models.QueueEntry, error) {
	if req.UserID == "" || req.GameMode == "" || req.EntrySetID == "" {
		return nil, ErrInvalidInput
	}
	if req.StakeAmount <= 0 {
		return nil, ErrInvalidStake
	}

	user, err := s.userRepo.FindByID(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	existing, err := s.queueRepo.FindWaiting(req.UserID, req.GameMode)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing entry: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyQueued
	}

	set, err := s.entrySetRepo.FindByID(req.EntrySetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entry set: %w", err)
	}
	if set == nil || set.UserID != req.UserID {
		return nil, ErrEntrySetNotFound
	}
	if set.PickCount <= 0 {
		return nil, ErrEntrySetEmpty
	}
	if set.GameMode != req.GameMode {
		return nil, ErrInvalidInput
	}

	locked, err := s.entrySetRepo.Lock(set.ID, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock entry set: %w", err)
	}
	if !locked {
		return nil, ErrEntrySetLocked
	}

	idemKey := req.IdempotencyKey
	if idemKey == "" {
		idemKey = uuid.New().String()
	}
	debitKey := "enqueue:" + idemKey

	debitTx, err := s.ledger.Debit(req.UserID, req.StakeAmount, debitKey,
		fmt.Sprintf("queue stake (%s)", req.GameMode))
	if err != nil {
		s.entrySetRepo.Unlock(set.ID)
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("failed to debit stake: %w", err)
	}

	now := time.Now()
	entry := &models.QueueEntry{
		ID:           uuid.New().String(),
		UserID:       req.UserID,
		GameMode:     req.GameMode,
		Tier:         user.Tier,
		StakeAmount:  req.StakeAmount,
		EntrySetID:   set.ID,
		EntrySetSize: set.PickCount,
		SkillRating:  user.SkillRating,
		Status:       models.EntryStatusWaiting,
		EnqueuedAt:   now,
		ExpiresAt:    now.Add(s.queueTTL),
		DebitTxID:    debitTx.ID,
	}

	if err := s.queueRepo.Insert(entry); err != nil {
		// 차감은 이미 됐으므로 보상 환불
		if _, refundErr := s.ledger.Refund(req.UserID, req.StakeAmount,
			"compensate:"+debitKey, debitTx.ID, "enqueue failed"); refundErr != nil {
			s.logger.Error("compensating refund failed",
				zap.String("userId", req.UserID),
				zap.String("debitTxId", debitTx.ID),
				zap.Error(refundErr))
		}
		s.entrySetRepo.Unlock(set.ID)
		return nil, fmt.Errorf("failed to insert queue entry: %w", err)
	}

	s.logger.Info("user enqueued",
		zap.String("entryId", entry.ID),
		zap.String("userId", req.UserID),
		zap.String("gameMode", req.GameMode),
		zap.Int64("stakeAmount", req.StakeAmount))

	if s.trigger != nil {
		if err := s.trigger.NotifyEntryEnqueued(ctx, req.GameMode, req.UserID); err != nil {
			s.logger.Warn("failed to notify cycle trigger", zap.Error(err))
		}
	}

	return entry, nil
}

// LeaveQueue waiting 엔트리 취소와 스테이크 환불. CAS 전이에 진 경우
// (이미 매칭/만료) false를 반환하고 환불하지 않는다.
func (s *QueueService) LeaveQueue(userID, gameMode string) (bool, error) {
	entry, err := s.queueRepo.FindWaiting(userID, gameMode)
	if err != nil {
		return false, fmt.Errorf("failed to find waiting entry: %w", err)
	}
	if entry == nil {
		return false, ErrEntryNotFound
	}

	ok, err := s.queueRepo.TransitionStatus(entry.ID, entry.Version, models.EntryStatusCancelled)
	if err != nil {
		return false, fmt.Errorf("failed to cancel entry: %w", err)
	}
	if !ok {
		return false, nil
	}

	if err := s.entrySetRepo.Unlock(entry.EntrySetID); err != nil {
		s.logger.Warn("failed to unlock entry set",
			zap.String("entrySetId", entry.EntrySetID), zap.Error(err))
	}

	if _, err := s.ledger.Refund(entry.UserID, entry.StakeAmount,
		"refund:"+entry.ID, entry.DebitTxID, "queue cancelled"); err != nil {
		// 환불 실패는 리퍼가 refunded=false인 터미널 엔트리를 재시도한다
		s.logger.Error("refund failed, reaper will retry",
			zap.String("entryId", entry.ID), zap.Error(err))
		return true, nil
	}

	if err := s.queueRepo.MarkRefunded(entry.ID); err != nil {
		s.logger.Warn("failed to mark entry refunded",
			zap.String("entryId", entry.ID), zap.Error(err))
	}

	s.logger.Info("user left queue",
		zap.String("entryId", entry.ID),
		zap.String("userId", userID))

	return true, nil
}

type QueueStatus struct {
	Entry           *models.QueueEntry `json:"entry"`
	Position        int                `json:"position"`
	RatingRange     int                `json:"ratingRange"`
	EstimatedWaitMs int64              `json:"estimatedWaitMs"`
}

// Status 대기열 위치와 현재 허용 레이팅 폭 조회. 대기 중이 아니면
// Entry가 nil인 상태를 반환한다 (에러가 아님).
func (s *QueueService) Status(userID, gameMode string) (*QueueStatus, error) {
	entry, err := s.queueRepo.FindWaiting(userID, gameMode)
	if err != nil {
		return nil, fmt.Errorf("failed to find waiting entry: %w", err)
	}
	if entry == nil {
		return &QueueStatus{}, nil
	}

	ahead, err := s.queueRepo.CountWaitingAhead(gameMode, entry.EnqueuedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue position: %w", err)
	}

	now := time.Now()
	// 사이클마다 절반 정도 짝이 맞는다고 보는 단순 추정
	cycles := int64(ahead/2) + 1

	return &QueueStatus{
		Entry:           entry,
		Position:        ahead + 1,
		RatingRange:     EntryRatingRange(entry.EnqueuedAt, entry.UserID, now),
		EstimatedWaitMs: cycles * s.interval.Milliseconds(),
	}, nil
}
