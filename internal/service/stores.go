package service

import (
	"context"
	"time"

	"github.com/pointlock/pointlock-backend/internal/models"
)

// QueueStore 대기열 엔트리 저장소
type QueueStore interface {
	Insert(entry *models.QueueEntry) error
	FindByID(id string) (*models.QueueEntry, error)
	FindWaiting(userID, gameMode string) (*models.QueueEntry, error)
	ClaimCandidates(limit int) ([]*models.QueueEntry, error)
	Claim(id string, version int64, workerID string, lockTimeout time.Duration) (*models.QueueEntry, error)
	ReleaseClaim(id, workerID string) error
	TransitionStatus(id string, version int64, status models.QueueEntryStatus) (bool, error)
	ExpiredCandidates(limit int) ([]*models.QueueEntry, error)
	UnrefundedTerminal(limit int) ([]*models.QueueEntry, error)
	MarkRefunded(id string) error
	CountWaitingAhead(gameMode string, enqueuedAt time.Time) (int, error)
}

// MatchStore 매치 저장소
type MatchStore interface {
	CreateFromEntries(match *models.Match, a, b *models.QueueEntry, workerID string) error
	FindByID(id string) (*models.Match, error)
	FindByUserID(userID string, limit, offset int) ([]*models.Match, error)
	RecentOpponents(userIDs []string, since time.Time) (map[string]map[string]bool, error)
}

// WalletLedger 지갑 원장. 멱등 키로 중복 호출을 흡수한다.
type WalletLedger interface {
	Debit(userID string, amount int64, idempotencyKey, description string) (*models.WalletTransaction, error)
	Refund(userID string, amount int64, idempotencyKey, refTxID, description string) (*models.WalletTransaction, error)
}

// EntrySetStore 엔트리 세트 저장소
type EntrySetStore interface {
	FindByID(id string) (*models.EntrySet, error)
	Lock(id, userID string) (bool, error)
	Unlock(id string) error
}

// UserStore 사용자 저장소
type UserStore interface {
	Create(user *models.User) error
	FindByID(id string) (*models.User, error)
	FindByEmail(email string) (*models.User, error)
	FindByUsername(username string) (*models.User, error)
}

// MatchNotifier 매치 생성 알림 발행
type MatchNotifier interface {
	BroadcastCreated(match *models.Match)
}

// CycleTrigger 엔트리가 들어왔을 때 매칭 사이클을 앞당겨 돌리는 훅
type CycleTrigger interface {
	NotifyEntryEnqueued(ctx context.Context, gameMode, userID string) error
}
