package models

import "time"

type QueueEntryStatus string

const (
	EntryStatusWaiting   QueueEntryStatus = "waiting"
	EntryStatusMatched   QueueEntryStatus = "matched"
	EntryStatusExpired   QueueEntryStatus = "expired"
	EntryStatusCancelled QueueEntryStatus = "cancelled"
)

// QueueEntry 매칭 대기 중인 한 사용자의 스테이크 엔트리.
// waiting을 벗어나는 모든 전이는 version 가드를 통과해야 하며,
// 한번 벗어나면 다시 waiting으로 돌아가지 않는다.
type QueueEntry struct {
	ID              string           `db:"id" json:"id"`
	UserID          string           `db:"user_id" json:"userId"`
	GameMode        string           `db:"game_mode" json:"gameMode"`
	Tier            string           `db:"tier" json:"tier"`
	StakeAmount     int64            `db:"stake_amount" json:"stakeAmount"` // 최소 화폐 단위
	EntrySetID      string           `db:"entry_set_id" json:"entrySetId"`
	EntrySetSize    int              `db:"entry_set_size" json:"entrySetSize"`
	SkillRating     int              `db:"skill_rating" json:"skillRating"`
	Status          QueueEntryStatus `db:"status" json:"status"`
	EnqueuedAt      time.Time        `db:"enqueued_at" json:"enqueuedAt"`
	ExpiresAt       time.Time        `db:"expires_at" json:"expiresAt"`
	ClaimExpiresAt  *time.Time       `db:"claim_expires_at" json:"claimExpiresAt,omitempty"`
	ClaimedByWorker *string          `db:"claimed_by_worker" json:"claimedByWorker,omitempty"`
	MatchID         *string          `db:"match_id" json:"matchId,omitempty"`
	DebitTxID       string           `db:"debit_tx_id" json:"-"` // 환불 시 원거래 참조
	Refunded        bool             `db:"refunded" json:"-"`
	Version         int64            `db:"version" json:"version"`
}
