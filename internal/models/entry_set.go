package models

import "time"

type EntrySetStatus string

const (
	EntrySetStatusOpen   EntrySetStatus = "open"
	EntrySetStatusLocked EntrySetStatus = "locked" // 큐에 걸려 있는 동안
)

// EntrySet 사용자가 스테이크를 건 선택 세트 (슬립).
// 큐에 들어가는 동안 잠기고, 엔트리가 만료/취소되면 다시 풀린다.
type EntrySet struct {
	ID        string         `json:"id" db:"id"`
	UserID    string         `json:"userId" db:"user_id"`
	GameMode  string         `json:"gameMode" db:"game_mode"`
	PickCount int            `json:"pickCount" db:"pick_count"`
	Status    EntrySetStatus `json:"status" db:"status"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}
