package models

import "time"

type MatchStatus string

const (
	MatchStatusCreated   MatchStatus = "created"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
)

type Match struct {
	ID             string      `json:"id" db:"id"`
	GameMode       string      `json:"gameMode" db:"game_mode"`
	StakeAmount    int64       `json:"stakeAmount" db:"stake_amount"` // 최소 화폐 단위
	ParticipantAID string      `json:"participantAId" db:"participant_a_id"`
	ParticipantBID string      `json:"participantBId" db:"participant_b_id"`
	Status         MatchStatus `json:"status" db:"status"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	Version        int64       `json:"version" db:"version"`
}
