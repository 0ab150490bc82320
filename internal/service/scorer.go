package service

import (
	"time"

	"github.com/pointlock/pointlock-backend/internal/models"
)

// RecentMatchesIndex 최근 대결 인덱스. 사이클마다 한 번 조회해서 만든다.
type RecentMatchesIndex map[string]map[string]bool

// PlayedRecently 두 사용자가 lookback 내에 붙은 적이 있는지
func (idx RecentMatchesIndex) PlayedRecently(a, b string) bool {
	return idx[a][b]
}

type ScoreResult struct {
	Compatible bool
	Score      int
	Reason     string
}

const (
	hardConstraintBonus = 10
	proximityBonusMax   = 200
	waitBonusCapSec     = 120
)

// ScorePair 두 엔트리의 호환성과 점수를 평가한다. 하드 제약을 하나라도
// 어기면 Compatible=false와 첫 위반 사유를 반환한다. 레이팅 차이는 두
// 엔트리 중 더 넓은 허용 폭 안에 들어가면 된다. 오래 기다린 쪽이
// 상대방의 접근 범위까지 넓혀 준다.
func ScorePair(a, b *models.QueueEntry, recent RecentMatchesIndex, now time.Time) ScoreResult {
	if a.UserID == b.UserID {
		return ScoreResult{Reason: "self match"}
	}
	if a.EntrySetSize != b.EntrySetSize {
		return ScoreResult{Reason: "slip size mismatch"}
	}
	if a.StakeAmount != b.StakeAmount {
		return ScoreResult{Reason: "stake mismatch"}
	}
	if a.Tier != b.Tier {
		return ScoreResult{Reason: "tier mismatch"}
	}

	diff := a.SkillRating - b.SkillRating
	if diff < 0 {
		diff = -diff
	}
	rangeA := EntryRatingRange(a.EnqueuedAt, a.UserID, now)
	rangeB := EntryRatingRange(b.EnqueuedAt, b.UserID, now)
	maxRange := rangeA
	if rangeB > maxRange {
		maxRange = rangeB
	}
	if diff > maxRange {
		return ScoreResult{Reason: "mmr too far"}
	}

	if recent.PlayedRecently(a.UserID, b.UserID) {
		return ScoreResult{Reason: "recent rematch"}
	}

	// 하드 제약 4개 통과가 기본 점수
	score := 4 * hardConstraintBonus

	proximity := proximityBonusMax - diff
	if proximity > 0 {
		score += proximity
	}

	avgWaitSec := int((now.Sub(a.EnqueuedAt) + now.Sub(b.EnqueuedAt)) / 2 / time.Second)
	if avgWaitSec > waitBonusCapSec {
		avgWaitSec = waitBonusCapSec
	}
	if avgWaitSec > 0 {
		score += avgWaitSec
	}

	return ScoreResult{Compatible: true, Score: score}
}
