package service

import (
	"hash/fnv"
	"math/rand"
	"time"
)

const (
	// BaseRatingRange 입장 직후 허용 레이팅 폭
	BaseRatingRange = 100
	// MaxRatingRange 확장 상한. 이 이상 벌어지지 않는다.
	MaxRatingRange = 400

	widenIntervalMin = 20 * time.Second
	widenIntervalMax = 30 * time.Second
	widenStepMin     = 50
	widenStepMax     = 60
)

// RangeSeed 사용자 ID에서 결정적 확장 시드를 만든다. 같은 엔트리는
// 언제 평가해도 같은 확장 곡선을 갖는다.
func RangeSeed(userID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(userID))
	return int64(h.Sum64())
}

// RatingRangeAt 대기 시간에 따른 허용 레이팅 폭. 시드별로 확장 주기와
// 보폭이 달라 같은 시각에 입장한 사용자들이 계단식으로 묶이지 않는다.
func RatingRangeAt(enqueuedAt time.Time, seed int64, now time.Time) int {
	waited := now.Sub(enqueuedAt)
	if waited <= 0 {
		return BaseRatingRange
	}

	rng := rand.New(rand.NewSource(seed))
	ratingRange := BaseRatingRange
	elapsed := time.Duration(0)
	for {
		interval := widenIntervalMin + time.Duration(rng.Int63n(int64(widenIntervalMax-widenIntervalMin)+1))
		elapsed += interval
		if elapsed > waited {
			break
		}
		step := widenStepMin + rng.Intn(widenStepMax-widenStepMin+1)
		ratingRange += step
		if ratingRange >= MaxRatingRange {
			return MaxRatingRange
		}
	}

	return ratingRange
}

// EntryRatingRange 엔트리의 현재 허용 폭
func EntryRatingRange(enqueuedAt time.Time, userID string, now time.Time) int {
	return RatingRangeAt(enqueuedAt, RangeSeed(userID), now)
}
