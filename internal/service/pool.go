package service

import (
	"sort"
	"time"

	"github.com/pointlock/pointlock-backend/internal/models"
)

// PoolKey 같은 풀에서만 매칭되는 하드 제약 묶음
type PoolKey struct {
	GameMode     string
	EntrySetSize int
	Tier         string
	StakeAmount  int64
}

// GroupIntoPools 클레임된 엔트리를 풀로 나눈다. 매 사이클 새로 만든다.
func GroupIntoPools(entries []*models.QueueEntry) map[PoolKey][]*models.QueueEntry {
	pools := make(map[PoolKey][]*models.QueueEntry)
	for _, entry := range entries {
		key := PoolKey{
			GameMode:     entry.GameMode,
			EntrySetSize: entry.EntrySetSize,
			Tier:         entry.Tier,
			StakeAmount:  entry.StakeAmount,
		}
		pools[key] = append(pools[key], entry)
	}
	return pools
}

type pairedEntries struct {
	a, b *models.QueueEntry
}

// pairPool 풀 안에서 페어를 고른다. 가장 오래 기다린 엔트리부터 가장
// 점수 높은 상대를 가져가고, 동점이면 먼저 들어온 상대를 고른다.
// 페어가 안 되는 엔트리는 그대로 남는다.
func pairPool(entries []*models.QueueEntry, recent RecentMatchesIndex, now time.Time) []pairedEntries {
	sorted := make([]*models.QueueEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EnqueuedAt.Before(sorted[j].EnqueuedAt)
	})

	used := make(map[string]bool, len(sorted))
	var pairs []pairedEntries

	for i, anchor := range sorted {
		if used[anchor.ID] {
			continue
		}

		var best *models.QueueEntry
		bestScore := -1
		for _, candidate := range sorted[i+1:] {
			if used[candidate.ID] {
				continue
			}
			result := ScorePair(anchor, candidate, recent, now)
			if !result.Compatible {
				continue
			}
			if result.Score > bestScore {
				best = candidate
				bestScore = result.Score
			}
		}

		if best != nil {
			used[anchor.ID] = true
			used[best.ID] = true
			pairs = append(pairs, pairedEntries{a: anchor, b: best})
		}
	}

	return pairs
}
