package service

import (
	"testing"
	"time"

	"github.com/pointlock/pointlock-backend/internal/models"
)

func TestGroupIntoPools_DisjointBuckets(t *testing.T) {
	entries := []*models.QueueEntry{
		makeTestEntry("u1", 1000, 500, "bronze", 3, 0),
		makeTestEntry("u2", 1000, 500, "bronze", 3, 0),
		makeTestEntry("u3", 1000, 1000, "bronze", 3, 0),
		makeTestEntry("u4", 1000, 500, "silver", 3, 0),
		makeTestEntry("u5", 1000, 500, "bronze", 5, 0),
	}

	pools := GroupIntoPools(entries)

	if len(pools) != 4 {
		t.Fatalf("expected 4 pools, got %d", len(pools))
	}

	total := 0
	for key, pool := range pools {
		total += len(pool)
		for _, e := range pool {
			if e.StakeAmount != key.StakeAmount || e.Tier != key.Tier ||
				e.EntrySetSize != key.EntrySetSize || e.GameMode != key.GameMode {
				t.Errorf("entry %s placed in wrong pool %+v", e.UserID, key)
			}
		}
	}
	if total != len(entries) {
		t.Errorf("pools hold %d entries, want %d", total, len(entries))
	}
}

func TestPairPool_OldestPicksBestPartner(t *testing.T) {
	now := time.Now()

	oldest := makeTestEntry("oldest", 1000, 500, "bronze", 3, 90*time.Second)
	closeRating := makeTestEntry("close", 1005, 500, "bronze", 3, 30*time.Second)
	farRating := makeTestEntry("far", 1080, 500, "bronze", 3, 30*time.Second)

	pairs := pairPool([]*models.QueueEntry{farRating, closeRating, oldest}, RecentMatchesIndex{}, now)

	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].a.UserID != "oldest" {
		t.Errorf("anchor = %s, want oldest entry", pairs[0].a.UserID)
	}
	if pairs[0].b.UserID != "close" {
		t.Errorf("partner = %s, want closest rating", pairs[0].b.UserID)
	}
}

func TestPairPool_EqualScoreFavorsEarlierEntry(t *testing.T) {
	now := time.Now()

	// 두 후보는 레이팅이 같고 대기 보너스도 상한에서 만나 점수가 같다.
	// 동점이면 먼저 들어온 후보가 이겨야 한다.
	anchor := makeTestEntry("anchor", 1000, 500, "bronze", 3, 240*time.Second)
	earlier := makeTestEntry("earlier", 1000, 500, "bronze", 3, 120*time.Second)
	later := makeTestEntry("later", 1000, 500, "bronze", 3, 60*time.Second)

	a := ScorePair(anchor, earlier, RecentMatchesIndex{}, now)
	b := ScorePair(anchor, later, RecentMatchesIndex{}, now)
	if a.Score != b.Score {
		t.Fatalf("setup broken: scores differ (%d vs %d)", a.Score, b.Score)
	}

	// 입력 순서가 아니라 입장 시각이 기준이 되도록 늦은 쪽을 앞에 둔다
	pairs := pairPool([]*models.QueueEntry{later, anchor, earlier}, RecentMatchesIndex{}, now)

	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].a.UserID != "anchor" {
		t.Errorf("anchor = %s, want oldest entry", pairs[0].a.UserID)
	}
	if pairs[0].b.UserID != "earlier" {
		t.Errorf("partner = %s, want earlier-enqueued candidate on tie", pairs[0].b.UserID)
	}
}

func TestPairPool_UnpairableEntryLeftOver(t *testing.T) {
	now := time.Now()

	entries := []*models.QueueEntry{
		makeTestEntry("u1", 1000, 500, "bronze", 3, 10*time.Second),
		makeTestEntry("u2", 1010, 500, "bronze", 3, 10*time.Second),
		makeTestEntry("u3", 1020, 500, "bronze", 3, 5*time.Second),
	}

	pairs := pairPool(entries, RecentMatchesIndex{}, now)

	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair from 3 entries, got %d", len(pairs))
	}
}

func TestPairPool_RespectsRematchSuppression(t *testing.T) {
	now := time.Now()

	entries := []*models.QueueEntry{
		makeTestEntry("u1", 1000, 500, "bronze", 3, 10*time.Second),
		makeTestEntry("u2", 1010, 500, "bronze", 3, 10*time.Second),
	}

	recent := RecentMatchesIndex{
		"u1": {"u2": true},
		"u2": {"u1": true},
	}

	pairs := pairPool(entries, recent, now)
	if len(pairs) != 0 {
		t.Fatalf("expected no pairs for recently matched users, got %d", len(pairs))
	}
}
