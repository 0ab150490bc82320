package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pointlock/pointlock-backend/internal/models"
)

type processorFixture struct {
	queue     *fakeQueueStore
	matches   *fakeMatchStore
	sets      *fakeEntrySetStore
	ledger    *fakeLedger
	notifier  *recordingNotifier
	processor *QueueProcessor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()

	f := &processorFixture{
		queue:    newFakeQueueStore(),
		sets:     newFakeEntrySetStore(),
		ledger:   newFakeLedger(),
		notifier: &recordingNotifier{},
	}
	f.matches = newFakeMatchStore(f.queue)

	f.processor = NewQueueProcessor(
		f.queue, f.matches, f.sets, f.ledger, f.notifier,
		ProcessorConfig{
			Interval:        5 * time.Second,
			BatchSize:       64,
			LockTimeout:     30 * time.Second,
			RematchLookback: 30 * time.Minute,
		},
		zap.NewNop(),
	)
	return f
}

// addWaiting 큐에 waiting 엔트리와 잠긴 세트를 함께 넣는다
func (f *processorFixture) addWaiting(t *testing.T, entry *models.QueueEntry) {
	t.Helper()
	entry.DebitTxID = "debit-" + entry.ID
	if err := f.queue.Insert(entry); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	f.sets.sets[entry.EntrySetID] = &models.EntrySet{
		ID:     entry.EntrySetID,
		UserID: entry.UserID,
		Status: models.EntrySetStatusLocked,
	}
}

func TestQueueProcessor_RunCycle_CreatesMatch(t *testing.T) {
	f := newProcessorFixture(t)

	a := makeTestEntry("u1", 1000, 500, "bronze", 3, 10*time.Second)
	b := makeTestEntry("u2", 1040, 500, "bronze", 3, 8*time.Second)
	f.addWaiting(t, a)
	f.addWaiting(t, b)

	stats := f.processor.RunCycle(context.Background())

	if stats.Matched != 1 {
		t.Fatalf("matched = %d, want 1", stats.Matched)
	}
	if f.notifier.count() != 1 {
		t.Errorf("notifier received %d matches, want 1", f.notifier.count())
	}

	for _, id := range []string{a.ID, b.ID} {
		stored, _ := f.queue.FindByID(id)
		if stored.Status != models.EntryStatusMatched {
			t.Errorf("entry %s status = %s, want matched", id, stored.Status)
		}
		if stored.MatchID == nil {
			t.Errorf("entry %s should reference the match", id)
		}
		if stored.ClaimedByWorker != nil {
			t.Errorf("entry %s claim should be cleared after finalize", id)
		}
	}
}

func TestQueueProcessor_RunCycle_IncompatibleEntriesReleased(t *testing.T) {
	f := newProcessorFixture(t)

	// 스테이크가 달라 매칭 불가
	a := makeTestEntry("u1", 1000, 500, "bronze", 3, 10*time.Second)
	b := makeTestEntry("u2", 1000, 1000, "bronze", 3, 8*time.Second)
	f.addWaiting(t, a)
	f.addWaiting(t, b)

	stats := f.processor.RunCycle(context.Background())

	if stats.Matched != 0 {
		t.Fatalf("matched = %d, want 0", stats.Matched)
	}

	// 클레임이 풀려 다음 사이클 후보로 남아야 한다
	for _, id := range []string{a.ID, b.ID} {
		stored, _ := f.queue.FindByID(id)
		if stored.Status != models.EntryStatusWaiting {
			t.Errorf("entry %s status = %s, want waiting", id, stored.Status)
		}
		if stored.ClaimedByWorker != nil {
			t.Errorf("entry %s claim should be released", id)
		}
	}
}

func TestQueueProcessor_ClaimIsExclusiveBetweenWorkers(t *testing.T) {
	f := newProcessorFixture(t)

	entry := makeTestEntry("u1", 1000, 500, "bronze", 3, 10*time.Second)
	f.addWaiting(t, entry)

	first, err := f.queue.Claim(entry.ID, entry.Version, "worker-a", 30*time.Second)
	if err != nil || first == nil {
		t.Fatalf("first claim should succeed: entry=%v err=%v", first, err)
	}

	// 같은 버전으로 다시 클레임하면 져야 한다
	second, err := f.queue.Claim(entry.ID, entry.Version, "worker-b", 30*time.Second)
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if second != nil {
		t.Fatal("stale-version claim should return nil")
	}

	// 클레임된 엔트리는 후보 목록에서도 빠진다
	candidates, _ := f.queue.ClaimCandidates(10)
	if len(candidates) != 0 {
		t.Errorf("claimed entry should not be a candidate, got %d", len(candidates))
	}
}

func TestQueueProcessor_RunCycle_VersionConflictSkipsPair(t *testing.T) {
	f := newProcessorFixture(t)

	a := makeTestEntry("u1", 1000, 500, "bronze", 3, 10*time.Second)
	b := makeTestEntry("u2", 1020, 500, "bronze", 3, 8*time.Second)
	f.addWaiting(t, a)
	f.addWaiting(t, b)

	// 클레임과 매치 생성 사이에 한 엔트리가 전이된 상황:
	// 매치 저장소가 버전 충돌을 돌려주도록 b를 미리 취소한다
	claimedA, _ := f.queue.Claim(a.ID, a.Version, f.processor.workerID, 30*time.Second)
	claimedB, _ := f.queue.Claim(b.ID, b.Version, f.processor.workerID, 30*time.Second)
	f.queue.TransitionStatus(b.ID, claimedB.Version, models.EntryStatusCancelled)

	ok := f.processor.createMatch(claimedA, claimedB, &CycleStats{})
	if ok {
		t.Fatal("match creation should fail on version conflict")
	}

	storedA, _ := f.queue.FindByID(a.ID)
	if storedA.Status != models.EntryStatusWaiting {
		t.Errorf("entry a status = %s, should stay waiting", storedA.Status)
	}
	if len(f.matches.matches) != 0 {
		t.Error("no match should be recorded on conflict")
	}
}

func TestQueueProcessor_RunCycle_ReapsExpiredWithSingleRefund(t *testing.T) {
	f := newProcessorFixture(t)

	entry := makeTestEntry("u1", 1000, 500, "bronze", 3, 20*time.Minute)
	entry.ExpiresAt = time.Now().Add(-time.Minute)
	f.addWaiting(t, entry)

	stats := f.processor.RunCycle(context.Background())
	if stats.Expired != 1 {
		t.Fatalf("expired = %d, want 1", stats.Expired)
	}

	stored, _ := f.queue.FindByID(entry.ID)
	if stored.Status != models.EntryStatusExpired {
		t.Errorf("entry status = %s, want expired", stored.Status)
	}
	if !stored.Refunded {
		t.Error("entry should be marked refunded")
	}
	if f.sets.status(entry.EntrySetID) != models.EntrySetStatusOpen {
		t.Error("entry set should be unlocked after expiry")
	}
	if got := f.ledger.balance("u1"); got != 500 {
		t.Errorf("balance = %d, want refunded 500", got)
	}

	// 리퍼가 다시 돌아도 이중 환불되지 않는다
	f.processor.RunCycle(context.Background())
	if got := f.ledger.balance("u1"); got != 500 {
		t.Errorf("balance after second cycle = %d, want still 500", got)
	}
	if got := f.ledger.refundCount("u1"); got != 1 {
		t.Errorf("refund count = %d, want exactly 1", got)
	}
}

func TestQueueProcessor_RunCycle_RetriesFailedRefund(t *testing.T) {
	f := newProcessorFixture(t)

	entry := makeTestEntry("u1", 1000, 500, "bronze", 3, 20*time.Minute)
	entry.ExpiresAt = time.Now().Add(-time.Minute)
	f.addWaiting(t, entry)

	// 첫 사이클: 환불 실패, 엔트리는 expired + refunded=false로 남는다
	f.ledger.failRefunds = true
	f.processor.RunCycle(context.Background())

	stored, _ := f.queue.FindByID(entry.ID)
	if stored.Status != models.EntryStatusExpired {
		t.Fatalf("entry status = %s, want expired", stored.Status)
	}
	if stored.Refunded {
		t.Fatal("entry should not be marked refunded after failed refund")
	}

	// 다음 사이클에서 재시도되어 환불이 완료된다
	f.ledger.failRefunds = false
	f.processor.RunCycle(context.Background())

	stored, _ = f.queue.FindByID(entry.ID)
	if !stored.Refunded {
		t.Error("entry should be refunded after retry cycle")
	}
	if got := f.ledger.balance("u1"); got != 500 {
		t.Errorf("balance = %d, want 500 after retried refund", got)
	}
}

func TestQueueProcessor_RunCycle_SuppressesRecentRematch(t *testing.T) {
	f := newProcessorFixture(t)

	a := makeTestEntry("u1", 1000, 500, "bronze", 3, 10*time.Second)
	b := makeTestEntry("u2", 1020, 500, "bronze", 3, 8*time.Second)
	f.addWaiting(t, a)
	f.addWaiting(t, b)
	f.matches.addRecent("u1", "u2")

	stats := f.processor.RunCycle(context.Background())

	if stats.Matched != 0 {
		t.Fatalf("matched = %d, want 0 for recent opponents", stats.Matched)
	}
	for _, id := range []string{a.ID, b.ID} {
		stored, _ := f.queue.FindByID(id)
		if stored.Status != models.EntryStatusWaiting {
			t.Errorf("entry %s status = %s, want waiting", id, stored.Status)
		}
	}
}

func TestQueueProcessor_RunCycle_SingleEntryNoMatch(t *testing.T) {
	f := newProcessorFixture(t)

	entry := makeTestEntry("u1", 1000, 500, "bronze", 3, 10*time.Second)
	f.addWaiting(t, entry)

	stats := f.processor.RunCycle(context.Background())

	if stats.Matched != 0 {
		t.Fatalf("matched = %d, want 0", stats.Matched)
	}

	stored, _ := f.queue.FindByID(entry.ID)
	if stored.ClaimedByWorker != nil {
		t.Error("lone entry claim should be released")
	}
}

func TestQueueProcessor_StartStop(t *testing.T) {
	f := newProcessorFixture(t)

	f.processor.Start()
	f.processor.Start() // 중복 시작은 무시
	f.processor.Stop()
	f.processor.Stop() // 중복 정지도 안전
}
