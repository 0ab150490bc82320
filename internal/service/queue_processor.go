package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pointlock/pointlock-backend/internal/models"
	"github.com/pointlock/pointlock-backend/internal/repository"
)

type ProcessorConfig struct {
	Interval        time.Duration // 사이클 주기
	BatchSize       int           // 사이클당 클레임 상한
	LockTimeout     time.Duration // 클레임 유효 시간
	RematchLookback time.Duration // 리매치 억제 기간
}

// QueueProcessor 매칭 사이클을 주기적으로 돌리는 백그라운드 워커.
// 여러 인스턴스가 동시에 돌아도 클레임의 버전 가드가 중복 매칭을 막는다.
type QueueProcessor struct {
	queueRepo    QueueStore
	matchRepo    MatchStore
	entrySetRepo EntrySetStore
	ledger       WalletLedger
	notifier     MatchNotifier
	config       ProcessorConfig
	workerID     string
	logger       *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewQueueProcessor(
	queueRepo QueueStore,
	matchRepo MatchStore,
	entrySetRepo EntrySetStore,
	ledger WalletLedger,
	notifier MatchNotifier,
	config ProcessorConfig,
	logger *zap.Logger,
) *QueueProcessor {
	return &QueueProcessor{
		queueRepo:    queueRepo,
		matchRepo:    matchRepo,
		entrySetRepo: entrySetRepo,
		ledger:       ledger,
		notifier:     notifier,
		config:       config,
		workerID:     uuid.New().String(),
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

// Start 처리 루프 시작
func (p *QueueProcessor) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop()

	p.logger.Info("queue processor started",
		zap.String("workerId", p.workerID),
		zap.Duration("interval", p.config.Interval))
}

// Stop 처리 루프 정지. 진행 중인 사이클이 끝날 때까지 기다린다.
func (p *QueueProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("queue processor stopped", zap.String("workerId", p.workerID))
}

func (p *QueueProcessor) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			stats := p.RunCycle(context.Background())
			if stats.Matched > 0 || stats.Expired > 0 || stats.Errors > 0 {
				p.logger.Info("matchmaking cycle completed",
					zap.Int("processed", stats.Processed),
					zap.Int("matched", stats.Matched),
					zap.Int("expired", stats.Expired),
					zap.Int("errors", stats.Errors))
			}
		}
	}
}

type CycleStats struct {
	Processed int // 클레임한 엔트리 수
	Matched   int // 생성한 매치 수
	Expired   int // 만료 처리한 엔트리 수
	Errors    int
}

// RunCycle 한 번의 매칭 사이클: 만료 처리 → 환불 재시도 → 클레임 →
// 풀 분할 → 페어링 → 매치 생성 → 남은 클레임 해제.
func (p *QueueProcessor) RunCycle(ctx context.Context) CycleStats {
	var stats CycleStats

	stats.Expired = p.reapExpired(&stats)
	p.retryPendingRefunds(&stats)

	claimed := p.claimBatch(&stats)
	stats.Processed = len(claimed)
	if len(claimed) < 2 {
		p.releaseAll(claimed)
		return stats
	}

	recent, err := p.buildRecentIndex(claimed)
	if err != nil {
		p.logger.Error("failed to build recent match index", zap.Error(err))
		stats.Errors++
		p.releaseAll(claimed)
		return stats
	}

	now := time.Now()
	finalized := make(map[string]bool, len(claimed))

	for _, pool := range GroupIntoPools(claimed) {
		for _, pair := range pairPool(pool, recent, now) {
			if p.createMatch(pair.a, pair.b, &stats) {
				finalized[pair.a.ID] = true
				finalized[pair.b.ID] = true
			}
		}
	}

	// 짝을 못 찾았거나 매치 생성에 실패한 엔트리는 클레임을 풀어
	// 다음 사이클 후보로 되돌린다
	for _, entry := range claimed {
		if finalized[entry.ID] {
			continue
		}
		if err := p.queueRepo.ReleaseClaim(entry.ID, p.workerID); err != nil {
			p.logger.Warn("failed to release claim",
				zap.String("entryId", entry.ID), zap.Error(err))
			stats.Errors++
		}
	}

	return stats
}

func (p *QueueProcessor) claimBatch(stats *CycleStats) []*models.QueueEntry {
	candidates, err := p.queueRepo.ClaimCandidates(p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to list claim candidates", zap.Error(err))
		stats.Errors++
		return nil
	}

	var claimed []*models.QueueEntry
	for _, candidate := range candidates {
		entry, err := p.queueRepo.Claim(candidate.ID, candidate.Version, p.workerID, p.config.LockTimeout)
		if err != nil {
			p.logger.Warn("failed to claim entry",
				zap.String("entryId", candidate.ID), zap.Error(err))
			stats.Errors++
			continue
		}
		if entry == nil {
			// 다른 워커가 먼저 가져갔다
			continue
		}
		claimed = append(claimed, entry)
	}

	return claimed
}

func (p *QueueProcessor) buildRecentIndex(claimed []*models.QueueEntry) (RecentMatchesIndex, error) {
	userIDs := make([]string, 0, len(claimed))
	for _, entry := range claimed {
		userIDs = append(userIDs, entry.UserID)
	}

	since := time.Now().Add(-p.config.RematchLookback)
	index, err := p.matchRepo.RecentOpponents(userIDs, since)
	if err != nil {
		return nil, err
	}
	return RecentMatchesIndex(index), nil
}

func (p *QueueProcessor) createMatch(a, b *models.QueueEntry, stats *CycleStats) bool {
	match := &models.Match{
		ID:             uuid.New().String(),
		GameMode:       a.GameMode,
		StakeAmount:    a.StakeAmount,
		ParticipantAID: a.UserID,
		ParticipantBID: b.UserID,
		Status:         models.MatchStatusCreated,
		CreatedAt:      time.Now(),
	}

	err := p.matchRepo.CreateFromEntries(match, a, b, p.workerID)
	if errors.Is(err, repository.ErrVersionConflict) {
		// 클레임 이후 누군가 전이시켰다. 조용히 넘어가면 사이클 끝에서 해제된다.
		p.logger.Debug("match creation lost version race",
			zap.String("entryA", a.ID), zap.String("entryB", b.ID))
		return false
	}
	if err != nil {
		p.logger.Error("failed to create match",
			zap.String("entryA", a.ID), zap.String("entryB", b.ID), zap.Error(err))
		stats.Errors++
		return false
	}

	stats.Matched++
	p.logger.Info("match created",
		zap.String("matchId", match.ID),
		zap.String("participantA", match.ParticipantAID),
		zap.String("participantB", match.ParticipantBID),
		zap.Int64("stakeAmount", match.StakeAmount))

	if p.notifier != nil {
		p.notifier.BroadcastCreated(match)
	}

	return true
}

// reapExpired TTL을 넘긴 waiting 엔트리를 expired로 전이하고 환불한다.
// 전이가 CAS라 동시 매칭과 겹쳐도 한쪽만 이긴다.
func (p *QueueProcessor) reapExpired(stats *CycleStats) int {
	expired, err := p.queueRepo.ExpiredCandidates(p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to list expired entries", zap.Error(err))
		stats.Errors++
		return 0
	}

	reaped := 0
	for _, entry := range expired {
		ok, err := p.queueRepo.TransitionStatus(entry.ID, entry.Version, models.EntryStatusExpired)
		if err != nil {
			p.logger.Error("failed to expire entry",
				zap.String("entryId", entry.ID), zap.Error(err))
			stats.Errors++
			continue
		}
		if !ok {
			continue
		}

		if err := p.entrySetRepo.Unlock(entry.EntrySetID); err != nil {
			p.logger.Warn("failed to unlock entry set",
				zap.String("entrySetId", entry.EntrySetID), zap.Error(err))
		}

		p.refundEntry(entry, "queue expired", stats)
		reaped++
	}

	return reaped
}

// retryPendingRefunds 이전에 환불이 실패한 터미널 엔트리 재처리.
// 멱등 키 덕에 이미 환불된 엔트리를 다시 집어도 이중 입금되지 않는다.
func (p *QueueProcessor) retryPendingRefunds(stats *CycleStats) {
	pending, err := p.queueRepo.UnrefundedTerminal(p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to list unrefunded entries", zap.Error(err))
		stats.Errors++
		return
	}

	for _, entry := range pending {
		p.refundEntry(entry, "refund retry", stats)
	}
}

func (p *QueueProcessor) refundEntry(entry *models.QueueEntry, description string, stats *CycleStats) {
	_, err := p.ledger.Refund(entry.UserID, entry.StakeAmount,
		"refund:"+entry.ID, entry.DebitTxID, description)
	if err != nil {
		p.logger.Error("refund failed",
			zap.String("entryId", entry.ID),
			zap.String("userId", entry.UserID),
			zap.Error(err))
		stats.Errors++
		return
	}

	if err := p.queueRepo.MarkRefunded(entry.ID); err != nil {
		p.logger.Warn("failed to mark entry refunded",
			zap.String("entryId", entry.ID), zap.Error(err))
		stats.Errors++
	}
}

func (p *QueueProcessor) releaseAll(entries []*models.QueueEntry) {
	for _, entry := range entries {
		if err := p.queueRepo.ReleaseClaim(entry.ID, p.workerID); err != nil {
			p.logger.Warn("failed to release claim",
				zap.String("entryId", entry.ID), zap.Error(err))
		}
	}
}
