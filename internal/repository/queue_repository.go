package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pointlock/pointlock-backend/internal/models"
	"github.com/pointlock/pointlock-backend/pkg/database"
)

// ErrVersionConflict 낙관적 동시성 가드 실패. 다른 워커나 요청이 먼저
// 해당 행을 전이시킨 경우로, 호출자는 재시도하거나 그냥 넘어가면 된다.
var ErrVersionConflict = errors.New("version conflict")

type QueueRepository struct {
	db *database.DB
}

func NewQueueRepository(db *database.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

const queueEntryColumns = `id, user_id, game_mode, tier, stake_amount, entry_set_id, entry_set_size,
	skill_rating, status, enqueued_at, expires_at, claim_expires_at, claimed_by_worker,
	match_id, debit_tx_id, refunded, version`

func scanQueueEntry(row interface{ Scan(...interface{}) error }) (*models.QueueEntry, error) {
	entry := &models.QueueEntry{}
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.GameMode, &entry.Tier, &entry.StakeAmount,
		&entry.EntrySetID, &entry.EntrySetSize, &entry.SkillRating, &entry.Status,
		&entry.EnqueuedAt, &entry.ExpiresAt, &entry.ClaimExpiresAt, &entry.ClaimedByWorker,
		&entry.MatchID, &entry.DebitTxID, &entry.Refunded, &entry.Version,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Insert 새 대기열 엔트리 저장
func (r *QueueRepository) Insert(entry *models.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (id, user_id, game_mode, tier, stake_amount, entry_set_id,
			entry_set_size, skill_rating, status, enqueued_at, expires_at, debit_tx_id, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0)
	`

	_, err := r.db.Exec(query,
		entry.ID, entry.UserID, entry.GameMode, entry.Tier, entry.StakeAmount,
		entry.EntrySetID, entry.EntrySetSize, entry.SkillRating, entry.Status,
		entry.EnqueuedAt, entry.ExpiresAt, entry.DebitTxID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}

	return nil
}

// FindByID ID로 엔트리 조회
func (r *QueueRepository) FindByID(id string) (*models.QueueEntry, error) {
	query := `SELECT ` + queueEntryColumns + ` FROM queue_entries WHERE id = $1`

	entry, err := scanQueueEntry(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find queue entry: %w", err)
	}

	return entry, nil
}

// FindWaiting 사용자의 해당 모드 waiting 엔트리 조회 (중복 큐잉 방지용)
func (r *QueueRepository) FindWaiting(userID, gameMode string) (*models.QueueEntry, error) {
	query := `
		SELECT ` + queueEntryColumns + `
		FROM queue_entries
		WHERE user_id = $1 AND game_mode = $2 AND status = 'waiting'
		LIMIT 1
	`

	entry, err := scanQueueEntry(r.db.QueryRow(query, userID, gameMode))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find waiting entry: %w", err)
	}

	return entry, nil
}

// ClaimCandidates 클레임 가능한 waiting 엔트리를 FIFO 순으로 조회.
// 만료 전이고 클레임이 없거나 이전 워커의 클레임이 풀린 행만 고른다.
func (r *QueueRepository) ClaimCandidates(limit int) ([]*models.QueueEntry, error) {
	query := `
		SELECT ` + queueEntryColumns + `
		FROM queue_entries
		WHERE status = 'waiting'
		  AND expires_at > NOW()
		  AND (claim_expires_at IS NULL OR claim_expires_at < NOW())
		ORDER BY enqueued_at ASC
		LIMIT $1
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list claim candidates: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Claim 버전 가드로 엔트리를 클레임한다. 성공 시 갱신된 행을 반환하고,
// 다른 워커가 먼저 가져갔으면 (nil, nil)을 반환한다.
func (r *QueueRepository) Claim(id string, version int64, workerID string, lockTimeout time.Duration) (*models.QueueEntry, error) {
	query := `
		UPDATE queue_entries
		SET claimed_by_worker = $3,
		    claim_expires_at = NOW() + $4::interval,
		    version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'waiting'
		RETURNING ` + queueEntryColumns

	interval := fmt.Sprintf("%d seconds", int(lockTimeout.Seconds()))
	entry, err := scanQueueEntry(r.db.QueryRow(query, id, version, workerID, interval))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue entry: %w", err)
	}

	return entry, nil
}

// ReleaseClaim 소유 워커의 클레임 해제. 엔트리는 waiting으로 남아
// 다음 사이클에서 다시 후보가 된다.
func (r *QueueRepository) ReleaseClaim(id, workerID string) error {
	query := `
		UPDATE queue_entries
		SET claimed_by_worker = NULL,
		    claim_expires_at = NULL,
		    version = version + 1
		WHERE id = $1 AND claimed_by_worker = $2 AND status = 'waiting'
	`

	_, err := r.db.Exec(query, id, workerID)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}

	return nil
}

// TransitionStatus waiting 엔트리를 버전 가드로 터미널 상태로 전이.
// 가드를 통과 못 하면 false를 반환한다 (이미 매칭됐거나 만료된 경우).
func (r *QueueRepository) TransitionStatus(id string, version int64, status models.QueueEntryStatus) (bool, error) {
	query := `
		UPDATE queue_entries
		SET status = $3,
		    claimed_by_worker = NULL,
		    claim_expires_at = NULL,
		    version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'waiting'
	`

	result, err := r.db.Exec(query, id, version, status)
	if err != nil {
		return false, fmt.Errorf("failed to transition queue entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check transition result: %w", err)
	}

	return affected > 0, nil
}

// ExpiredCandidates 만료 시각을 지난 waiting 엔트리 조회
func (r *QueueRepository) ExpiredCandidates(limit int) ([]*models.QueueEntry, error) {
	query := `
		SELECT ` + queueEntryColumns + `
		FROM queue_entries
		WHERE status = 'waiting' AND expires_at <= NOW()
		ORDER BY expires_at ASC
		LIMIT $1
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// UnrefundedTerminal 환불이 아직 안 붙은 expired/cancelled 엔트리 조회.
// 이전 사이클에서 환불이 실패했으면 여기서 다시 잡힌다.
func (r *QueueRepository) UnrefundedTerminal(limit int) ([]*models.QueueEntry, error) {
	query := `
		SELECT ` + queueEntryColumns + `
		FROM queue_entries
		WHERE status IN ('expired', 'cancelled') AND refunded = FALSE
		ORDER BY expires_at ASC
		LIMIT $1
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unrefunded entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// MarkRefunded 환불 완료 표시
func (r *QueueRepository) MarkRefunded(id string) error {
	query := `UPDATE queue_entries SET refunded = TRUE WHERE id = $1`

	_, err := r.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to mark entry refunded: %w", err)
	}

	return nil
}

// CountWaitingAhead 같은 모드에서 먼저 들어온 waiting 엔트리 수 (대기열 위치)
func (r *QueueRepository) CountWaitingAhead(gameMode string, enqueuedAt time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM queue_entries
		WHERE game_mode = $1 AND status = 'waiting' AND enqueued_at < $2
	`

	var count int
	err := r.db.QueryRow(query, gameMode, enqueuedAt).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting entries: %w", err)
	}

	return count, nil
}
