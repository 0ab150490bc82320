package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/pointlock/pointlock-backend/internal/models"
	"github.com/pointlock/pointlock-backend/pkg/database"
)

type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// CreateFromEntries 두 클레임 엔트리로 매치를 생성한다. 단일 트랜잭션에서
// 두 엔트리를 행 잠금으로 재검증하고, 하나라도 상태/버전/소유자가 달라졌으면
// 전체를 롤백하고 ErrVersionConflict를 반환한다. 어느 쪽도 matched가 되지 않는다.
func (r *MatchRepository) CreateFromEntries(match *models.Match, a, b *models.QueueEntry, workerID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin match transaction: %w", err)
	}
	defer tx.Rollback()

	// 두 엔트리를 잠그고 클레임 시점 이후로 변하지 않았는지 확인
	rows, err := tx.Query(`
		SELECT id, status, version, claimed_by_worker
		FROM queue_entries
		WHERE id = ANY($1)
		FOR UPDATE
	`, pq.Array([]string{a.ID, b.ID}))
	if err != nil {
		return fmt.Errorf("failed to lock queue entries: %w", err)
	}

	type lockedEntry struct {
		status          models.QueueEntryStatus
		version         int64
		claimedByWorker sql.NullString
	}
	locked := make(map[string]lockedEntry, 2)
	for rows.Next() {
		var id string
		var le lockedEntry
		if err := rows.Scan(&id, &le.status, &le.version, &le.claimedByWorker); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan locked entry: %w", err)
		}
		locked[id] = le
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read locked entries: %w", err)
	}

	for _, entry := range []*models.QueueEntry{a, b} {
		le, ok := locked[entry.ID]
		if !ok || le.status != models.EntryStatusWaiting || le.version != entry.Version ||
			!le.claimedByWorker.Valid || le.claimedByWorker.String != workerID {
			return ErrVersionConflict
		}
	}

	_, err = tx.Exec(`
		INSERT INTO matches (id, game_mode, stake_amount, participant_a_id, participant_b_id, status, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
	`, match.ID, match.GameMode, match.StakeAmount, match.ParticipantAID, match.ParticipantBID, match.Status, match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}

	for _, entry := range []*models.QueueEntry{a, b} {
		result, err := tx.Exec(`
			UPDATE queue_entries
			SET status = 'matched',
			    match_id = $3,
			    claimed_by_worker = NULL,
			    claim_expires_at = NULL,
			    version = version + 1
			WHERE id = $1 AND version = $2 AND status = 'waiting'
		`, entry.ID, entry.Version, match.ID)
		if err != nil {
			return fmt.Errorf("failed to finalize queue entry: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check finalize result: %w", err)
		}
		if affected == 0 {
			return ErrVersionConflict
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match transaction: %w", err)
	}

	return nil
}

// FindByID 매치 조회
func (r *MatchRepository) FindByID(id string) (*models.Match, error) {
	query := `
		SELECT id, game_mode, stake_amount, participant_a_id, participant_b_id, status, created_at, version
		FROM matches
		WHERE id = $1
	`

	match := &models.Match{}
	err := r.db.QueryRow(query, id).Scan(
		&match.ID, &match.GameMode, &match.StakeAmount,
		&match.ParticipantAID, &match.ParticipantBID,
		&match.Status, &match.CreatedAt, &match.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}

	return match, nil
}

// FindByUserID 사용자가 참가한 매치 목록 (최신순)
func (r *MatchRepository) FindByUserID(userID string, limit, offset int) ([]*models.Match, error) {
	query := `
		SELECT id, game_mode, stake_amount, participant_a_id, participant_b_id, status, created_at, version
		FROM matches
		WHERE participant_a_id = $1 OR participant_b_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		match := &models.Match{}
		err := rows.Scan(
			&match.ID, &match.GameMode, &match.StakeAmount,
			&match.ParticipantAID, &match.ParticipantBID,
			&match.Status, &match.CreatedAt, &match.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}

// RecentOpponents 주어진 사용자들이 lookback 기간 내에 치른 상대 인덱스.
// 양방향으로 채워서 호출자가 한 번의 조회로 쓸 수 있게 한다.
func (r *MatchRepository) RecentOpponents(userIDs []string, since time.Time) (map[string]map[string]bool, error) {
	index := make(map[string]map[string]bool)
	if len(userIDs) == 0 {
		return index, nil
	}

	query := `
		SELECT participant_a_id, participant_b_id
		FROM matches
		WHERE created_at >= $2
		  AND (participant_a_id = ANY($1) OR participant_b_id = ANY($1))
	`

	rows, err := r.db.Query(query, pq.Array(userIDs), since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent opponents: %w", err)
	}
	defer rows.Close()

	add := func(x, y string) {
		if index[x] == nil {
			index[x] = make(map[string]bool)
		}
		index[x][y] = true
	}

	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("failed to scan recent match: %w", err)
		}
		add(a, b)
		add(b, a)
	}

	return index, rows.Err()
}
