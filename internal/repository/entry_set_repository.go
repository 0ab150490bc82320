package repository

import (
	"database/sql"
	"fmt"

	"github.com/pointlock/pointlock-backend/internal/models"
	"github.com/pointlock/pointlock-backend/pkg/database"
)

type EntrySetRepository struct {
	db *database.DB
}

func NewEntrySetRepository(db *database.DB) *EntrySetRepository {
	return &EntrySetRepository{db: db}
}

// FindByID 엔트리 세트 조회
func (r *EntrySetRepository) FindByID(id string) (*models.EntrySet, error) {
	query := `
		SELECT id, user_id, game_mode, pick_count, status, created_at
		FROM entry_sets
		WHERE id = $1
	`

	set := &models.EntrySet{}
	err := r.db.QueryRow(query, id).Scan(
		&set.ID, &set.UserID, &set.GameMode, &set.PickCount, &set.Status, &set.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry set: %w", err)
	}

	return set, nil
}

// Lock open → locked CAS 전환. 이미 잠겨 있으면 false를 반환한다.
func (r *EntrySetRepository) Lock(id, userID string) (bool, error) {
	query := `
		UPDATE entry_sets SET status = 'locked'
		WHERE id = $1 AND user_id = $2 AND status = 'open'
	`

	result, err := r.db.Exec(query, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to lock entry set: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check lock result: %w", err)
	}

	return affected > 0, nil
}

// Unlock 큐 이탈/만료 시 세트를 다시 연다
func (r *EntrySetRepository) Unlock(id string) error {
	query := `UPDATE entry_sets SET status = 'open' WHERE id = $1 AND status = 'locked'`

	_, err := r.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to unlock entry set: %w", err)
	}

	return nil
}
