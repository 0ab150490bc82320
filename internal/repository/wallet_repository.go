package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pointlock/pointlock-backend/internal/models"
	"github.com/pointlock/pointlock-backend/pkg/database"
)

// ErrInsufficientBalance 잔액 부족
var ErrInsufficientBalance = errors.New("insufficient balance")

type WalletRepository struct {
	db *database.DB
}

func NewWalletRepository(db *database.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) findByIdempotencyKey(key string) (*models.WalletTransaction, error) {
	query := `
		SELECT id, user_id, amount, kind, idempotency_key, ref_tx_id, description, created_at
		FROM wallet_transactions
		WHERE idempotency_key = $1
	`

	wtx := &models.WalletTransaction{}
	err := r.db.QueryRow(query, key).Scan(
		&wtx.ID, &wtx.UserID, &wtx.Amount, &wtx.Kind,
		&wtx.IdempotencyKey, &wtx.RefTxID, &wtx.Description, &wtx.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet transaction: %w", err)
	}

	return wtx, nil
}

// Debit 사용자 잔액 차감. 거래 기록을 먼저 넣고 idempotency_key 유니크
// 제약이 중복을 걸러낸다. INSERT가 충돌하면 잔액은 건드리지 않고 기존
// 거래를 그대로 반환하므로 같은 키로 동시에 들어와도 차감은 한 번이다.
func (r *WalletRepository) Debit(userID string, amount int64, idempotencyKey, description string) (*models.WalletTransaction, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin debit transaction: %w", err)
	}
	defer tx.Rollback()

	wtx := &models.WalletTransaction{
		ID:             uuid.New().String(),
		UserID:         userID,
		Amount:         amount,
		Kind:           models.WalletTxDebit,
		IdempotencyKey: idempotencyKey,
		Description:    description,
		CreatedAt:      time.Now(),
	}

	result, err := tx.Exec(`
		INSERT INTO wallet_transactions (id, user_id, amount, kind, idempotency_key, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, wtx.ID, wtx.UserID, wtx.Amount, wtx.Kind, wtx.IdempotencyKey, wtx.Description, wtx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record debit: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check debit record: %w", err)
	}
	if inserted == 0 {
		// 다른 트랜잭션이 같은 키를 먼저 커밋함
		tx.Rollback()
		return r.findByIdempotencyKey(idempotencyKey)
	}

	result, err = tx.Exec(`
		UPDATE users SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
	`, amount, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check debit result: %w", err)
	}
	if affected == 0 {
		// 롤백되면서 거래 기록도 같이 사라진다
		return nil, ErrInsufficientBalance
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit debit: %w", err)
	}

	return wtx, nil
}

// Refund 차감의 역거래. Debit과 같은 방식으로 idempotency_key 유니크
// 제약이 입금 횟수를 한 번으로 제한한다.
func (r *WalletRepository) Refund(userID string, amount int64, idempotencyKey, refTxID, description string) (*models.WalletTransaction, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin refund transaction: %w", err)
	}
	defer tx.Rollback()

	wtx := &models.WalletTransaction{
		ID:             uuid.New().String(),
		UserID:         userID,
		Amount:         amount,
		Kind:           models.WalletTxRefund,
		IdempotencyKey: idempotencyKey,
		RefTxID:        &refTxID,
		Description:    description,
		CreatedAt:      time.Now(),
	}

	result, err := tx.Exec(`
		INSERT INTO wallet_transactions (id, user_id, amount, kind, idempotency_key, ref_tx_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, wtx.ID, wtx.UserID, wtx.Amount, wtx.Kind, wtx.IdempotencyKey, wtx.RefTxID, wtx.Description, wtx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check refund record: %w", err)
	}
	if inserted == 0 {
		tx.Rollback()
		return r.findByIdempotencyKey(idempotencyKey)
	}

	_, err = tx.Exec(`
		UPDATE users SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
	`, amount, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}

	return wtx, nil
}
