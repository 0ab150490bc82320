package models

import "time"

type WalletTransactionKind string

const (
	WalletTxDebit  WalletTransactionKind = "debit"
	WalletTxRefund WalletTransactionKind = "refund"
)

// WalletTransaction 지갑 원장 거래. idempotency_key는 유니크 제약으로
// 같은 키의 재시도가 이중 청구/이중 환불이 되지 않게 한다.
type WalletTransaction struct {
	ID             string                `json:"id" db:"id"`
	UserID         string                `json:"userId" db:"user_id"`
	Amount         int64                 `json:"amount" db:"amount"` // 최소 화폐 단위
	Kind           WalletTransactionKind `json:"kind" db:"kind"`
	IdempotencyKey string                `json:"idempotencyKey" db:"idempotency_key"`
	RefTxID        *string               `json:"refTxId,omitempty" db:"ref_tx_id"` // 환불의 원거래
	Description    string                `json:"description" db:"description"`
	CreatedAt      time.Time             `json:"createdAt" db:"created_at"`
}
