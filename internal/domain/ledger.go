package domain

// ─── Ledger Types ───────────────────────────────────────────────────────────
// These live in domain because they represent core business rules.
// The transaction log is append-only: rows are never rewritten after
// completion except for status transitions driven by the owning workflow.

// TxType represents the business reason for a credit movement.
type TxType string

const (
	TxSystemReward    TxType = "system_reward"
	TxTransfer        TxType = "transfer"
	TxTaskReward      TxType = "task_reward"
	TxProductPurchase TxType = "product_purchase"
	TxRedeem          TxType = "redeem"
	TxCompensation    TxType = "compensation"
	TxRecovery        TxType = "recovery"
)

// TxStatus is the settlement state of a transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxCancelled TxStatus = "cancelled"
)

// Transaction is a single row in the credit ledger. FromHash/ToHash are
// empty for the system side of mints, compensations and recoveries.
type Transaction struct {
	TxID        string    `json:"tx_id"`
	Type        TxType    `json:"type"`
	FromHash    string    `json:"from_user_hash,omitempty"`
	ToHash      string    `json:"to_user_hash,omitempty"`
	Amount      int64     `json:"amount"`
	Status      TxStatus  `json:"status"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Metadata    string    `json:"metadata,omitempty"`
	CreatedAt   Timestamp `json:"created_at"`
	CompletedAt Timestamp `json:"completed_at,omitempty"`
}

// Party reports whether the wallet identified by userHash is the sender or
// receiver of the transaction. Transaction-kind reports are only accepted
// from a party.
func (t Transaction) Party(userHash string) bool {
	return userHash != "" && (t.FromHash == userHash || t.ToHash == userHash)
}
