// Package ledger is the balance engine — the only component permitted to
// mutate wallet balances. Every movement pairs a conditional balance update
// with a transaction log row inside one database transaction, so a crash or
// concurrent interleaving can never leave a half-applied transfer.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yourtongji/creditd/internal/domain"
	"github.com/yourtongji/creditd/internal/infra/observability"
	"github.com/yourtongji/creditd/internal/infra/sqlite"
)

// Service provides debit/credit primitives and the transfer/mint operations
// built on them.
type Service struct {
	db  *sqlite.DB
	log *slog.Logger
}

// NewService creates the ledger service.
func NewService(db *sqlite.DB, log *slog.Logger) *Service {
	return &Service{db: db, log: log}
}

// ─── Registration ───────────────────────────────────────────────────────────

// Register creates a wallet idempotently and, on first creation, mints the
// configured signup bonus. Returns the wallet and whether it was created.
func (s *Service) Register(userHash, userSecret string, signupBonus int64) (*domain.Wallet, bool, error) {
	if !domain.ValidUserHash(userHash) {
		return nil, false, fmt.Errorf("%w: user hash must be 64 hex chars", domain.ErrValidation)
	}

	var created bool
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		var err error
		created, err = tx.UpsertWallet(userHash, userSecret)
		if err != nil {
			return err
		}
		if created && signupBonus > 0 {
			return creditTx(tx, &domain.Transaction{
				TxID:   uuid.NewString(),
				Type:   domain.TxSystemReward,
				ToHash: userHash,
				Amount: signupBonus,
				Status: domain.TxCompleted,
				Title:  "registration bonus",
			})
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info("wallet registered", "user", userHash, "bonus", signupBonus)
	}

	w, err := s.db.GetWallet(userHash)
	return w, created, err
}

// Wallet returns the wallet for userHash.
func (s *Service) Wallet(userHash string) (*domain.Wallet, error) {
	return s.db.GetWallet(userHash)
}

// ─── Movements ──────────────────────────────────────────────────────────────

// Transfer moves amount from one wallet to another and records exactly one
// completed transfer transaction — all inside a single database transaction.
func (s *Service) Transfer(fromHash, toHash string, amount int64, title, description string) (*domain.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if fromHash == toHash {
		return nil, fmt.Errorf("%w: cannot transfer to self", domain.ErrConflict)
	}

	t := &domain.Transaction{
		TxID:        uuid.NewString(),
		Type:        domain.TxTransfer,
		FromHash:    fromHash,
		ToHash:      toHash,
		Amount:      amount,
		Status:      domain.TxCompleted,
		Title:       orDefault(title, "transfer"),
		Description: description,
	}
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		if err := debitTx(tx, fromHash, amount); err != nil {
			return err
		}
		return creditTx(tx, t)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			observability.InsufficientBalance.Inc()
		}
		return nil, err
	}

	observability.RecordMovement(string(domain.TxTransfer), amount)
	s.log.Info("transfer completed", "tx", t.TxID, "from", fromHash, "to", toHash, "amount", amount)
	return t, nil
}

// Mint credits a wallet from system funds (admin reward, compensation).
func (s *Service) Mint(toHash string, amount int64, txType domain.TxType, title, description string) (*domain.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	t := &domain.Transaction{
		TxID:        uuid.NewString(),
		Type:        txType,
		ToHash:      toHash,
		Amount:      amount,
		Status:      domain.TxCompleted,
		Title:       orDefault(title, string(txType)),
		Description: description,
	}
	err := s.db.WithTx(func(tx *sqlite.Tx) error {
		return creditTx(tx, t)
	})
	if err != nil {
		return nil, err
	}

	observability.RecordMovement(string(txType), amount)
	s.log.Info("mint completed", "tx", t.TxID, "to", toHash, "type", txType, "amount", amount)
	return t, nil
}

// History returns the wallet's ledger entries, newest first.
func (s *Service) History(userHash string, page, limit int) (domain.Page[domain.Transaction], error) {
	offset, page, limit := domain.ClampPage(page, limit)
	txs, total, err := s.db.ListTransactionsFor(userHash, offset, limit)
	if err != nil {
		return domain.Page[domain.Transaction]{}, err
	}
	return domain.NewPage(txs, total, page, limit), nil
}

// Transaction returns one ledger entry.
func (s *Service) Transaction(txID string) (*domain.Transaction, error) {
	return s.db.GetTransaction(txID)
}

// ─── Transaction-Scoped Primitives ──────────────────────────────────────────
// Exported for the workflows (escrow, redeem, recovery) that compose balance
// movements with their own state rows inside one sqlite.Tx.

// DebitTx conditionally debits within an open transaction.
func DebitTx(tx *sqlite.Tx, userHash string, amount int64) error {
	return debitTx(tx, userHash, amount)
}

// CreditTx credits the transaction's receiver and appends the log row
// within an open transaction.
func CreditTx(tx *sqlite.Tx, t *domain.Transaction) error {
	return creditTx(tx, t)
}

func debitTx(tx *sqlite.Tx, userHash string, amount int64) error {
	ok, err := tx.DebitWalletIf(userHash, amount)
	if err != nil {
		return err
	}
	if !ok {
		exists, err := tx.WalletExists(userHash)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: wallet %s", domain.ErrNotFound, userHash)
		}
		return domain.ErrInsufficientBalance
	}
	return nil
}

func creditTx(tx *sqlite.Tx, t *domain.Transaction) error {
	if t.ToHash != "" {
		if err := tx.CreditWallet(t.ToHash, t.Amount); err != nil {
			return err
		}
	}
	return tx.InsertTransaction(t)
}

func checkAmount(amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
