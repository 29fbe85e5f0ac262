// Package redeem exchanges pre-issued voucher codes for wallet credit,
// at most once per code per user and never past the code's use limit.
package redeem

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/yourtongji/creditd/internal/app/ledger"
	"github.com/yourtongji/creditd/internal/domain"
	"github.com/yourtongji/creditd/internal/infra/observability"
	"github.com/yourtongji/creditd/internal/infra/sqlite"
)

// Service redeems codes and issues them.
type Service struct {
	db  *sqlite.DB
	log *slog.Logger
}

// NewService creates the redeem service.
func NewService(db *sqlite.DB, log *slog.Logger) *Service {
	return &Service{db: db, log: log}
}

// Redeem exchanges the code for its value. The redemption row, the use-count
// increment, the wallet credit, and the redeem ledger entry commit as one
// unit. Concurrency is settled by the database: the redemptions primary key
// rejects a second attempt by the same user, and the guarded increment
// rejects use number maxUses+1. The redemption insert runs first, so a
// repeat user on a spent code still gets the already-redeemed error rather
// than the exhaustion one.
func (s *Service) Redeem(code, userHash string) (*domain.Transaction, error) {
	c, err := s.db.GetRedeemCode(code)
	if err != nil {
		return nil, err
	}

	t := &domain.Transaction{
		TxID:     uuid.NewString(),
		Type:     domain.TxRedeem,
		ToHash:   userHash,
		Amount:   c.Value,
		Status:   domain.TxCompleted,
		Title:    "code redemption",
		Metadata: fmt.Sprintf(`{"code":%q}`, code),
	}
	err = s.db.WithTx(func(tx *sqlite.Tx) error {
		if err := tx.InsertRedemption(code, userHash); err != nil {
			return err
		}
		ok, err := tx.ConsumeRedeemCodeUse(code)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: code fully used", domain.ErrExhausted)
		}
		return ledger.CreditTx(tx, t)
	})
	if err != nil {
		return nil, err
	}

	observability.RecordMovement(string(domain.TxRedeem), c.Value)
	s.log.Info("code redeemed", "code", code, "user", userHash, "value", c.Value)
	return t, nil
}

// CreateCode issues a voucher. An empty code gets a generated one.
func (s *Service) CreateCode(code string, value, maxUses int64) (*domain.RedeemCode, error) {
	if value <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if maxUses <= 0 {
		return nil, fmt.Errorf("%w: max_uses must be positive", domain.ErrValidation)
	}
	if code == "" {
		code = generateCode()
	}

	c := &domain.RedeemCode{Code: code, Value: value, MaxUses: maxUses}
	if err := s.db.InsertRedeemCode(c); err != nil {
		return nil, err
	}
	s.log.Info("redeem code issued", "code", code, "value", value, "max_uses", maxUses)
	return c, nil
}

// Code returns a voucher's current state.
func (s *Service) Code(code string) (*domain.RedeemCode, error) {
	return s.db.GetRedeemCode(code)
}

// codeAlphabet avoids 0/O and 1/I, which campus printouts mangle.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

func generateCode() string {
	buf := make([]byte, 12)
	rand.Read(buf)
	var b strings.Builder
	for i, c := range buf {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String()
}
