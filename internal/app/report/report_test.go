package report

import (
	"path/filepath"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/yourtongji/creditd/internal/app/escrow"
	"github.com/yourtongji/creditd/internal/app/ledger"
	"github.com/yourtongji/creditd/internal/domain"
	"github.com/yourtongji/creditd/internal/infra/sqlite"
)

const (
	victimHash    = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	offenderHash  = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	bystanderHash = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
)

type env struct {
	report *Service
	ledger *ledger.Service
	escrow *escrow.Service
	db     *sqlite.DB
}

func newTestEnv(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "credit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	log := slogt.New(t)
	return &env{
		report: NewService(db, log),
		ledger: ledger.NewService(db, log),
		escrow: escrow.NewService(db, log),
		db:     db,
	}
}

func (e *env) register(t *testing.T, hash string, balance int64) {
	t.Helper()
	_, _, err := e.ledger.Register(hash, "secret-"+hash[:8], balance)
	require.NoError(t, err)
}

func (e *env) balance(t *testing.T, hash string) int64 {
	t.Helper()
	w, err := e.db.GetWallet(hash)
	require.NoError(t, err)
	return w.Balance
}

// disputedTransfer moves amount victim → offender and returns the tx.
func (e *env) disputedTransfer(t *testing.T, amount int64) *domain.Transaction {
	t.Helper()
	tx, err := e.ledger.Transfer(victimHash, offenderHash, amount, "scammed", "")
	require.NoError(t, err)
	return tx
}

// ─── Intake ─────────────────────────────────────────────────────────────────

func TestFile_TransactionReportRequiresParty(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, victimHash, 100)
	e.register(t, offenderHash, 0)
	e.register(t, bystanderHash, 0)
	tx := e.disputedTransfer(t, 40)

	// A bystander cannot report a transaction they were not part of.
	_, err := e.report.File(bystanderHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeReport, "saw it happen")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	// Either party can.
	r, err := e.report.File(victimHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeAppeal, "never delivered")
	require.NoError(t, err)
	require.Equal(t, domain.ReportPending, r.Status)
}

func TestFile_DuplicateRejected(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, victimHash, 100)
	e.register(t, offenderHash, 0)
	tx := e.disputedTransfer(t, 40)

	_, err := e.report.File(victimHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeAppeal, "first")
	require.NoError(t, err)
	_, err = e.report.File(victimHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeAppeal, "second")
	require.ErrorIs(t, err, domain.ErrDuplicateReport)

	// The other party still gets their own report slot.
	_, err = e.report.File(offenderHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeAppeal, "contest")
	require.NoError(t, err)
}

func TestFile_UnknownTarget(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, victimHash, 0)

	_, err := e.report.File(victimHash, domain.ReportTransaction, "no-such-tx", domain.ReportTypeReport, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.report.File(victimHash, domain.ReportContent, "no-such-product", domain.ReportTypeReport, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// ─── Adjudication ───────────────────────────────────────────────────────────

func TestHandle_ResolveAndRejectAreStatusOnly(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, victimHash, 100)
	e.register(t, offenderHash, 0)
	tx := e.disputedTransfer(t, 40)
	r, _ := e.report.File(victimHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeAppeal, "")

	c, err := e.report.Handle(r.ReportID, domain.ReportResolved, "talked it out")
	require.NoError(t, err)
	require.Nil(t, c)

	got, _ := e.report.Report(r.ReportID)
	require.Equal(t, domain.ReportResolved, got.Status)
	require.Equal(t, "talked it out", got.AdminNote)
	require.NotZero(t, got.ResolvedAt)

	// No balances changed.
	require.EqualValues(t, 60, e.balance(t, victimHash))
	require.EqualValues(t, 40, e.balance(t, offenderHash))

	// Adjudication is final.
	_, err = e.report.Handle(r.ReportID, domain.ReportRejected, "")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestHandle_TakeDownRemovesProduct(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, victimHash, 0)
	e.register(t, offenderHash, 0)
	prod, err := e.escrow.CreateProduct(offenderHash, "fake tickets", "", 10, 5)
	require.NoError(t, err)

	r, err := e.report.File(victimHash, domain.ReportContent, prod.ProductID, domain.ReportTypeReport, "scam listing")
	require.NoError(t, err)

	_, err = e.report.Handle(r.ReportID, domain.ReportTakeDown, "confirmed scam")
	require.NoError(t, err)

	got, err := e.db.GetProduct(prod.ProductID)
	require.NoError(t, err)
	require.Equal(t, domain.ProductRemoved, got.Status)
}

func TestHandle_TakeDownNeedsContentKind(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, victimHash, 100)
	e.register(t, offenderHash, 0)
	tx := e.disputedTransfer(t, 10)
	r, _ := e.report.File(victimHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeAppeal, "")

	_, err := e.report.Handle(r.ReportID, domain.ReportTakeDown, "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestHandle_CompensateOpensCase(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, victimHash, 100)
	e.register(t, offenderHash, 0)
	tx := e.disputedTransfer(t, 40)
	r, _ := e.report.File(victimHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeAppeal, "")

	c, err := e.report.Handle(r.ReportID, domain.ReportCompensate, "clear fraud")
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, domain.RecoveryOpen, c.Status)
	require.Equal(t, victimHash, c.VictimHash)
	require.Equal(t, offenderHash, c.OffenderHash)
	require.EqualValues(t, 40, c.Amount)

	// Victim made whole from system funds; offender untouched so far.
	require.EqualValues(t, 100, e.balance(t, victimHash))
	require.EqualValues(t, 40, e.balance(t, offenderHash))

	// Exactly one compensation entry in the victim's history.
	page, err := e.ledger.History(victimHash, 1, 50)
	require.NoError(t, err)
	var comps int
	for _, entry := range page.Data {
		if entry.Type == domain.TxCompensation {
			comps++
		}
	}
	require.Equal(t, 1, comps)
}

// ─── Recovery ───────────────────────────────────────────────────────────────

func TestRecover_DebitsOffenderOnce(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, victimHash, 100)
	e.register(t, offenderHash, 0)
	tx := e.disputedTransfer(t, 40)
	r, _ := e.report.File(victimHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeAppeal, "")
	c, _ := e.report.Handle(r.ReportID, domain.ReportCompensate, "")

	require.NoError(t, e.report.Recover(c.CaseID))
	require.EqualValues(t, 0, e.balance(t, offenderHash))

	got, _ := e.db.GetRecoveryCase(c.CaseID)
	require.Equal(t, domain.RecoveryRecovered, got.Status)

	// A second recover cannot debit again.
	require.ErrorIs(t, e.report.Recover(c.CaseID), domain.ErrInvalidState)
	require.EqualValues(t, 0, e.balance(t, offenderHash))
}

func TestRecover_UnderfundedOffenderLeavesCaseOpen(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, victimHash, 100)
	e.register(t, offenderHash, 0)
	e.register(t, bystanderHash, 0)
	tx := e.disputedTransfer(t, 40)
	r, _ := e.report.File(victimHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeAppeal, "")
	c, _ := e.report.Handle(r.ReportID, domain.ReportCompensate, "")

	// Offender drains their wallet before the clawback lands.
	_, err := e.ledger.Transfer(offenderHash, bystanderHash, 40, "", "")
	require.NoError(t, err)

	err = e.report.Recover(c.CaseID)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// All-or-nothing: the case stays open for a later retry.
	got, _ := e.db.GetRecoveryCase(c.CaseID)
	require.Equal(t, domain.RecoveryOpen, got.Status)

	// Once the offender has funds again, the retry succeeds.
	_, err = e.ledger.Transfer(bystanderHash, offenderHash, 40, "", "")
	require.NoError(t, err)
	require.NoError(t, e.report.Recover(c.CaseID))
	require.EqualValues(t, 0, e.balance(t, offenderHash))
}

func TestCloseCase(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, victimHash, 100)
	e.register(t, offenderHash, 0)
	tx := e.disputedTransfer(t, 40)
	r, _ := e.report.File(victimHash, domain.ReportTransaction, tx.TxID, domain.ReportTypeAppeal, "")
	c, _ := e.report.Handle(r.ReportID, domain.ReportCompensate, "")

	require.NoError(t, e.report.CloseCase(c.CaseID))

	// Closed is terminal: no clawback possible, offender keeps the funds.
	require.ErrorIs(t, e.report.Recover(c.CaseID), domain.ErrInvalidState)
	require.EqualValues(t, 40, e.balance(t, offenderHash))
}
