// Package report runs the complaint and clawback workflow. A user files a
// report against a transaction or a content entity; an admin adjudicates it.
// The compensate path makes the victim whole from system funds first and
// opens a recovery case; clawback against the offender happens later and is
// allowed to fail without touching the victim's compensation.
package report

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yourtongji/creditd/internal/app/ledger"
	"github.com/yourtongji/creditd/internal/domain"
	"github.com/yourtongji/creditd/internal/infra/observability"
	"github.com/yourtongji/creditd/internal/infra/sqlite"
)

// Service handles report intake, adjudication, and recovery.
type Service struct {
	db  *sqlite.DB
	log *slog.Logger
}

// NewService creates the report service.
func NewService(db *sqlite.DB, log *slog.Logger) *Service {
	return &Service{db: db, log: log}
}

// ─── Intake ─────────────────────────────────────────────────────────────────

// File creates a report. Transaction-kind reports are accepted only from a
// party to the transaction. One report per (target, reporter) pair; the
// database constraint arbitrates concurrent duplicates.
func (s *Service) File(reporterHash string, kind domain.ReportKind, targetID string, rtype domain.ReportType, description string) (*domain.Report, error) {
	switch kind {
	case domain.ReportTransaction:
		tx, err := s.db.GetTransaction(targetID)
		if err != nil {
			return nil, err
		}
		if !tx.Party(reporterHash) {
			return nil, fmt.Errorf("%w: reporter is not a party to the transaction", domain.ErrUnauthorized)
		}
	case domain.ReportContent:
		if _, err := s.db.GetProduct(targetID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown report kind %q", domain.ErrValidation, kind)
	}
	if rtype != domain.ReportTypeAppeal && rtype != domain.ReportTypeReport {
		return nil, fmt.Errorf("%w: unknown report type %q", domain.ErrValidation, rtype)
	}

	r := &domain.Report{
		ReportID:     uuid.NewString(),
		Kind:         kind,
		TargetID:     targetID,
		ReporterHash: reporterHash,
		Type:         rtype,
		Description:  description,
		Status:       domain.ReportPending,
	}
	if err := s.db.InsertReport(r); err != nil {
		return nil, err
	}
	s.log.Info("report filed", "report", r.ReportID, "kind", kind, "target", targetID)
	return r, nil
}

// Report loads one report.
func (s *Service) Report(reportID string) (*domain.Report, error) {
	return s.db.GetReport(reportID)
}

// Reports lists reports for the admin queue, filtered by status ("" for all).
func (s *Service) Reports(status domain.ReportStatus, reporterHash string, page, limit int) (domain.Page[domain.Report], error) {
	offset, page, limit := domain.ClampPage(page, limit)
	items, total, err := s.db.ListReports(status, reporterHash, offset, limit)
	if err != nil {
		return domain.Page[domain.Report]{}, err
	}
	return domain.NewPage(items, total, page, limit), nil
}

// ─── Adjudication ───────────────────────────────────────────────────────────

// Handle applies an admin decision to a pending or reviewing report.
//
//	resolved / rejected — status change only.
//	take_down           — content kind: also flips the target product to removed.
//	compensate          — transaction kind: mints a compensation transaction to
//	                      the victim and opens a RecoveryCase against the other
//	                      party, all atomically with the status change.
func (s *Service) Handle(reportID string, decision domain.ReportStatus, adminNote string) (*domain.RecoveryCase, error) {
	r, err := s.db.GetReport(reportID)
	if err != nil {
		return nil, err
	}
	if r.Status != domain.ReportPending && r.Status != domain.ReportReviewing {
		return nil, fmt.Errorf("%w: report already adjudicated (%s)", domain.ErrInvalidState, r.Status)
	}

	switch decision {
	case domain.ReportResolved, domain.ReportRejected:
		ok, err := s.db.ResolveReport(reportID, decision, adminNote)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: report already adjudicated", domain.ErrInvalidState)
		}
		return nil, nil

	case domain.ReportTakeDown:
		if r.Kind != domain.ReportContent {
			return nil, fmt.Errorf("%w: take_down applies to content reports", domain.ErrValidation)
		}
		err := s.db.WithTx(func(tx *sqlite.Tx) error {
			ok, err := tx.ResolveReport(reportID, domain.ReportTakeDown, adminNote)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: report already adjudicated", domain.ErrInvalidState)
			}
			_, err = tx.SetProductStatus(r.TargetID, domain.ProductRemoved)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.log.Info("content taken down", "report", reportID, "product", r.TargetID)
		return nil, nil

	case domain.ReportCompensate:
		return s.compensate(r, adminNote)

	default:
		return nil, fmt.Errorf("%w: unknown decision %q", domain.ErrValidation, decision)
	}
}

// compensate pays the reporter back from system funds and opens the clawback
// case against the transaction's other party.
func (s *Service) compensate(r *domain.Report, adminNote string) (*domain.RecoveryCase, error) {
	if r.Kind != domain.ReportTransaction {
		return nil, fmt.Errorf("%w: compensate applies to transaction reports", domain.ErrValidation)
	}
	disputed, err := s.db.GetTransaction(r.TargetID)
	if err != nil {
		return nil, err
	}

	victim := r.ReporterHash
	offender := disputed.FromHash
	if offender == victim {
		offender = disputed.ToHash
	}
	if offender == "" {
		return nil, fmt.Errorf("%w: transaction has no counterparty to recover from", domain.ErrValidation)
	}

	c := &domain.RecoveryCase{
		CaseID:       uuid.NewString(),
		ReportID:     r.ReportID,
		VictimHash:   victim,
		OffenderHash: offender,
		Amount:       disputed.Amount,
		Status:       domain.RecoveryOpen,
	}
	err = s.db.WithTx(func(tx *sqlite.Tx) error {
		ok, err := tx.ResolveReport(r.ReportID, domain.ReportCompensate, adminNote)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: report already adjudicated", domain.ErrInvalidState)
		}
		if err := ledger.CreditTx(tx, &domain.Transaction{
			TxID:     uuid.NewString(),
			Type:     domain.TxCompensation,
			ToHash:   victim,
			Amount:   disputed.Amount,
			Status:   domain.TxCompleted,
			Title:    "dispute compensation",
			Metadata: fmt.Sprintf(`{"report_id":%q,"disputed_tx":%q}`, r.ReportID, disputed.TxID),
		}); err != nil {
			return err
		}
		return tx.InsertRecoveryCase(c)
	})
	if err != nil {
		return nil, err
	}

	observability.RecordMovement(string(domain.TxCompensation), disputed.Amount)
	s.log.Info("victim compensated", "report", r.ReportID, "case", c.CaseID,
		"victim", victim, "offender", offender, "amount", disputed.Amount)
	return c, nil
}

// ─── Recovery ───────────────────────────────────────────────────────────────

// Recover attempts the clawback on an open case: conditional debit of the
// offender, a recovery ledger entry, and the case flip to recovered, all or
// nothing. An underfunded offender leaves the case open and returns
// InsufficientBalance so the admin can retry later.
func (s *Service) Recover(caseID string) error {
	c, err := s.db.GetRecoveryCase(caseID)
	if err != nil {
		return err
	}
	if c.Status != domain.RecoveryOpen {
		return fmt.Errorf("%w: case is %s", domain.ErrInvalidState, c.Status)
	}

	err = s.db.WithTx(func(tx *sqlite.Tx) error {
		ok, err := tx.SetRecoveryStatus(caseID, domain.RecoveryRecovered)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: case is no longer open", domain.ErrInvalidState)
		}
		if err := ledger.DebitTx(tx, c.OffenderHash, c.Amount); err != nil {
			return err
		}
		return tx.InsertTransaction(&domain.Transaction{
			TxID:     uuid.NewString(),
			Type:     domain.TxRecovery,
			FromHash: c.OffenderHash,
			Amount:   c.Amount,
			Status:   domain.TxCompleted,
			Title:    "funds recovery",
			Metadata: fmt.Sprintf(`{"case_id":%q}`, caseID),
		})
	})
	if err != nil {
		return err
	}

	observability.RecordMovement(string(domain.TxRecovery), c.Amount)
	s.log.Info("funds recovered", "case", caseID, "offender", c.OffenderHash, "amount", c.Amount)
	return nil
}

// CloseCase abandons an open clawback case without moving funds.
func (s *Service) CloseCase(caseID string) error {
	c, err := s.db.GetRecoveryCase(caseID)
	if err != nil {
		return err
	}
	if c.Status != domain.RecoveryOpen {
		return fmt.Errorf("%w: case is %s", domain.ErrInvalidState, c.Status)
	}
	ok, err := s.db.SetRecoveryStatus(caseID, domain.RecoveryClosed)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: case is no longer open", domain.ErrInvalidState)
	}
	return nil
}

// Cases lists recovery cases filtered by status ("" for all).
func (s *Service) Cases(status domain.RecoveryStatus, page, limit int) (domain.Page[domain.RecoveryCase], error) {
	offset, page, limit := domain.ClampPage(page, limit)
	items, total, err := s.db.ListRecoveryCases(status, offset, limit)
	if err != nil {
		return domain.Page[domain.RecoveryCase]{}, err
	}
	return domain.NewPage(items, total, page, limit), nil
}
