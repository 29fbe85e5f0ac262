package sqlite

import (
	"database/sql"

	"github.com/yourtongji/creditd/internal/domain"
)

// ─── Report Operations ──────────────────────────────────────────────────────

const reportColumns = `report_id, kind, target_id, reporter_hash, type, description, status, admin_note, created_at, resolved_at`

func scanReport(row interface{ Scan(...any) error }) (*domain.Report, error) {
	var r domain.Report
	var resolved sql.NullInt64
	err := row.Scan(&r.ReportID, &r.Kind, &r.TargetID, &r.ReporterHash, &r.Type,
		&r.Description, &r.Status, &r.AdminNote, &r.CreatedAt, &resolved)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.ResolvedAt = domain.Timestamp(resolved.Int64)
	return &r, nil
}

// InsertReport files a report. The UNIQUE(target_id, reporter_hash)
// constraint makes the duplicate check race-free; constraint failures map
// to domain.ErrDuplicateReport.
func (s queries) InsertReport(r *domain.Report) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = now()
	}
	_, err := s.q.Exec(`
		INSERT INTO reports (report_id, kind, target_id, reporter_hash, type, description, status, admin_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ReportID, r.Kind, r.TargetID, r.ReporterHash, r.Type, r.Description, r.Status, r.AdminNote, r.CreatedAt)
	if IsConstraint(err) {
		return domain.ErrDuplicateReport
	}
	return err
}

// GetReport loads one report or domain.ErrNotFound.
func (s queries) GetReport(reportID string) (*domain.Report, error) {
	return scanReport(s.q.QueryRow(`SELECT `+reportColumns+` FROM reports WHERE report_id = ?`, reportID))
}

// ResolveReport moves a report out of pending/reviewing into its final
// status with the admin's note. Returns false when the report was already
// adjudicated.
func (s queries) ResolveReport(reportID string, status domain.ReportStatus, adminNote string) (bool, error) {
	res, err := s.q.Exec(`
		UPDATE reports SET status = ?, admin_note = ?, resolved_at = ?
		WHERE report_id = ? AND status IN (?, ?)
	`, status, adminNote, now(), reportID, domain.ReportPending, domain.ReportReviewing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListReports returns reports filtered by status/reporter ('' for all).
func (s queries) ListReports(status domain.ReportStatus, reporterHash string, offset, limit int) ([]domain.Report, int64, error) {
	where, args := ` WHERE 1=1`, []any{}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, status)
	}
	if reporterHash != "" {
		where += ` AND reporter_hash = ?`
		args = append(args, reporterHash)
	}

	var total int64
	if err := s.q.QueryRow(`SELECT COUNT(*) FROM reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.q.Query(`SELECT `+reportColumns+` FROM reports`+where+`
		ORDER BY created_at DESC, report_id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *r)
	}
	return result, total, rows.Err()
}

// ─── Recovery Case Operations ───────────────────────────────────────────────

const caseColumns = `case_id, report_id, victim_hash, offender_hash, amount, status, created_at, resolved_at`

func scanCase(row interface{ Scan(...any) error }) (*domain.RecoveryCase, error) {
	var c domain.RecoveryCase
	var resolved sql.NullInt64
	err := row.Scan(&c.CaseID, &c.ReportID, &c.VictimHash, &c.OffenderHash,
		&c.Amount, &c.Status, &c.CreatedAt, &resolved)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ResolvedAt = domain.Timestamp(resolved.Int64)
	return &c, nil
}

// InsertRecoveryCase opens a clawback case.
func (s queries) InsertRecoveryCase(c *domain.RecoveryCase) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = now()
	}
	_, err := s.q.Exec(`
		INSERT INTO recovery_cases (case_id, report_id, victim_hash, offender_hash, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.CaseID, c.ReportID, c.VictimHash, c.OffenderHash, c.Amount, c.Status, c.CreatedAt)
	return err
}

// GetRecoveryCase loads one case or domain.ErrNotFound.
func (s queries) GetRecoveryCase(caseID string) (*domain.RecoveryCase, error) {
	return scanCase(s.q.QueryRow(`SELECT `+caseColumns+` FROM recovery_cases WHERE case_id = ?`, caseID))
}

// SetRecoveryStatus transitions a case out of open. Returns false when the
// case was not open (already recovered or closed).
func (s queries) SetRecoveryStatus(caseID string, to domain.RecoveryStatus) (bool, error) {
	res, err := s.q.Exec(`
		UPDATE recovery_cases SET status = ?, resolved_at = ?
		WHERE case_id = ? AND status = ?
	`, to, now(), caseID, domain.RecoveryOpen)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListRecoveryCases returns cases filtered by status ('' for all).
func (s queries) ListRecoveryCases(status domain.RecoveryStatus, offset, limit int) ([]domain.RecoveryCase, int64, error) {
	where, args := "", []any{}
	if status != "" {
		where = ` WHERE status = ?`
		args = append(args, status)
	}

	var total int64
	if err := s.q.QueryRow(`SELECT COUNT(*) FROM recovery_cases`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.q.Query(`SELECT `+caseColumns+` FROM recovery_cases`+where+`
		ORDER BY created_at DESC, case_id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.RecoveryCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *c)
	}
	return result, total, rows.Err()
}
