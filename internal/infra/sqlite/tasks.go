package sqlite

import (
	"database/sql"

	"github.com/yourtongji/creditd/internal/domain"
)

// ─── Task Operations ────────────────────────────────────────────────────────

const taskColumns = `task_id, creator_hash, acceptor_hash, title, description, reward_amount, contact_info, status, created_at, accepted_at, submitted_at, completed_at`

func scanTask(row interface{ Scan(...any) error }) (*domain.Task, error) {
	var t domain.Task
	var accepted, submitted, completed sql.NullInt64
	err := row.Scan(&t.TaskID, &t.CreatorHash, &t.AcceptorHash, &t.Title, &t.Description,
		&t.RewardAmount, &t.ContactInfo, &t.Status, &t.CreatedAt, &accepted, &submitted, &completed)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.AcceptedAt = domain.Timestamp(accepted.Int64)
	t.SubmittedAt = domain.Timestamp(submitted.Int64)
	t.CompletedAt = domain.Timestamp(completed.Int64)
	return &t, nil
}

// InsertTask creates a task bounty in the open state.
func (s queries) InsertTask(t *domain.Task) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = now()
	}
	_, err := s.q.Exec(`
		INSERT INTO tasks (task_id, creator_hash, title, description, reward_amount, contact_info, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.TaskID, t.CreatorHash, t.Title, t.Description, t.RewardAmount, t.ContactInfo, t.Status, t.CreatedAt)
	return err
}

// GetTask loads one task or domain.ErrNotFound.
func (s queries) GetTask(taskID string) (*domain.Task, error) {
	return scanTask(s.q.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, taskID))
}

// AcceptTask atomically claims an open task for acceptorHash.
// Returns false when the task was not open (someone else got there first).
func (s queries) AcceptTask(taskID, acceptorHash string) (bool, error) {
	res, err := s.q.Exec(`
		UPDATE tasks SET status = ?, acceptor_hash = ?, accepted_at = ?
		WHERE task_id = ? AND status = ?
	`, domain.TaskInProgress, acceptorHash, now(), taskID, domain.TaskOpen)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReopenTask returns a task to open, clearing the acceptor. Serves acceptor
// abandon and creator reject.
func (s queries) ReopenTask(taskID string, from domain.TaskStatus) (bool, error) {
	res, err := s.q.Exec(`
		UPDATE tasks SET status = ?, acceptor_hash = '', accepted_at = NULL, submitted_at = NULL
		WHERE task_id = ? AND status = ?
	`, domain.TaskOpen, taskID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetTaskStatus drives a status transition guarded by the expected source
// state. Returns false on a state mismatch.
func (s queries) SetTaskStatus(taskID string, from, to domain.TaskStatus) (bool, error) {
	var col string
	switch to {
	case domain.TaskSubmitted:
		col = "submitted_at"
	case domain.TaskCompleted:
		col = "completed_at"
	}
	query := `UPDATE tasks SET status = ? WHERE task_id = ? AND status = ?`
	args := []any{to, taskID, from}
	if col != "" {
		query = `UPDATE tasks SET status = ?, ` + col + ` = ? WHERE task_id = ? AND status = ?`
		args = []any{to, now(), taskID, from}
	}
	res, err := s.q.Exec(query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListTasks returns tasks filtered by status ('' for all), newest first.
func (s queries) ListTasks(status domain.TaskStatus, offset, limit int) ([]domain.Task, int64, error) {
	where, args := "", []any{}
	if status != "" {
		where = ` WHERE status = ?`
		args = append(args, status)
	}

	var total int64
	if err := s.q.QueryRow(`SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.q.Query(`SELECT `+taskColumns+` FROM tasks`+where+`
		ORDER BY created_at DESC, task_id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *t)
	}
	return result, total, rows.Err()
}
