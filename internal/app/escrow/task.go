package escrow

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/yourtongji/creditd/internal/app/ledger"
	"github.com/yourtongji/creditd/internal/domain"
	"github.com/yourtongji/creditd/internal/infra/observability"
	"github.com/yourtongji/creditd/internal/infra/sqlite"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────
// The reward is NOT escrowed at creation: it moves from creator to acceptor
// only when the creator confirms the submitted work. A confirm against an
// underfunded creator fails retryably and leaves the task submitted.

// CreateTask posts an open bounty. The creator must hold at least the reward
// at posting time, as an early signal; the real funds check happens at confirm.
func (s *Service) CreateTask(creatorHash, title, description, contactInfo string, reward int64) (*domain.Task, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title required", domain.ErrValidation)
	}
	if reward <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	w, err := s.db.GetWallet(creatorHash)
	if err != nil {
		return nil, err
	}
	if w.Balance < reward {
		return nil, domain.ErrInsufficientBalance
	}

	t := &domain.Task{
		TaskID:       uuid.NewString(),
		CreatorHash:  creatorHash,
		Title:        title,
		Description:  description,
		RewardAmount: reward,
		ContactInfo:  contactInfo,
		Status:       domain.TaskOpen,
	}
	if err := s.db.InsertTask(t); err != nil {
		return nil, err
	}
	s.log.Info("task posted", "task", t.TaskID, "creator", creatorHash, "reward", reward)
	return t, nil
}

// Task loads one task. ContactInfo visibility is the API layer's concern.
func (s *Service) Task(taskID string) (*domain.Task, error) {
	return s.db.GetTask(taskID)
}

// Tasks lists tasks filtered by status ("" for all).
func (s *Service) Tasks(status domain.TaskStatus, page, limit int) (domain.Page[domain.Task], error) {
	offset, page, limit := domain.ClampPage(page, limit)
	items, total, err := s.db.ListTasks(status, offset, limit)
	if err != nil {
		return domain.Page[domain.Task]{}, err
	}
	return domain.NewPage(items, total, page, limit), nil
}

// AcceptTask claims an open task for the caller. The conditional update is
// the race arbiter: of two concurrent accepts exactly one wins.
func (s *Service) AcceptTask(callerHash, taskID string) error {
	t, err := s.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if t.CreatorHash == callerHash {
		return fmt.Errorf("%w: cannot accept own task", domain.ErrConflict)
	}
	ok, err := s.db.AcceptTask(taskID, callerHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: task is not open", domain.ErrInvalidState)
	}
	return nil
}

// SubmitTask: acceptor marks the work done. in_progress → submitted.
func (s *Service) SubmitTask(callerHash, taskID string) error {
	t, err := s.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if t.AcceptorHash != callerHash {
		return fmt.Errorf("%w: only the acceptor submits", domain.ErrInvalidState)
	}
	if t.Status != domain.TaskInProgress {
		return fmt.Errorf("%w: task is %s", domain.ErrInvalidState, t.Status)
	}
	ok, err := s.db.SetTaskStatus(taskID, domain.TaskInProgress, domain.TaskSubmitted)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: task is no longer in progress", domain.ErrInvalidState)
	}
	return nil
}

// ConfirmTask: creator accepts the submitted work and pays the reward.
// Status flip, creator debit, acceptor credit, and the task_reward ledger
// entry commit as one unit. An underfunded creator fails the whole unit and
// the task stays submitted, so confirm can be retried after a top-up.
func (s *Service) ConfirmTask(callerHash, taskID string) error {
	t, err := s.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if t.CreatorHash != callerHash {
		return fmt.Errorf("%w: only the creator confirms", domain.ErrInvalidState)
	}
	if t.Status != domain.TaskSubmitted {
		return fmt.Errorf("%w: task is %s", domain.ErrInvalidState, t.Status)
	}

	err = s.db.WithTx(func(tx *sqlite.Tx) error {
		ok, err := tx.SetTaskStatus(taskID, domain.TaskSubmitted, domain.TaskCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: task is no longer submitted", domain.ErrInvalidState)
		}
		if err := ledger.DebitTx(tx, t.CreatorHash, t.RewardAmount); err != nil {
			return err
		}
		return ledger.CreditTx(tx, &domain.Transaction{
			TxID:     uuid.NewString(),
			Type:     domain.TxTaskReward,
			FromHash: t.CreatorHash,
			ToHash:   t.AcceptorHash,
			Amount:   t.RewardAmount,
			Status:   domain.TxCompleted,
			Title:    t.Title,
			Metadata: fmt.Sprintf(`{"task_id":%q}`, taskID),
		})
	})
	if err != nil {
		return err
	}

	observability.RecordMovement(string(domain.TxTaskReward), t.RewardAmount)
	s.log.Info("task reward paid", "task", taskID, "acceptor", t.AcceptorHash, "amount", t.RewardAmount)
	return nil
}

// RejectTask: creator sends submitted work back, or ejects a stalled
// acceptor who never submitted. The task reopens for anyone, acceptor
// cleared, no funds move.
func (s *Service) RejectTask(callerHash, taskID string) error {
	t, err := s.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if t.CreatorHash != callerHash {
		return fmt.Errorf("%w: only the creator rejects", domain.ErrInvalidState)
	}
	if t.Status != domain.TaskSubmitted && t.Status != domain.TaskInProgress {
		return fmt.Errorf("%w: task is %s", domain.ErrInvalidState, t.Status)
	}
	ok, err := s.db.ReopenTask(taskID, t.Status)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: task is no longer %s", domain.ErrInvalidState, t.Status)
	}
	return nil
}

// AbandonTask: acceptor walks away from an in-progress task. Reopens it.
func (s *Service) AbandonTask(callerHash, taskID string) error {
	t, err := s.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if t.AcceptorHash != callerHash {
		return fmt.Errorf("%w: only the acceptor abandons", domain.ErrInvalidState)
	}
	if t.Status != domain.TaskInProgress {
		return fmt.Errorf("%w: task is %s", domain.ErrInvalidState, t.Status)
	}
	ok, err := s.db.ReopenTask(taskID, domain.TaskInProgress)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: task is no longer in progress", domain.ErrInvalidState)
	}
	return nil
}

// CloseTask: creator withdraws an open task. open → cancelled, no funds held
// so nothing to refund.
func (s *Service) CloseTask(callerHash, taskID string) error {
	t, err := s.db.GetTask(taskID)
	if err != nil {
		return err
	}
	if t.CreatorHash != callerHash {
		return fmt.Errorf("%w: only the creator closes", domain.ErrInvalidState)
	}
	if t.Status != domain.TaskOpen {
		return fmt.Errorf("%w: task is %s", domain.ErrInvalidState, t.Status)
	}
	ok, err := s.db.SetTaskStatus(taskID, domain.TaskOpen, domain.TaskCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: task is no longer open", domain.ErrInvalidState)
	}
	return nil
}
