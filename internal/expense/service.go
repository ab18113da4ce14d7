package expense

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/debt"
	"github.com/fkhayef/splitledger/internal/events"
	"github.com/fkhayef/splitledger/internal/expense/split"
	"github.com/fkhayef/splitledger/internal/group"
	"github.com/fkhayef/splitledger/internal/metrics"
	"github.com/fkhayef/splitledger/internal/money"
)

// Common errors
var (
	ErrExpenseNotFound = errors.New("expense not found")
	ErrNotPayer        = errors.New("only the payer can change this expense")
	ErrNotMember       = errors.New("user is not a joined member of this group")
)

// Notifier writes expense notifications inside the caller's transaction
type Notifier interface {
	NotifyExpenseAdded(ctx context.Context, tx *sql.Tx, recipientID int64, description string, shareCents, expenseID int64) error
	NotifyExpenseUpdated(ctx context.Context, tx *sql.Tx, recipientID int64, description string, shareCents, expenseID int64) error
}

// Service splits expenses across group members and keeps the debt ledger in
// step with them. Every mutation runs in one transaction that first takes the
// group lock, so the ledger always equals replaying the group's expenses in id
// order against its current joined members.
type Service struct {
	db        *sql.DB
	repo      *Repository
	groups    *group.Repository
	debts     *debt.Repository
	splitter  split.Strategy
	notifier  Notifier
	publisher events.Publisher
	metrics   *metrics.Collector
}

// NewService creates a new expense service with dependencies injected
func NewService(
	db *sql.DB,
	repo *Repository,
	groups *group.Repository,
	debts *debt.Repository,
	splitter split.Strategy,
	notifier Notifier,
	publisher events.Publisher,
	collector *metrics.Collector,
) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		groups:    groups,
		debts:     debts,
		splitter:  splitter,
		notifier:  notifier,
		publisher: publisher,
		metrics:   collector,
	}
}

// CreateExpense records an expense and the obligations of every other joined
// member towards the payer. The payer defaults to the caller.
func (s *Service) CreateExpense(ctx context.Context, userID int64, req *CreateExpenseRequest) (*ExpenseWithShares, error) {
	cents, err := money.FromDecimal(req.Amount)
	if err != nil {
		return nil, err
	}

	payerID := req.PayerID
	if payerID == 0 {
		payerID = userID
	}

	e := &Expense{
		GroupID:     req.GroupID,
		PayerID:     payerID,
		Description: req.Description,
		AmountCents: cents,
	}

	var owed []split.Share
	err = s.mutate(ctx, "create_expense", req.GroupID, func(tx *sql.Tx, members []int64) error {
		if !isMember(members, userID) || !isMember(members, payerID) {
			return ErrNotMember
		}

		if err := s.repo.WithTx(tx).Create(ctx, e); err != nil {
			return err
		}

		var err error
		owed, err = s.applySplit(ctx, s.debts.WithTx(tx), e, members)
		if err != nil {
			return err
		}

		for _, share := range owed {
			if err := s.notifier.NotifyExpenseAdded(ctx, tx, share.MemberID, e.Description, share.AmountCents, e.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeExpenseCreated, e)
	return &ExpenseWithShares{Expense: e, Shares: owed}, nil
}

// UpdateExpenseAmount changes an expense's amount and re-derives the group's
// debts. No debt computed from the old amount survives.
func (s *Service) UpdateExpenseAmount(ctx context.Context, id, userID int64, req *UpdateExpenseRequest) (*ExpenseWithShares, error) {
	cents, err := money.FromDecimal(req.Amount)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrExpenseNotFound
	}

	var e *Expense
	var owed []split.Share
	err = s.mutate(ctx, "update_expense", existing.GroupID, func(tx *sql.Tx, members []int64) error {
		repo := s.repo.WithTx(tx)

		// re-read under the lock, it may have been deleted meanwhile
		var err error
		e, err = repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return ErrExpenseNotFound
		}
		if e.PayerID != userID {
			return ErrNotPayer
		}

		if _, err := repo.UpdateAmount(ctx, id, cents, req.Description); err != nil {
			return err
		}
		e.AmountCents = cents
		if req.Description != nil {
			e.Description = *req.Description
		}

		if _, err := s.rebuild(ctx, tx, e.GroupID, members); err != nil {
			return err
		}

		owed, err = s.owedShares(e, members)
		if err != nil {
			return err
		}
		for _, share := range owed {
			if err := s.notifier.NotifyExpenseUpdated(ctx, tx, share.MemberID, e.Description, share.AmountCents, e.ID); err != nil {
				return err
			}
		}

		e, err = repo.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeExpenseUpdated, e)
	return &ExpenseWithShares{Expense: e, Shares: owed}, nil
}

// DeleteExpense removes an expense together with every debt it caused. Only
// the payer may delete it.
func (s *Service) DeleteExpense(ctx context.Context, id, userID int64) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrExpenseNotFound
	}

	err = s.mutate(ctx, "delete_expense", existing.GroupID, func(tx *sql.Tx, members []int64) error {
		repo := s.repo.WithTx(tx)

		e, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return ErrExpenseNotFound
		}
		if e.PayerID != userID {
			return ErrNotPayer
		}

		if _, err := s.debts.WithTx(tx).DeleteByExpense(ctx, id); err != nil {
			return err
		}
		if _, err := repo.Delete(ctx, id); err != nil {
			return err
		}

		// debts of other expenses may have been netted against this one
		_, err = s.rebuild(ctx, tx, e.GroupID, members)
		return err
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.TypeExpenseDeleted, existing)
	return nil
}

// RecalculateGroupTx discards every pending debt of the group and re-splits
// each expense against the current joined members. It runs inside tx, which
// must already hold the group lock, and returns the number of expenses
// re-split. Running it twice in a row leaves the same ledger.
func (s *Service) RecalculateGroupTx(ctx context.Context, tx *sql.Tx, groupID int64) (int, error) {
	members, err := s.groups.WithTx(tx).ListJoinedMemberIDs(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return s.rebuild(ctx, tx, groupID, members)
}

// GetExpenseByID retrieves an expense with its current shares and debts.
// Only joined members of the expense's group may see it.
func (s *Service) GetExpenseByID(ctx context.Context, id, userID int64) (*ExpenseWithShares, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrExpenseNotFound
	}
	if err := s.requireViewer(ctx, e.GroupID, userID); err != nil {
		return nil, err
	}

	members, err := s.groups.ListJoinedMemberIDs(ctx, e.GroupID)
	if err != nil {
		return nil, err
	}
	owed, err := s.owedShares(e, members)
	if err != nil {
		return nil, err
	}

	debts, err := s.debts.ListByExpense(ctx, id)
	if err != nil {
		return nil, err
	}

	return &ExpenseWithShares{Expense: e, Shares: owed, Debts: debts}, nil
}

// ListExpensesByGroupID retrieves expenses for a group the user has joined
func (s *Service) ListExpensesByGroupID(ctx context.Context, groupID, userID int64, page, perPage int) ([]*Expense, int, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, 0, err
	}
	if g == nil {
		return nil, 0, group.ErrGroupNotFound
	}
	if err := s.requireViewer(ctx, groupID, userID); err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByGroupID(ctx, groupID, perPage, offset)
}

func (s *Service) requireViewer(ctx context.Context, groupID, userID int64) error {
	member, err := s.groups.GetMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if member == nil || member.Status != group.MemberStatusJoined {
		return ErrNotMember
	}
	return nil
}

// mutate runs fn in a transaction holding the group lock, handing it the
// group's joined members.
func (s *Service) mutate(ctx context.Context, operation string, groupID int64, fn func(tx *sql.Tx, members []int64) error) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		groups := s.groups.WithTx(tx)

		found, err := groups.Lock(ctx, groupID)
		if err != nil {
			return err
		}
		if !found {
			return group.ErrGroupNotFound
		}

		members, err := groups.ListJoinedMemberIDs(ctx, groupID)
		if err != nil {
			return err
		}
		return fn(tx, members)
	})
	s.metrics.ObserveOperation(operation, err, errors.Is(err, database.ErrConcurrencyConflict))
	return err
}

// rebuild clears the group's pending debts and replays its expenses in id order
func (s *Service) rebuild(ctx context.Context, tx *sql.Tx, groupID int64, members []int64) (int, error) {
	debts := s.debts.WithTx(tx)

	expenses, err := s.repo.WithTx(tx).ListAllByGroupID(ctx, groupID)
	if err != nil {
		return 0, err
	}
	if _, err := debts.DeletePendingByGroup(ctx, groupID); err != nil {
		return 0, err
	}

	for _, e := range expenses {
		if _, err := s.applySplit(ctx, debts, e, members); err != nil {
			return 0, err
		}
	}
	return len(expenses), nil
}

// applySplit records what every member other than the payer owes for e and
// returns those shares. A group of one (or none) owes nothing.
func (s *Service) applySplit(ctx context.Context, store debt.Store, e *Expense, members []int64) ([]split.Share, error) {
	owed, err := s.owedShares(e, members)
	if err != nil {
		return nil, err
	}

	for _, share := range owed {
		expenseID := e.ID
		outcome, err := debt.Record(ctx, store, debt.Obligation{
			GroupID:     e.GroupID,
			DebtorID:    share.MemberID,
			CreditorID:  e.PayerID,
			AmountCents: share.AmountCents,
			ExpenseID:   &expenseID,
		})
		if err != nil {
			return nil, err
		}
		s.metrics.ObserveNetting(string(outcome))
	}
	return owed, nil
}

// owedShares splits e across members and drops the payer's own share
func (s *Service) owedShares(e *Expense, members []int64) ([]split.Share, error) {
	if len(members) <= 1 {
		return nil, nil
	}

	shares, err := s.splitter.Calculate(e.AmountCents, members)
	if err != nil {
		if errors.Is(err, split.ErrEmptyGroup) {
			return nil, nil
		}
		return nil, err
	}
	return split.Debtors(e.PayerID, shares), nil
}

func (s *Service) publish(ctx context.Context, eventType string, e *Expense) {
	ev := events.New(eventType, e.GroupID)
	ev.ExpenseID = e.ID
	ev.MemberID = e.PayerID
	ev.AmountCents = e.AmountCents
	events.PublishQuietly(ctx, s.publisher, ev)
}

func isMember(members []int64, userID int64) bool {
	for _, id := range members {
		if id == userID {
			return true
		}
	}
	return false
}
