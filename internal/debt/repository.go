package debt

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fkhayef/splitledger/internal/database"
)

const debtColumns = `id, group_id, debtor_id, creditor_id, amount_cents, expense_id, status, created_at, updated_at`

// Repository handles debt persistence
type Repository struct {
	db database.DBTX
}

// NewRepository creates a new debt repository
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// FindOpposite returns the oldest pending debt owed by creditorID to debtorID
func (r *Repository) FindOpposite(ctx context.Context, groupID, debtorID, creditorID int64) (*Debt, error) {
	query := `
		SELECT ` + debtColumns + `
		FROM debts
		WHERE group_id = $1 AND debtor_id = $2 AND creditor_id = $3 AND status = $4
		ORDER BY id
		LIMIT 1
	`

	d, err := scanDebt(r.db.QueryRowContext(ctx, query, groupID, creditorID, debtorID, StatusPending))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find opposite debt: %w", err)
	}
	return d, nil
}

// Insert stores a new debt and fills in its id and timestamps
func (r *Repository) Insert(ctx context.Context, d *Debt) error {
	query := `
		INSERT INTO debts (group_id, debtor_id, creditor_id, amount_cents, expense_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`

	if d.Status == "" {
		d.Status = StatusPending
	}
	now := time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		d.GroupID,
		d.DebtorID,
		d.CreditorID,
		d.AmountCents,
		d.ExpenseID,
		d.Status,
		now,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("failed to insert debt: %w", err)
	}

	d.CreatedAt = now
	d.UpdatedAt = now
	return nil
}

// UpdateAmount sets a debt's outstanding amount
func (r *Repository) UpdateAmount(ctx context.Context, id, amountCents int64) error {
	query := `UPDATE debts SET amount_cents = $2, updated_at = $3 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, amountCents, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update debt amount: %w", err)
	}
	return nil
}

// Delete removes a debt
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete debt: %w", err)
	}
	return nil
}

// DeleteByExpense removes every debt caused by an expense and returns how many went
func (r *Repository) DeleteByExpense(ctx context.Context, expenseID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE expense_id = $1`, expenseID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete debts for expense: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// DeletePendingByGroup clears every pending debt of a group ahead of a rebuild
func (r *Repository) DeletePendingByGroup(ctx context.Context, groupID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE group_id = $1 AND status = $2`, groupID, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending debts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// ListPending returns all pending debts in a group ordered by id
func (r *Repository) ListPending(ctx context.Context, groupID int64) ([]*Debt, error) {
	query := `
		SELECT ` + debtColumns + `
		FROM debts
		WHERE group_id = $1 AND status = $2
		ORDER BY id
	`
	return r.list(ctx, query, groupID, StatusPending)
}

// ListByExpense returns the pending debts currently attributed to an expense
func (r *Repository) ListByExpense(ctx context.Context, expenseID int64) ([]*Debt, error) {
	query := `
		SELECT ` + debtColumns + `
		FROM debts
		WHERE expense_id = $1 AND status = $2
		ORDER BY id
	`
	return r.list(ctx, query, expenseID, StatusPending)
}

// ListPendingByDebtor returns what memberID owes in a group
func (r *Repository) ListPendingByDebtor(ctx context.Context, groupID, memberID int64) ([]*Debt, error) {
	query := `
		SELECT ` + debtColumns + `
		FROM debts
		WHERE group_id = $1 AND debtor_id = $2 AND status = $3
		ORDER BY id
	`
	return r.list(ctx, query, groupID, memberID, StatusPending)
}

// ListPendingByCreditor returns what is owed to memberID in a group
func (r *Repository) ListPendingByCreditor(ctx context.Context, groupID, memberID int64) ([]*Debt, error) {
	query := `
		SELECT ` + debtColumns + `
		FROM debts
		WHERE group_id = $1 AND creditor_id = $2 AND status = $3
		ORDER BY id
	`
	return r.list(ctx, query, groupID, memberID, StatusPending)
}

// SumPending returns the cents owed to memberID and owed by memberID in a group
func (r *Repository) SumPending(ctx context.Context, groupID, memberID int64) (toReceive, toPay int64, err error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN creditor_id = $2 THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN debtor_id = $2 THEN amount_cents ELSE 0 END), 0)
		FROM debts
		WHERE group_id = $1 AND status = $3 AND (creditor_id = $2 OR debtor_id = $2)
	`

	if err := r.db.QueryRowContext(ctx, query, groupID, memberID, StatusPending).Scan(&toReceive, &toPay); err != nil {
		return 0, 0, fmt.Errorf("failed to sum pending debts: %w", err)
	}
	return toReceive, toPay, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*Debt, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list debts: %w", err)
	}
	defer rows.Close()

	var debts []*Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate debts: %w", err)
	}

	return debts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDebt(s scanner) (*Debt, error) {
	d := &Debt{}
	err := s.Scan(
		&d.ID,
		&d.GroupID,
		&d.DebtorID,
		&d.CreditorID,
		&d.AmountCents,
		&d.ExpenseID,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}
