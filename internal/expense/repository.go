package expense

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fkhayef/splitledger/internal/database"
)

const expenseColumns = `e.id, e.group_id, e.payer_id, e.description, e.amount_cents, e.created_at, e.updated_at, u.username`

// Repository handles expense data persistence
type Repository struct {
	db database.DBTX
}

// NewRepository creates a new expense repository
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// Create inserts a new expense and fills in its id and timestamps
func (r *Repository) Create(ctx context.Context, e *Expense) error {
	query := `
		INSERT INTO expenses (group_id, payer_id, description, amount_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`

	now := time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		e.GroupID,
		e.PayerID,
		e.Description,
		e.AmountCents,
		now,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}

	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

// GetByID retrieves an expense by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Expense, error) {
	query := `
		SELECT ` + expenseColumns + `
		FROM expenses e
		JOIN users u ON e.payer_id = u.id
		WHERE e.id = $1
	`

	e, err := scanExpense(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	return e, nil
}

// ListByGroupID retrieves a page of a group's expenses, newest first
func (r *Repository) ListByGroupID(ctx context.Context, groupID int64, limit, offset int) ([]*Expense, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM expenses WHERE group_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, groupID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count expenses: %w", err)
	}

	query := `
		SELECT ` + expenseColumns + `
		FROM expenses e
		JOIN users u ON e.payer_id = u.id
		WHERE e.group_id = $1
		ORDER BY e.id DESC
		LIMIT $2 OFFSET $3
	`

	expenses, err := r.list(ctx, query, groupID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return expenses, total, nil
}

// ListAllByGroupID returns every expense of a group in creation order
func (r *Repository) ListAllByGroupID(ctx context.Context, groupID int64) ([]*Expense, error) {
	query := `
		SELECT ` + expenseColumns + `
		FROM expenses e
		JOIN users u ON e.payer_id = u.id
		WHERE e.group_id = $1
		ORDER BY e.id
	`
	return r.list(ctx, query, groupID)
}

// UpdateAmount sets an expense's amount and, when given, its description.
// It returns false if the expense does not exist.
func (r *Repository) UpdateAmount(ctx context.Context, id, amountCents int64, description *string) (bool, error) {
	query := `
		UPDATE expenses
		SET amount_cents = $2,
		    description = COALESCE($3, description),
		    updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, amountCents, description, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to update expense: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Delete removes an expense. Its debts go with it through the foreign key.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete expense: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	return expenses, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (*Expense, error) {
	e := &Expense{}
	err := s.Scan(
		&e.ID,
		&e.GroupID,
		&e.PayerID,
		&e.Description,
		&e.AmountCents,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.PayerUsername,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}
