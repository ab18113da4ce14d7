package settlement

import (
	"context"
	"fmt"

	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/debt"
)

// Repository runs the aggregate queries behind balance reports
type Repository struct {
	db database.DBTX
}

// NewRepository creates a new settlement repository
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// NetBalances returns every member of a group with a nonzero net balance,
// largest magnitude first
func (r *Repository) NetBalances(ctx context.Context, groupID int64) ([]*Balance, error) {
	query := `
		WITH
		-- what each member is owed, minus what they owe
		movements AS (
			SELECT creditor_id AS member_id, amount_cents AS delta
			FROM debts
			WHERE group_id = $1 AND status = $2
			UNION ALL
			SELECT debtor_id AS member_id, -amount_cents AS delta
			FROM debts
			WHERE group_id = $1 AND status = $2
		),
		net_balances AS (
			SELECT member_id, SUM(delta) AS net_cents
			FROM movements
			GROUP BY member_id
		)
		SELECT nb.member_id, u.username, nb.net_cents
		FROM net_balances nb
		JOIN users u ON nb.member_id = u.id
		WHERE nb.net_cents <> 0
		ORDER BY ABS(nb.net_cents) DESC, nb.member_id
	`

	rows, err := r.db.QueryContext(ctx, query, groupID, debt.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get net balances: %w", err)
	}
	defer rows.Close()

	var balances []*Balance
	for rows.Next() {
		balance := &Balance{}
		if err := rows.Scan(&balance.MemberID, &balance.Username, &balance.NetCents); err != nil {
			return nil, fmt.Errorf("failed to scan net balance: %w", err)
		}
		balances = append(balances, balance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate net balances: %w", err)
	}

	return balances, nil
}
