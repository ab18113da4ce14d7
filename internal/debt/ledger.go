// Package debt holds the pending obligations between group members and the
// netting rule that keeps them from pointing both ways.
package debt

import (
	"context"
)

// Store is the persistence the ledger needs. Implementations run inside the
// caller's transaction.
type Store interface {
	// FindOpposite returns the oldest pending debt owed by creditorID to
	// debtorID in the group, or nil if there is none.
	FindOpposite(ctx context.Context, groupID, debtorID, creditorID int64) (*Debt, error)
	Insert(ctx context.Context, d *Debt) error
	UpdateAmount(ctx context.Context, id, amountCents int64) error
	Delete(ctx context.Context, id int64) error
}

// Record adds an obligation to the ledger, netting it against pending debts in
// the opposite direction first. Opposite debts are consumed oldest first; any
// remainder becomes a new pending debt. After Record returns, the pair never has
// pending debts in both directions.
func Record(ctx context.Context, store Store, ob Obligation) (Outcome, error) {
	if ob.AmountCents <= 0 || ob.DebtorID == ob.CreditorID {
		return OutcomeSkipped, nil
	}

	remaining := ob.AmountCents
	outcome := OutcomeCreated

	for remaining > 0 {
		opp, err := store.FindOpposite(ctx, ob.GroupID, ob.DebtorID, ob.CreditorID)
		if err != nil {
			return "", err
		}
		if opp == nil {
			break
		}

		switch {
		case opp.AmountCents > remaining:
			if err := store.UpdateAmount(ctx, opp.ID, opp.AmountCents-remaining); err != nil {
				return "", err
			}
			return OutcomeReduced, nil
		case opp.AmountCents == remaining:
			if err := store.Delete(ctx, opp.ID); err != nil {
				return "", err
			}
			return OutcomeCancelled, nil
		default:
			if err := store.Delete(ctx, opp.ID); err != nil {
				return "", err
			}
			remaining -= opp.AmountCents
			outcome = OutcomeReplaced
		}
	}

	err := store.Insert(ctx, &Debt{
		GroupID:     ob.GroupID,
		DebtorID:    ob.DebtorID,
		CreditorID:  ob.CreditorID,
		AmountCents: remaining,
		ExpenseID:   ob.ExpenseID,
		Status:      StatusPending,
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}
