package settlement

import (
	"sort"

	"github.com/fkhayef/splitledger/internal/debt"
)

// NetBalances sums pending debts per member: what a member is owed minus what
// they owe. Settled debts are ignored.
func NetBalances(debts []*debt.Debt) map[int64]int64 {
	net := make(map[int64]int64)
	for _, d := range debts {
		if d.Status != debt.StatusPending {
			continue
		}
		net[d.CreditorID] += d.AmountCents
		net[d.DebtorID] -= d.AmountCents
	}
	return net
}

// Plan computes the transfers that settle a group's pending debts
func Plan(debts []*debt.Debt) []Transfer {
	return PlanBalances(NetBalances(debts))
}

type position struct {
	memberID int64
	cents    int64
}

// PlanBalances matches the largest remaining debtor against the largest
// remaining creditor until every balance is zero. Members with equal balances
// are taken in ascending id order. The result has at most one transfer fewer
// than the number of members with a nonzero balance, but is not guaranteed to
// be the shortest possible plan.
func PlanBalances(net map[int64]int64) []Transfer {
	var creditors, debtors []position
	for id, cents := range net {
		switch {
		case cents > 0:
			creditors = append(creditors, position{id, cents})
		case cents < 0:
			debtors = append(debtors, position{id, -cents})
		}
	}
	sortPositions(creditors)
	sortPositions(debtors)

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := min(debtors[i].cents, creditors[j].cents)
		transfers = append(transfers, Transfer{
			FromID:      debtors[i].memberID,
			ToID:        creditors[j].memberID,
			AmountCents: amount,
		})

		debtors[i].cents -= amount
		creditors[j].cents -= amount
		if debtors[i].cents == 0 {
			i++
		}
		if creditors[j].cents == 0 {
			j++
		}
	}
	return transfers
}

func sortPositions(p []position) {
	sort.Slice(p, func(a, b int) bool {
		if p[a].cents != p[b].cents {
			return p[a].cents > p[b].cents
		}
		return p[a].memberID < p[b].memberID
	})
}
