package expense_test

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/database/dbtest"
	"github.com/fkhayef/splitledger/internal/debt"
	"github.com/fkhayef/splitledger/internal/events"
	"github.com/fkhayef/splitledger/internal/expense"
	"github.com/fkhayef/splitledger/internal/expense/split"
	"github.com/fkhayef/splitledger/internal/group"
	"github.com/fkhayef/splitledger/internal/metrics"
	"github.com/fkhayef/splitledger/internal/money"
	"github.com/fkhayef/splitledger/internal/notification"
	"github.com/fkhayef/splitledger/internal/user"
)

type fixture struct {
	db            *sql.DB
	expenses      *expense.Service
	groups        *group.Service
	debts         *debt.Repository
	notifications *notification.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	publisher := events.NewLogPublisher(nil)
	collector := metrics.NewCollector("test")
	notifications := notification.NewService(notification.NewRepository(db))
	groupRepo := group.NewRepository(db)
	debts := debt.NewRepository(db)

	expenses := expense.NewService(db, expense.NewRepository(db), groupRepo, debts,
		&split.EvenStrategy{}, notifications, publisher, collector)
	groups := group.NewService(db, groupRepo, expenses, notifications,
		user.NewService(user.NewRepository(db)), publisher, collector, 0)

	return &fixture{
		db:            db,
		expenses:      expenses,
		groups:        groups,
		debts:         debts,
		notifications: notifications,
	}
}

func (f *fixture) create(t *testing.T, groupID, payerID int64, amount string) *expense.ExpenseWithShares {
	t.Helper()

	result, err := f.expenses.CreateExpense(context.Background(), payerID, &expense.CreateExpenseRequest{
		GroupID:     groupID,
		Description: "shared",
		Amount:      decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return result
}

type edge struct {
	debtor, creditor, cents int64
}

// pending returns the group's pending debts without ids, sorted for comparison
func (f *fixture) pending(t *testing.T, groupID int64) []edge {
	t.Helper()

	debts, err := f.debts.ListPending(context.Background(), groupID)
	require.NoError(t, err)

	edges := make([]edge, 0, len(debts))
	for _, d := range debts {
		edges = append(edges, edge{d.DebtorID, d.CreditorID, d.AmountCents})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].debtor != edges[j].debtor {
			return edges[i].debtor < edges[j].debtor
		}
		if edges[i].creditor != edges[j].creditor {
			return edges[i].creditor < edges[j].creditor
		}
		return edges[i].cents < edges[j].cents
	})
	return edges
}

func TestCreateExpenseSplitsEvenly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	c := dbtest.CreateUser(t, f.db, "c")
	groupID := dbtest.CreateGroup(t, f.db, "trip", a, b, c)

	result := f.create(t, groupID, a, "100.00")
	assert.Equal(t, int64(10000), result.Expense.AmountCents)
	assert.Equal(t, []split.Share{{MemberID: b, AmountCents: 3333}, {MemberID: c, AmountCents: 3333}}, result.Shares)

	// the extra cent stays with the payer, who sorts first
	assert.Equal(t, []edge{{b, a, 3333}, {c, a, 3333}}, f.pending(t, groupID))

	got, err := f.expenses.GetExpenseByID(ctx, result.Expense.ID, b)
	require.NoError(t, err)
	assert.Len(t, got.Debts, 2)
	assert.Equal(t, "a", got.Expense.PayerUsername)

	count, err := f.notifications.GetUnreadCount(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = f.notifications.GetUnreadCount(ctx, a)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateExpenseNetsAgainstOppositeDebt(t *testing.T) {
	f := newFixture(t)

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	groupID := dbtest.CreateGroup(t, f.db, "flat", a, b)

	// b owes a 20.00, then a owes b 35.00
	f.create(t, groupID, a, "40.00")
	f.create(t, groupID, b, "70.00")

	assert.Equal(t, []edge{{a, b, 1500}}, f.pending(t, groupID))
}

func TestCreateExpenseSingleMemberCreatesNoDebts(t *testing.T) {
	f := newFixture(t)

	a := dbtest.CreateUser(t, f.db, "a")
	groupID := dbtest.CreateGroup(t, f.db, "solo", a)

	result := f.create(t, groupID, a, "12.34")
	assert.Empty(t, result.Shares)
	assert.Empty(t, f.pending(t, groupID))
}

func TestCreateExpenseRejectsInvalidAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	groupID := dbtest.CreateGroup(t, f.db, "flat", a, b)

	for _, amount := range []string{"0", "-5.00", "10.005"} {
		_, err := f.expenses.CreateExpense(ctx, a, &expense.CreateExpenseRequest{
			GroupID:     groupID,
			Description: "bad",
			Amount:      decimal.RequireFromString(amount),
		})
		assert.ErrorIs(t, err, money.ErrInvalidAmount, amount)
	}

	_, total, err := f.expenses.ListExpensesByGroupID(ctx, groupID, a, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, f.pending(t, groupID))
}

func TestCreateExpenseMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	outsider := dbtest.CreateUser(t, f.db, "outsider")
	groupID := dbtest.CreateGroup(t, f.db, "flat", a, b)

	_, err := f.expenses.CreateExpense(ctx, outsider, &expense.CreateExpenseRequest{
		GroupID: groupID, Description: "x", Amount: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, expense.ErrNotMember)

	_, err = f.expenses.CreateExpense(ctx, a, &expense.CreateExpenseRequest{
		GroupID: groupID, PayerID: outsider, Description: "x", Amount: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, expense.ErrNotMember)

	_, err = f.expenses.CreateExpense(ctx, a, &expense.CreateExpenseRequest{
		GroupID: 9999, Description: "x", Amount: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, group.ErrGroupNotFound)

	// someone else may record what b paid
	result, err := f.expenses.CreateExpense(ctx, a, &expense.CreateExpenseRequest{
		GroupID: groupID, PayerID: b, Description: "taxi", Amount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, b, result.Expense.PayerID)
	assert.Equal(t, []edge{{a, b, 500}}, f.pending(t, groupID))
}

func TestUpdateExpenseAmountResplits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	c := dbtest.CreateUser(t, f.db, "c")
	groupID := dbtest.CreateGroup(t, f.db, "trip", a, b, c)

	created := f.create(t, groupID, a, "60.00")
	assert.Equal(t, []edge{{b, a, 2000}, {c, a, 2000}}, f.pending(t, groupID))

	desc := "bigger dinner"
	updated, err := f.expenses.UpdateExpenseAmount(ctx, created.Expense.ID, a, &expense.UpdateExpenseRequest{
		Amount:      decimal.RequireFromString("90.00"),
		Description: &desc,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9000), updated.Expense.AmountCents)
	assert.Equal(t, desc, updated.Expense.Description)

	assert.Equal(t, []edge{{b, a, 3000}, {c, a, 3000}}, f.pending(t, groupID))

	debts, err := f.debts.ListByExpense(ctx, created.Expense.ID)
	require.NoError(t, err)
	require.Len(t, debts, 2)
	for _, d := range debts {
		assert.Equal(t, int64(3000), d.AmountCents)
	}
}

func TestUpdateExpenseAmountUnwindsCrossExpenseNetting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	groupID := dbtest.CreateGroup(t, f.db, "flat", a, b)

	first := f.create(t, groupID, a, "100.00")
	f.create(t, groupID, b, "200.00")
	assert.Equal(t, []edge{{a, b, 5000}}, f.pending(t, groupID))

	// b now owes 150.00 for the first expense and is owed 100.00 for the second
	_, err := f.expenses.UpdateExpenseAmount(ctx, first.Expense.ID, a, &expense.UpdateExpenseRequest{
		Amount: decimal.RequireFromString("300.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []edge{{b, a, 5000}}, f.pending(t, groupID))
}

func TestUpdateExpenseAmountErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	groupID := dbtest.CreateGroup(t, f.db, "flat", a, b)
	created := f.create(t, groupID, a, "10.00")

	_, err := f.expenses.UpdateExpenseAmount(ctx, created.Expense.ID, b, &expense.UpdateExpenseRequest{
		Amount: decimal.NewFromInt(20),
	})
	assert.ErrorIs(t, err, expense.ErrNotPayer)

	_, err = f.expenses.UpdateExpenseAmount(ctx, created.Expense.ID, a, &expense.UpdateExpenseRequest{
		Amount: decimal.Zero,
	})
	assert.ErrorIs(t, err, money.ErrInvalidAmount)

	_, err = f.expenses.UpdateExpenseAmount(ctx, 9999, a, &expense.UpdateExpenseRequest{
		Amount: decimal.NewFromInt(20),
	})
	assert.ErrorIs(t, err, expense.ErrExpenseNotFound)

	assert.Equal(t, []edge{{b, a, 500}}, f.pending(t, groupID))
}

func TestDeleteExpenseRemovesOnlyItsDebts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	c := dbtest.CreateUser(t, f.db, "c")
	groupID := dbtest.CreateGroup(t, f.db, "trip", a, b, c)

	f.create(t, groupID, a, "90.00")
	dropped := f.create(t, groupID, c, "30.00")
	assert.Equal(t, []edge{{b, a, 3000}, {b, c, 1000}, {c, a, 2000}}, f.pending(t, groupID))

	assert.ErrorIs(t, f.expenses.DeleteExpense(ctx, dropped.Expense.ID, a), expense.ErrNotPayer)
	require.NoError(t, f.expenses.DeleteExpense(ctx, dropped.Expense.ID, c))

	assert.Equal(t, []edge{{b, a, 3000}, {c, a, 3000}}, f.pending(t, groupID))

	_, err := f.expenses.GetExpenseByID(ctx, dropped.Expense.ID, a)
	assert.ErrorIs(t, err, expense.ErrExpenseNotFound)
	assert.ErrorIs(t, f.expenses.DeleteExpense(ctx, dropped.Expense.ID, c), expense.ErrExpenseNotFound)
}

func TestMemberJoinRecalculatesGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	c := dbtest.CreateUser(t, f.db, "c")
	d := dbtest.CreateUser(t, f.db, "d")
	groupID := dbtest.CreateGroup(t, f.db, "trip", a, b, c)

	f.create(t, groupID, a, "100.00")
	assert.Equal(t, []edge{{b, a, 3333}, {c, a, 3333}}, f.pending(t, groupID))

	_, err := f.groups.AddMember(ctx, groupID, a, &group.AddMemberRequest{UserID: d, Status: group.MemberStatusJoined})
	require.NoError(t, err)

	assert.Equal(t, []edge{{b, a, 2500}, {c, a, 2500}, {d, a, 2500}}, f.pending(t, groupID))
}

func TestInvitedMemberCountsOnceAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	c := dbtest.CreateUser(t, f.db, "c")
	groupID := dbtest.CreateGroup(t, f.db, "flat", a, b)

	_, err := f.groups.AddMember(ctx, groupID, a, &group.AddMemberRequest{UserID: c})
	require.NoError(t, err)

	// invited members are not split across
	f.create(t, groupID, a, "30.00")
	assert.Equal(t, []edge{{b, a, 1500}}, f.pending(t, groupID))

	_, err = f.groups.AcceptInvitation(ctx, groupID, c)
	require.NoError(t, err)
	assert.Equal(t, []edge{{b, a, 1000}, {c, a, 1000}}, f.pending(t, groupID))
}

func TestRecalculateGroupIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	c := dbtest.CreateUser(t, f.db, "c")
	groupID := dbtest.CreateGroup(t, f.db, "trip", a, b, c)

	f.create(t, groupID, a, "100.00")
	f.create(t, groupID, b, "45.50")
	f.create(t, groupID, c, "12.01")
	f.create(t, groupID, b, "300.00")
	before := f.pending(t, groupID)

	recalculate := func() int {
		var n int
		err := database.WithTx(ctx, f.db, func(tx *sql.Tx) error {
			var err error
			n, err = f.expenses.RecalculateGroupTx(ctx, tx, groupID)
			return err
		})
		require.NoError(t, err)
		return n
	}

	assert.Equal(t, 4, recalculate())
	first := f.pending(t, groupID)
	assert.Equal(t, 4, recalculate())
	second := f.pending(t, groupID)

	assert.Equal(t, before, first)
	assert.Equal(t, first, second)

	// no pair owes in both directions
	owes := make(map[[2]int64]bool)
	for _, e := range second {
		owes[[2]int64{e.debtor, e.creditor}] = true
	}
	for pair := range owes {
		assert.False(t, owes[[2]int64{pair[1], pair[0]}], "both directions pending for %v", pair)
	}
}

func TestListExpensesByGroupID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	groupID := dbtest.CreateGroup(t, f.db, "flat", a, b)

	for _, amount := range []string{"1.00", "2.00", "3.00"} {
		f.create(t, groupID, a, amount)
	}

	page, total, err := f.expenses.ListExpensesByGroupID(ctx, groupID, b, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(300), page[0].AmountCents)

	_, _, err = f.expenses.ListExpensesByGroupID(ctx, 9999, a, 1, 20)
	assert.ErrorIs(t, err, group.ErrGroupNotFound)
}

func TestReadsRequireJoinedMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := dbtest.CreateUser(t, f.db, "a")
	b := dbtest.CreateUser(t, f.db, "b")
	invited := dbtest.CreateUser(t, f.db, "invited")
	outsider := dbtest.CreateUser(t, f.db, "outsider")
	groupID := dbtest.CreateGroup(t, f.db, "flat", a, b)

	_, err := f.groups.AddMember(ctx, groupID, a, &group.AddMemberRequest{UserID: invited})
	require.NoError(t, err)

	result := f.create(t, groupID, a, "10.00")

	for _, userID := range []int64{invited, outsider} {
		_, err := f.expenses.GetExpenseByID(ctx, result.Expense.ID, userID)
		assert.ErrorIs(t, err, expense.ErrNotMember)

		_, _, err = f.expenses.ListExpensesByGroupID(ctx, groupID, userID, 1, 20)
		assert.ErrorIs(t, err, expense.ErrNotMember)
	}

	// a missing expense is reported before membership is checked
	_, err = f.expenses.GetExpenseByID(ctx, 9999, outsider)
	assert.ErrorIs(t, err, expense.ErrExpenseNotFound)
}

func TestConcurrentWritesKeepLedgerConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var payers []int64
	for i := 0; i < 4; i++ {
		payers = append(payers, dbtest.CreateUser(t, f.db, fmt.Sprintf("payer%d", i)))
	}
	joiners := []int64{dbtest.CreateUser(t, f.db, "late1"), dbtest.CreateUser(t, f.db, "late2")}
	groupID := dbtest.CreateGroup(t, f.db, "busy", payers...)

	var g errgroup.Group
	for i := 0; i < 40; i++ {
		payer := payers[i%len(payers)]
		amount := decimal.New(int64(1000+i*137), -2)
		g.Go(func() error {
			_, err := f.expenses.CreateExpense(ctx, payer, &expense.CreateExpenseRequest{
				GroupID:     groupID,
				Description: "round",
				Amount:      amount,
			})
			return err
		})

		if i == 13 || i == 27 {
			joiner := joiners[i/14]
			g.Go(func() error {
				_, err := f.groups.AddMember(ctx, groupID, payers[0], &group.AddMemberRequest{
					UserID: joiner,
					Status: group.MemberStatusJoined,
				})
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	_, total, err := f.expenses.ListExpensesByGroupID(ctx, groupID, payers[0], 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 40, total)

	before := f.pending(t, groupID)
	owes := make(map[[2]int64]bool)
	for _, e := range before {
		assert.Positive(t, e.cents)
		owes[[2]int64{e.debtor, e.creditor}] = true
	}
	for pair := range owes {
		assert.False(t, owes[[2]int64{pair[1], pair[0]}], "both directions pending for %v", pair)
	}

	// whatever order the writers ran in, the ledger matches a fresh rebuild
	n, err := f.groups.Recalculate(ctx, groupID, payers[0])
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.Equal(t, before, f.pending(t, groupID))
}
