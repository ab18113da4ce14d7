package group

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/splitledger/internal/database/dbtest"
	"github.com/fkhayef/splitledger/internal/events"
	"github.com/fkhayef/splitledger/internal/metrics"
	"github.com/fkhayef/splitledger/internal/notification"
	"github.com/fkhayef/splitledger/internal/user"
)

type fakeRecalculator struct {
	calls []int64
	err   error
}

func (f *fakeRecalculator) RecalculateGroupTx(_ context.Context, tx *sql.Tx, groupID int64) (int, error) {
	if tx == nil {
		return 0, errors.New("recalculation outside a transaction")
	}
	f.calls = append(f.calls, groupID)
	return 3, f.err
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	db            *sql.DB
	svc           *Service
	recalc        *fakeRecalculator
	publisher     *recordingPublisher
	notifications *notification.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	recalc := &fakeRecalculator{}
	publisher := &recordingPublisher{}
	notifications := notification.NewService(notification.NewRepository(db))
	users := user.NewService(user.NewRepository(db))

	svc := NewService(db, NewRepository(db), recalc, notifications, users, publisher, nil, time.Hour)
	return &fixture{db: db, svc: svc, recalc: recalc, publisher: publisher, notifications: notifications}
}

func TestCreateMakesCreatorAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, f.db, "alice")

	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)

	_, members, err := f.svc.GetByIDWithMembers(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, alice, members[0].UserID)
	assert.Equal(t, MemberRoleAdmin, members[0].Role)
	assert.Equal(t, MemberStatusJoined, members[0].Status)

	groups, total, err := f.svc.ListByUserID(ctx, alice, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Flat", groups[0].Name)

	_, err = f.svc.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestAddMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, f.db, "alice")
	bob := dbtest.CreateUser(t, f.db, "bob")
	carol := dbtest.CreateUser(t, f.db, "carol")
	outsider := dbtest.CreateUser(t, f.db, "outsider")
	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)

	// invited members do not change the ledger
	member, err := f.svc.AddMember(ctx, g.ID, alice, &AddMemberRequest{UserID: bob})
	require.NoError(t, err)
	assert.Equal(t, MemberStatusInvited, member.Status)
	assert.Empty(t, f.recalc.calls)

	count, err := f.notifications.GetUnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	member, err = f.svc.AddMember(ctx, g.ID, alice, &AddMemberRequest{UserID: carol, Status: MemberStatusJoined})
	require.NoError(t, err)
	assert.Equal(t, MemberStatusJoined, member.Status)
	assert.Equal(t, []int64{g.ID}, f.recalc.calls)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeMemberJoined, f.publisher.events[0].Type)
	assert.Equal(t, carol, f.publisher.events[0].MemberID)

	_, err = f.svc.AddMember(ctx, g.ID, alice, &AddMemberRequest{UserID: bob})
	assert.ErrorIs(t, err, ErrMemberAlreadyExists)

	_, err = f.svc.AddMember(ctx, g.ID, alice, &AddMemberRequest{UserID: 9999})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.AddMember(ctx, g.ID, outsider, &AddMemberRequest{UserID: outsider})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.svc.AddMember(ctx, 9999, alice, &AddMemberRequest{UserID: bob})
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestAddMemberRollsBackWhenRecalculationFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, f.db, "alice")
	bob := dbtest.CreateUser(t, f.db, "bob")
	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)

	f.recalc.err = errors.New("boom")
	_, err = f.svc.AddMember(ctx, g.ID, alice, &AddMemberRequest{UserID: bob, Status: MemberStatusJoined})
	require.Error(t, err)

	members, err := f.svc.GetMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.Empty(t, f.publisher.events)
}

func TestAcceptInvitationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, f.db, "alice")
	bob := dbtest.CreateUser(t, f.db, "bob")
	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)
	_, err = f.svc.AddMember(ctx, g.ID, alice, &AddMemberRequest{UserID: bob})
	require.NoError(t, err)

	member, err := f.svc.AcceptInvitation(ctx, g.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, MemberStatusJoined, member.Status)

	member, err = f.svc.AcceptInvitation(ctx, g.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, MemberStatusJoined, member.Status)

	assert.Len(t, f.recalc.calls, 1)
	assert.Len(t, f.publisher.events, 1)

	_, err = f.svc.AcceptInvitation(ctx, g.ID, 9999)
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestOnMemberJoined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, f.db, "alice")
	bob := dbtest.CreateUser(t, f.db, "bob")
	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)
	_, err = f.svc.AddMember(ctx, g.ID, alice, &AddMemberRequest{UserID: bob})
	require.NoError(t, err)

	// still only invited
	assert.ErrorIs(t, f.svc.OnMemberJoined(ctx, g.ID, bob), ErrMemberNotFound)

	require.NoError(t, f.svc.OnMemberJoined(ctx, g.ID, alice))
	assert.Equal(t, []int64{g.ID}, f.recalc.calls)
	assert.ErrorIs(t, f.svc.OnMemberJoined(ctx, 9999, alice), ErrGroupNotFound)
}

func TestOnMemberJoinedCountsOnlySuccessfulResplits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	collector := metrics.NewCollector("test")
	f.svc.metrics = collector

	alice := dbtest.CreateUser(t, f.db, "alice")
	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)

	f.recalc.err = errors.New("replay failed")
	assert.ErrorIs(t, f.svc.OnMemberJoined(ctx, g.ID, alice), f.recalc.err)
	assert.Zero(t, testutil.ToFloat64(collector.ExpensesResplit))
	assert.Empty(t, f.publisher.events)

	f.recalc.err = nil
	require.NoError(t, f.svc.OnMemberJoined(ctx, g.ID, alice))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.ExpensesResplit))
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeMemberJoined, f.publisher.events[0].Type)
}

func TestRecalculate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, f.db, "alice")
	outsider := dbtest.CreateUser(t, f.db, "outsider")
	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)

	n, err := f.svc.Recalculate(ctx, g.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeGroupRecalculated, f.publisher.events[0].Type)

	_, err = f.svc.Recalculate(ctx, g.ID, outsider)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, f.db, "alice")
	bob := dbtest.CreateUser(t, f.db, "bob")
	carol := dbtest.CreateUser(t, f.db, "carol")
	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)
	for _, id := range []int64{bob, carol} {
		_, err = f.svc.AddMember(ctx, g.ID, alice, &AddMemberRequest{UserID: id, Status: MemberStatusJoined})
		require.NoError(t, err)
	}
	f.recalc.calls = nil

	assert.ErrorIs(t, f.svc.RemoveMember(ctx, g.ID, bob, carol), ErrNotAuthorized)

	// a payer cannot leave
	_, err = f.db.ExecContext(ctx,
		`INSERT INTO expenses (group_id, payer_id, description, amount_cents, created_at, updated_at)
		 VALUES ($1, $2, 'rent', 1000, $3, $3)`, g.ID, carol, time.Now().UTC())
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.RemoveMember(ctx, g.ID, alice, carol), ErrMemberHasExpenses)

	require.NoError(t, f.svc.RemoveMember(ctx, g.ID, bob, bob))
	assert.Equal(t, []int64{g.ID}, f.recalc.calls)
	assert.ErrorIs(t, f.svc.RemoveMember(ctx, g.ID, alice, bob), ErrMemberNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, f.db, "alice")
	bob := dbtest.CreateUser(t, f.db, "bob")
	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)
	_, err = f.svc.AddMember(ctx, g.ID, alice, &AddMemberRequest{UserID: bob, Status: MemberStatusJoined})
	require.NoError(t, err)

	name := "New flat"
	updated, err := f.svc.Update(ctx, g.ID, bob, &UpdateGroupRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	assert.ErrorIs(t, f.svc.Delete(ctx, g.ID, bob), ErrNotAuthorized)

	_, err = f.svc.UpdateMember(ctx, g.ID, alice, bob, &UpdateMemberRequest{Role: MemberRoleAdmin})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, g.ID, bob))

	_, err = f.svc.GetByID(ctx, g.ID)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestInvites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, f.db, "alice")
	bob := dbtest.CreateUser(t, f.db, "bob")
	carol := dbtest.CreateUser(t, f.db, "carol")
	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)

	inv, err := f.svc.CreateInvite(ctx, g.ID, alice)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), inv.ExpiresAt, time.Minute)

	member, err := f.svc.RedeemInvite(ctx, inv.Code, bob)
	require.NoError(t, err)
	assert.Equal(t, MemberStatusJoined, member.Status)
	assert.Len(t, f.recalc.calls, 1)

	// redeeming again changes nothing, and codes are reusable until they expire
	_, err = f.svc.RedeemInvite(ctx, inv.Code, bob)
	require.NoError(t, err)
	assert.Len(t, f.recalc.calls, 1)

	_, err = f.svc.RedeemInvite(ctx, "not-a-code", carol)
	assert.ErrorIs(t, err, ErrInviteNotFound)

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = f.svc.RedeemInvite(ctx, inv.Code, carol)
	assert.ErrorIs(t, err, ErrInviteNotFound)
	f.svc.now = time.Now

	assert.ErrorIs(t, f.svc.RevokeInvite(ctx, inv.Code, bob), ErrNotAuthorized)
	require.NoError(t, f.svc.RevokeInvite(ctx, inv.Code, alice))
	_, err = f.svc.RedeemInvite(ctx, inv.Code, carol)
	assert.ErrorIs(t, err, ErrInviteNotFound)
}

func TestSweeperRemovesExpiredInvites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := dbtest.CreateUser(t, f.db, "alice")
	g, err := f.svc.Create(ctx, alice, &CreateGroupRequest{Name: "Flat"})
	require.NoError(t, err)

	repo := NewRepository(f.db)
	now := time.Now().UTC()
	for i, ttl := range []time.Duration{-time.Minute, -time.Second, time.Hour} {
		require.NoError(t, repo.CreateInvite(ctx, &Invite{
			Code:      []string{"11111111-1111-1111-1111-111111111111", "22222222-2222-2222-2222-222222222222", "33333333-3333-3333-3333-333333333333"}[i],
			GroupID:   g.ID,
			CreatedBy: alice,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}))
	}

	sweeper := NewSweeper(repo, time.Hour)
	removed, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	left, err := repo.GetInvite(ctx, "33333333-3333-3333-3333-333333333333")
	require.NoError(t, err)
	assert.NotNil(t, left)

	// Run stops with its context
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(runCtx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
