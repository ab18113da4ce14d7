package settlement

import (
	"context"
	"errors"

	"github.com/fkhayef/splitledger/internal/debt"
	"github.com/fkhayef/splitledger/internal/group"
	"github.com/fkhayef/splitledger/internal/metrics"
)

// ErrNotMember is returned when someone outside a group asks about its ledger
var ErrNotMember = errors.New("user is not a joined member of this group")

// Service reads the debt ledger and derives settlement plans and balances
// from it. It never writes to the ledger, and only the group's joined
// members may read it.
type Service struct {
	repo    *Repository
	debts   *debt.Repository
	groups  *group.Repository
	metrics *metrics.Collector
}

// NewService creates a new settlement service
func NewService(repo *Repository, debts *debt.Repository, groups *group.Repository, collector *metrics.Collector) *Service {
	return &Service{
		repo:    repo,
		debts:   debts,
		groups:  groups,
		metrics: collector,
	}
}

// GetSettlements returns the transfers that would settle every pending debt
// in the group
func (s *Service) GetSettlements(ctx context.Context, groupID, viewerID int64) ([]Transfer, error) {
	if err := s.requireViewer(ctx, groupID, viewerID); err != nil {
		return nil, err
	}

	pending, err := s.debts.ListPending(ctx, groupID)
	if err != nil {
		return nil, err
	}

	transfers := Plan(pending)
	s.metrics.ObserveSettlement(len(transfers))
	return transfers, nil
}

// GetBalanceSummary sums what a member is owed and owes in a group
func (s *Service) GetBalanceSummary(ctx context.Context, groupID, viewerID, memberID int64) (*Summary, error) {
	if err := s.requireMember(ctx, groupID, viewerID, memberID); err != nil {
		return nil, err
	}

	toReceive, toPay, err := s.debts.SumPending(ctx, groupID, memberID)
	if err != nil {
		return nil, err
	}

	return &Summary{
		GroupID:        groupID,
		MemberID:       memberID,
		ToReceiveCents: toReceive,
		ToPayCents:     toPay,
	}, nil
}

// GetBalances returns the net balance of every member who owes or is owed
func (s *Service) GetBalances(ctx context.Context, groupID, viewerID int64) ([]*Balance, error) {
	if err := s.requireViewer(ctx, groupID, viewerID); err != nil {
		return nil, err
	}
	return s.repo.NetBalances(ctx, groupID)
}

// ListGroupDebts returns every pending debt in a group
func (s *Service) ListGroupDebts(ctx context.Context, groupID, viewerID int64) ([]*debt.Debt, error) {
	if err := s.requireViewer(ctx, groupID, viewerID); err != nil {
		return nil, err
	}
	return s.debts.ListPending(ctx, groupID)
}

// ListDebts returns what a member owes in a group
func (s *Service) ListDebts(ctx context.Context, groupID, viewerID, memberID int64) ([]*debt.Debt, error) {
	if err := s.requireMember(ctx, groupID, viewerID, memberID); err != nil {
		return nil, err
	}
	return s.debts.ListPendingByDebtor(ctx, groupID, memberID)
}

// ListCredits returns what a member is owed in a group
func (s *Service) ListCredits(ctx context.Context, groupID, viewerID, memberID int64) ([]*debt.Debt, error) {
	if err := s.requireMember(ctx, groupID, viewerID, memberID); err != nil {
		return nil, err
	}
	return s.debts.ListPendingByCreditor(ctx, groupID, memberID)
}

// requireViewer reports a missing group before checking that the viewer has
// joined it.
func (s *Service) requireViewer(ctx context.Context, groupID, viewerID int64) error {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g == nil {
		return group.ErrGroupNotFound
	}

	viewer, err := s.groups.GetMember(ctx, groupID, viewerID)
	if err != nil {
		return err
	}
	if viewer == nil || viewer.Status != group.MemberStatusJoined {
		return ErrNotMember
	}
	return nil
}

func (s *Service) requireMember(ctx context.Context, groupID, viewerID, memberID int64) error {
	if err := s.requireViewer(ctx, groupID, viewerID); err != nil {
		return err
	}

	member, err := s.groups.GetMember(ctx, groupID, memberID)
	if err != nil {
		return err
	}
	if member == nil {
		return group.ErrMemberNotFound
	}
	return nil
}
