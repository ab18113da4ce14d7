package group

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/events"
	"github.com/fkhayef/splitledger/internal/metrics"
)

// Common errors
var (
	ErrGroupNotFound       = errors.New("group not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberAlreadyExists = errors.New("user is already a member of this group")
	ErrNotAuthorized       = errors.New("not authorized to perform this action")
	ErrInviteNotFound      = errors.New("invite not found or expired")
	ErrUserNotFound        = errors.New("user not found")
	ErrMemberHasExpenses   = errors.New("member paid expenses in this group and cannot be removed")
)

// Recalculator rebuilds a group's ledger from its expenses and current
// members inside the caller's transaction. It returns the number of expenses
// that were re-split.
type Recalculator interface {
	RecalculateGroupTx(ctx context.Context, tx *sql.Tx, groupID int64) (int, error)
}

// Notifier writes membership notifications inside the caller's transaction
type Notifier interface {
	NotifyGroupInvite(ctx context.Context, tx *sql.Tx, recipientID int64, groupName string, groupID int64) error
	NotifyMemberJoined(ctx context.Context, tx *sql.Tx, recipientID int64, groupName string, groupID int64) error
}

// UserLookup checks that a user exists before they are added to a group
type UserLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Service handles group business logic
type Service struct {
	db           *sql.DB
	repo         *Repository
	recalculator Recalculator
	notifier     Notifier
	users        UserLookup
	publisher    events.Publisher
	metrics      *metrics.Collector
	inviteTTL    time.Duration
	now          func() time.Time
}

// NewService creates a new group service
func NewService(
	db *sql.DB,
	repo *Repository,
	recalculator Recalculator,
	notifier Notifier,
	users UserLookup,
	publisher events.Publisher,
	collector *metrics.Collector,
	inviteTTL time.Duration,
) *Service {
	return &Service{
		db:           db,
		repo:         repo,
		recalculator: recalculator,
		notifier:     notifier,
		users:        users,
		publisher:    publisher,
		metrics:      collector,
		inviteTTL:    inviteTTL,
		now:          time.Now,
	}
}

// Create creates a new group with the creator as its first, joined admin
func (s *Service) Create(ctx context.Context, creatorID int64, req *CreateGroupRequest) (*Group, error) {
	var group *Group
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		var err error
		group, err = repo.Create(ctx, req)
		if err != nil {
			return err
		}
		_, err = repo.AddMember(ctx, group.ID, creatorID, MemberRoleAdmin, MemberStatusJoined)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// GetByID retrieves a group by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Group, error) {
	group, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

// GetByIDWithMembers retrieves a group with all its members
func (s *Service) GetByIDWithMembers(ctx context.Context, id int64) (*Group, []*GroupMember, error) {
	group, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.repo.GetMembers(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return group, members, nil
}

// ListByUserID retrieves all groups for a user
func (s *Service) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*Group, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByUserID(ctx, userID, perPage, offset)
}

// Update modifies an existing group's name or description
func (s *Service) Update(ctx context.Context, id, userID int64, req *UpdateGroupRequest) (*Group, error) {
	if err := s.requireJoined(ctx, s.repo, id, userID); err != nil {
		return nil, err
	}

	group, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

// Delete removes a group. Only admins may do this.
func (s *Service) Delete(ctx context.Context, id, userID int64) error {
	if err := s.requireAdmin(ctx, s.repo, id, userID); err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrGroupNotFound
	}
	return nil
}

// GetMembers retrieves all members of a group
func (s *Service) GetMembers(ctx context.Context, groupID int64) ([]*GroupMember, error) {
	group, err := s.repo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}

	return s.repo.GetMembers(ctx, groupID)
}

// AddMember adds a user to a group on behalf of an existing member. Invited
// users are notified and take no part in splits until they accept. Users
// added as JOINED trigger a recalculation in the same transaction.
func (s *Service) AddMember(ctx context.Context, groupID, actorID int64, req *AddMemberRequest) (*GroupMember, error) {
	exists, err := s.users.Exists(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	status := req.Status
	if status == "" {
		status = MemberStatusInvited
	}

	var member *GroupMember
	err = s.mutate(ctx, "add_member", groupID, func(tx *sql.Tx, repo *Repository, group *Group) error {
		if err := s.requireJoined(ctx, repo, groupID, actorID); err != nil {
			return err
		}

		existing, err := repo.GetMember(ctx, groupID, req.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrMemberAlreadyExists
		}

		member, err = repo.AddMember(ctx, groupID, req.UserID, req.Role, status)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrMemberAlreadyExists
			}
			return err
		}

		if status == MemberStatusInvited {
			return s.notifier.NotifyGroupInvite(ctx, tx, req.UserID, group.Name, groupID)
		}
		return s.joined(ctx, tx, group, req.UserID)
	})
	if err != nil {
		return nil, err
	}

	if status == MemberStatusJoined {
		s.publishJoined(ctx, groupID, req.UserID)
	}
	return member, nil
}

// UpdateMember changes a member's role. Only admins may do this.
func (s *Service) UpdateMember(ctx context.Context, groupID, actorID, userID int64, req *UpdateMemberRequest) (*GroupMember, error) {
	if err := s.requireAdmin(ctx, s.repo, groupID, actorID); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateMemberRole(ctx, groupID, userID, req.Role)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrMemberNotFound
	}
	return s.repo.GetMember(ctx, groupID, userID)
}

// RemoveMember removes a user from a group and re-splits the group's expenses
// among those who remain. Members may remove themselves; admins may remove
// anyone. A member who paid for an expense cannot leave.
func (s *Service) RemoveMember(ctx context.Context, groupID, actorID, userID int64) error {
	return s.mutate(ctx, "remove_member", groupID, func(tx *sql.Tx, repo *Repository, _ *Group) error {
		if actorID != userID {
			if err := s.requireAdmin(ctx, repo, groupID, actorID); err != nil {
				return err
			}
		}

		paid, err := repo.CountPaidExpenses(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if paid > 0 {
			return ErrMemberHasExpenses
		}

		removed, err := repo.RemoveMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return ErrMemberNotFound
		}

		_, err = s.recalculator.RecalculateGroupTx(ctx, tx, groupID)
		return err
	})
}

// AcceptInvitation allows a user to accept their group invitation. Accepting
// twice is a no-op.
func (s *Service) AcceptInvitation(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	var member *GroupMember
	var changed bool
	err := s.mutate(ctx, "accept_invitation", groupID, func(tx *sql.Tx, repo *Repository, group *Group) error {
		var err error
		member, err = repo.GetMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrMemberNotFound
		}
		if member.Status == MemberStatusJoined {
			return nil
		}

		if err := repo.MarkJoined(ctx, groupID, userID); err != nil {
			return err
		}
		if err := s.joined(ctx, tx, group, userID); err != nil {
			return err
		}
		changed = true

		member, err = repo.GetMember(ctx, groupID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publishJoined(ctx, groupID, userID)
	}
	return member, nil
}

// OnMemberJoined rebuilds the ledger of a group after userID joined it. The
// membership row must already be JOINED; the recalculation runs in its own
// transaction under the group lock.
func (s *Service) OnMemberJoined(ctx context.Context, groupID, userID int64) error {
	err := s.mutate(ctx, "member_joined", groupID, func(tx *sql.Tx, repo *Repository, _ *Group) error {
		member, err := repo.GetMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if member == nil || member.Status != MemberStatusJoined {
			return ErrMemberNotFound
		}

		n, err := s.recalculator.RecalculateGroupTx(ctx, tx, groupID)
		if err != nil {
			return err
		}
		s.metrics.ObserveResplit(n)
		return nil
	})
	if err != nil {
		return err
	}

	s.publishJoined(ctx, groupID, userID)
	return nil
}

// Recalculate rebuilds a group's ledger on request of one of its members
func (s *Service) Recalculate(ctx context.Context, groupID, userID int64) (int, error) {
	var resplit int
	err := s.mutate(ctx, "recalculate", groupID, func(tx *sql.Tx, repo *Repository, _ *Group) error {
		if err := s.requireJoined(ctx, repo, groupID, userID); err != nil {
			return err
		}

		var err error
		resplit, err = s.recalculator.RecalculateGroupTx(ctx, tx, groupID)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ObserveResplit(resplit)
	events.PublishQuietly(ctx, s.publisher, events.New(events.TypeGroupRecalculated, groupID))
	return resplit, nil
}

// CreateInvite issues an invite code for the group valid for the configured TTL
func (s *Service) CreateInvite(ctx context.Context, groupID, creatorID int64) (*Invite, error) {
	if err := s.requireJoined(ctx, s.repo, groupID, creatorID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	inv := &Invite{
		Code:      uuid.NewString(),
		GroupID:   groupID,
		CreatedBy: creatorID,
		ExpiresAt: now.Add(s.inviteTTL),
		CreatedAt: now,
	}
	if err := s.repo.CreateInvite(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// RedeemInvite joins userID to the invite's group. Redeeming into a group the
// user already joined changes nothing.
func (s *Service) RedeemInvite(ctx context.Context, code string, userID int64) (*GroupMember, error) {
	if _, err := uuid.Parse(code); err != nil {
		return nil, ErrInviteNotFound
	}

	inv, err := s.repo.GetInvite(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv == nil || inv.Expired(s.now()) {
		return nil, ErrInviteNotFound
	}

	var member *GroupMember
	var changed bool
	err = s.mutate(ctx, "redeem_invite", inv.GroupID, func(tx *sql.Tx, repo *Repository, group *Group) error {
		var err error
		member, err = repo.GetMember(ctx, inv.GroupID, userID)
		if err != nil {
			return err
		}

		switch {
		case member == nil:
			if _, err := repo.AddMember(ctx, inv.GroupID, userID, MemberRoleMember, MemberStatusJoined); err != nil {
				return err
			}
		case member.Status == MemberStatusInvited:
			if err := repo.MarkJoined(ctx, inv.GroupID, userID); err != nil {
				return err
			}
		default:
			return nil
		}

		if err := s.joined(ctx, tx, group, userID); err != nil {
			return err
		}
		changed = true

		member, err = repo.GetMember(ctx, inv.GroupID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publishJoined(ctx, inv.GroupID, userID)
	}
	return member, nil
}

// RevokeInvite deletes an invite code. Only admins of its group may do this.
func (s *Service) RevokeInvite(ctx context.Context, code string, userID int64) error {
	inv, err := s.repo.GetInvite(ctx, code)
	if err != nil {
		return err
	}
	if inv == nil {
		return ErrInviteNotFound
	}
	if err := s.requireAdmin(ctx, s.repo, inv.GroupID, userID); err != nil {
		return err
	}

	deleted, err := s.repo.DeleteInvite(ctx, code)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrInviteNotFound
	}
	return nil
}

// mutate runs fn in a transaction holding the group lock and records the
// outcome under operation.
func (s *Service) mutate(ctx context.Context, operation string, groupID int64, fn func(tx *sql.Tx, repo *Repository, group *Group) error) error {
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.Lock(ctx, groupID)
		if err != nil {
			return err
		}
		if !found {
			return ErrGroupNotFound
		}

		group, err := repo.GetByID(ctx, groupID)
		if err != nil {
			return err
		}
		return fn(tx, repo, group)
	})
	s.metrics.ObserveOperation(operation, err, errors.Is(err, database.ErrConcurrencyConflict))
	return err
}

// joined re-splits the group for a new member and tells them about it
func (s *Service) joined(ctx context.Context, tx *sql.Tx, group *Group, userID int64) error {
	n, err := s.recalculator.RecalculateGroupTx(ctx, tx, group.ID)
	if err != nil {
		return err
	}
	s.metrics.ObserveResplit(n)
	return s.notifier.NotifyMemberJoined(ctx, tx, userID, group.Name, group.ID)
}

func (s *Service) publishJoined(ctx context.Context, groupID, userID int64) {
	e := events.New(events.TypeMemberJoined, groupID)
	e.MemberID = userID
	events.PublishQuietly(ctx, s.publisher, e)
}

func (s *Service) requireJoined(ctx context.Context, repo *Repository, groupID, userID int64) error {
	member, err := s.member(ctx, repo, groupID, userID)
	if err != nil {
		return err
	}
	if member.Status != MemberStatusJoined {
		return ErrNotAuthorized
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, repo *Repository, groupID, userID int64) error {
	member, err := s.member(ctx, repo, groupID, userID)
	if err != nil {
		return err
	}
	if member.Status != MemberStatusJoined || member.Role != MemberRoleAdmin {
		return ErrNotAuthorized
	}
	return nil
}

// member loads the acting user's membership, telling a missing group apart
// from a user who is simply not in it.
func (s *Service) member(ctx context.Context, repo *Repository, groupID, userID int64) (*GroupMember, error) {
	member, err := repo.GetMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member != nil {
		return member, nil
	}

	group, err := repo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return nil, ErrNotAuthorized
}
