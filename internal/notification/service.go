package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fkhayef/splitledger/internal/money"
)

// Common errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotRecipient         = errors.New("not the recipient of this notification")
)

// Service handles notification business logic
type Service struct {
	repo *Repository
}

// NewService creates a new notification service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// GetByID retrieves a notification by its ID
func (s *Service) GetByID(ctx context.Context, id int64) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotificationNotFound
	}
	return n, nil
}

// ListByRecipientID retrieves all notifications for a user
func (s *Service) ListByRecipientID(ctx context.Context, recipientID int64, page, perPage int, unreadOnly bool) ([]*Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByRecipientID(ctx, recipientID, perPage, offset, unreadOnly)
}

// MarkAsRead marks a notification as read
func (s *Service) MarkAsRead(ctx context.Context, id, userID int64) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return ErrNotificationNotFound
	}
	if n.RecipientID != userID {
		return ErrNotRecipient
	}

	return s.repo.MarkAsRead(ctx, id)
}

// MarkAllAsRead marks all notifications as read for a user
func (s *Service) MarkAllAsRead(ctx context.Context, userID int64) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// GetUnreadCount returns the count of unread notifications
func (s *Service) GetUnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

// The Notify helpers write inside the caller's transaction so a notification
// only exists if the change it describes was committed.

// NotifyGroupInvite tells a user they were invited to a group
func (s *Service) NotifyGroupInvite(ctx context.Context, tx *sql.Tx, recipientID int64, groupName string, groupID int64) error {
	return s.create(ctx, tx, recipientID, KindGroupInvite,
		"You have been invited to join group: "+groupName, entityGroup, groupID)
}

// NotifyMemberJoined tells a new member that the group's balances now include them
func (s *Service) NotifyMemberJoined(ctx context.Context, tx *sql.Tx, recipientID int64, groupName string, groupID int64) error {
	return s.create(ctx, tx, recipientID, KindMemberJoined,
		fmt.Sprintf("You joined %s and its expenses were re-split to include you", groupName), entityGroup, groupID)
}

// NotifyExpenseAdded tells a debtor their share of a new expense
func (s *Service) NotifyExpenseAdded(ctx context.Context, tx *sql.Tx, recipientID int64, description string, shareCents, expenseID int64) error {
	return s.create(ctx, tx, recipientID, KindExpenseAdded,
		fmt.Sprintf("New expense %q: your share is %s", description, money.Format(shareCents)), entityExpense, expenseID)
}

// NotifyExpenseUpdated tells a debtor their share after an expense amount changed
func (s *Service) NotifyExpenseUpdated(ctx context.Context, tx *sql.Tx, recipientID int64, description string, shareCents, expenseID int64) error {
	return s.create(ctx, tx, recipientID, KindExpenseUpdated,
		fmt.Sprintf("Expense %q changed: your share is now %s", description, money.Format(shareCents)), entityExpense, expenseID)
}

func (s *Service) create(ctx context.Context, tx *sql.Tx, recipientID int64, kind Kind, message, entityType string, entityID int64) error {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	return repo.Create(ctx, &Notification{
		RecipientID:       recipientID,
		Kind:              kind,
		Message:           message,
		RelatedEntityType: &entityType,
		RelatedEntityID:   &entityID,
	})
}
