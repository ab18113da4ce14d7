package notification

import "time"

// Notification is a message for one user about something that changed in one of their groups
type Notification struct {
	ID                int64     `json:"id"`
	RecipientID       int64     `json:"recipient_id"`
	Kind              Kind      `json:"kind"`
	Message           string    `json:"message"`
	IsRead            bool      `json:"is_read"`
	RelatedEntityType *string   `json:"related_entity_type,omitempty"` // "EXPENSE" or "GROUP"
	RelatedEntityID   *int64    `json:"related_entity_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Kind represents the type of notification
type Kind string

const (
	KindGroupInvite    Kind = "GROUP_INVITE"
	KindMemberJoined   Kind = "MEMBER_JOINED"
	KindExpenseAdded   Kind = "EXPENSE_ADDED"
	KindExpenseUpdated Kind = "EXPENSE_UPDATED"
)

const (
	entityExpense = "EXPENSE"
	entityGroup   = "GROUP"
)
