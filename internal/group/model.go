package group

import "time"

// MemberStatus represents the status of a group member
type MemberStatus string

const (
	MemberStatusInvited MemberStatus = "INVITED"
	MemberStatusJoined  MemberStatus = "JOINED"
)

// MemberRole represents the role of a group member
type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "ADMIN"
	MemberRoleMember MemberRole = "MEMBER"
)

// Group represents a group in the system. UpdatedAt moves on every ledger write
// because the row doubles as the group's write lock.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupMember represents a user's membership in a group. Only JOINED members
// take part in expense splits.
type GroupMember struct {
	ID       int64        `json:"id"`
	GroupID  int64        `json:"group_id"`
	UserID   int64        `json:"user_id"`
	Status   MemberStatus `json:"status"`
	Role     MemberRole   `json:"role"`
	JoinedAt time.Time    `json:"joined_at"`

	// Populated from JOIN
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Invite is a shareable code that lets any user join a group until it expires
type Invite struct {
	Code      string    `json:"code"`
	GroupID   int64     `json:"group_id"`
	CreatedBy int64     `json:"created_by"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the invite can no longer be redeemed at now
func (i *Invite) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
