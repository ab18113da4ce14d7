package group

import "time"

// CreateGroupRequest represents the request to create a new group
type CreateGroupRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// UpdateGroupRequest represents the request to update a group
type UpdateGroupRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// AddMemberRequest represents the request to add a member to a group.
// Status JOINED adds the user directly and re-splits the group's expenses.
type AddMemberRequest struct {
	UserID int64        `json:"user_id" validate:"required,gt=0"`
	Role   MemberRole   `json:"role,omitempty" validate:"omitempty,oneof=ADMIN MEMBER"`
	Status MemberStatus `json:"status,omitempty" validate:"omitempty,oneof=INVITED JOINED"`
}

// UpdateMemberRequest represents the request to change a member's role
type UpdateMemberRequest struct {
	Role MemberRole `json:"role" validate:"required,oneof=ADMIN MEMBER"`
}

// GroupResponse represents the response for a group
type GroupResponse struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
	Members     []*MemberResponse `json:"members,omitempty"`
}

// MemberResponse represents a member in a group response
type MemberResponse struct {
	ID       int64        `json:"id"`
	UserID   int64        `json:"user_id"`
	Username string       `json:"username,omitempty"`
	Email    string       `json:"email,omitempty"`
	Status   MemberStatus `json:"status"`
	Role     MemberRole   `json:"role"`
	JoinedAt string       `json:"joined_at"`
}

// InviteResponse represents a created invite code
type InviteResponse struct {
	Code      string `json:"code"`
	GroupID   int64  `json:"group_id"`
	ExpiresAt string `json:"expires_at"`
}

// RecalculateResponse reports how many expenses were re-split
type RecalculateResponse struct {
	GroupID         int64 `json:"group_id"`
	ExpensesResplit int   `json:"expenses_resplit"`
}

// ToResponse converts a Group model to a GroupResponse DTO
func (g *Group) ToResponse() *GroupResponse {
	return &GroupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		CreatedAt:   g.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   g.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ToResponse converts a GroupMember model to a MemberResponse DTO
func (m *GroupMember) ToResponse() *MemberResponse {
	return &MemberResponse{
		ID:       m.ID,
		UserID:   m.UserID,
		Username: m.Username,
		Email:    m.Email,
		Status:   m.Status,
		Role:     m.Role,
		JoinedAt: m.JoinedAt.UTC().Format(time.RFC3339),
	}
}

// ToResponse converts an Invite to an InviteResponse DTO
func (i *Invite) ToResponse() *InviteResponse {
	return &InviteResponse{
		Code:      i.Code,
		GroupID:   i.GroupID,
		ExpiresAt: i.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
