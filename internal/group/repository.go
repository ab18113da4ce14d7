package group

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fkhayef/splitledger/internal/database"
)

const (
	groupColumns  = `g.id, g.name, g.description, g.created_at, g.updated_at`
	memberColumns = `gm.id, gm.group_id, gm.user_id, gm.status, gm.role, gm.joined_at, u.username, u.email`
)

// Repository handles group data persistence
type Repository struct {
	db database.DBTX
}

// NewRepository creates a new group repository
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// Lock takes the group's write lock for the rest of the transaction by
// touching its row. It returns false if the group does not exist.
func (r *Repository) Lock(ctx context.Context, groupID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE groups SET updated_at = $2 WHERE id = $1`, groupID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to lock group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// Create inserts a new group into the database
func (r *Repository) Create(ctx context.Context, req *CreateGroupRequest) (*Group, error) {
	query := `
		INSERT INTO groups (name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id
	`

	now := time.Now().UTC()
	group := &Group{
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.db.QueryRowContext(ctx, query, req.Name, req.Description, now).Scan(&group.ID); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	return group, nil
}

// GetByID retrieves a group by its ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups g WHERE g.id = $1`

	group, err := scanGroup(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return group, nil
}

// ListByUserID retrieves all groups a user is invited to or has joined
func (r *Repository) ListByUserID(ctx context.Context, userID int64, limit, offset int) ([]*Group, int, error) {
	var total int
	countQuery := `
		SELECT COUNT(DISTINCT g.id)
		FROM groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = $1
	`
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	query := `
		SELECT ` + groupColumns + `
		FROM groups g
		JOIN group_members gm ON g.id = gm.group_id
		WHERE gm.user_id = $1
		ORDER BY g.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate groups: %w", err)
	}

	return groups, total, nil
}

// Update modifies an existing group
func (r *Repository) Update(ctx context.Context, id int64, req *UpdateGroupRequest) (*Group, error) {
	query := `
		UPDATE groups
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = $4
		WHERE id = $1
		RETURNING id, name, description, created_at, updated_at
	`

	group, err := scanGroup(r.db.QueryRowContext(ctx, query, id, req.Name, req.Description, time.Now().UTC()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	return group, nil
}

// Delete removes a group and, by cascade, its members, invites, expenses and debts
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete group: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// AddMember adds a user to a group with the given status
func (r *Repository) AddMember(ctx context.Context, groupID, userID int64, role MemberRole, status MemberStatus) (*GroupMember, error) {
	if role == "" {
		role = MemberRoleMember
	}
	if status == "" {
		status = MemberStatusInvited
	}

	query := `
		INSERT INTO group_members (group_id, user_id, status, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	member := &GroupMember{
		GroupID:  groupID,
		UserID:   userID,
		Status:   status,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}
	err := r.db.QueryRowContext(ctx, query, groupID, userID, status, role, member.JoinedAt).Scan(&member.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	return member, nil
}

// GetMembers retrieves all members of a group
func (r *Repository) GetMembers(ctx context.Context, groupID int64) ([]*GroupMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = $1
		ORDER BY gm.user_id
	`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	var members []*GroupMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return members, nil
}

// ListJoinedMemberIDs returns the ids of the group's JOINED members in ascending order
func (r *Repository) ListJoinedMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	query := `
		SELECT user_id
		FROM group_members
		WHERE group_id = $1 AND status = $2
		ORDER BY user_id
	`

	rows, err := r.db.QueryContext(ctx, query, groupID, MemberStatusJoined)
	if err != nil {
		return nil, fmt.Errorf("failed to list joined members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate member ids: %w", err)
	}

	return ids, nil
}

// GetMember retrieves a specific member from a group
func (r *Repository) GetMember(ctx context.Context, groupID, userID int64) (*GroupMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM group_members gm
		JOIN users u ON gm.user_id = u.id
		WHERE gm.group_id = $1 AND gm.user_id = $2
	`

	member, err := scanMember(r.db.QueryRowContext(ctx, query, groupID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// MarkJoined moves an INVITED member to JOINED and stamps the join time
func (r *Repository) MarkJoined(ctx context.Context, groupID, userID int64) error {
	query := `
		UPDATE group_members
		SET status = $3, joined_at = $4
		WHERE group_id = $1 AND user_id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, groupID, userID, MemberStatusJoined, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark member joined: %w", err)
	}
	return nil
}

// UpdateMemberRole changes a member's role. A missing member yields (false, nil).
func (r *Repository) UpdateMemberRole(ctx context.Context, groupID, userID int64, role MemberRole) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE group_members SET role = $3 WHERE group_id = $1 AND user_id = $2`,
		groupID, userID, role,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// RemoveMember removes a user from a group
func (r *Repository) RemoveMember(ctx context.Context, groupID, userID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// CountPaidExpenses counts the group's expenses paid by a user
func (r *Repository) CountPaidExpenses(ctx context.Context, groupID, userID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM expenses WHERE group_id = $1 AND payer_id = $2`
	if err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count paid expenses: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(s scanner) (*Group, error) {
	group := &Group{}
	if err := s.Scan(&group.ID, &group.Name, &group.Description, &group.CreatedAt, &group.UpdatedAt); err != nil {
		return nil, err
	}
	return group, nil
}

func scanMember(s scanner) (*GroupMember, error) {
	member := &GroupMember{}
	err := s.Scan(
		&member.ID,
		&member.GroupID,
		&member.UserID,
		&member.Status,
		&member.Role,
		&member.JoinedAt,
		&member.Username,
		&member.Email,
	)
	if err != nil {
		return nil, err
	}
	return member, nil
}
