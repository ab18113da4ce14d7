package group

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// CreateInvite stores a new invite code
func (r *Repository) CreateInvite(ctx context.Context, inv *Invite) error {
	query := `
		INSERT INTO group_invites (code, group_id, created_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.db.ExecContext(ctx, query, inv.Code, inv.GroupID, inv.CreatedBy, inv.ExpiresAt, inv.CreatedAt); err != nil {
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

// GetInvite retrieves an invite by its code
func (r *Repository) GetInvite(ctx context.Context, code string) (*Invite, error) {
	query := `
		SELECT code, group_id, created_by, expires_at, created_at
		FROM group_invites
		WHERE code = $1
	`

	inv := &Invite{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&inv.Code,
		&inv.GroupID,
		&inv.CreatedBy,
		&inv.ExpiresAt,
		&inv.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}

	return inv, nil
}

// DeleteInvite revokes an invite code
func (r *Repository) DeleteInvite(ctx context.Context, code string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM group_invites WHERE code = $1`, code)
	if err != nil {
		return false, fmt.Errorf("failed to delete invite: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteExpiredInvites purges invites that expired at or before now
func (r *Repository) DeleteExpiredInvites(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM group_invites WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invites: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Sweeper periodically purges expired invite codes. It is owned by whoever
// calls Run and stops when that context is cancelled.
type Sweeper struct {
	repo     *Repository
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper running every interval
func NewSweeper(repo *Repository, interval time.Duration) *Sweeper {
	return &Sweeper{repo: repo, interval: interval, now: time.Now}
}

// Run sweeps once immediately and then on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// SweepOnce deletes every invite expired at the current time
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredInvites(ctx, s.now().UTC())
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.ErrorContext(ctx, "Failed to sweep expired invites", "error", err)
		}
		return
	}
	if removed > 0 {
		slog.InfoContext(ctx, "Swept expired invites", "count", removed)
	}
}
