package user

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fkhayef/splitledger/internal/database"
)

// Repository handles user data persistence
type Repository struct {
	db database.DBTX
}

// NewRepository creates a new user repository with database dependency injected
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user into the database
func (r *Repository) Create(ctx context.Context, req *CreateUserRequest) (*User, error) {
	query := `
		INSERT INTO users (username, email, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	user := &User{
		Username:  req.Username,
		Email:     strings.ToLower(req.Email),
		CreatedAt: time.Now().UTC(),
	}
	err := r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetByID retrieves a user by their ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, username, email, created_at
		FROM users
		WHERE id = $1
	`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByEmail retrieves a user by their email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, username, email, created_at
		FROM users
		WHERE email = $1
	`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, strings.ToLower(email)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// List retrieves all users with pagination
func (r *Repository) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `
		SELECT id, username, email, created_at
		FROM users
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, total, nil
}

// UpdateUsername renames a user. A missing user yields (nil, nil).
func (r *Repository) UpdateUsername(ctx context.Context, id int64, username string) (*User, error) {
	query := `
		UPDATE users
		SET username = $2
		WHERE id = $1
		RETURNING id, username, email, created_at
	`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id, username))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return user, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	user := &User{}
	if err := s.Scan(&user.ID, &user.Username, &user.Email, &user.CreatedAt); err != nil {
		return nil, err
	}
	return user, nil
}
