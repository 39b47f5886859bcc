package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, name, password, is_active, is_staff, is_superuser, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var u model.User
	err := s.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.IsActive,
		&u.IsStaff,
		&u.IsSuperuser,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user and fills in its ID and timestamps.
// A duplicate email yields apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	id, err := db.insertReturningID(ctx,
		`INSERT INTO users (email, name, password, is_active, is_staff, is_superuser, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.IsActive,
		user.IsStaff,
		user.IsSuperuser,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqldb: inserting user %s: %w", user.Email, err)
	}

	user.ID = id
	return nil
}

// GetUserByID retrieves a user by ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(db.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqldb: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail looks a user up by the exact (already normalized) email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqldb: getting user %s: %w", email, err)
	}
	return u, nil
}

// ListUsers returns users ordered by email, optionally filtered by a
// case-insensitive substring of email or name.
func (db *DB) ListUsers(ctx context.Context, opts repository.UserListOptions) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if search := strings.TrimSpace(opts.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query += ` WHERE LOWER(email) LIKE ? OR LOWER(name) LIKE ?`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY email`

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating users: %w", err)
	}
	return users, nil
}

// UpdateUser writes every mutable column of user.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := db.exec(ctx,
		`UPDATE users
		 SET email = ?, name = ?, password = ?, is_active = ?, is_staff = ?, is_superuser = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.IsActive,
		user.IsStaff,
		user.IsSuperuser,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqldb: updating user %d: %w", user.ID, err)
	}
	return checkAffected(result, apperror.NotFound("user", user.ID))
}

// DeleteUser removes a user. Recipes, tags and ingredients go with it through
// ON DELETE CASCADE.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	result, err := db.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqldb: deleting user %d: %w", id, err)
	}
	return checkAffected(result, apperror.NotFound("user", id))
}
