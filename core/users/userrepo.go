package users

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shkond/CloudVid-Bridge/core/ccc/db"
)

type UserRepository interface {
	// GetByID retrieves a user by their ID, returns nil if not found
	GetByID(ctx context.Context, id string) (*User, error)
	// GetByUsername retrieves a user by their username, returns nil if not found
	GetByUsername(ctx context.Context, username string) (*User, error)
	// GetAll retrieves all users
	GetAll(ctx context.Context) ([]*User, error)
	// Add adds a new user
	Add(ctx context.Context, user *User) error
	// Update updates an existing user
	Update(ctx context.Context, user *User) error
	// Delete removes a user by their ID
	Delete(ctx context.Context, id string) error
}

// SQLiteUserRepository is a SQLite implementation of UserRepository
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a new SQLite user repository
func NewSQLiteUserRepository(db *sql.DB) (*SQLiteUserRepository, error) {
	repo := &SQLiteUserRepository{db: db}

	if err := repo.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return repo, nil
}

func (r *SQLiteUserRepository) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		password_salt TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`

	_, err := r.db.Exec(query)
	return err
}

// GetByID retrieves a user by their ID, returns nil if not found
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `
	SELECT id, username, password_hash, password_salt, created_at, updated_at
	FROM users
	WHERE id = ?`

	return r.queryUser(ctx, query, id)
}

// GetByUsername retrieves a user by their username, returns nil if not found
func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `
	SELECT id, username, password_hash, password_salt, created_at, updated_at
	FROM users
	WHERE username = ?`

	return r.queryUser(ctx, query, username)
}

func (r *SQLiteUserRepository) queryUser(ctx context.Context, query string, args ...any) (*User, error) {
	var user User
	var createdAtStr, updatedAtStr string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.PasswordSalt,
		&createdAtStr, &updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.CreatedAt, err = db.StringToTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	user.UpdatedAt, err = db.StringToTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &user, nil
}

// GetAll retrieves all users
func (r *SQLiteUserRepository) GetAll(ctx context.Context) ([]*User, error) {
	query := `
	SELECT id, username, password_hash, password_salt, created_at, updated_at
	FROM users
	ORDER BY username`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var user User
		var createdAtStr, updatedAtStr string

		err := rows.Scan(
			&user.ID, &user.Username, &user.PasswordHash, &user.PasswordSalt,
			&createdAtStr, &updatedAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		user.CreatedAt, err = db.StringToTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		user.UpdatedAt, err = db.StringToTime(updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}

		users = append(users, &user)
	}

	return users, rows.Err()
}

// Add adds a new user
func (r *SQLiteUserRepository) Add(ctx context.Context, user *User) error {
	query := `
	INSERT INTO users (id, username, password_hash, password_salt, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Username, user.PasswordHash, user.PasswordSalt,
		db.TimeToString(user.CreatedAt), db.TimeToString(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}

	return nil
}

// Update updates an existing user
func (r *SQLiteUserRepository) Update(ctx context.Context, user *User) error {
	query := `
	UPDATE users
	SET username = ?, password_hash = ?, password_salt = ?, updated_at = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		user.Username, user.PasswordHash, user.PasswordSalt, db.TimeToString(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user with ID %s not found", user.ID)
	}

	return nil
}

// Delete removes a user by their ID
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	query := `
	DELETE FROM users
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user with ID %s not found", id)
	}

	return nil
}
