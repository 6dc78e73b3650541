package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/feedsmith/feedsmith/pkg/domain"
)

// UserRepository handles user, category and settings operations
type UserRepository struct {
	db *sqlx.DB
}

// userSQL represents a user for SQL operations
type userSQL struct {
	ID        int64     `db:"id"`
	Username  string    `db:"username"`
	IsAdmin   bool      `db:"is_admin"`
	CreatedAt time.Time `db:"created_at"`
}

// categorySQL represents a category for SQL operations
type categorySQL struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
}

// NewUserRepository creates a new user repository
func NewUserRepository(database *sqlx.DB) *UserRepository {
	return &UserRepository{db: database}
}

// CreateUser inserts a new user. The first user ever created becomes admin;
// the existence check and insert share one transaction so two concurrent
// first signups can't both end up admin.
func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	user.IsAdmin = count == 0

	result, err := tx.ExecContext(ctx,
		"INSERT INTO users (username, is_admin) VALUES (?, ?)", user.Username, user.IsAdmin)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit user: %w", err)
	}

	user.ID = id
	return nil
}

// GetUser retrieves a user by ID
func (r *UserRepository) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var sqlUser userSQL
	err := r.db.GetContext(ctx, &sqlUser, "SELECT * FROM users WHERE id = ?", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return r.toDomainUser(&sqlUser), nil
}

// GetUsers retrieves all users ordered by ID
func (r *UserRepository) GetUsers(ctx context.Context) ([]*domain.User, error) {
	var sqlUsers []userSQL
	if err := r.db.SelectContext(ctx, &sqlUsers, "SELECT * FROM users ORDER BY id"); err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}

	users := make([]*domain.User, len(sqlUsers))
	for i, u := range sqlUsers {
		users[i] = r.toDomainUser(&u)
	}
	return users, nil
}

// CreateCategory inserts a new category for the user
func (r *UserRepository) CreateCategory(ctx context.Context, category *domain.Category) error {
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO categories (user_id, title) VALUES (?, ?)", category.UserID, category.Title)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get insert id: %w", err)
	}

	category.ID = id
	return nil
}

// GetCategories retrieves the user's categories ordered by title
func (r *UserRepository) GetCategories(ctx context.Context, userID int64) ([]*domain.Category, error) {
	var sqlCategories []categorySQL
	err := r.db.SelectContext(ctx, &sqlCategories,
		"SELECT * FROM categories WHERE user_id = ? ORDER BY title", userID)
	if err != nil {
		return nil, fmt.Errorf("get categories: %w", err)
	}

	categories := make([]*domain.Category, len(sqlCategories))
	for i, c := range sqlCategories {
		categories[i] = &domain.Category{ID: c.ID, UserID: c.UserID, Title: c.Title, CreatedAt: c.CreatedAt}
	}
	return categories, nil
}

// SetSettings upserts the user's settings in a single transaction, so a
// partial write never survives a failure
func (r *UserRepository) SetSettings(ctx context.Context, userID int64, settings []domain.Setting) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO settings (user_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value
	`
	for _, s := range settings {
		if _, err := tx.ExecContext(ctx, query, userID, s.Key, s.Value); err != nil {
			return fmt.Errorf("set setting %q: %w", s.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	return nil
}

// GetSettings retrieves all settings of the user
func (r *UserRepository) GetSettings(ctx context.Context, userID int64) ([]domain.Setting, error) {
	var settings []domain.Setting
	err := r.db.SelectContext(ctx, &settings, `
		SELECT user_id AS userid, key, value FROM settings
		WHERE user_id = ? ORDER BY key`, userID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

// toDomainUser converts userSQL to domain.User
func (r *UserRepository) toDomainUser(sqlUser *userSQL) *domain.User {
	return &domain.User{
		ID:        sqlUser.ID,
		Username:  sqlUser.Username,
		IsAdmin:   sqlUser.IsAdmin,
		CreatedAt: sqlUser.CreatedAt,
	}
}
