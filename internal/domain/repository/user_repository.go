package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/platform/database"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type sqlUserRepository struct {
	db *database.DB
}

func NewSQLUserRepository(db *database.DB) UserRepository {
	return &sqlUserRepository{db: db}
}

const userColumns = `id, username, email, first_name, last_name, hashed_password, role, created_at, updated_at`

func (r *sqlUserRepository) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	user.CreatedAt, user.UpdatedAt = now, now

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.HashedPassword, user.Role,
		toMillis(user.CreatedAt), toMillis(user.UpdatedAt),
	)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return fmt.Errorf("user with given username already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("sqlUserRepository.Create: %w", err)
	}
	return nil
}

func (r *sqlUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *sqlUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *sqlUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "id", id)
}

// column is always one of the literals above, never user input.
func (r *sqlUserRepository) findOne(ctx context.Context, column, value string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ?`
	user := &model.User{}
	var createdAt, updatedAt int64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), value).Scan(
		&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.HashedPassword, &user.Role,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("sqlUserRepository.FindBy %s: %w", column, err)
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}
