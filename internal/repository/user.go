package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sentinel/ledger/internal/domain"
)

const userColumns = `user_id, username, first_name, last_name, created_at`

type userRepo struct{}

// NewUserRepository returns a pgx-backed UserRepository.
func NewUserRepository() UserRepository {
	return &userRepo{}
}

func (r *userRepo) FindByID(ctx context.Context, db DBTX, userID int64) (*domain.User, error) {
	row := db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	return scanUser(row)
}

func (r *userRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, userID int64) (*domain.User, error) {
	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1 FOR UPDATE`, userID)
	return scanUser(row)
}

func (r *userRepo) Create(ctx context.Context, db DBTX, params domain.RegisterUserParams) (*domain.User, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO users (user_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		params.UserID, params.Username, params.FirstName, params.LastName)

	var u domain.User
	if err := row.Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt); err != nil {
		return nil, mapPgError("insert user", err)
	}
	return &u, nil
}

func (r *userRepo) List(ctx context.Context, db DBTX, limit, offset int) ([]domain.User, error) {
	limit = domain.ClampLimit(limit, 50)
	if offset < 0 {
		offset = 0
	}
	rows, err := db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at DESC, user_id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepo) Delete(ctx context.Context, db DBTX, userID int64) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
