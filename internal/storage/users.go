package storage

import (
	"context"
	"database/sql"

	"expense-api/internal/apperrors"
	"expense-api/internal/models"
)

const userColumns = "id, name, email, password_hash, created_at, updated_at"

// CreateUser creates a new user with the given name, email and password hash.
// A duplicate email is reported as a validation error.
func (db *DB) CreateUser(ctx context.Context, name, email, passwordHash string) (*models.User, error) {
	now := toMillis(db.now())
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		name, email, passwordHash, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Validationf("Email is already registered")
		}
		return nil, apperrors.Wrap("insert user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, apperrors.Wrap("insert user", err)
	}

	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID together with its active tokens.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundOr(err, "user", "get user")
	}
	if u.Tokens, err = db.ListTokens(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email. The email must already be
// normalized.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundOr(err, "user", "get user by email")
	}
	if u.Tokens, err = db.ListTokens(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser persists the profile fields and password hash of u.
func (db *DB) UpdateUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = fromMillis(toMillis(db.now()))
	result, err := db.conn.ExecContext(ctx,
		"UPDATE users SET name = ?, email = ?, password_hash = ?, updated_at = ? WHERE id = ?",
		u.Name, u.Email, u.PasswordHash, toMillis(u.UpdatedAt), u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Validationf("Email is already registered")
		}
		return apperrors.Wrap("update user", err)
	}
	return requireAffected(result, "user", "update user")
}

// DeleteUser removes a user, its tokens and every expense it owns in one
// transaction. A failure in any step rolls the whole removal back.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap("begin delete user", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE owner_id = ?", id); err != nil {
		return apperrors.Wrap("delete expenses of user", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_tokens WHERE user_id = ?", id); err != nil {
		return apperrors.Wrap("delete tokens of user", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap("delete user", err)
	}
	if err := requireAffected(result, "user", "delete user"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap("commit delete user", err)
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var createdAt, updatedAt int64
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

func requireAffected(result sql.Result, resource, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(op, err)
	}
	if n == 0 {
		return apperrors.NotFound(resource)
	}
	return nil
}
