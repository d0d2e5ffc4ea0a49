package storage

import (
	"context"

	"expense-api/internal/apperrors"
)

// AddToken appends token to the user's list of active sessions.
func (db *DB) AddToken(ctx context.Context, userID int64, token string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO user_tokens (user_id, token, created_at) VALUES (?, ?, ?)",
		userID, token, toMillis(db.now()),
	)
	return apperrors.Wrap("insert token", err)
}

// HasToken reports whether token is in the user's list of active sessions.
func (db *DB) HasToken(ctx context.Context, userID int64, token string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM user_tokens WHERE user_id = ? AND token = ?)",
		userID, token,
	).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap("lookup token", err)
	}
	return exists, nil
}

// ListTokens returns the user's active tokens in issue order.
func (db *DB) ListTokens(ctx context.Context, userID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT token FROM user_tokens WHERE user_id = ? ORDER BY id",
		userID,
	)
	if err != nil {
		return nil, apperrors.Wrap("list tokens", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, apperrors.Wrap("list tokens", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, apperrors.Wrap("list tokens", rows.Err())
}

// RemoveToken removes exactly one token from the user's list.
func (db *DB) RemoveToken(ctx context.Context, userID int64, token string) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM user_tokens WHERE user_id = ? AND token = ?",
		userID, token,
	)
	return apperrors.Wrap("delete token", err)
}

// RemoveAllTokens clears the user's list of active sessions.
func (db *DB) RemoveAllTokens(ctx context.Context, userID int64) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM user_tokens WHERE user_id = ?", userID)
	return apperrors.Wrap("delete tokens", err)
}
