package storage

import (
	"context"
	"database/sql"
	"fmt"

	"expense-api/internal/apperrors"
	"expense-api/internal/models"
)

const expenseColumns = "id, description, amount, owner_id, created_at, updated_at"

// sortColumns maps the sortable field names exposed by the API onto columns.
var sortColumns = map[string]string{
	"description": "description",
	"amount":      "amount",
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
}

// ListOptions controls pagination and ordering of ListExpenses.
type ListOptions struct {
	// Limit caps the number of results; zero means no limit.
	Limit int
	Skip  int
	// SortBy is one of description, amount, createdAt or updatedAt. Empty
	// keeps insertion order.
	SortBy string
	Desc   bool
}

// IsSortable reports whether field can be used as ListOptions.SortBy.
func IsSortable(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

// CreateExpense inserts a new expense owned by ownerID.
func (db *DB) CreateExpense(ctx context.Context, ownerID int64, description string, amount *float64) (*models.Expense, error) {
	now := toMillis(db.now())
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO expenses (description, amount, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING "+expenseColumns,
		description, nullFloat(amount), ownerID, now, now,
	)
	e, err := scanExpense(row)
	if err != nil {
		return nil, apperrors.Wrap("insert expense", err)
	}
	return e, nil
}

// GetExpense retrieves a single expense by ID. Expenses owned by someone
// else are reported as not found.
func (db *DB) GetExpense(ctx context.Context, ownerID, id int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND owner_id = ?",
		id, ownerID,
	)
	e, err := scanExpense(row)
	if err != nil {
		return nil, notFoundOr(err, "expense", "get expense")
	}
	return e, nil
}

// ListExpenses retrieves the owner's expenses. Ties on the sort column keep
// insertion order.
func (db *DB) ListExpenses(ctx context.Context, ownerID int64, opts ListOptions) ([]models.Expense, error) {
	order := "id"
	if opts.SortBy != "" {
		col, ok := sortColumns[opts.SortBy]
		if !ok {
			return nil, apperrors.Validationf("Invalid sort field %q", opts.SortBy)
		}
		dir := "ASC"
		if opts.Desc {
			dir = "DESC"
		}
		order = fmt.Sprintf("%s %s, id", col, dir)
	}
	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	skip := max(opts.Skip, 0)

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE owner_id = ? ORDER BY "+order+" LIMIT ? OFFSET ?",
		ownerID, limit, skip,
	)
	if err != nil {
		return nil, apperrors.Wrap("list expenses", err)
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, apperrors.Wrap("list expenses", err)
		}
		expenses = append(expenses, *e)
	}

	return expenses, apperrors.Wrap("list expenses", rows.Err())
}

// UpdateExpense applies patch to the owner's expense in a single statement
// and returns the updated record.
func (db *DB) UpdateExpense(ctx context.Context, ownerID, id int64, patch models.ExpensePatch) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx, `
		UPDATE expenses SET
			description = COALESCE(?, description),
			amount = CASE WHEN ? THEN NULL ELSE COALESCE(?, amount) END,
			updated_at = ?
		WHERE id = ? AND owner_id = ?
		RETURNING `+expenseColumns,
		nullString(patch.Description), patch.ClearAmount, nullFloat(patch.Amount),
		toMillis(db.now()), id, ownerID,
	)
	e, err := scanExpense(row)
	if err != nil {
		return nil, notFoundOr(err, "expense", "update expense")
	}
	return e, nil
}

// DeleteExpense removes the owner's expense and returns it.
func (db *DB) DeleteExpense(ctx context.Context, ownerID, id int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"DELETE FROM expenses WHERE id = ? AND owner_id = ? RETURNING "+expenseColumns,
		id, ownerID,
	)
	e, err := scanExpense(row)
	if err != nil {
		return nil, notFoundOr(err, "expense", "delete expense")
	}
	return e, nil
}

// ExpenseSummary aggregates the owner's expenses.
func (db *DB) ExpenseSummary(ctx context.Context, ownerID int64) (*models.ExpenseSummary, error) {
	var s models.ExpenseSummary
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0), COUNT(*) - COUNT(amount)
		FROM expenses WHERE owner_id = ?`,
		ownerID,
	).Scan(&s.Count, &s.Total, &s.WithoutAmount)
	if err != nil {
		return nil, apperrors.Wrap("summarize expenses", err)
	}
	return &s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (*models.Expense, error) {
	var e models.Expense
	var amount sql.NullFloat64
	var createdAt, updatedAt int64
	if err := row.Scan(&e.ID, &e.Description, &amount, &e.OwnerID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if amount.Valid {
		v := amount.Float64
		e.Amount = &v
	}
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	return &e, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
