package service

import (
	"context"
	"strconv"
	"strings"

	"expense-api/internal/apperrors"
	"expense-api/internal/models"
	"expense-api/internal/storage"
)

var expenseFields = []string{"description", "amount"}

// Expenses implements the owner-scoped expense operations.
type Expenses struct {
	db *storage.DB
}

// NewExpenses creates an Expenses service.
func NewExpenses(db *storage.DB) *Expenses {
	return &Expenses{db: db}
}

// Create stores a new expense for ownerID. Keys other than description and
// amount are ignored; the owner always comes from ownerID.
func (s *Expenses) Create(ctx context.Context, ownerID int64, fields Fields) (*models.Expense, error) {
	desc, err := decodeString(fields, "description")
	if err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, apperrors.Validationf("description is required")
	}
	description, err := requireNonEmpty("description", *desc)
	if err != nil {
		return nil, err
	}
	amount, _, err := decodeNumber(fields, "amount")
	if err != nil {
		return nil, err
	}

	e, err := s.db.CreateExpense(ctx, ownerID, description, amount)
	return e, wrapOp("create expense", err)
}

// ParseListOptions reads the limit, skip and sortBy query values. sortBy is
// "field" or "field:asc|desc".
func ParseListOptions(limit, skip, sortBy string) (storage.ListOptions, error) {
	var opts storage.ListOptions
	var err error
	if limit != "" {
		if opts.Limit, err = strconv.Atoi(limit); err != nil || opts.Limit < 0 {
			return opts, apperrors.Validationf("limit must be a non-negative integer")
		}
	}
	if skip != "" {
		if opts.Skip, err = strconv.Atoi(skip); err != nil || opts.Skip < 0 {
			return opts, apperrors.Validationf("skip must be a non-negative integer")
		}
	}
	if sortBy != "" {
		field, dir, _ := strings.Cut(sortBy, ":")
		if !storage.IsSortable(field) {
			return opts, apperrors.Validationf("Invalid sort field %q", field)
		}
		opts.SortBy = field
		opts.Desc = dir == "desc"
	}
	return opts, nil
}

// List returns a page of the owner's expenses.
func (s *Expenses) List(ctx context.Context, ownerID int64, opts storage.ListOptions) ([]models.Expense, error) {
	expenses, err := s.db.ListExpenses(ctx, ownerID, opts)
	return expenses, wrapOp("list expenses", err)
}

// Get returns one of the owner's expenses.
func (s *Expenses) Get(ctx context.Context, ownerID, id int64) (*models.Expense, error) {
	e, err := s.db.GetExpense(ctx, ownerID, id)
	return e, wrapOp("get expense", err)
}

// Update applies an allow-listed patch to one of the owner's expenses. The
// allow-list is checked before the expense is looked up.
func (s *Expenses) Update(ctx context.Context, ownerID, id int64, fields Fields) (*models.Expense, error) {
	if err := checkAllowed(fields, expenseFields...); err != nil {
		return nil, err
	}

	var patch models.ExpensePatch
	desc, err := decodeString(fields, "description")
	if err != nil {
		return nil, err
	}
	if desc != nil {
		d, err := requireNonEmpty("description", *desc)
		if err != nil {
			return nil, err
		}
		patch.Description = &d
	}
	amount, present, err := decodeNumber(fields, "amount")
	if err != nil {
		return nil, err
	}
	patch.Amount = amount
	patch.ClearAmount = present && amount == nil

	if len(fields) == 0 {
		return s.Get(ctx, ownerID, id)
	}
	e, err := s.db.UpdateExpense(ctx, ownerID, id, patch)
	return e, wrapOp("update expense", err)
}

// Delete removes one of the owner's expenses and returns it.
func (s *Expenses) Delete(ctx context.Context, ownerID, id int64) (*models.Expense, error) {
	e, err := s.db.DeleteExpense(ctx, ownerID, id)
	return e, wrapOp("delete expense", err)
}

// Summary aggregates the owner's expenses.
func (s *Expenses) Summary(ctx context.Context, ownerID int64) (*models.ExpenseSummary, error) {
	sum, err := s.db.ExpenseSummary(ctx, ownerID)
	return sum, wrapOp("summarize expenses", err)
}
