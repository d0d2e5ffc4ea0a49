package models

import "time"

// Expense represents a financial expense record owned by one user.
type Expense struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Amount      *float64  `json:"amount"`
	OwnerID     int64     `json:"owner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ExpenseSummary aggregates a user's expenses.
type ExpenseSummary struct {
	Count         int     `json:"count"`
	Total         float64 `json:"total"`
	WithoutAmount int     `json:"withoutAmount"`
}

// User represents a user account. The password hash and token list never
// leave the process; use Public for responses.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Tokens       []string  `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PublicUser is the externalized view of a User.
type PublicUser struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public strips credential material from u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// ExpensePatch holds the expense fields a caller asked to change.
type ExpensePatch struct {
	Description *string
	Amount      *float64
	// ClearAmount is set when the caller sent an explicit null amount.
	ClearAmount bool
}

// UserPatch holds the profile fields a caller asked to change. Password is
// plaintext until the service hashes it.
type UserPatch struct {
	Name     *string
	Email    *string
	Password *string
}
