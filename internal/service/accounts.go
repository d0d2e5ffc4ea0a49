// Package service holds the account and expense operations. Every operation
// validates its input before touching the store, and every expense operation
// is scoped to the authenticated owner.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"expense-api/internal/apperrors"
	"expense-api/internal/auth"
	"expense-api/internal/models"
	"expense-api/internal/storage"
)

// Messages returned for authentication failures. They are deliberately
// identical across causes.
const (
	MsgUnableToLogin = "Unable to login"
	MsgAuthenticate  = "Please authenticate."
)

// dummyHash is compared against when no user matches a login email, so both
// failure paths pay for one bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	hash, _ := auth.HashPassword("no-such-account")
	return hash
})

// Accounts implements registration, login and session management.
type Accounts struct {
	db     *storage.DB
	tokens *auth.TokenIssuer
}

// NewAccounts creates an Accounts service. tokens may be nil for callers
// that only use CreateAccount.
func NewAccounts(db *storage.DB, tokens *auth.TokenIssuer) *Accounts {
	return &Accounts{db: db, tokens: tokens}
}

// Register validates and stores a new user and opens its first session.
func (a *Accounts) Register(ctx context.Context, name, email, password string) (*models.User, string, error) {
	user, err := a.CreateAccount(ctx, name, email, password)
	if err != nil {
		return nil, "", err
	}

	token, err := a.openSession(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login checks credentials and opens a new session alongside existing ones.
// An unknown email and a wrong password produce the same error. The password
// is compared as given, without trimming.
func (a *Accounts) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := a.db.GetUserByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		auth.CheckPassword(password, dummyHash())
		return nil, "", apperrors.Authentication(MsgUnableToLogin)
	}
	if err != nil {
		return nil, "", wrapOp("login", err)
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, "", apperrors.Authentication(MsgUnableToLogin)
	}

	token, err := a.openSession(ctx, user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// CreateAccount validates and stores a new user without opening a session.
func (a *Accounts) CreateAccount(ctx context.Context, name, email, password string) (*models.User, error) {
	name, err := requireNonEmpty("Name", name)
	if err != nil {
		return nil, err
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := hashValidPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := a.db.CreateUser(ctx, name, email, hash)
	if err != nil {
		return nil, wrapOp("create account", err)
	}
	return user, nil
}

func (a *Accounts) openSession(ctx context.Context, user *models.User) (string, error) {
	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return "", apperrors.Wrap("issue token", err)
	}
	if err := a.db.AddToken(ctx, user.ID, token); err != nil {
		return "", wrapOp("open session", err)
	}
	user.Tokens = append(user.Tokens, token)
	return token, nil
}

// Authenticate resolves the user owning token. The signature must verify
// and the token must still be in the user's active list; either failure,
// or a missing user, yields the same authentication error.
func (a *Accounts) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := a.tokens.Parse(token)
	if err != nil {
		return nil, apperrors.Authentication(MsgAuthenticate)
	}

	active, err := a.db.HasToken(ctx, userID, token)
	if err != nil {
		return nil, wrapOp("authenticate", err)
	}
	if !active {
		return nil, apperrors.Authentication(MsgAuthenticate)
	}

	user, err := a.db.GetUserByID(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Authentication(MsgAuthenticate)
	}
	if err != nil {
		return nil, wrapOp("authenticate", err)
	}
	return user, nil
}

// Logout ends the session identified by token.
func (a *Accounts) Logout(ctx context.Context, user *models.User, token string) error {
	return wrapOp("logout", a.db.RemoveToken(ctx, user.ID, token))
}

// LogoutAll ends every session of user.
func (a *Accounts) LogoutAll(ctx context.Context, user *models.User) error {
	return wrapOp("logout all", a.db.RemoveAllTokens(ctx, user.ID))
}

// UpdateProfile applies an allow-listed patch of name, email and password.
// Unknown keys are rejected before the store is touched; a new password is
// validated and rehashed.
func (a *Accounts) UpdateProfile(ctx context.Context, user *models.User, fields Fields) (*models.User, error) {
	if err := checkAllowed(fields, "name", "email", "password"); err != nil {
		return nil, err
	}
	patch, err := parseUserPatch(fields)
	if err != nil {
		return nil, err
	}

	updated := *user
	if patch.Name != nil {
		if updated.Name, err = requireNonEmpty("Name", *patch.Name); err != nil {
			return nil, err
		}
	}
	if patch.Email != nil {
		if updated.Email, err = normalizeEmail(*patch.Email); err != nil {
			return nil, err
		}
	}
	if patch.Password != nil {
		if updated.PasswordHash, err = hashValidPassword(*patch.Password); err != nil {
			return nil, err
		}
	}

	if err := a.db.UpdateUser(ctx, &updated); err != nil {
		return nil, wrapOp("update profile", err)
	}
	return &updated, nil
}

// DeleteAccount removes user together with its sessions and expenses.
func (a *Accounts) DeleteAccount(ctx context.Context, user *models.User) error {
	return wrapOp("delete account", a.db.DeleteUser(ctx, user.ID))
}

func parseUserPatch(fields Fields) (models.UserPatch, error) {
	var patch models.UserPatch
	var err error
	if patch.Name, err = decodeString(fields, "name"); err != nil {
		return patch, err
	}
	if patch.Email, err = decodeString(fields, "email"); err != nil {
		return patch, err
	}
	if patch.Password, err = decodeString(fields, "password"); err != nil {
		return patch, err
	}
	return patch, nil
}

func hashValidPassword(password string) (string, error) {
	if err := auth.ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := auth.HashPassword(strings.TrimSpace(password))
	if err != nil {
		return "", apperrors.Wrap("hash password", err)
	}
	return hash, nil
}
