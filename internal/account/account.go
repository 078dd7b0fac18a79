// Package account implements the credential exchange and session handling
// that gate the admin surface.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"catalogd/internal/domain"
	"catalogd/internal/store"
	"catalogd/internal/util"
)

// ErrInvalidCredentials collapses every login failure into one generic
// message so responses cannot be used for account enumeration.
var ErrInvalidCredentials = errors.New("check your email and password")

// Accounts wires the user store and the session store.
type Accounts struct {
	store    store.Store
	sessions store.SessionStore
}

// New constructs the account service.
func New(st store.Store, sessions store.SessionStore) *Accounts {
	return &Accounts{store: st, sessions: sessions}
}

// Authenticate validates credentials and issues a session token.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !CheckPassword(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	util.LoggerFromContext(ctx).Info("security_event",
		"event", "account.login", "outcome", "success", "user_id", user.ID)
	return token, nil
}

// UserFromToken resolves a session token to its user. Any failure reads as
// "no session".
func (a *Accounts) UserFromToken(token string) (domain.User, bool) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, false
	}
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// Logout invalidates a session token.
func (a *Accounts) Logout(token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return a.sessions.DeleteSession(token)
}

// EnsureAdmin creates the configured admin account when it does not exist
// yet. Called once at startup.
func (a *Accounts) EnsureAdmin(email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return errors.New("admin email and password required")
	}
	_, exists, err := a.store.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if exists {
		return nil
	}
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return a.store.SaveUser(domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	})
}
