package app

import (
	"fmt"
	"strings"
	"time"

	"audioscribe/pkg/auth"
	"audioscribe/pkg/domain"
	"audioscribe/pkg/token"
)

// Login validates credentials, stamps the login time and issues a token.
func (a *App) Login(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, "", ErrUsernameAndPasswordRequired
	}
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return domain.User{}, "", ErrAccountDeactivated
	}

	user.LastLoginAt = time.Now().UTC()
	user.UpdatedAt = user.LastLoginAt
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("stamp login: %w", err)
	}

	tok, err := a.tokens.Issue(user)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, tok, nil
}

// VerifyToken checks the signature and re-reads the account so revoked
// or deactivated users lose access before their token expires.
func (a *App) VerifyToken(raw string) (domain.User, token.Claims, error) {
	claims, err := a.tokens.Verify(raw)
	if err != nil {
		return domain.User{}, token.Claims{}, ErrInvalidToken
	}
	user, ok, err := a.store.GetUserByID(claims.UserID)
	if err != nil {
		return domain.User{}, token.Claims{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, token.Claims{}, ErrInvalidToken
	}
	if !user.IsActive {
		return domain.User{}, token.Claims{}, ErrAccountDeactivated
	}
	return user, claims, nil
}

// ChangePassword swaps the password after verifying the current one. On
// any failure the stored hash is left untouched.
func (a *App) ChangePassword(userID, currentPassword, newPassword string) error {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	if !auth.CheckPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}
