package app

import (
	"fmt"
	"strings"
	"time"

	"audioscribe/internal/util"
	"audioscribe/pkg/auth"
	"audioscribe/pkg/domain"
)

// CreateUserInput carries the fields of a new account.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     domain.UserRole
}

// UpdateUserInput carries optional account changes; nil fields are
// left as they are.
type UpdateUserInput struct {
	Email    *string
	Role     *domain.UserRole
	IsActive *bool
	Password *string
}

// CreateUser registers a new account.
func (a *App) CreateUser(in CreateUserInput) (domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return domain.User{}, ErrUsernameAndPasswordRequired
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, err
	}
	if _, taken, err := a.store.GetUserByUsername(username); err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	} else if taken {
		return domain.User{}, ErrUsernameTaken
	}
	role := in.Role
	switch role {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleEditor:
	case "":
		role = domain.RoleEditor
	default:
		return domain.User{}, fmt.Errorf("unknown role %q", role)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Username:     username,
		Email:        strings.TrimSpace(strings.ToLower(in.Email)),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// GetUser returns one account.
func (a *App) GetUser(id string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// ListUsers returns all accounts.
func (a *App) ListUsers() ([]domain.User, error) {
	return a.store.ListUsers()
}

// UpdateUser applies the provided changes to an account.
func (a *App) UpdateUser(id string, in UpdateUserInput) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	if in.Email != nil {
		user.Email = strings.TrimSpace(strings.ToLower(*in.Email))
	}
	if in.Role != nil {
		switch *in.Role {
		case domain.RoleAdmin, domain.RoleManager, domain.RoleEditor:
			user.Role = *in.Role
		default:
			return domain.User{}, fmt.Errorf("unknown role %q", *in.Role)
		}
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if in.Password != nil {
		if err := auth.ValidatePassword(*in.Password); err != nil {
			return domain.User{}, err
		}
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// DeleteUser removes an account.
func (a *App) DeleteUser(id string) error {
	if _, ok, err := a.store.GetUserByID(id); err != nil {
		return fmt.Errorf("fetch user: %w", err)
	} else if !ok {
		return ErrUserNotFound
	}
	return a.store.DeleteUser(id)
}
