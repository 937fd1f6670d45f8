package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jo-hoe/chestxray/internal/backend/database"
	"github.com/jo-hoe/chestxray/internal/backend/session"
	"github.com/jo-hoe/chestxray/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// UserProfile is the public view of an account
type UserProfile struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// Signup creates an account with a bcrypt hashed password
func (service *CoreService) Signup(ctx context.Context, username, password, fullName string) error {
	username = strings.TrimSpace(username)
	fullName = strings.TrimSpace(fullName)
	if username == "" || password == "" || fullName == "" {
		return fmt.Errorf("%w: username, password and full name are required", common.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), service.passwordCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return fmt.Errorf("%w: password must be at most 72 bytes", common.ErrValidation)
	}
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	storeCtx, cancel := service.storeContext(ctx)
	defer cancel()
	err = service.databaseService.CreateUser(storeCtx, &database.User{
		Username:     username,
		PasswordHash: string(hash),
		FullName:     fullName,
		Images:       []*database.Image{},
	})
	if err != nil {
		return err
	}
	slog.Info("user created", "username", username)
	return nil
}

// Login checks the credentials and opens a session. The returned token is the
// cookie value.
func (service *CoreService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", fmt.Errorf("%w: username and password are required", common.ErrValidation)
	}

	storeCtx, cancel := service.storeContext(ctx)
	user, err := service.databaseService.GetUser(storeCtx, username)
	cancel()
	if err != nil {
		return "", err
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return "", common.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}

	token, err := service.sessionStore.Create(ctx, session.Session{Username: user.Username, FullName: user.FullName})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Logout revokes the session behind the token
func (service *CoreService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return service.sessionStore.Delete(ctx, token)
}

// GetUser returns the profile of the session's user
func (service *CoreService) GetUser(ctx context.Context, sess *session.Session) (*UserProfile, error) {
	storeCtx, cancel := service.storeContext(ctx)
	defer cancel()

	user, err := service.databaseService.GetUser(storeCtx, sess.Username)
	if err != nil {
		return nil, err
	}
	return &UserProfile{FullName: user.FullName, Email: user.Username}, nil
}
