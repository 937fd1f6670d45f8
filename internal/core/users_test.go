package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jo-hoe/chestxray/internal/common"
	"golang.org/x/crypto/bcrypt"
)

func TestSignup_Validation(t *testing.T) {
	service, _ := newTestCoreService(t, &fakePredictor{})
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		fullName string
	}{
		{name: "missing username", password: "pw", fullName: "Alice"},
		{name: "blank username", username: "  ", password: "pw", fullName: "Alice"},
		{name: "missing password", username: "alice", fullName: "Alice"},
		{name: "missing full name", username: "alice", password: "pw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Signup(ctx, tt.username, tt.password, tt.fullName)
			if !errors.Is(err, common.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSignup_StoresBcryptHash(t *testing.T) {
	service, db := newTestCoreService(t, &fakePredictor{})
	ctx := context.Background()

	if err := service.Signup(ctx, "alice", "secret-password", "Alice Liddell"); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	user, err := db.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if user.PasswordHash == "secret-password" {
		t.Fatal("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret-password")); err != nil {
		t.Errorf("expected stored hash to match password: %v", err)
	}
}

func TestSignup_DuplicateUsername(t *testing.T) {
	service, _ := newTestCoreService(t, &fakePredictor{})
	ctx := context.Background()

	if err := service.Signup(ctx, "alice", "pw", "Alice"); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	if err := service.Signup(ctx, "alice", "other", "Other Alice"); !errors.Is(err, common.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin_Failures(t *testing.T) {
	service, _ := newTestCoreService(t, &fakePredictor{})
	ctx := context.Background()
	if err := service.Signup(ctx, "alice", "secret-password", "Alice"); err != nil {
		t.Fatalf("Signup error: %v", err)
	}

	if _, err := service.Login(ctx, "bob", "secret-password"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
	if _, err := service.Login(ctx, "alice", "wrong"); !errors.Is(err, common.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := service.Login(ctx, "alice", ""); !errors.Is(err, common.ErrValidation) {
		t.Errorf("expected ErrValidation for empty password, got %v", err)
	}
}

func TestGetUser(t *testing.T) {
	service, _ := newTestCoreService(t, &fakePredictor{})
	sess := loginTestUser(t, service, "alice@example.com", "Alice Liddell")

	profile, err := service.GetUser(context.Background(), sess)
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if profile.FullName != "Alice Liddell" || profile.Email != "alice@example.com" {
		t.Errorf("unexpected profile: %+v", profile)
	}
}

func TestLogout(t *testing.T) {
	service, _ := newTestCoreService(t, &fakePredictor{})
	ctx := context.Background()

	if err := service.Logout(ctx, ""); err != nil {
		t.Errorf("expected logout without token to succeed, got %v", err)
	}
	if err := service.Signup(ctx, "alice", "pw", "Alice"); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	token, err := service.Login(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if err := service.Logout(ctx, token); err != nil {
		t.Errorf("Logout error: %v", err)
	}
}

func TestSignup_PasswordTooLong(t *testing.T) {
	service, db := newTestCoreService(t, &fakePredictor{})
	ctx := context.Background()

	err := service.Signup(ctx, "bob", strings.Repeat("p", 80), "Bob B")
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("expected ErrValidation for an 80 byte password, got %v", err)
	}
	if _, err := db.GetUser(ctx, "bob"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected no user to be stored, got %v", err)
	}

	if err := service.Signup(ctx, "bob", strings.Repeat("p", 72), "Bob B"); err != nil {
		t.Errorf("expected a 72 byte password to be accepted, got %v", err)
	}
}

func TestLogin_TrimsUsernameLikeSignup(t *testing.T) {
	service, _ := newTestCoreService(t, &fakePredictor{})
	ctx := context.Background()

	if err := service.Signup(ctx, " carol ", "secret-password", "Carol C"); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	for _, username := range []string{"carol", " carol ", "carol\t"} {
		if _, err := service.Login(ctx, username, "secret-password"); err != nil {
			t.Errorf("Login(%q) error: %v", username, err)
		}
	}
}
