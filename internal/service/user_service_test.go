package service

import (
	"errors"
	"testing"
	"time"

	jwtutil "github.com/pointlock/pointlock-backend/pkg/jwt"
)

func newUserServiceFixture() (*UserService, *fakeUserStore) {
	users := newFakeUserStore()
	jwtManager := jwtutil.NewJWTManager("test-secret", time.Hour)
	return NewUserService(users, jwtManager), users
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	svc, _ := newUserServiceFixture()

	user, err := svc.Register("player1", "player1@example.com", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.SkillRating != defaultSkillRating {
		t.Errorf("skill rating = %d, want default %d", user.SkillRating, defaultSkillRating)
	}
	if user.Tier != defaultTier {
		t.Errorf("tier = %s, want default %s", user.Tier, defaultTier)
	}

	token, loggedIn, err := svc.Login("player1@example.com", "password123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if token == "" {
		t.Error("expected a JWT token")
	}
	if loggedIn.ID != user.ID {
		t.Errorf("logged in user = %s, want %s", loggedIn.ID, user.ID)
	}
}

func TestUserService_Register_DuplicateEmail(t *testing.T) {
	svc, _ := newUserServiceFixture()

	if _, err := svc.Register("player1", "dup@example.com", "password123"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	_, err := svc.Register("player2", "dup@example.com", "password123")
	if !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestUserService_Register_ShortPassword(t *testing.T) {
	svc, _ := newUserServiceFixture()

	_, err := svc.Register("player1", "p1@example.com", "short")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUserService_Login_WrongPassword(t *testing.T) {
	svc, _ := newUserServiceFixture()

	if _, err := svc.Register("player1", "p1@example.com", "password123"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, _, err := svc.Login("p1@example.com", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUserService_Login_UnknownEmail(t *testing.T) {
	svc, _ := newUserServiceFixture()

	_, _, err := svc.Login("nobody@example.com", "password123")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
