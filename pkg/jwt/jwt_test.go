package jwt

import (
	"testing"
	"time"
)

func TestJWTManager_GenerateAndVerify(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	token, err := manager.Generate("user-1", "player1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("userID = %s, want user-1", claims.UserID)
	}
	if claims.Username != "player1" {
		t.Errorf("username = %s, want player1", claims.Username)
	}
}

func TestJWTManager_Verify_WrongSecret(t *testing.T) {
	manager := NewJWTManager("secret-a", time.Hour)
	other := NewJWTManager("secret-b", time.Hour)

	token, err := manager.Generate("user-1", "player1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := other.Verify(token); err == nil {
		t.Fatal("token signed with another secret should not verify")
	}
}

func TestJWTManager_Verify_Garbage(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	if _, err := manager.Verify("not-a-token"); err == nil {
		t.Fatal("garbage token should not verify")
	}
}
