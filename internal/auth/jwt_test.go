package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	raw, err := tokens.Generate("alice", "Alice")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := tokens.Validate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "alice" || claims.DisplayName != "Alice" {
		t.Errorf("claims = %+v, want alice/Alice", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	raw, err := NewTokens("secret-a", time.Hour).Generate("alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokens("secret-b", time.Hour).Validate(raw); err == nil {
		t.Error("token signed with another secret must not validate")
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	tokens := NewTokens("test-secret", -time.Hour)
	raw, err := tokens.Generate("alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tokens.Validate(raw); err == nil {
		t.Error("expired token must not validate")
	}
}
