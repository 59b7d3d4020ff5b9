package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/socialdeskapp/socialdesk/internal/models"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	manager, err := NewTokenManager(strings.Repeat("s", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	operatorID := uuid.New()
	token, err := manager.Issue(operatorID, "agent-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	actor, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if actor.Type != models.ActorOperator {
		t.Fatalf("actor type = %s, want OPERATOR", actor.Type)
	}
	if actor.ID != operatorID {
		t.Fatalf("actor id = %s, want %s", actor.ID, operatorID)
	}
	if actor.Name != "agent-1" {
		t.Fatalf("actor name = %q, want %q", actor.Name, "agent-1")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	manager, err := NewTokenManager(strings.Repeat("s", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}
	manager.ttl = -time.Minute

	token, err := manager.Issue(uuid.New(), "agent-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := manager.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	t.Parallel()

	issuerManager, err := NewTokenManager(strings.Repeat("a", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}
	verifierManager, err := NewTokenManager(strings.Repeat("b", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	token, err := issuerManager.Issue(uuid.New(), "agent-1")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := verifierManager.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestNewTokenManagerRejectsShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenManager("short", time.Hour); err == nil {
		t.Fatalf("expected error for short secret")
	}
}
