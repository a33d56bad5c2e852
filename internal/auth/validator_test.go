package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kjlabs/polyglot-broadcast/internal/apperr"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestValidateRejectsEmptyToken(t *testing.T) {
	v := NewValidator(testSecret, time.Minute, false)
	_, err := v.Validate(context.Background(), "")
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Code != apperr.CodeAuthMissingToken {
		t.Fatalf("expected AUTH_MISSING_TOKEN, got %v", err)
	}
}

func TestValidateAcceptsWellFormedToken(t *testing.T) {
	v := NewValidator(testSecret, time.Minute, false)
	token := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "polyglot-broadcast",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	id, err := v.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if id.UserID != "user-1" || id.Role != RoleSpeaker {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	v := NewValidator(testSecret, time.Minute, false)
	token := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Validate(context.Background(), token)
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Code != apperr.CodeAuthExpired {
		t.Fatalf("expected AUTH_EXPIRED, got %v", err)
	}
}

func TestValidateRejectsMissingSubject(t *testing.T) {
	v := NewValidator(testSecret, time.Minute, false)
	token := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Validate(context.Background(), token)
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Code != apperr.CodeAuthMalformed {
		t.Fatalf("expected AUTH_MALFORMED, got %v", err)
	}
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	v := NewValidator(testSecret, time.Minute, false)
	token := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Validate(context.Background(), token)
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Code != apperr.CodeAuthBadIssuer {
		t.Fatalf("expected AUTH_BAD_ISSUER, got %v", err)
	}
}

func TestValidateRejectsBadSignature(t *testing.T) {
	v := NewValidator(testSecret, time.Minute, false)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	_, err = v.Validate(context.Background(), signed)
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Code != apperr.CodeAuthBadSignature {
		t.Fatalf("expected AUTH_BAD_SIGNATURE, got %v", err)
	}
}

func TestValidateRejectsMalformedToken(t *testing.T) {
	v := NewValidator(testSecret, time.Minute, false)
	_, err := v.Validate(context.Background(), "not-a-jwt-at-all")
	ae, ok := err.(*apperr.Error)
	if !ok || ae.Kind != apperr.KindAuth {
		t.Fatalf("expected an auth error, got %v", err)
	}
}

func TestAnonymousListenerReturnsListenerRole(t *testing.T) {
	v := NewValidator(testSecret, time.Minute, true)
	id := v.AnonymousListener("conn-123")
	if id.Role != RoleListener {
		t.Fatalf("expected listener role, got %v", id.Role)
	}
	if id.UserID == "" {
		t.Fatal("expected a non-empty placeholder user id")
	}
}
