package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func makeJWT(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-side-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestInspectReadsUserID(t *testing.T) {
	now := time.Now()
	token := makeJWT(t, Claims{
		UserID:   42,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})

	id, err := Inspect(token, now)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if id.UserID != 42 || id.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestInspectFallsBackToSubject(t *testing.T) {
	token := makeJWT(t, jwt.MapClaims{"sub": "17"})

	id, err := Inspect(token, time.Now())
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if id.UserID != 17 {
		t.Fatalf("expected user 17 from sub, got %+v", id)
	}
}

func TestInspectRejectsExpired(t *testing.T) {
	now := time.Now()
	token := makeJWT(t, Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
	})

	if _, err := Inspect(token, now); !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected ErrExpiredCredential, got %v", err)
	}
}

func TestInspectOpaqueAndMissing(t *testing.T) {
	if _, err := Inspect("", time.Now()); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	id, err := Inspect("not-a-jwt", time.Now())
	if err != nil {
		t.Fatalf("opaque token should pass: %v", err)
	}
	if id.UserID != 0 {
		t.Fatalf("opaque token should carry no identity: %+v", id)
	}
}
