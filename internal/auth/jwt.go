package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrExpiredCredential = errors.New("credential expired")
)

// Claims are the token fields the client reads. The token stays opaque to the
// engine otherwise; signature checks belong to the server.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsGuest  bool   `json:"is_guest"`
	jwt.RegisteredClaims
}

// Identity is what the client learns about the local actor from its credential.
type Identity struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// Inspect parses token without verifying its signature and returns the local actor.
// Tokens that are not JWTs yield an empty identity and no error, since the
// credential is opaque to the client. Expired JWTs are rejected so the caller
// does not dial just to be closed with 4001.
func Inspect(token string, now time.Time) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingCredential
	}

	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return Identity{}, nil
	}

	id := Identity{UserID: claims.UserID, Username: claims.Username}
	if id.UserID == 0 && claims.Subject != "" {
		if sub, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
			id.UserID = sub
		}
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
		if !now.Before(id.ExpiresAt) {
			return id, fmt.Errorf("%w at %s", ErrExpiredCredential, id.ExpiresAt.Format(time.RFC3339))
		}
	}
	return id, nil
}
