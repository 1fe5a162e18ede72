package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt"
)

const (
	tokenCookieKey  = "token"
	usernameClaim   = "username"
	defaultUsername = "Anonymous"
)

var ErrNoSigningKey = errors.New("no signing key configured")

type contextKey string

const usernameKey contextKey = "username"

func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// Username returns the display name taken from a verified token, if any.
func Username(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	return username, ok
}

func (s *DocSyncApp) verifyToken(tokenString string) (*jwt.Token, error) {
	if s.signingKey == nil {
		return nil, ErrNoSigningKey
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

func (s *DocSyncApp) extractUsernameFromToken(tokenString string) (string, error) {
	token, err := s.verifyToken(tokenString)
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	username, ok := claims[usernameClaim].(string)
	if !ok || username == "" {
		return "", fmt.Errorf("invalid username claim")
	}

	return username, nil
}
