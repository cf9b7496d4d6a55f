// Package token contains utilities for http tokens.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/naarscars/admission/internal/config"
	"github.com/naarscars/admission/internal/jwt"
)

const (
	accessTokenLifetime = 60 * 60 // 1 hour, matches jwt.JWTDuration
)

type userIDKeyType struct{}

var userIDKey userIDKeyType

// UserIDWithCtx attaches the authenticated account id to a context.
func UserIDWithCtx(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromCtx extracts the authenticated account id from a context.
func UserIDFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

func AccessTokenName(conf config.Config) string {
	if conf.Env == config.EnvProd {
		return "__Host-access"
	}
	return "access"
}

// NewAccessToken signs a session JWT with the configured app secret.
func NewAccessToken(params jwt.JWTParams, conf config.Config) (string, error) {
	if conf.AppSecret.Value == nil {
		return "", errors.New("app secret not configured")
	}
	version := conf.AppSecret.Version
	if version == "" {
		version = jwt.DefaultKID
	}
	token, err := jwt.GenerateJWT(params, []byte(*conf.AppSecret.Value), version)
	if err != nil {
		return "", fmt.Errorf("generating access token: %w", err)
	}
	return token, nil
}

func NewAccessTokenCookie(token string, conf config.Config) *http.Cookie {
	return &http.Cookie{
		Name:     AccessTokenName(conf),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   accessTokenLifetime,
		SameSite: http.SameSiteLaxMode,
		Secure:   conf.Env == config.EnvProd,
	}
}
