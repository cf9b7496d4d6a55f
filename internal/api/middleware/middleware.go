// Package middleware contains middleware functions for the API
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httplog/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/naarscars/admission/internal/api/actor"
	apiError "github.com/naarscars/admission/internal/api/error"
	"github.com/naarscars/admission/internal/api/requestid"
	"github.com/naarscars/admission/internal/api/token"
	"github.com/naarscars/admission/internal/config"
	"github.com/naarscars/admission/internal/env"
	naJwt "github.com/naarscars/admission/internal/jwt"
	"github.com/naarscars/admission/internal/log"
	"github.com/naarscars/admission/internal/ratelimit"
)

type requestIDKeyType struct{}

var requestIDKey requestIDKeyType

// InjectEnv injects an environment struct into the request context.
func InjectEnv(environment *env.Env) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(env.WithCtx(r.Context(), environment)))
		})
	}
}

func LogRequest(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		LogExtraAttrs: func(r *http.Request, reqBody string, respStatus int) []slog.Attr {
			requestID := r.Context().Value(requestIDKey)
			if id, ok := requestID.(uint64); ok {
				return []slog.Attr{slog.Uint64("log_id", id)}
			}
			return []slog.Attr{slog.String("log_id", "N/A")}
		},
	})
}

// AddRequestID adds a request ID to the request context.
func AddRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := ulid.Now()
		r = r.WithContext(log.AppendCtx(r.Context(), slog.Uint64("log_id", requestID)))
		r = r.WithContext(requestid.InjectRequestID(r.Context(), requestID))
		next.ServeHTTP(w, r)
	})
}

// AddCors adds the necessary CORS headers to the response.
func AddCors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e := env.EnvFromCtx(r.Context())
		origin := r.Header.Get("Origin")
		hostOrigin := e.Config.HostOrigin
		isProd := e.Config.Env == config.EnvProd

		// Determine allowed origin based on the incoming Origin header
		var allowedOrigin string
		if isProd {
			allowedOrigin = hostOrigin
		} else if origin != "" {
			// In dev mode, allow all origins
			allowedOrigin = origin
		}

		if allowedOrigin == "" && hostOrigin != "" {
			allowedOrigin = hostOrigin
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+actor.DeviceIDHeader)
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AuthorizeRequest validates the session JWT and stores the account id in
// the request context.
func AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e := env.EnvFromCtx(r.Context())
		requestID := strconv.FormatUint(requestid.ExtractRequestID(r.Context()), 10)

		accessToken, err := r.Cookie(token.AccessTokenName(e.Config))
		if err != nil {
			e.Logger.ErrorContext(r.Context(), "unable to get access token", slog.Any("error", err))
			_ = apiError.EncodeError(w, apiError.InvalidAccessToken, "invalid access token", requestID)
			return
		}

		if e.Config.AppSecret.Value == nil {
			e.Logger.ErrorContext(r.Context(), "app secret not configured")
			_ = apiError.EncodeInternalError(w, requestID)
			return
		}
		secretVersion := e.Config.AppSecret.Version
		if secretVersion == "" {
			secretVersion = naJwt.DefaultKID
		}

		accessJwt, err := naJwt.ValidateJWT(accessToken.Value, secretVersion, []byte(*e.Config.AppSecret.Value))
		if errors.Is(err, jwt.ErrTokenExpired) {
			e.Logger.ErrorContext(r.Context(), "access token expired", slog.Any("error", err))
			_ = apiError.EncodeError(w, apiError.ExpiredAccessToken, "access token expired", requestID)
			return
		} else if err != nil {
			e.Logger.ErrorContext(r.Context(), "invalid access token", slog.Any("error", err))
			_ = apiError.EncodeError(w, apiError.InvalidAccessToken, "invalid access token", requestID)
			return
		}

		sub, err := accessJwt.Claims.GetSubject()
		if err != nil || sub == "" {
			e.Logger.ErrorContext(r.Context(), "failed to extract subject from jwt", slog.Any("error", err))
			_ = apiError.EncodeError(w, apiError.InvalidAccessToken, "invalid access token", requestID)
			return
		}

		r = r.WithContext(log.AppendCtx(r.Context(), slog.String("user-id", sub)))
		r = r.WithContext(token.UserIDWithCtx(r.Context(), sub))

		next.ServeHTTP(w, r)
	})
}

// Pace applies the advisory per-actor limiter in front of a handler. A
// denial here is a cheap early 429; the authoritative windowed counters
// still decide inside the admission controller.
func Pace(advisory *ratelimit.Advisory, retryAfter time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if advisory != nil && !advisory.Allow(actor.FromRequest(r)) {
				requestID := strconv.FormatUint(requestid.ExtractRequestID(r.Context()), 10)
				_ = apiError.EncodeRateLimited(w, retryAfter, requestID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
