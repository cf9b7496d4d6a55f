// Package session contains login handlers.
package session

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/naarscars/admission/internal/accounts"
	apiError "github.com/naarscars/admission/internal/api/error"
	"github.com/naarscars/admission/internal/api/requestid"
	"github.com/naarscars/admission/internal/api/token"
	"github.com/naarscars/admission/internal/argon2id"
	"github.com/naarscars/admission/internal/env"
	naJson "github.com/naarscars/admission/internal/json"
	"github.com/naarscars/admission/internal/jwt"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin authenticates a member and sets the session cookie.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := env.EnvFromCtx(ctx)
	requestID := strconv.FormatUint(requestid.ExtractRequestID(ctx), 10)

	// Decode JSON
	var request LoginRequest
	e.Logger.DebugContext(ctx, "Reading request body")
	defer func() { _ = r.Body.Close() }()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := naJson.DecodeJSON(&request, decoder); err != nil {
		e.Logger.ErrorContext(ctx, "Failed to decode request body", slog.Any("error", err))
		_ = apiError.EncodeError(w, apiError.BadRequest, "invalid request body", requestID)
		return
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(request); err != nil {
		e.Logger.ErrorContext(ctx, "Failed to validate request body", slog.Any("error", err))
		_ = apiError.EncodeError(w, apiError.BadRequest, "invalid request body", requestID)
		return
	}

	// Retrieve account
	e.Logger.DebugContext(ctx, "Retrieving account")
	account, err := e.Database.GetAccountByEmail(ctx, request.Email)
	if errors.Is(err, accounts.ErrNotFound) {
		e.Logger.ErrorContext(ctx, "No account with email", slog.Any("error", err))
		_ = apiError.EncodeError(w, apiError.InvalidCredentials, "email or password is incorrect", requestID)
		return
	} else if err != nil {
		e.Logger.ErrorContext(ctx, "Failed to retrieve account", slog.Any("error", err))
		_ = apiError.EncodeInternalError(w, requestID)
		return
	}

	// Decode stored hash
	e.Logger.DebugContext(ctx, "Decoding password hash")
	argonParams, argonSalt, trueHash, err := argon2id.DecodeHash(account.PasswordHash)
	if err != nil {
		e.Logger.ErrorContext(ctx, "Failed to decode password hash", slog.Any("error", err))
		_ = apiError.EncodeInternalError(w, requestID)
		return
	}

	// Hash given password and compare
	e.Logger.DebugContext(ctx, "Comparing passwords")
	givenHash := argon2id.HashWithSalt(request.Password, *argonParams, argonSalt)
	if subtle.ConstantTimeCompare(givenHash, trueHash) != 1 {
		e.Logger.ErrorContext(ctx, "Given password is incorrect")
		_ = apiError.EncodeError(w, apiError.InvalidCredentials, "email or password is incorrect", requestID)
		return
	}

	// Create access token
	e.Logger.DebugContext(ctx, "Generating access token")
	accessToken, err := token.NewAccessToken(jwt.JWTParams{
		UserID: account.ID,
		Email:  account.Email,
	}, e.Config)
	if err != nil {
		e.Logger.ErrorContext(ctx, "failed to create access token", slog.Any("error", err))
		_ = apiError.EncodeInternalError(w, requestID)
		return
	}

	// Write response
	e.Logger.DebugContext(ctx, "Writing response")
	http.SetCookie(w, token.NewAccessTokenCookie(accessToken, e.Config))
	w.WriteHeader(http.StatusNoContent)
}
