// Package signup contains the invite-gated signup handler.
package signup

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/naarscars/admission/internal/admission"
	"github.com/naarscars/admission/internal/api/actor"
	apiError "github.com/naarscars/admission/internal/api/error"
	"github.com/naarscars/admission/internal/api/requestid"
	"github.com/naarscars/admission/internal/api/token"
	"github.com/naarscars/admission/internal/argon2id"
	"github.com/naarscars/admission/internal/env"
	naJson "github.com/naarscars/admission/internal/json"
	"github.com/naarscars/admission/internal/jwt"
	"github.com/naarscars/admission/internal/obs"
	"github.com/naarscars/admission/internal/password"
)

// HandleSignup admits a new member. The invite code decides admission:
// format check, rate limit, self-use check, account provisioning and
// exactly-once code consumption all run inside the admission controller.
// Unknown, used, and self-submitted codes produce the same response body.
func HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := env.EnvFromCtx(ctx)
	requestID := strconv.FormatUint(requestid.ExtractRequestID(ctx), 10)

	// Decode JSON
	var request SignupRequest
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

	// Ensure password strength
	e.Logger.DebugContext(ctx, "Validating password")
	if err := password.ValidatePassword(request.Password); err != nil {
		e.Logger.ErrorContext(ctx, "Failed to validate password", slog.Any("error", err))
		_ = apiError.EncodeError(w, apiError.WeakPassword, err.Error(), requestID) // OK to share the error with client.
		return
	}

	// Hash password
	e.Logger.DebugContext(ctx, "Hashing password")
	hash, err := argon2id.EncodeHash(request.Password, argon2id.DefaultParams)
	if err != nil {
		e.Logger.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
		_ = apiError.EncodeInternalError(w, requestID)
		return
	}

	// The submitter may hold a session; pass the account id along so the
	// controller can detect creators redeeming their own codes.
	actorAccountID, _ := token.UserIDFromCtx(ctx)

	e.Logger.DebugContext(ctx, "Redeeming invite code")
	account, err := e.Admission.Redeem(ctx, admission.RedeemRequest{
		Code:           request.InviteCode,
		Actor:          actor.FromRequest(r),
		ActorAccountID: actorAccountID,
		RequestID:      requestID,
		Email:          request.Email,
		PasswordHash:   hash,
		FirstName:      request.FirstName,
		LastName:       request.LastName,
	})
	if err != nil {
		encodeRedeemError(w, r, e, err, requestID)
		return
	}
	obs.RecordRedemption("admitted")

	// Auto-login: the new member gets a session immediately.
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
	http.SetCookie(w, token.NewAccessTokenCookie(accessToken, e.Config))

	// Write response
	e.Logger.DebugContext(ctx, "Writing response")
	resp, err := json.Marshal(SignupResponse{UserID: account.ID})
	if err != nil {
		e.Logger.ErrorContext(ctx, "Failed to marshal response", slog.Any("error", err))
		return
	}
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if _, err := w.Write(resp); err != nil {
		e.Logger.ErrorContext(ctx, "Failed to write response", slog.Any("error", err))
	}
}

// encodeRedeemError maps controller errors to API responses. ErrNotFoundOrUsed
// and ErrSelfUse intentionally collapse into one indistinguishable answer.
func encodeRedeemError(w http.ResponseWriter, r *http.Request, e *env.Env, err error, requestID string) {
	ctx := r.Context()

	var rateErr *admission.RateLimitError
	switch {
	case errors.Is(err, admission.ErrBadFormat):
		obs.RecordRedemption("bad_format")
		e.Logger.WarnContext(ctx, "malformed invite code submitted")
		_ = apiError.EncodeError(w, apiError.MalformedInviteCode, "malformed invite code", requestID)

	case errors.As(err, &rateErr):
		obs.RecordRedemption("rate_limited")
		e.Logger.WarnContext(ctx, "redemption rate limited")
		_ = apiError.EncodeRateLimited(w, rateErr.RetryAfter, requestID)

	case errors.Is(err, admission.ErrNotFoundOrUsed), errors.Is(err, admission.ErrSelfUse):
		if errors.Is(err, admission.ErrSelfUse) {
			obs.RecordRedemption("self_use")
		} else {
			obs.RecordRedemption("invalid_code")
		}
		e.Logger.WarnContext(ctx, "invalid invite code submitted")
		_ = apiError.EncodeError(w, apiError.InvalidInviteCode, "invalid invite code", requestID)

	case errors.Is(err, admission.ErrEmailTaken):
		obs.RecordRedemption("email_conflict")
		e.Logger.ErrorContext(ctx, "email already in use", slog.Any("error", err))
		_ = apiError.EncodeError(w, apiError.EmailConflict, "email already in use", requestID)

	default:
		obs.RecordRedemption("error")
		e.Logger.ErrorContext(ctx, "failed to redeem invite code", slog.Any("error", err))
		_ = apiError.EncodeInternalError(w, requestID)
	}
}
