// Package invites contains handlers for the invite code resource.
package invites

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apiError "github.com/naarscars/admission/internal/api/error"
	"github.com/naarscars/admission/internal/api/requestid"
	"github.com/naarscars/admission/internal/api/token"
	"github.com/naarscars/admission/internal/admission"
	"github.com/naarscars/admission/internal/env"
	"github.com/naarscars/admission/internal/invitecode"
	"github.com/naarscars/admission/internal/obs"
)

// HandleCreateInvite issues a fresh invite code for the authenticated
// member.
func HandleCreateInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := env.EnvFromCtx(ctx)
	requestID := strconv.FormatUint(requestid.ExtractRequestID(ctx), 10)

	userID, ok := token.UserIDFromCtx(ctx)
	if !ok {
		e.Logger.ErrorContext(ctx, "no user id in authorized request")
		_ = apiError.EncodeInternalError(w, requestID)
		return
	}

	ic, err := e.Admission.Generate(ctx, userID, requestID)
	var rateErr *admission.RateLimitError
	if errors.As(err, &rateErr) {
		obs.RecordGeneration("rate_limited")
		e.Logger.WarnContext(ctx, "invite generation rate limited", slog.String("user-id", userID))
		_ = apiError.EncodeRateLimited(w, rateErr.RetryAfter, requestID)
		return
	} else if err != nil {
		obs.RecordGeneration("error")
		e.Logger.ErrorContext(ctx, "failed to generate invite code", slog.Any("error", err))
		_ = apiError.EncodeInternalError(w, requestID)
		return
	}
	obs.RecordGeneration("issued")

	remaining, err := e.Admission.RemainingToday(ctx, userID)
	if err != nil {
		e.Logger.WarnContext(ctx, "failed to count remaining quota", slog.Any("error", err))
		remaining = 0
	}

	writeJSON(ctx, w, e, CreateInviteResponse{
		Code:           ic.Code,
		Display:        invitecode.FormatForDisplay(ic.Code),
		ShareText:      invitecode.SharePayload(ic.Code, e.Config.HostOrigin),
		RemainingToday: remaining,
	})
}

// HandleListInvites returns the authenticated member's invite codes, newest
// first, with the remaining daily quota.
func HandleListInvites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := env.EnvFromCtx(ctx)
	requestID := strconv.FormatUint(requestid.ExtractRequestID(ctx), 10)

	userID, ok := token.UserIDFromCtx(ctx)
	if !ok {
		e.Logger.ErrorContext(ctx, "no user id in authorized request")
		_ = apiError.EncodeInternalError(w, requestID)
		return
	}

	codes, err := e.Admission.ListByCreator(ctx, userID)
	if err != nil {
		e.Logger.ErrorContext(ctx, "failed to list invite codes", slog.Any("error", err))
		_ = apiError.EncodeInternalError(w, requestID)
		return
	}

	remaining, err := e.Admission.RemainingToday(ctx, userID)
	if err != nil {
		e.Logger.ErrorContext(ctx, "failed to count remaining quota", slog.Any("error", err))
		_ = apiError.EncodeInternalError(w, requestID)
		return
	}

	resp := ListInvitesResponse{
		Invites:        make([]InviteResponse, 0, len(codes)),
		RemainingToday: remaining,
	}
	for _, ic := range codes {
		item := InviteResponse{
			Code:      ic.Code,
			Display:   invitecode.FormatForDisplay(ic.Code),
			Status:    string(ic.Status()),
			CreatedAt: ic.CreatedAt,
		}
		if _, at, ok := ic.Consumption.Consumed(); ok {
			item.ConsumedAt = &at
		}
		resp.Invites = append(resp.Invites, item)
	}

	writeJSON(ctx, w, e, resp)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, e *env.Env, v any) {
	resp, err := json.Marshal(v)
	if err != nil {
		e.Logger.ErrorContext(ctx, "failed to marshal response", slog.Any("error", err))
		return
	}
	w.Header().Add("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		e.Logger.ErrorContext(ctx, "failed to write response", slog.Any("error", err))
	}
}
