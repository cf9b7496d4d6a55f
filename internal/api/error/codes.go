package error

import "net/http"

type ErrorCode string

const (
	UnknownError        ErrorCode = "unknown_error"
	InternalServerError ErrorCode = "internal_server_error"
	BadRequest          ErrorCode = "bad_request"
	InvalidCredentials  ErrorCode = "invalid_credentials"
	InvalidAccessToken  ErrorCode = "invalid_access_token"
	ExpiredAccessToken  ErrorCode = "expired_access_token"
	WeakPassword        ErrorCode = "weak_password"
	EmailConflict       ErrorCode = "email_conflict"

	// InvalidInviteCode covers every well-formed code that cannot be
	// redeemed. Unknown, already used, and self-submitted codes all map
	// here so the response never reveals which case applied.
	InvalidInviteCode ErrorCode = "invalid_invite_code"

	// MalformedInviteCode covers codes that fail structural checks before
	// any lookup happens.
	MalformedInviteCode ErrorCode = "malformed_invite_code"

	RateLimited ErrorCode = "rate_limited"
)

var errorCodeToStatusCode = map[ErrorCode]int{
	UnknownError:        0, // No error code - unknown
	InternalServerError: http.StatusInternalServerError,
	BadRequest:          http.StatusBadRequest,
	InvalidCredentials:  http.StatusUnauthorized,
	InvalidAccessToken:  http.StatusUnauthorized,
	ExpiredAccessToken:  http.StatusUnauthorized,
	WeakPassword:        http.StatusUnprocessableEntity,
	EmailConflict:       http.StatusConflict,
	InvalidInviteCode:   http.StatusUnprocessableEntity,
	MalformedInviteCode: http.StatusUnprocessableEntity,
	RateLimited:         http.StatusTooManyRequests,
}

func (ec ErrorCode) StatusCode() int {
	return errorCodeToStatusCode[ec]
}

func (ec ErrorCode) String() string {
	return string(ec)
}
