package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the domain rule that failed. Codes are stable and exposed
// to clients, both over the websocket surface and the REST surface.
type Code int

const (
	ErrNotFound         Code = 1001
	ErrForbidden        Code = 1002
	ErrAlreadyRejected  Code = 1003
	ErrAuctionClosed    Code = 1004
	ErrBidTooLow        Code = 1005
	ErrIneligibleBidder Code = 1006
	ErrNoStandingBid    Code = 1007

	ErrBadMessageFormat   Code = 1101
	ErrUnknownMessageType Code = 1102

	ErrInternalServer Code = 500
)

// Eligibility rule identifiers carried by ErrIneligibleBidder so clients can
// tell which rule rejected the bidder.
const (
	RuleUnratedNotAllowed = "unrated_not_allowed"
	RuleRatingTooLow      = "rating_too_low"
)

type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Minimum is the smallest acceptable bid, set for ErrBidTooLow so a
	// client can immediately show a corrected amount.
	Minimum int64 `json:"minimum,omitempty"`
	// Rule is the failed eligibility rule, set for ErrIneligibleBidder.
	Rule string `json:"rule,omitempty"`
	Err  error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ToJSON renders the error as a websocket error payload.
func (e *AppError) ToJSON() []byte {
	payload := struct {
		Type string    `json:"type"`
		Err  *AppError `json:"error"`
	}{Type: "error", Err: e}
	b, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"type":"error","error":{"code":500,"message":"internal server error"}}`)
	}
	return b
}

// New creates an error with a code and a user-facing message.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an error with a formatted user-facing message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause to an internal error.
func Wrap(err error, message string) *AppError {
	return &AppError{Code: ErrInternalServer, Message: message, Err: err}
}

// BidTooLow reports a bid under the required minimum.
func BidTooLow(message string, minimum int64) *AppError {
	return &AppError{Code: ErrBidTooLow, Message: message, Minimum: minimum}
}

// Ineligible reports a bidder that failed an eligibility rule.
func Ineligible(message, rule string) *AppError {
	return &AppError{Code: ErrIneligibleBidder, Message: message, Rule: rule}
}

// From extracts the AppError from an error chain, falling back to a generic
// internal error so no raw error detail leaks to clients.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Code: ErrInternalServer, Message: "internal server error", Err: err}
}

// CodeOf extracts the domain code from an error chain, or ErrInternalServer
// when the error is not an AppError.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalServer
}

// Is reports whether the error chain contains an AppError with this code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps a domain code to an HTTP status for the REST surface.
func HTTPStatus(code Code) int {
	switch code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrForbidden, ErrAlreadyRejected, ErrIneligibleBidder:
		return http.StatusForbidden
	case ErrAuctionClosed:
		return http.StatusConflict
	case ErrBidTooLow, ErrNoStandingBid, ErrBadMessageFormat, ErrUnknownMessageType:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
