package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind is the closed set of failure categories the rest of the service
// reasons about. Nothing outside Classify looks at vendor error text.
type Kind string

const (
	KindConfig           Kind = "config"
	KindAuthorization    Kind = "authorization"
	KindEntityMismatch   Kind = "entity_mismatch"
	KindInvalidRequest   Kind = "invalid_request"
	KindTransient        Kind = "transient"
	KindQuotaExhausted   Kind = "quota_exhausted"
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindMalformed        Kind = "malformed_response"
	KindUnknown          Kind = "unknown"
)

// Error is a classified failure. Message is safe to show to an end user.
type Error struct {
	Kind    Kind
	Message string
	// Status is the upstream HTTP status, 0 when no response was received.
	Status int
	// Cooldown is how long the caller should wait before trying again.
	Cooldown time.Duration
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

// UpstreamError is a non-2xx answer from the generation API.
type UpstreamError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gemini status %d: %s", e.Status, e.Message)
}

// User-facing messages per kind.
const (
	msgConfig        = "The design engine API key is not configured. Set GEMINI_API_KEY and restart the service."
	msgAuthorization = "The design engine rejected the API key. It may be invalid, revoked, or unavailable in this region."
	msgEntity        = "The configured model or API key project was not found. Select a valid key and model."
	msgInvalid       = "The design engine could not process this request. Try a different photo."
	msgTransient     = "The design engine is busy right now."
	msgQuota         = "Daily usage quota has been reached. Please try again later."
	msgCapacity      = "The design engine is experiencing high traffic. Please try again in a few moments."
	msgUnknown       = "Something went wrong while contacting the design engine."
	msgTimeout       = "The design engine took too long to respond."
)

var (
	entityPatterns = []string{
		"requested entity was not found",
	}
	authPatterns = []string{
		"api key not valid",
		"invalid api key",
		"api_key_invalid",
		"permission",
		"leaked",
		"revoked",
		"location is not supported",
		"user location",
	}
	capacityPatterns = []string{
		"exhausted",
		"quota",
		"too many requests",
		"overloaded",
		"service unavailable",
		"unavailable",
	}
	longWindowPatterns = []string{
		"per day",
		"per_day",
		"perday",
		"daily",
	}
)

// Classify maps any error from a generation attempt to an *Error.
// Errors that are already classified are returned as is.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var up *UpstreamError
	if errors.As(err, &up) {
		return classifyUpstream(up)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Message: msgTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindUnknown, Message: msgUnknown, Err: err}
	}
	if isTransientNetError(err) {
		return &Error{Kind: KindTransient, Message: msgTransient, Err: err}
	}

	return &Error{Kind: KindUnknown, Message: msgUnknown, Err: err}
}

func classifyUpstream(up *UpstreamError) *Error {
	msg := strings.ToLower(up.Message)
	e := &Error{Status: up.Status, Err: up}

	switch {
	case containsAny(msg, entityPatterns):
		e.Kind, e.Message = KindEntityMismatch, msgEntity
	case up.Status == http.StatusUnauthorized || up.Status == http.StatusForbidden || containsAny(msg, authPatterns):
		e.Kind, e.Message = KindAuthorization, msgAuthorization
	case up.Status == http.StatusBadRequest:
		e.Kind, e.Message = KindInvalidRequest, msgInvalid
	case isCapacityStatus(up.Status, msg):
		if containsAny(msg, longWindowPatterns) {
			e.Kind, e.Message = KindQuotaExhausted, msgQuota
			return e
		}
		e.Kind, e.Message, e.Cooldown = KindTransient, msgTransient, up.RetryAfter
	default:
		e.Kind, e.Message = KindUnknown, msgUnknown
	}
	return e
}

// isCapacityStatus recognizes rate limiting and overload. Generic 5xx
// responses only count when the body says the backend is saturated. Other
// 4xx answers are never capacity, whatever their text.
func isCapacityStatus(status int, msg string) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return strings.Contains(msg, "unavailable") || strings.Contains(msg, "overloaded")
	}
	if status >= 400 && status < 500 {
		return false
	}
	return containsAny(msg, capacityPatterns)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func configError(reason string) *Error {
	return &Error{Kind: KindConfig, Message: msgConfig, Err: errors.New(reason)}
}

func malformed(message string, err error) *Error {
	return &Error{Kind: KindMalformed, Message: message, Err: err}
}

// capacityExceeded is what callers see once every attempt failed transiently.
func capacityExceeded(cooldown time.Duration, last error) *Error {
	return &Error{Kind: KindCapacityExceeded, Message: msgCapacity, Cooldown: cooldown, Err: last}
}
