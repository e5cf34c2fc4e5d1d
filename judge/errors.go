package judge

import (
	"context"
	"errors"
	"strings"
)

// ErrorClass represents whether a provider error should be retried or not.
type ErrorClass int

const (
	// ErrorClassRetryable indicates the call should be retried (transient errors).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates the call should not be retried (permanent errors).
	ErrorClassFatal
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyJudgeError classifies provider errors into retryable vs fatal.
//
// Fatal errors (non-retryable):
// - Authentication/authorization errors (401/403, invalid API key)
// - Invalid request errors (400, malformed payload, context length)
// - Missing model/endpoint (404)
//
// Retryable errors (transient):
// - Timeouts and canceled deadlines
// - Network errors (connection reset, DNS failures)
// - Server errors (500, 502, 503, 504)
// - Rate limiting (429, too many requests)
//
// Unmatched errors are treated as retryable so a novel transient failure
// doesn't silently drop the batch.
func ClassifyJudgeError(err error) ErrorClass {
	if err == nil {
		return ErrorClassRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassRetryable
	}

	lower := strings.ToLower(err.Error())

	// Retryable server errors first, before generic patterns.
	if strings.Contains(lower, "500") ||
		strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") ||
		strings.Contains(lower, "504") ||
		strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout") {
		return ErrorClassRetryable
	}

	if strings.Contains(lower, "401") ||
		strings.Contains(lower, "403") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "access denied") {
		return ErrorClassFatal
	}

	if strings.Contains(lower, "400") ||
		strings.Contains(lower, "404") ||
		strings.Contains(lower, "bad request") ||
		strings.Contains(lower, "not found") ||
		strings.Contains(lower, "context length") ||
		strings.Contains(lower, "invalid request") {
		return ErrorClassFatal
	}

	networkPatterns := []string{
		"connection reset",
		"connection refused",
		"connection timed out",
		"timeout",
		"temporary failure in name resolution",
		"no route to host",
		"network unreachable",
		"dns",
		"eof",
		"broken pipe",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(lower, pattern) {
			return ErrorClassRetryable
		}
	}

	rateLimitPatterns := []string{
		"429",
		"too many requests",
		"rate limit",
		"throttled",
	}
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(lower, pattern) {
			return ErrorClassRetryable
		}
	}

	return ErrorClassRetryable
}

// IsRetryableError checks if an error should trigger retry logic.
func IsRetryableError(err error) bool {
	return ClassifyJudgeError(err) == ErrorClassRetryable
}
