package judge

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyJudgeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassRetryable},
		{"deadline", context.DeadlineExceeded, ErrorClassRetryable},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorClassRetryable},
		{"server error", errors.New("judge request failed: 503 Service Unavailable"), ErrorClassRetryable},
		{"bad gateway", errors.New("502 Bad Gateway"), ErrorClassRetryable},
		{"rate limit", errors.New("429 Too Many Requests"), ErrorClassRetryable},
		{"throttled", errors.New("request throttled, slow down"), ErrorClassRetryable},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8000: connection refused"), ErrorClassRetryable},
		{"dns", errors.New("lookup api.example.com: temporary failure in name resolution"), ErrorClassRetryable},
		{"unauthorized", errors.New("401 Unauthorized"), ErrorClassFatal},
		{"invalid key", errors.New("invalid api key provided"), ErrorClassFatal},
		{"forbidden", errors.New("403 Forbidden: access denied"), ErrorClassFatal},
		{"bad request", errors.New("400 Bad Request: malformed payload"), ErrorClassFatal},
		{"not found", errors.New("404 Not Found"), ErrorClassFatal},
		{"context length", errors.New("context length exceeded for model"), ErrorClassFatal},
		{"unknown", errors.New("something odd happened"), ErrorClassRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyJudgeError(tt.err); got != tt.want {
				t.Errorf("ClassifyJudgeError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorClassString(t *testing.T) {
	if ErrorClassRetryable.String() != "retryable" {
		t.Error("retryable string")
	}
	if ErrorClassFatal.String() != "fatal" {
		t.Error("fatal string")
	}
}

func TestIsRetryableError(t *testing.T) {
	if !IsRetryableError(errors.New("504 Gateway Timeout")) {
		t.Error("gateway timeout should be retryable")
	}
	if IsRetryableError(errors.New("401 Unauthorized")) {
		t.Error("auth failure should not be retryable")
	}
}
