package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		fatal     bool
		permanent bool
		retryable bool
	}{
		{"nil", nil, false, false, false},
		{"transient", Transient(ReasonTimeout, "slow"), false, false, true},
		{"rate limited", RateLimited(ReasonRateLimited, "slow down"), false, false, true},
		{"fatal", Fatal(ReasonMissingConfig, "no key"), true, false, false},
		{"permanent", Permanent(ReasonMalformed, "bad json"), false, true, false},
		{"wrapped fatal", fmt.Errorf("search: %w", Fatal(ReasonUnauthorized, "401")), true, false, false},
		{"plain error", errors.New("connection reset"), false, false, true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), false, false, true},
		{"canceled", context.Canceled, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
			if got := IsPermanent(tt.err); got != tt.permanent {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.permanent)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		fatal     bool
		retryable bool
	}{
		{http.StatusUnauthorized, true, false},
		{http.StatusForbidden, true, false},
		{http.StatusTooManyRequests, false, true},
		{http.StatusBadGateway, false, true},
		{http.StatusNotFound, false, false},
	}
	for _, tt := range tests {
		err := FromStatus(tt.status, "serpapi", "body")
		if IsFatal(err) != tt.fatal {
			t.Errorf("status %d: IsFatal = %v, want %v", tt.status, IsFatal(err), tt.fatal)
		}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: IsRetryable = %v, want %v", tt.status, IsRetryable(err), tt.retryable)
		}
	}
}
