package httpx

import (
	"net/http"
	"testing"
	"time"
)

func respWithRetryAfter(v string) *http.Response {
	h := http.Header{}
	if v != "" {
		h.Set("Retry-After", v)
	}
	return &http.Response{Header: h}
}

func TestRetryAfterDuration(t *testing.T) {
	tests := []struct {
		name     string
		resp     *http.Response
		fallback time.Duration
		max      time.Duration
		want     time.Duration
	}{
		{"header seconds", respWithRetryAfter("7"), time.Second, 30 * time.Second, 7 * time.Second},
		{"missing header", respWithRetryAfter(""), 2 * time.Second, 30 * time.Second, 2 * time.Second},
		{"capped", respWithRetryAfter("120"), time.Second, 30 * time.Second, 30 * time.Second},
		{"malformed header", respWithRetryAfter("soon"), 3 * time.Second, 30 * time.Second, 3 * time.Second},
		{"nil response", nil, 4 * time.Second, 30 * time.Second, 4 * time.Second},
		{"no cap", respWithRetryAfter("120"), time.Second, 0, 120 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RetryAfterDuration(tc.resp, tc.fallback, tc.max); got != tc.want {
				t.Errorf("RetryAfterDuration = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestJitterSleepBounds(t *testing.T) {
	base := time.Second
	for i := 0; i < 200; i++ {
		got := JitterSleep(base)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("JitterSleep(%v) = %v, outside +-20%%", base, got)
		}
	}
	if got := JitterSleep(0); got != 0 {
		t.Errorf("JitterSleep(0) = %v, want 0", got)
	}
}
