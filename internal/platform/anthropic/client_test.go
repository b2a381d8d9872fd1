package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/platform/provider"
	"github.com/caselight/caselight-backend/internal/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func newTestClient(t *testing.T, handler http.HandlerFunc) provider.Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("ANTHROPIC_BASE_URL", srv.URL)
	c, err := NewClient(testLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func messagesPayload(inner string) []byte {
	payload := map[string]any{
		"content":     []map[string]any{{"type": "text", "text": inner}},
		"stop_reason": "end_turn",
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func TestSimplifyParsesResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != apiVersion {
			t.Errorf("anthropic-version = %q", got)
		}
		w.Write(messagesPayload(`{"simplified_text":"You pay rent monthly.","key_points":[],"red_flags":[],"confidence":0.9}`))
	})

	res, err := c.Simplify(context.Background(), types.SimplificationRequest{
		Text:            "The lessee shall remit rent.",
		ComplexityLevel: types.ComplexityHighSchool,
	})
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.SimplifiedText != "You pay rent monthly." {
		t.Errorf("SimplifiedText = %q", res.SimplifiedText)
	}
	if res.BackendUsed != "anthropic" {
		t.Errorf("BackendUsed = %q", res.BackendUsed)
	}
}

func TestSimplifyOverloadedMapsToRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(529)
	})

	_, err := c.Simplify(context.Background(), types.SimplificationRequest{Text: "doc"})
	if err == nil {
		t.Fatal("Simplify succeeded, want rate_limited")
	}
	if got := provider.KindOf(err); got != provider.KindRateLimited {
		t.Errorf("kind = %s, want rate_limited", got)
	}
	if got := provider.RetryAfterOf(err); got != 5*time.Second {
		t.Errorf("RetryAfterOf = %v, want 5s", got)
	}
}

func TestSimplifyRateLimitCapsRetryAfter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "600")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Simplify(context.Background(), types.SimplificationRequest{Text: "doc"})
	if got := provider.RetryAfterOf(err); got != maxRetryAfter {
		t.Errorf("RetryAfterOf = %v, want capped at %v", got, maxRetryAfter)
	}
}
