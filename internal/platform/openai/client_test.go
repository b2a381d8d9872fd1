package openai

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
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)
	c, err := NewClient(testLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func responsesPayload(inner string) []byte {
	payload := map[string]any{
		"output": []map[string]any{{
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{{
				"type": "output_text",
				"text": inner,
			}},
		}},
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func TestSimplifyParsesResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write(responsesPayload(`{"simplified_text":"You pay rent monthly.","key_points":[],"red_flags":[],"confidence":0.9}`))
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
	if res.BackendUsed != "openai" {
		t.Errorf("BackendUsed = %q", res.BackendUsed)
	}
}

func TestSimplifyRateLimitCarriesRetryAfter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Simplify(context.Background(), types.SimplificationRequest{Text: "doc"})
	if err == nil {
		t.Fatal("Simplify succeeded, want rate_limited")
	}
	if got := provider.KindOf(err); got != provider.KindRateLimited {
		t.Errorf("kind = %s, want rate_limited", got)
	}
	if got := provider.RetryAfterOf(err); got != 7*time.Second {
		t.Errorf("RetryAfterOf = %v, want 7s", got)
	}
}

func TestSimplifyBadRequestNotTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.Simplify(context.Background(), types.SimplificationRequest{Text: "doc"})
	if got := provider.KindOf(err); got != provider.KindInvalidRequest {
		t.Errorf("kind = %s, want invalid_request", got)
	}
	if provider.KindOf(err).Transient() {
		t.Error("invalid_request classified transient")
	}
}
