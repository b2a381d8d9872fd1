package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caselight/caselight-backend/internal/httpx"
	"github.com/caselight/caselight-backend/internal/logger"
	"github.com/caselight/caselight-backend/internal/platform/provider"
	"github.com/caselight/caselight-backend/internal/types"
)

const providerName = "openai"

// maxRetryAfter caps the backoff a provider can demand via Retry-After.
const maxRetryAfter = 30 * time.Second

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	maxInput   int
	httpClient *http.Client
}

// NewClient builds the OpenAI simplification adapter from env. It issues a
// single call per Simplify; retry and fallback policy live in the
// orchestrator, not here.
func NewClient(log *logger.Logger) (provider.Adapter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &client{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxInput:   120000,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (c *client) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Name:  providerName,
		Model: c.model,
		Levels: []types.ComplexityLevel{
			types.ComplexityElementary,
			types.ComplexityHighSchool,
			types.ComplexityCollege,
			types.ComplexityExpert,
		},
		MaxInputChars: c.maxInput,
	}
}

type responsesRequest struct {
	Model string `json:"model"`
	Input []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"input"`
	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (c *client) Simplify(ctx context.Context, req types.SimplificationRequest) (*types.SimplificationResult, error) {
	text := provider.TruncateForBackend(req.Text, c.maxInput)

	body := responsesRequest{Model: c.model, Temperature: 0.2}
	body.Input = []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{
		{Role: "system", Content: provider.BuildSystemPrompt(req.ComplexityLevel, req.DocumentType)},
		{Role: "user", Content: provider.BuildUserPrompt(text)},
	}
	body.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   "simplification",
		"schema": provider.SimplificationSchema(),
		"strict": true,
	}
	if req.MaxTokens > 0 {
		body.MaxOutputTokens = req.MaxTokens
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, provider.InvalidRequest(providerName, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/responses", &buf)
	if err != nil {
		return nil, provider.InvalidRequest(providerName, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Warn("request failed", "model", c.model, "error", err.Error())
		return nil, provider.ClassifyTransport(providerName, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		c.log.Warn("response read failed", "model", c.model, "error", readErr.Error())
		return nil, provider.ClassifyTransport(providerName, readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryAfter := httpx.RetryAfterDuration(resp, 0, maxRetryAfter)
		c.log.Warn("call failed", "model", c.model, "status", resp.StatusCode, "retry_after_ms", retryAfter.Milliseconds())
		return nil, provider.ClassifyHTTP(providerName, resp.StatusCode, retryAfter,
			fmt.Errorf("openai http %d: %s", resp.StatusCode, truncateBody(raw)))
	}
	c.log.Debug("call completed", "model", c.model, "latency_ms", time.Since(start).Milliseconds())

	var parsed responsesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, provider.Unparseable(providerName, err)
	}
	if parsed.Refusal != "" {
		c.log.Warn("model refused the request", "model", c.model)
		return nil, provider.Unparseable(providerName, fmt.Errorf("model refused: %s", parsed.Refusal))
	}

	return provider.ParseResult(providerName, extractOutputText(parsed))
}

func truncateBody(raw []byte) string {
	const max = 512
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
