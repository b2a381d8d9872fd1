package anthropic

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

const (
	providerName = "anthropic"
	apiVersion   = "2023-06-01"
	// maxRetryAfter caps the backoff a provider can demand via Retry-After.
	maxRetryAfter = 30 * time.Second
)

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	maxInput   int
	httpClient *http.Client
}

// NewClient builds the Anthropic simplification adapter from env. Like the
// OpenAI adapter it is single-shot; the orchestrator owns retries.
func NewClient(log *logger.Logger) (provider.Adapter, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL"))
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}

	return &client{
		log:        log.With("service", "AnthropicClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxInput:   150000,
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

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *client) Simplify(ctx context.Context, req types.SimplificationRequest) (*types.SimplificationResult, error) {
	text := provider.TruncateForBackend(req.Text, c.maxInput)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	// Anthropic has no schema-constrained output mode; the system prompt
	// carries the JSON contract and ParseResult enforces it.
	system := provider.BuildSystemPrompt(req.ComplexityLevel, req.DocumentType)
	schema, _ := json.Marshal(provider.SimplificationSchema())
	system += "\n\nThe JSON must match this schema exactly:\n" + string(schema)

	body := messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages: []message{
			{Role: "user", Content: provider.BuildUserPrompt(text)},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, provider.InvalidRequest(providerName, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", &buf)
	if err != nil {
		return nil, provider.InvalidRequest(providerName, err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
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
		// Anthropic signals overload with 529 in addition to 429.
		status := resp.StatusCode
		if status == 529 {
			status = 429
		}
		retryAfter := httpx.RetryAfterDuration(resp, 0, maxRetryAfter)
		c.log.Warn("call failed", "model", c.model, "status", resp.StatusCode, "retry_after_ms", retryAfter.Milliseconds())
		return nil, provider.ClassifyHTTP(providerName, status, retryAfter,
			fmt.Errorf("anthropic http %d: %s", resp.StatusCode, truncateBody(raw)))
	}
	c.log.Debug("call completed", "model", c.model, "latency_ms", time.Since(start).Milliseconds())

	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, provider.Unparseable(providerName, err)
	}

	var out strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return provider.ParseResult(providerName, out.String())
}

func truncateBody(raw []byte) string {
	const max = 512
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
