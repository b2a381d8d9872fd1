package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/caselight/caselight-backend/internal/types"
)

var complexityGuidance = map[types.ComplexityLevel]string{
	types.ComplexityElementary: "Explain this like you're talking to a 5th grader. Use simple words and short sentences.",
	types.ComplexityHighSchool: "Explain this in plain English that a high school student would understand.",
	types.ComplexityCollege:    "Provide a clear explanation with some technical detail, suitable for a college-level reader.",
	types.ComplexityExpert:     "Provide a comprehensive explanation maintaining legal precision while improving clarity.",
}

var documentGuidance = map[types.DocumentType]string{
	types.DocContract:       "Focus on obligations, payment terms, cancellation rights, and penalties.",
	types.DocLease:          "Emphasize rent, deposits, maintenance responsibilities, and termination conditions.",
	types.DocEmployment:     "Highlight job duties, compensation, benefits, termination clauses, and non-compete terms.",
	types.DocPrivacyPolicy:  "Explain data collection, usage, sharing, and user rights clearly.",
	types.DocTermsOfService: "Focus on user rights, restrictions, liability, and account termination.",
	types.DocInsurance:      "Clarify coverage, exclusions, deductibles, and claim procedures.",
	types.DocLoan:           "Emphasize interest rates, payment schedules, penalties, and default consequences.",
}

// BuildSystemPrompt assembles the simplification instruction for one
// complexity level and optional document type. Every adapter uses the same
// prompt so reconciliation compares like with like.
func BuildSystemPrompt(level types.ComplexityLevel, docType types.DocumentType) string {
	guidance, ok := complexityGuidance[level]
	if !ok {
		guidance = complexityGuidance[types.ComplexityHighSchool]
	}

	var b strings.Builder
	b.WriteString("You are a legal expert specializing in making legal documents accessible to everyone.\n\n")
	b.WriteString("Your task is to translate complex legal language into clear, understandable text while maintaining accuracy.\n\n")
	b.WriteString("Complexity level: ")
	b.WriteString(guidance)
	b.WriteString("\n\nGuidelines:\n")
	b.WriteString("1. Maintain legal accuracy - never change the meaning\n")
	b.WriteString("2. Replace legal jargon with everyday terms\n")
	b.WriteString("3. Break down complex sentences into shorter ones\n")
	b.WriteString("4. Explain obligations and rights clearly\n")
	b.WriteString("5. Highlight important deadlines and consequences\n")
	b.WriteString("6. Point out potential risks or red flags\n")

	if docType != "" {
		if g, ok := documentGuidance[docType]; ok {
			b.WriteString("\nDocument type: ")
			b.WriteString(string(docType))
			b.WriteString("\n")
			b.WriteString(g)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nRespond with JSON only, matching the provided schema.")
	return b.String()
}

func BuildUserPrompt(text string) string {
	return "Please simplify this legal text:\n\n" + text
}

// SimplificationSchema is the structured-output contract shared by all
// adapters that support JSON-schema responses.
func SimplificationSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"simplified_text", "key_points", "red_flags", "confidence"},
		"properties": map[string]any{
			"simplified_text": map[string]any{"type": "string"},
			"key_points":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"red_flags":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"confidence":      map[string]any{"type": "number"},
		},
	}
}

type resultPayload struct {
	SimplifiedText string   `json:"simplified_text"`
	KeyPoints      []string `json:"key_points"`
	RedFlags       []string `json:"red_flags"`
	Confidence     float64  `json:"confidence"`
}

// ParseResult decodes a model's JSON payload into a provisional result.
// A payload that is not valid JSON, or that carries no simplified text,
// classifies as Unparseable so the orchestrator falls through.
func ParseResult(providerName string, raw string) (*types.SimplificationResult, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in a markdown fence despite instructions.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var payload resultPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, Unparseable(providerName, fmt.Errorf("decode result: %w", err))
	}
	if strings.TrimSpace(payload.SimplifiedText) == "" {
		return nil, Unparseable(providerName, fmt.Errorf("result missing simplified_text"))
	}

	conf := payload.Confidence
	if conf <= 0 || conf > 1 {
		conf = HeuristicConfidence(payload.SimplifiedText)
	}
	return &types.SimplificationResult{
		SimplifiedText: payload.SimplifiedText,
		KeyPoints:      payload.KeyPoints,
		RedFlags:       payload.RedFlags,
		Confidence:     conf,
		BackendUsed:    providerName,
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

// HeuristicConfidence scores a response when the model reports none.
// Deterministic over the text so repeated runs agree.
func HeuristicConfidence(text string) float64 {
	conf := 0.7
	lower := strings.ToLower(text)
	if len(text) > 100 {
		conf += 0.1
	}
	for _, kw := range []string{"risk", "concern", "issue"} {
		if strings.Contains(lower, kw) {
			conf += 0.05
			break
		}
	}
	if strings.Contains(lower, "uncertain") || strings.Contains(text, "?") {
		conf -= 0.1
	}
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

// TruncateForBackend clips request text to the adapter's input bound
// without splitting a rune.
func TruncateForBackend(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
