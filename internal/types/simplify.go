package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type ComplexityLevel string

const (
	ComplexityElementary ComplexityLevel = "elementary"
	ComplexityHighSchool ComplexityLevel = "high_school"
	ComplexityCollege    ComplexityLevel = "college"
	ComplexityExpert     ComplexityLevel = "expert"
)

func (c ComplexityLevel) Valid() bool {
	switch c {
	case ComplexityElementary, ComplexityHighSchool, ComplexityCollege, ComplexityExpert:
		return true
	}
	return false
}

type DocumentType string

const (
	DocContract       DocumentType = "contract"
	DocLease          DocumentType = "lease"
	DocEmployment     DocumentType = "employment"
	DocPrivacyPolicy  DocumentType = "privacy_policy"
	DocTermsOfService DocumentType = "terms_of_service"
	DocInsurance      DocumentType = "insurance"
	DocLoan           DocumentType = "loan"
)

// SimplificationRequest carries the text to rewrite plus the parameters
// that change the output. Fingerprint() over the same fields is the result
// cache key.
type SimplificationRequest struct {
	Text            string          `json:"text"`
	ComplexityLevel ComplexityLevel `json:"complexity_level"`
	DocumentType    DocumentType    `json:"document_type,omitempty"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
}

// Fingerprint hashes content and parameters. Two requests with equal
// fingerprints are interchangeable and share one backend call.
func (r SimplificationRequest) Fingerprint() string {
	h := sha256.New()
	_, _ = h.Write([]byte(r.Text))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(r.ComplexityLevel))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(r.DocumentType))
	return hex.EncodeToString(h.Sum(nil))
}

// Reason codes attached to placeholder results so absorbed failures stay
// visible in the record instead of silently dropping the field.
const (
	ReasonBackendsExhausted = "backends_exhausted"
	ReasonNoBackends        = "no_backends_configured"
)

type SimplificationResult struct {
	SimplifiedText string    `json:"simplified_text"`
	KeyPoints      []string  `json:"key_points"`
	RedFlags       []string  `json:"red_flags"`
	Confidence     float64   `json:"confidence"`
	BackendUsed    string    `json:"backend_used"`
	GeneratedAt    time.Time `json:"generated_at"`

	// Degraded marks a consensus run whose backends disagreed beyond the
	// configured threshold. The result is still the best one available.
	Degraded bool `json:"degraded,omitempty"`

	// Unavailable marks the placeholder substituted when every backend
	// failed; ReasonCode says why.
	Unavailable bool   `json:"unavailable,omitempty"`
	ReasonCode  string `json:"reason_code,omitempty"`
}
