package types

type FactorType string

const (
	FactorLiability       FactorType = "liability"
	FactorTermination     FactorType = "termination"
	FactorPayment         FactorType = "payment"
	FactorConfidentiality FactorType = "confidentiality"
	FactorIndemnification FactorType = "indemnification"
	FactorOther           FactorType = "other"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities for sorting (high first).
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

// SeverityForScore maps a heuristic score to a severity band. The banding
// is the single source of truth: the same score always yields the same
// severity, and the overall level uses the same cut points.
func SeverityForScore(score float64) Severity {
	switch {
	case score < 0.34:
		return SeverityLow
	case score < 0.67:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

type RiskFactor struct {
	Type       FactorType `json:"factor_type"`
	Severity   Severity   `json:"severity"`
	SectionID  string     `json:"section_id"`
	Rationale  string     `json:"rationale"`
	Confidence float64    `json:"confidence"`
}

// RiskAssessment is derived entirely from the factor set. OverallScore is
// the maximum of the per-section scores: one severe clause must not be
// averaged away by pages of boilerplate.
type RiskAssessment struct {
	OverallScore    float64      `json:"overall_score"`
	OverallLevel    Severity     `json:"overall_level"`
	Factors         []RiskFactor `json:"factors"`
	Recommendations []string     `json:"recommendations"`
}
